package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/optalis/request-portal/internal/adapter"
	"github.com/optalis/request-portal/internal/domain/entity"
	domainwf "github.com/optalis/request-portal/internal/domain/workflow"
	"github.com/optalis/request-portal/internal/notify"
	"github.com/optalis/request-portal/internal/repository"
	"github.com/optalis/request-portal/internal/roles"
	"github.com/optalis/request-portal/pkg/database"
)

var testDBSeq int64

type testHarness struct {
	engine     *Engine
	db         *database.DB
	executions *repository.ExecutionRepository
	templates  *repository.TemplateRepository
}

// newTestHarness builds an engine over a fresh on-disk database seeded with
// the shipped migrations (canonical templates plus the demo directory).
func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	logger := zap.NewNop()

	path := filepath.Join(t.TempDir(), fmt.Sprintf("engine_test_%d.db", atomic.AddInt64(&testDBSeq, 1)))
	db, err := database.New(database.Config{
		Path:            path,
		MaxOpenConns:    4,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator := database.NewMigrator(db, logger)
	require.NoError(t, migrator.RunMigrations("../../migrations"))

	templates := repository.NewTemplateRepository(db.DB, logger)
	instances := repository.NewInstanceRepository(db.DB, logger)
	executions := repository.NewExecutionRepository(db.DB, logger)
	directory := repository.NewDirectoryRepository(db.DB, logger)
	adapters := adapter.NewRegistryFromDB(db.DB, logger)
	resolver := roles.NewResolver(directory, logger)

	return &testHarness{
		engine:     NewEngine(db, templates, instances, executions, adapters, resolver, logger),
		db:         db,
		executions: executions,
		templates:  templates,
	}
}

// Seeded fixture: expense claim CLM-2026-0001 by u-1001 (Engineering).
// Claim chain: Requestor(1) -> Department Focal(2) -> Finance Officer(3, terminal).
const (
	claimID     = "CLM-2026-0001"
	requestorID = "u-1001"
	focalID     = "u-2001"
	financeID   = "u-5001"
	adminID     = "u-9001"
	unrelatedID = "u-1002"
)

func startClaim(t *testing.T, h *testHarness) *domainwf.Instance {
	t.Helper()
	instance, _, err := h.engine.StartInstance(context.Background(), StartRequest{
		EntityID:    claimID,
		EntityType:  entity.EntityClaim,
		InitiatorID: requestorID,
	})
	require.NoError(t, err)
	return instance
}

func approve(t *testing.T, h *testHarness, actorID string) *domainwf.Instance {
	t.Helper()
	instance, _, err := h.engine.ProcessStep(context.Background(), StepRequest{
		EntityID:   claimID,
		EntityType: entity.EntityClaim,
		Action:     domainwf.ActionApprove,
		ActorID:    actorID,
	})
	require.NoError(t, err)
	return instance
}

func claimStatus(t *testing.T, h *testHarness) string {
	t.Helper()
	var status string
	require.NoError(t, h.db.QueryRow("SELECT status FROM expense_claims WHERE id = ?", claimID).Scan(&status))
	return status
}

func TestEngine_StartInstance(t *testing.T) {
	h := newTestHarness(t)

	instance, triggers, err := h.engine.StartInstance(context.Background(), StartRequest{
		EntityID:    claimID,
		EntityType:  entity.EntityClaim,
		InitiatorID: requestorID,
	})
	require.NoError(t, err)

	assert.Equal(t, domainwf.StatusInProgress, instance.Status)
	assert.Equal(t, 1, instance.CurrentSequence)
	assert.Equal(t, requestorID, instance.InitiatedBy)
	assert.Nil(t, instance.CompletedAt)

	// One Processed acknowledgment from the initiator.
	executions, err := h.executions.GetByInstanceID(instance.ID)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, domainwf.DecisionProcessed, executions[0].Decision)
	assert.Equal(t, requestorID, executions[0].ActorID)

	// Entity status synchronized to the first pending-approval state.
	assert.Equal(t, "Pending Requestor", claimStatus(t, h))

	require.Len(t, triggers, 1)
	assert.Equal(t, notify.IntentPendingApproval, triggers[0].Intent)
	require.Len(t, triggers[0].Recipients, 1)
	assert.Equal(t, requestorID, triggers[0].Recipients[0].ID)
}

func TestEngine_StartInstance_Duplicate(t *testing.T) {
	h := newTestHarness(t)
	startClaim(t, h)

	_, _, err := h.engine.StartInstance(context.Background(), StartRequest{
		EntityID:    claimID,
		EntityType:  entity.EntityClaim,
		InitiatorID: requestorID,
	})
	assert.ErrorIs(t, err, domainwf.ErrDuplicateInstance)
}

func TestEngine_StartInstance_EntityNotFound(t *testing.T) {
	h := newTestHarness(t)

	_, _, err := h.engine.StartInstance(context.Background(), StartRequest{
		EntityID:    "CLM-MISSING",
		EntityType:  entity.EntityClaim,
		InitiatorID: requestorID,
	})
	assert.ErrorIs(t, err, domainwf.ErrEntityNotFound)
}

func TestEngine_StartInstance_TemplateMismatch(t *testing.T) {
	h := newTestHarness(t)

	// Template 1 belongs to TRF, not Claim.
	_, _, err := h.engine.StartInstance(context.Background(), StartRequest{
		EntityID:    claimID,
		EntityType:  entity.EntityClaim,
		TemplateID:  1,
		InitiatorID: requestorID,
	})
	assert.ErrorIs(t, err, domainwf.ErrTemplateMismatch)
}

func TestEngine_FullApprovalChain(t *testing.T) {
	h := newTestHarness(t)
	startClaim(t, h)

	instance := approve(t, h, requestorID)
	assert.Equal(t, domainwf.StatusInProgress, instance.Status)
	assert.Equal(t, 2, instance.CurrentSequence)
	assert.Equal(t, "Pending Department Focal", claimStatus(t, h))

	instance = approve(t, h, focalID)
	assert.Equal(t, 3, instance.CurrentSequence)
	assert.Equal(t, "Pending Finance Officer", claimStatus(t, h))

	instance, triggers, err := h.engine.ProcessStep(context.Background(), StepRequest{
		EntityID:   claimID,
		EntityType: entity.EntityClaim,
		Action:     domainwf.ActionApprove,
		ActorID:    financeID,
	})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatusApproved, instance.Status)
	require.NotNil(t, instance.CompletedAt)
	assert.Equal(t, "Approved", claimStatus(t, h))

	// Terminal outcome notifies the requestor.
	require.Len(t, triggers, 1)
	assert.Equal(t, notify.IntentApproved, triggers[0].Intent)
	assert.Equal(t, requestorID, triggers[0].Recipients[0].ID)

	// Replaying the full history reproduces the projection exactly.
	_, executions, err := h.engine.GetInstance(claimID, entity.EntityClaim)
	require.NoError(t, err)
	template, err := h.templates.GetByID(instance.TemplateID)
	require.NoError(t, err)
	replayed, err := domainwf.Replay(executions, template)
	require.NoError(t, err)
	assert.Equal(t, "Approved", replayed)
}

func TestEngine_RejectIsFinalFromAnyStep(t *testing.T) {
	h := newTestHarness(t)
	instance := startClaim(t, h)

	updated, _, err := h.engine.ProcessStep(context.Background(), StepRequest{
		EntityID:   claimID,
		EntityType: entity.EntityClaim,
		Action:     domainwf.ActionReject,
		ActorID:    requestorID,
		Comments:   "budget denied",
	})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatusRejected, updated.Status)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, "Rejected", claimStatus(t, h))

	before, err := h.executions.CountByInstanceID(instance.ID)
	require.NoError(t, err)

	// Approving after a reject is never possible within the same instance,
	// and the idempotent failure appends nothing.
	_, _, err = h.engine.ProcessStep(context.Background(), StepRequest{
		EntityID:   claimID,
		EntityType: entity.EntityClaim,
		Action:     domainwf.ActionApprove,
		ActorID:    requestorID,
	})
	assert.ErrorIs(t, err, domainwf.ErrTerminalState)

	after, err := h.executions.CountByInstanceID(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngine_RejectRequiresReason(t *testing.T) {
	h := newTestHarness(t)
	startClaim(t, h)

	_, _, err := h.engine.ProcessStep(context.Background(), StepRequest{
		EntityID:   claimID,
		EntityType: entity.EntityClaim,
		Action:     domainwf.ActionReject,
		ActorID:    requestorID,
	})
	assert.ErrorIs(t, err, domainwf.ErrMissingReason)
}

func TestEngine_UnauthorizedActorLeavesInstanceUnchanged(t *testing.T) {
	h := newTestHarness(t)
	instance := startClaim(t, h)

	before, err := h.executions.CountByInstanceID(instance.ID)
	require.NoError(t, err)

	// The finance officer is not the resolved approver at sequence 1.
	_, _, err = h.engine.ProcessStep(context.Background(), StepRequest{
		EntityID:   claimID,
		EntityType: entity.EntityClaim,
		Action:     domainwf.ActionApprove,
		ActorID:    financeID,
	})
	assert.ErrorIs(t, err, domainwf.ErrUnauthorizedActor)

	fresh, _, err := h.engine.GetInstance(claimID, entity.EntityClaim)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.CurrentSequence)
	assert.Equal(t, domainwf.StatusInProgress, fresh.Status)

	after, err := h.executions.CountByInstanceID(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngine_Cancel(t *testing.T) {
	tests := []struct {
		name    string
		actorID string
		wantErr error
	}{
		{"requestor may cancel", requestorID, nil},
		{"administrator may cancel", adminID, nil},
		{"other actors may not", unrelatedID, domainwf.ErrUnauthorizedActor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t)
			startClaim(t, h)

			instance, _, err := h.engine.ProcessStep(context.Background(), StepRequest{
				EntityID:   claimID,
				EntityType: entity.EntityClaim,
				Action:     domainwf.ActionCancel,
				ActorID:    tt.actorID,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domainwf.StatusCancelled, instance.Status)
			assert.Equal(t, "Cancelled", claimStatus(t, h))
		})
	}
}

func TestEngine_NoEligibleApproverBlocksProgression(t *testing.T) {
	h := newTestHarness(t)

	// A claim from Finance: that department has no Department Focal, so
	// sequence 2 resolves to nobody.
	_, err := h.db.Exec(
		"INSERT INTO expense_claims (id, requestor_id, department, status) VALUES (?, ?, ?, ?)",
		"CLM-2026-0099", financeID, "Finance", "Draft")
	require.NoError(t, err)

	_, _, err = h.engine.StartInstance(context.Background(), StartRequest{
		EntityID:    "CLM-2026-0099",
		EntityType:  entity.EntityClaim,
		InitiatorID: financeID,
	})
	require.NoError(t, err)

	_, _, err = h.engine.ProcessStep(context.Background(), StepRequest{
		EntityID:   "CLM-2026-0099",
		EntityType: entity.EntityClaim,
		Action:     domainwf.ActionApprove,
		ActorID:    financeID,
	})
	require.NoError(t, err)

	// Nobody can act at sequence 2, and the workflow must not silently skip it.
	_, _, err = h.engine.ProcessStep(context.Background(), StepRequest{
		EntityID:   "CLM-2026-0099",
		EntityType: entity.EntityClaim,
		Action:     domainwf.ActionApprove,
		ActorID:    financeID,
	})
	assert.ErrorIs(t, err, domainwf.ErrNoEligibleApprover)
}

func TestEngine_ConcurrentApproveAtTerminalStep(t *testing.T) {
	h := newTestHarness(t)
	startClaim(t, h)
	approve(t, h, requestorID)
	approve(t, h, focalID)

	instance, _, err := h.engine.GetInstance(claimID, entity.EntityClaim)
	require.NoError(t, err)
	before, err := h.executions.CountByInstanceID(instance.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = h.engine.ProcessStep(context.Background(), StepRequest{
				EntityID:   claimID,
				EntityType: entity.EntityClaim,
				Action:     domainwf.ActionApprove,
				ActorID:    financeID,
			})
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domainwf.ErrTerminalState)
		conflicted++
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent approve must win")
	assert.Equal(t, 1, conflicted)

	// Exactly one execution row was appended.
	after, err := h.executions.CountByInstanceID(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	fresh, _, err := h.engine.GetInstance(claimID, entity.EntityClaim)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatusApproved, fresh.Status)
}

func TestEngine_ListInstances(t *testing.T) {
	h := newTestHarness(t)
	startClaim(t, h)
	approve(t, h, requestorID) // now pending Department Focal

	// The TRF fixture belongs to u-1002.
	_, _, err := h.engine.StartInstance(context.Background(), StartRequest{
		EntityID:    "TRF-2026-0001",
		EntityType:  entity.EntityTRF,
		InitiatorID: unrelatedID,
	})
	require.NoError(t, err)

	admin, err := h.engine.ListInstances(adminID, repository.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, admin, 2)

	// The focal sees the claim awaiting their decision but not the TRF.
	focal, err := h.engine.ListInstances(focalID, repository.ListFilter{})
	require.NoError(t, err)
	require.Len(t, focal, 1)
	assert.Equal(t, claimID, focal[0].EntityID)

	// Originators always see their own requests.
	own, err := h.engine.ListInstances(unrelatedID, repository.ListFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "TRF-2026-0001", own[0].EntityID)

	// The finance officer is not yet an approver of anything.
	finance, err := h.engine.ListInstances(financeID, repository.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, finance)
}

func TestEngine_LegacyStepsMirrored(t *testing.T) {
	h := newTestHarness(t)
	startClaim(t, h)
	approve(t, h, requestorID)

	var count int
	require.NoError(t, h.db.QueryRow(
		"SELECT COUNT(*) FROM expense_claim_approval_steps WHERE request_id = ?", claimID,
	).Scan(&count))
	assert.Equal(t, 2, count, "acknowledgment and first approval are mirrored")
}
