package repository

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/optalis/request-portal/internal/domain/workflow"
	"github.com/optalis/request-portal/pkg/database"
)

var testDBSeq int64

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zap.NewNop()

	path := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", atomic.AddInt64(&testDBSeq, 1)))
	db, err := database.New(database.Config{
		Path:            path,
		MaxOpenConns:    2,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator := database.NewMigrator(db, logger)
	require.NoError(t, migrator.RunMigrations("../../migrations"))
	return db
}

func newInstance(entityID string) *workflow.Instance {
	return &workflow.Instance{
		EntityID:        entityID,
		EntityType:      "Claim",
		TemplateID:      2,
		CurrentSequence: 1,
		Status:          workflow.StatusInProgress,
		InitiatedBy:     "u-1001",
		InitiatedAt:     time.Now().UTC(),
	}
}

func TestInstanceRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())

	instance := newInstance("CLM-2026-0001")
	require.NoError(t, repo.Create(nil, instance))
	assert.NotZero(t, instance.ID)

	got, err := repo.GetByEntity("CLM-2026-0001", "Claim")
	require.NoError(t, err)
	assert.Equal(t, instance.ID, got.ID)
	assert.Equal(t, workflow.StatusInProgress, got.Status)
	assert.Nil(t, got.CompletedAt)

	_, err = repo.GetByEntity("CLM-9999-0000", "Claim")
	assert.ErrorIs(t, err, workflow.ErrInstanceNotFound)
}

func TestInstanceRepository_DuplicateEntity(t *testing.T) {
	db := newTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())

	require.NoError(t, repo.Create(nil, newInstance("CLM-2026-0001")))
	err := repo.Create(nil, newInstance("CLM-2026-0001"))
	assert.ErrorIs(t, err, workflow.ErrDuplicateInstance)
}

func TestInstanceRepository_TransitionGuard(t *testing.T) {
	db := newTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())

	instance := newInstance("CLM-2026-0001")
	require.NoError(t, repo.Create(nil, instance))

	// Stale expected sequence matches nothing.
	tx, err := db.Begin()
	require.NoError(t, err)
	ok, err := repo.Transition(tx, instance.ID, 5, 2, workflow.StatusInProgress, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tx.Rollback())

	// The current sequence wins and moves the pointer.
	tx, err = db.Begin()
	require.NoError(t, err)
	ok, err = repo.Transition(tx, instance.ID, 1, 2, workflow.StatusInProgress, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tx.Commit())

	// A terminal transition stamps completion and blocks further updates.
	done := time.Now().UTC()
	tx, err = db.Begin()
	require.NoError(t, err)
	ok, err = repo.Transition(tx, instance.ID, 2, 2, workflow.StatusApproved, &done)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tx.Commit())

	got, err := repo.GetByID(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, got.Status)
	require.NotNil(t, got.CompletedAt)

	tx, err = db.Begin()
	require.NoError(t, err)
	ok, err = repo.Transition(tx, instance.ID, 2, 2, workflow.StatusApproved, &done)
	require.NoError(t, err)
	assert.False(t, ok, "terminal instances must not transition again")
	require.NoError(t, tx.Rollback())
}

func TestInstanceRepository_ListFilter(t *testing.T) {
	db := newTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())

	first := newInstance("CLM-2026-0001")
	require.NoError(t, repo.Create(nil, first))

	second := newInstance("TRF-2026-0001")
	second.EntityType = "TRF"
	second.TemplateID = 1
	require.NoError(t, repo.Create(nil, second))

	done := time.Now().UTC()
	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = repo.Transition(tx, first.ID, 1, 1, workflow.StatusApproved, &done)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	all, err := repo.List(ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	approved, err := repo.List(ListFilter{Status: workflow.StatusApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "CLM-2026-0001", approved[0].EntityID)

	trf, err := repo.List(ListFilter{EntityType: "TRF"})
	require.NoError(t, err)
	require.Len(t, trf, 1)
	assert.Equal(t, "TRF-2026-0001", trf[0].EntityID)
}

func TestTemplateRepository_CanonicalChains(t *testing.T) {
	db := newTestDB(t)
	repo := NewTemplateRepository(db.DB, zap.NewNop())

	tpl, err := repo.GetByEntityType("Claim")
	require.NoError(t, err)
	require.Len(t, tpl.Steps, 3)
	assert.Equal(t, "Requestor", tpl.Steps[0].Role.Name)
	assert.Equal(t, "Finance Officer", tpl.Steps[2].Role.Name)
	assert.True(t, tpl.Steps[2].IsTerminal)
	assert.Nil(t, tpl.Steps[2].OnApproveNext)

	_, err = repo.GetByEntityType("Unknown")
	assert.ErrorIs(t, err, workflow.ErrTemplateMismatch)
}

func TestExecutionRepository_AppendAndList(t *testing.T) {
	db := newTestDB(t)
	instances := NewInstanceRepository(db.DB, zap.NewNop())
	executions := NewExecutionRepository(db.DB, zap.NewNop())

	instance := newInstance("CLM-2026-0001")
	require.NoError(t, instances.Create(nil, instance))

	for seq, decision := range []workflow.Decision{workflow.DecisionProcessed, workflow.DecisionApproved} {
		require.NoError(t, executions.Create(nil, &workflow.StepExecution{
			InstanceID:     instance.ID,
			SequenceNumber: seq + 1,
			RoleName:       "Requestor",
			ActorID:        "u-1001",
			Decision:       decision,
			StepDate:       time.Now().UTC(),
		}))
	}

	rows, err := executions.GetByInstanceID(instance.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	count, err := executions.CountByInstanceID(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
