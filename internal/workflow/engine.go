// Package workflow is the instance engine: it creates workflow runs, applies
// approval decisions under a single serialized transaction per entity, and
// back-propagates the resulting status onto the owning request.
package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/optalis/request-portal/internal/adapter"
	"github.com/optalis/request-portal/internal/domain/entity"
	domainwf "github.com/optalis/request-portal/internal/domain/workflow"
	"github.com/optalis/request-portal/internal/notify"
	"github.com/optalis/request-portal/internal/repository"
	"github.com/optalis/request-portal/pkg/database"
	"go.uber.org/zap"
)

// RoleResolver resolves a step's role reference into concrete actors
type RoleResolver interface {
	Resolve(step *domainwf.StepDefinition, ctx *entity.ApprovalContext) ([]entity.Actor, error)
	Lookup(actorID string) (*entity.Actor, error)
}

// Engine orchestrates the approval workflow for every entity type
type Engine struct {
	db         *database.DB
	templates  *repository.TemplateRepository
	instances  *repository.InstanceRepository
	executions *repository.ExecutionRepository
	adapters   *adapter.Registry
	resolver   RoleResolver
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine creates a new workflow engine
func NewEngine(
	db *database.DB,
	templates *repository.TemplateRepository,
	instances *repository.InstanceRepository,
	executions *repository.ExecutionRepository,
	adapters *adapter.Registry,
	resolver RoleResolver,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:         db,
		templates:  templates,
		instances:  instances,
		executions: executions,
		adapters:   adapters,
		resolver:   resolver,
		logger:     logger,
		now:        time.Now,
	}
}

// StartRequest carries the inputs for StartInstance
type StartRequest struct {
	EntityID    string
	EntityType  entity.EntityType
	TemplateID  int64 // 0 selects the canonical template for the entity type
	InitiatorID string
}

// StepRequest carries the inputs for ProcessStep
type StepRequest struct {
	EntityID   string
	EntityType entity.EntityType
	Action     domainwf.Action
	ActorID    string
	Comments   string
}

// StartInstance creates the workflow run for a newly submitted request. The
// instance begins at the template's first step with a Processed acknowledgment
// from the initiator. Returns the created instance and the notification
// triggers the caller must dispatch after this call.
func (e *Engine) StartInstance(ctx context.Context, req StartRequest) (*domainwf.Instance, []notify.Trigger, error) {
	if err := validateStart(req); err != nil {
		return nil, nil, err
	}

	entityAdapter, err := e.adapters.For(req.EntityType)
	if err != nil {
		return nil, nil, err
	}

	approvalCtx, err := entityAdapter.ReadApprovalContext(req.EntityID)
	if err != nil {
		return nil, nil, err
	}

	template, err := e.loadTemplate(req.TemplateID, req.EntityType)
	if err != nil {
		return nil, nil, err
	}

	initiator, err := e.resolver.Lookup(req.InitiatorID)
	if err != nil {
		return nil, nil, err
	}
	if initiator == nil {
		return nil, nil, fmt.Errorf("%w: unknown initiator %q", domainwf.ErrValidation, req.InitiatorID)
	}

	firstSequence := template.FirstSequence()
	firstStep, err := template.StepAt(firstSequence)
	if err != nil {
		return nil, nil, err
	}

	instance := &domainwf.Instance{
		EntityID:        req.EntityID,
		EntityType:      req.EntityType.String(),
		TemplateID:      template.ID,
		CurrentSequence: firstSequence,
		Status:          domainwf.StatusInProgress,
		InitiatedBy:     initiator.ID,
		InitiatedAt:     e.now(),
	}

	execution := &domainwf.StepExecution{
		SequenceNumber: firstSequence,
		RoleName:       firstStep.Role.Name,
		ActorID:        initiator.ID,
		ActorName:      initiator.Name,
		Decision:       domainwf.DecisionProcessed,
		Comments:       "",
		StepDate:       instance.InitiatedAt,
	}

	err = e.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := e.instances.Create(tx, instance); err != nil {
			return err
		}
		execution.InstanceID = instance.ID
		return e.executions.Create(tx, execution)
	})
	if err != nil {
		return nil, nil, err
	}

	e.logger.Info("Workflow instance started",
		zap.Int64("instance_id", instance.ID),
		zap.String("entity_id", req.EntityID),
		zap.String("entity_type", req.EntityType.String()),
		zap.Int64("template_id", template.ID),
		zap.Int("sequence", firstSequence))

	e.synchronize(instance, template, entityAdapter, execution)

	triggers := e.pendingTriggers(instance, firstStep, approvalCtx)
	return instance, triggers, nil
}

// ProcessStep applies one approval decision to the current step of an
// instance. The precondition check and the status mutation run as one atomic
// unit; of two racing calls exactly one commits and the other fails with a
// conflict error and appends nothing.
func (e *Engine) ProcessStep(ctx context.Context, req StepRequest) (*domainwf.Instance, []notify.Trigger, error) {
	if err := validateStep(req); err != nil {
		return nil, nil, err
	}

	entityAdapter, err := e.adapters.For(req.EntityType)
	if err != nil {
		return nil, nil, err
	}

	approvalCtx, err := entityAdapter.ReadApprovalContext(req.EntityID)
	if err != nil {
		return nil, nil, err
	}

	instance, err := e.instances.GetByEntity(req.EntityID, req.EntityType.String())
	if err != nil {
		return nil, nil, err
	}
	if instance.Status.IsTerminal() {
		return nil, nil, fmt.Errorf("%w: instance %d is %s", domainwf.ErrTerminalState, instance.ID, instance.Status)
	}

	template, err := e.templates.GetByID(instance.TemplateID)
	if err != nil {
		return nil, nil, err
	}

	step, err := template.StepAt(instance.CurrentSequence)
	if err != nil {
		return nil, nil, err
	}

	actor, err := e.authorize(req, step, approvalCtx)
	if err != nil {
		return nil, nil, err
	}

	// The status machine guards the legal-transition invariant independently of
	// the sequence arithmetic below.
	machine := domainwf.NewInstanceMachine(instance.Status)
	if err := machine.Fire(domainwf.TriggerFor(req.Action, step.OnApproveNext == nil)); err != nil {
		return nil, nil, err
	}
	newStatus := machine.State()

	nextSequence := instance.CurrentSequence
	if req.Action == domainwf.ActionApprove && step.OnApproveNext != nil {
		nextSequence = *step.OnApproveNext
	}
	if req.Action == domainwf.ActionReject && step.OnRejectStatus.IsValid() {
		newStatus = step.OnRejectStatus
	}

	var completedAt *time.Time
	if newStatus.IsTerminal() {
		t := e.now()
		completedAt = &t
	}

	execution := &domainwf.StepExecution{
		InstanceID:     instance.ID,
		SequenceNumber: instance.CurrentSequence,
		RoleName:       step.Role.Name,
		ActorID:        actor.ID,
		ActorName:      actor.Name,
		Decision:       decisionFor(req.Action),
		Comments:       req.Comments,
		StepDate:       e.now(),
	}

	expectedSequence := instance.CurrentSequence
	err = e.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		ok, err := e.instances.Transition(tx, instance.ID, expectedSequence, nextSequence, newStatus, completedAt)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent call won the race; classify the conflict without
			// appending anything.
			return e.classifyConflict(instance.ID)
		}
		return e.executions.Create(tx, execution)
	})
	if err != nil {
		return nil, nil, err
	}

	instance.CurrentSequence = nextSequence
	instance.Status = newStatus
	instance.CompletedAt = completedAt

	e.logger.Info("Workflow step processed",
		zap.Int64("instance_id", instance.ID),
		zap.String("entity_id", req.EntityID),
		zap.String("entity_type", req.EntityType.String()),
		zap.String("action", req.Action.String()),
		zap.String("actor", actor.ID),
		zap.String("status", newStatus.String()),
		zap.Int("sequence", nextSequence))

	e.synchronize(instance, template, entityAdapter, execution)

	triggers, err := e.buildTriggers(instance, template, approvalCtx, req, execution)
	if err != nil {
		// Trigger assembly is best-effort; the mutation is already committed.
		e.logger.Error("Failed to build notification triggers",
			zap.Int64("instance_id", instance.ID), zap.Error(err))
		return instance, nil, nil
	}
	return instance, triggers, nil
}

// GetInstance returns the instance bound to an entity together with its full
// execution history.
func (e *Engine) GetInstance(entityID string, entityType entity.EntityType) (*domainwf.Instance, []domainwf.StepExecution, error) {
	if !entityType.IsValid() {
		return nil, nil, fmt.Errorf("%w: unknown entity type %q", domainwf.ErrValidation, entityType)
	}
	instance, err := e.instances.GetByEntity(entityID, entityType.String())
	if err != nil {
		return nil, nil, err
	}
	executions, err := e.executions.GetByInstanceID(instance.ID)
	if err != nil {
		return nil, nil, err
	}
	return instance, executions, nil
}

// ListInstances returns the instances visible to the viewer. Administrators
// see every matching row; anyone else sees only instances they initiated or
// where they are a resolved approver of the current step.
func (e *Engine) ListInstances(viewerID string, filter repository.ListFilter) ([]*domainwf.Instance, error) {
	viewer, err := e.resolver.Lookup(viewerID)
	if err != nil {
		return nil, err
	}
	if viewer == nil {
		return nil, fmt.Errorf("%w: unknown viewer %q", domainwf.ErrValidation, viewerID)
	}

	instances, err := e.instances.List(filter)
	if err != nil {
		return nil, err
	}
	if viewer.Role == entity.RoleAdmin {
		return instances, nil
	}

	visible := make([]*domainwf.Instance, 0, len(instances))
	for _, instance := range instances {
		if instance.InitiatedBy == viewer.ID {
			visible = append(visible, instance)
			continue
		}
		if instance.Status != domainwf.StatusInProgress {
			continue
		}
		ok, err := e.isCurrentApprover(instance, viewer)
		if err != nil {
			e.logger.Warn("Skipping instance with unresolvable current step",
				zap.Int64("instance_id", instance.ID), zap.Error(err))
			continue
		}
		if ok {
			visible = append(visible, instance)
		}
	}
	return visible, nil
}

func (e *Engine) isCurrentApprover(instance *domainwf.Instance, viewer *entity.Actor) (bool, error) {
	entityAdapter, err := e.adapters.For(entity.EntityType(instance.EntityType))
	if err != nil {
		return false, err
	}
	approvalCtx, err := entityAdapter.ReadApprovalContext(instance.EntityID)
	if err != nil {
		return false, err
	}
	template, err := e.templates.GetByID(instance.TemplateID)
	if err != nil {
		return false, err
	}
	step, err := template.StepAt(instance.CurrentSequence)
	if err != nil {
		return false, err
	}
	approvers, err := e.resolver.Resolve(step, approvalCtx)
	if err != nil {
		return false, err
	}
	for _, approver := range approvers {
		if approver.ID == viewer.ID {
			return true, nil
		}
	}
	return false, nil
}

// authorize checks the actor may perform the action on the current step
func (e *Engine) authorize(req StepRequest, step *domainwf.StepDefinition, approvalCtx *entity.ApprovalContext) (*entity.Actor, error) {
	actor, err := e.resolver.Lookup(req.ActorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, fmt.Errorf("%w: unknown actor %q", domainwf.ErrUnauthorizedActor, req.ActorID)
	}

	if req.Action == domainwf.ActionCancel {
		if actor.ID == approvalCtx.RequestorID || actor.Role == entity.RoleAdmin {
			return actor, nil
		}
		return nil, fmt.Errorf("%w: only the requestor or an administrator may cancel", domainwf.ErrUnauthorizedActor)
	}

	approvers, err := e.resolver.Resolve(step, approvalCtx)
	if err != nil {
		return nil, err
	}
	if len(approvers) == 0 {
		return nil, fmt.Errorf("%w: role %q at sequence %d", domainwf.ErrNoEligibleApprover, step.Role.Name, step.SequenceNumber)
	}
	for _, approver := range approvers {
		if approver.ID == actor.ID {
			return actor, nil
		}
	}
	return nil, fmt.Errorf("%w: %s may not act as %s", domainwf.ErrUnauthorizedActor, actor.ID, step.Role.Name)
}

// classifyConflict distinguishes terminal-state losses from sequence races
func (e *Engine) classifyConflict(instanceID int64) error {
	fresh, err := e.instances.GetByID(instanceID)
	if err != nil {
		return fmt.Errorf("%w: instance %d", domainwf.ErrStaleSequence, instanceID)
	}
	if fresh.Status.IsTerminal() {
		return fmt.Errorf("%w: instance %d is %s", domainwf.ErrTerminalState, instanceID, fresh.Status)
	}
	return fmt.Errorf("%w: instance %d advanced to sequence %d", domainwf.ErrStaleSequence, instanceID, fresh.CurrentSequence)
}

// synchronize projects the instance status onto the entity table and mirrors
// the execution into the legacy approval-step table. Runs after the commit;
// failures are logged, never propagated.
func (e *Engine) synchronize(instance *domainwf.Instance, template *domainwf.Template, entityAdapter adapter.EntityAdapter, execution *domainwf.StepExecution) {
	projected, err := domainwf.Project(instance, template)
	if err != nil {
		e.logger.Error("Failed to project entity status",
			zap.Int64("instance_id", instance.ID), zap.Error(err))
		return
	}
	if err := entityAdapter.WriteStatus(instance.EntityID, projected); err != nil {
		e.logger.Error("Failed to write projected entity status",
			zap.Int64("instance_id", instance.ID),
			zap.String("status", projected),
			zap.Error(err))
	}
	if err := entityAdapter.AppendLegacyStep(instance.EntityID, execution); err != nil {
		e.logger.Error("Failed to mirror legacy approval step",
			zap.Int64("instance_id", instance.ID), zap.Error(err))
	}
}

func (e *Engine) buildTriggers(instance *domainwf.Instance, template *domainwf.Template, approvalCtx *entity.ApprovalContext, req StepRequest, execution *domainwf.StepExecution) ([]notify.Trigger, error) {
	switch instance.Status {
	case domainwf.StatusInProgress:
		step, err := template.StepAt(instance.CurrentSequence)
		if err != nil {
			return nil, err
		}
		return e.pendingTriggers(instance, step, approvalCtx), nil

	case domainwf.StatusApproved:
		return e.requestorTriggers(instance, approvalCtx, notify.IntentApproved, "")

	case domainwf.StatusRejected:
		return e.requestorTriggers(instance, approvalCtx, notify.IntentRejected, execution.Comments)

	case domainwf.StatusCancelled:
		return e.requestorTriggers(instance, approvalCtx, notify.IntentCancelled, execution.Comments)
	}
	return nil, nil
}

// pendingTriggers notifies the resolved approvers of the current step
func (e *Engine) pendingTriggers(instance *domainwf.Instance, step *domainwf.StepDefinition, approvalCtx *entity.ApprovalContext) []notify.Trigger {
	approvers, err := e.resolver.Resolve(step, approvalCtx)
	if err != nil || len(approvers) == 0 {
		if err != nil {
			e.logger.Error("Failed to resolve approvers for notification",
				zap.Int64("instance_id", instance.ID), zap.Error(err))
		}
		return nil
	}
	return []notify.Trigger{{
		Intent:     notify.IntentPendingApproval,
		EntityID:   instance.EntityID,
		EntityType: instance.EntityType,
		RoleName:   step.Role.Name,
		Recipients: approvers,
	}}
}

// requestorTriggers notifies the originating requestor of a terminal outcome
func (e *Engine) requestorTriggers(instance *domainwf.Instance, approvalCtx *entity.ApprovalContext, intent notify.Intent, comments string) ([]notify.Trigger, error) {
	requestor, err := e.resolver.Lookup(approvalCtx.RequestorID)
	if err != nil {
		return nil, err
	}
	if requestor == nil {
		return nil, nil
	}
	return []notify.Trigger{{
		Intent:     intent,
		EntityID:   instance.EntityID,
		EntityType: instance.EntityType,
		Recipients: []entity.Actor{*requestor},
		Comments:   comments,
	}}, nil
}

func (e *Engine) loadTemplate(templateID int64, entityType entity.EntityType) (*domainwf.Template, error) {
	var template *domainwf.Template
	var err error
	if templateID != 0 {
		template, err = e.templates.GetByID(templateID)
	} else {
		template, err = e.templates.GetByEntityType(entityType.String())
	}
	if err != nil {
		return nil, err
	}
	if template.EntityType != entityType.String() {
		return nil, fmt.Errorf("%w: template %d is for %s, not %s",
			domainwf.ErrTemplateMismatch, template.ID, template.EntityType, entityType)
	}
	return template, nil
}

func validateStart(req StartRequest) error {
	if req.EntityID == "" {
		return fmt.Errorf("%w: entity id is required", domainwf.ErrValidation)
	}
	if !req.EntityType.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", domainwf.ErrValidation, req.EntityType)
	}
	if req.InitiatorID == "" {
		return fmt.Errorf("%w: initiator id is required", domainwf.ErrValidation)
	}
	return nil
}

func validateStep(req StepRequest) error {
	if req.EntityID == "" {
		return fmt.Errorf("%w: entity id is required", domainwf.ErrValidation)
	}
	if !req.EntityType.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", domainwf.ErrValidation, req.EntityType)
	}
	if !req.Action.IsValid() {
		return fmt.Errorf("%w: unknown action %q", domainwf.ErrValidation, req.Action)
	}
	if req.ActorID == "" {
		return fmt.Errorf("%w: actor id is required", domainwf.ErrValidation)
	}
	if req.Action == domainwf.ActionReject && req.Comments == "" {
		return domainwf.ErrMissingReason
	}
	return nil
}

func decisionFor(action domainwf.Action) domainwf.Decision {
	switch action {
	case domainwf.ActionApprove:
		return domainwf.DecisionApproved
	case domainwf.ActionReject:
		return domainwf.DecisionRejected
	case domainwf.ActionCancel:
		return domainwf.DecisionCancelled
	}
	return domainwf.DecisionProcessed
}
