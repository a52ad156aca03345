// Package notify defines the notification triggering contract. The engine
// returns triggers as an outbox; callers dispatch them after the workflow
// mutation has committed. Delivery is best-effort and never affects the
// committed state.
package notify

import (
	"context"
	"fmt"

	"github.com/optalis/request-portal/internal/domain/entity"
	"go.uber.org/zap"
)

// Intent names what a trigger is telling its recipients
type Intent string

const (
	IntentPendingApproval Intent = "PENDING_APPROVAL"
	IntentApproved        Intent = "APPROVED"
	IntentRejected        Intent = "REJECTED"
	IntentCancelled       Intent = "CANCELLED"
)

// Trigger is one notification the engine wants delivered
type Trigger struct {
	Intent     Intent
	EntityID   string
	EntityType string
	RoleName   string
	Recipients []entity.Actor
	Comments   string
}

// Message renders the trigger as human-readable text
func (t Trigger) Message() string {
	switch t.Intent {
	case IntentPendingApproval:
		return fmt.Sprintf("%s %s is awaiting your approval as %s", t.EntityType, t.EntityID, t.RoleName)
	case IntentApproved:
		return fmt.Sprintf("%s %s has been approved", t.EntityType, t.EntityID)
	case IntentRejected:
		if t.Comments != "" {
			return fmt.Sprintf("%s %s has been rejected: %s", t.EntityType, t.EntityID, t.Comments)
		}
		return fmt.Sprintf("%s %s has been rejected", t.EntityType, t.EntityID)
	case IntentCancelled:
		return fmt.Sprintf("%s %s has been cancelled", t.EntityType, t.EntityID)
	}
	return fmt.Sprintf("%s %s status changed", t.EntityType, t.EntityID)
}

// Dispatcher delivers a trigger to its recipients
type Dispatcher interface {
	Dispatch(ctx context.Context, trigger Trigger) error
}

// DispatchAll delivers every trigger, logging failures and continuing; a failed
// delivery never surfaces to the caller whose mutation already committed.
func DispatchAll(ctx context.Context, d Dispatcher, triggers []Trigger, logger *zap.Logger) {
	for _, trigger := range triggers {
		if err := d.Dispatch(ctx, trigger); err != nil {
			logger.Error("Failed to dispatch notification trigger",
				zap.String("intent", string(trigger.Intent)),
				zap.String("entity_id", trigger.EntityID),
				zap.String("entity_type", trigger.EntityType),
				zap.Error(err))
		}
	}
}

// LogDispatcher records triggers to the structured log only; used in
// development and tests, and as the fallback when Lark is not configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a log-only dispatcher
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the trigger
func (d *LogDispatcher) Dispatch(_ context.Context, trigger Trigger) error {
	recipients := make([]string, 0, len(trigger.Recipients))
	for _, r := range trigger.Recipients {
		recipients = append(recipients, r.ID)
	}
	d.logger.Info("Notification trigger",
		zap.String("intent", string(trigger.Intent)),
		zap.String("entity_id", trigger.EntityID),
		zap.String("entity_type", trigger.EntityType),
		zap.String("role", trigger.RoleName),
		zap.Strings("recipients", recipients),
		zap.String("message", trigger.Message()))
	return nil
}
