package workflow

import "errors"

var (
	// ErrValidation is returned when caller input is malformed
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateInstance is returned when an instance already exists for the entity
	ErrDuplicateInstance = errors.New("workflow instance already exists")

	// ErrTemplateMismatch is returned when a template does not belong to the entity type
	ErrTemplateMismatch = errors.New("template does not match entity type")

	// ErrTemplateIntegrity is returned when a template's step chain is malformed
	ErrTemplateIntegrity = errors.New("template integrity violation")

	// ErrTerminalState is returned when acting on an already finished instance
	ErrTerminalState = errors.New("workflow instance is in a terminal state")

	// ErrStaleSequence is returned when a concurrent action advanced the instance first
	ErrStaleSequence = errors.New("workflow instance sequence changed concurrently")

	// ErrUnauthorizedActor is returned when the actor is not a resolved approver of the current step
	ErrUnauthorizedActor = errors.New("actor is not authorized for the current step")

	// ErrNoEligibleApprover is returned when role resolution yields no actors
	ErrNoEligibleApprover = errors.New("no eligible approver for the current step")

	// ErrMissingReason is returned when a rejection carries no comments
	ErrMissingReason = errors.New("rejection requires a reason")

	// ErrEntityNotFound is returned when the owning business entity does not exist
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInstanceNotFound is returned when no workflow instance exists for the entity
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrInvalidTransition is returned when a trigger is not allowed from the current status
	ErrInvalidTransition = errors.New("invalid status transition")
)
