package workflow

import "time"

// Instance is one workflow run bound to exactly one business entity
type Instance struct {
	ID              int64      `json:"id"`
	EntityID        string     `json:"entity_id"`
	EntityType      string     `json:"entity_type"`
	TemplateID      int64      `json:"template_id"`
	CurrentSequence int        `json:"current_sequence_number"`
	Status          Status     `json:"status"`
	InitiatedBy     string     `json:"initiated_by"`
	InitiatedAt     time.Time  `json:"initiated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// StepExecution is an immutable audit record of one decision taken on one step.
// Corrections append a new row; history is never rewritten.
type StepExecution struct {
	ID             int64     `json:"id"`
	InstanceID     int64     `json:"instance_id"`
	SequenceNumber int       `json:"sequence_number"`
	RoleName       string    `json:"role_name"`
	ActorID        string    `json:"actor_id"`
	ActorName      string    `json:"actor_name"`
	Decision       Decision  `json:"decision"`
	Comments       string    `json:"comments"`
	StepDate       time.Time `json:"step_date"`
}
