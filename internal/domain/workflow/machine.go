package workflow

import "fmt"

// Trigger represents an event that can move an instance between statuses
type Trigger string

const (
	// TriggerAdvance moves to the next step while staying in progress
	TriggerAdvance Trigger = "ADVANCE"
	// TriggerComplete finishes the chain after the terminal step approves
	TriggerComplete Trigger = "COMPLETE"
	// TriggerReject finishes the chain with a rejection from any step
	TriggerReject Trigger = "REJECT"
	// TriggerCancel withdraws the request before completion
	TriggerCancel Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// StateMachine validates status transitions for a workflow instance
type StateMachine struct {
	current     Status
	transitions map[Status]map[Trigger]Status
}

// machineBuilder accumulates transition configuration before building a machine
type machineBuilder struct {
	transitions map[Status]map[Trigger]Status
}

func newMachineBuilder() *machineBuilder {
	return &machineBuilder{transitions: make(map[Status]map[Trigger]Status)}
}

// permit allows a trigger to move from one status to another
func (b *machineBuilder) permit(from Status, trigger Trigger, to Status) *machineBuilder {
	if !from.IsValid() || !to.IsValid() {
		panic(fmt.Sprintf("invalid status in transition %s -> %s", from, to))
	}
	if b.transitions[from] == nil {
		b.transitions[from] = make(map[Trigger]Status)
	}
	b.transitions[from][trigger] = to
	return b
}

func (b *machineBuilder) build(initial Status) *StateMachine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial status: %s", initial))
	}
	return &StateMachine{current: initial, transitions: b.transitions}
}

// NewInstanceMachine builds the canonical instance status machine positioned at the
// given status. Terminal statuses have no outgoing transitions.
func NewInstanceMachine(current Status) *StateMachine {
	b := newMachineBuilder()
	b.permit(StatusInProgress, TriggerAdvance, StatusInProgress)
	b.permit(StatusInProgress, TriggerComplete, StatusApproved)
	b.permit(StatusInProgress, TriggerReject, StatusRejected)
	b.permit(StatusInProgress, TriggerCancel, StatusCancelled)
	return b.build(current)
}

// State returns the current status
func (m *StateMachine) State() Status {
	return m.current
}

// CanFire returns true if the trigger is permitted from the current status
func (m *StateMachine) CanFire(trigger Trigger) bool {
	targets, ok := m.transitions[m.current]
	if !ok {
		return false
	}
	_, ok = targets[trigger]
	return ok
}

// Fire executes the trigger, transitioning to the new status if allowed
func (m *StateMachine) Fire(trigger Trigger) error {
	targets, ok := m.transitions[m.current]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}
	to, ok := targets[trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}
	m.current = to
	return nil
}

// PermittedTriggers returns all triggers that can fire from the current status
func (m *StateMachine) PermittedTriggers() []Trigger {
	targets, ok := m.transitions[m.current]
	if !ok {
		return []Trigger{}
	}
	triggers := make([]Trigger, 0, len(targets))
	for trigger := range targets {
		triggers = append(triggers, trigger)
	}
	return triggers
}

// TriggerFor maps an engine action and step position onto a machine trigger
func TriggerFor(action Action, stepIsTerminal bool) Trigger {
	switch action {
	case ActionApprove:
		if stepIsTerminal {
			return TriggerComplete
		}
		return TriggerAdvance
	case ActionReject:
		return TriggerReject
	case ActionCancel:
		return TriggerCancel
	}
	return ""
}
