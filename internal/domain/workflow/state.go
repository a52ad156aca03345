package workflow

// Status represents the lifecycle state of a workflow instance
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
)

var validStatuses = map[Status]bool{
	StatusInProgress: true,
	StatusApproved:   true,
	StatusRejected:   true,
	StatusCancelled:  true,
}

var terminalStatuses = map[Status]bool{
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCancelled: true,
}

// IsTerminal returns true if no further transitions are permitted
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsValid returns true if the status is a known instance status
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// Action is a decision submitted by an actor against the current step
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
)

// IsValid returns true if the action is one the engine accepts
func (a Action) IsValid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionCancel:
		return true
	}
	return false
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// Decision is the outcome recorded on a step execution row
type Decision string

const (
	DecisionApproved  Decision = "APPROVED"
	DecisionRejected  Decision = "REJECTED"
	DecisionCancelled Decision = "CANCELLED"
	DecisionProcessed Decision = "PROCESSED"
)

// String returns the string representation of the decision
func (d Decision) String() string {
	return string(d)
}
