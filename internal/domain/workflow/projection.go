package workflow

import "fmt"

// Entity-visible status labels for terminal instances
const (
	ProjectedApproved  = "Approved"
	ProjectedRejected  = "Rejected"
	ProjectedCancelled = "Cancelled"
)

// Project derives the entity-visible status label from an instance. For terminal
// instances the label is fixed; for in-progress instances it names the role whose
// decision is pending. Pure and idempotent: the caller owns all side effects.
func Project(instance *Instance, template *Template) (string, error) {
	switch instance.Status {
	case StatusApproved:
		return ProjectedApproved, nil
	case StatusRejected:
		return ProjectedRejected, nil
	case StatusCancelled:
		return ProjectedCancelled, nil
	case StatusInProgress:
		step, err := template.StepAt(instance.CurrentSequence)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Pending %s", step.Role.Name), nil
	}
	return "", fmt.Errorf("%w: unknown instance status %q", ErrValidation, instance.Status)
}

// Replay recomputes the projected status purely from the execution history. A
// projection replayed over the full history must match Project on the live
// instance; mismatch means the entity status column drifted from the audit trail.
func Replay(executions []StepExecution, template *Template) (string, error) {
	if len(executions) == 0 {
		return "", fmt.Errorf("%w: cannot replay empty execution history", ErrValidation)
	}

	sequence := template.FirstSequence()
	for _, exec := range executions {
		switch exec.Decision {
		case DecisionRejected:
			return ProjectedRejected, nil
		case DecisionCancelled:
			return ProjectedCancelled, nil
		case DecisionProcessed:
			// Initiator acknowledgment; the chain stays at its current step.
		case DecisionApproved:
			step, err := template.StepAt(exec.SequenceNumber)
			if err != nil {
				return "", err
			}
			if step.OnApproveNext == nil {
				return ProjectedApproved, nil
			}
			sequence = *step.OnApproveNext
		default:
			return "", fmt.Errorf("%w: unknown decision %q at sequence %d", ErrValidation, exec.Decision, exec.SequenceNumber)
		}
	}

	step, err := template.StepAt(sequence)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Pending %s", step.Role.Name), nil
}
