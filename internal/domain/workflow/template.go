package workflow

import (
	"fmt"
	"sort"
	"time"
)

// StepDefinition is one position in a template's approval chain
type StepDefinition struct {
	ID             int64
	TemplateID     int64
	SequenceNumber int
	Role           RoleRef
	// OnApproveNext is the sequence to advance to on approval, nil on the terminal step
	OnApproveNext  *int
	OnRejectStatus Status
	IsTerminal     bool
}

// Template is an ordered approval chain for one entity type.
// Read-only at execution time; never edited while instances reference it.
type Template struct {
	ID         int64
	EntityType string
	Name       string
	Steps      []StepDefinition
	CreatedAt  time.Time
}

// Validate checks the step chain invariants: at least one step, unique strictly
// increasing sequence numbers forming a single linear chain, exactly one terminal
// step and it is the only one without a successor.
func (t *Template) Validate() error {
	if len(t.Steps) == 0 {
		return fmt.Errorf("%w: template %d has no steps", ErrTemplateIntegrity, t.ID)
	}

	steps := make([]StepDefinition, len(t.Steps))
	copy(steps, t.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].SequenceNumber < steps[j].SequenceNumber })

	terminals := 0
	for i, step := range steps {
		if err := step.Role.Validate(); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrTemplateIntegrity, step.SequenceNumber, err)
		}
		if i > 0 && step.SequenceNumber == steps[i-1].SequenceNumber {
			return fmt.Errorf("%w: duplicate sequence number %d", ErrTemplateIntegrity, step.SequenceNumber)
		}
		if step.IsTerminal {
			terminals++
			if step.OnApproveNext != nil {
				return fmt.Errorf("%w: terminal step %d has a successor", ErrTemplateIntegrity, step.SequenceNumber)
			}
			continue
		}
		if step.OnApproveNext == nil {
			return fmt.Errorf("%w: non-terminal step %d has no successor", ErrTemplateIntegrity, step.SequenceNumber)
		}
		if i+1 >= len(steps) || *step.OnApproveNext != steps[i+1].SequenceNumber {
			return fmt.Errorf("%w: step %d does not chain to the next sequence", ErrTemplateIntegrity, step.SequenceNumber)
		}
	}
	if terminals != 1 {
		return fmt.Errorf("%w: template %d has %d terminal steps, want exactly 1", ErrTemplateIntegrity, t.ID, terminals)
	}
	if !steps[len(steps)-1].IsTerminal {
		return fmt.Errorf("%w: last step %d is not terminal", ErrTemplateIntegrity, steps[len(steps)-1].SequenceNumber)
	}
	return nil
}

// FirstSequence returns the minimum sequence number in the chain
func (t *Template) FirstSequence() int {
	first := t.Steps[0].SequenceNumber
	for _, step := range t.Steps[1:] {
		if step.SequenceNumber < first {
			first = step.SequenceNumber
		}
	}
	return first
}

// StepAt returns the definition at the given sequence number
func (t *Template) StepAt(sequence int) (*StepDefinition, error) {
	for i := range t.Steps {
		if t.Steps[i].SequenceNumber == sequence {
			return &t.Steps[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no step at sequence %d in template %d", ErrTemplateIntegrity, sequence, t.ID)
}
