package workflow

import (
	"errors"
	"testing"
)

func intp(v int) *int { return &v }

func linearTemplate() *Template {
	return &Template{
		ID:         1,
		EntityType: "Claim",
		Name:       "claim-default",
		Steps: []StepDefinition{
			{SequenceNumber: 1, Role: RoleRef{Name: "Requestor", Kind: RoleLiteral}, OnApproveNext: intp(2)},
			{SequenceNumber: 2, Role: RoleRef{Name: "Department Focal", Kind: RoleDepartment}, OnApproveNext: intp(3)},
			{SequenceNumber: 3, Role: RoleRef{Name: "HOD", Kind: RoleLiteral}, IsTerminal: true},
		},
	}
}

func TestTemplate_Validate(t *testing.T) {
	if err := linearTemplate().Validate(); err != nil {
		t.Fatalf("Validate() on well-formed template failed: %v", err)
	}
}

func TestTemplate_Validate_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Template)
	}{
		{"no steps", func(tpl *Template) { tpl.Steps = nil }},
		{"duplicate sequence", func(tpl *Template) { tpl.Steps[1].SequenceNumber = 1 }},
		{"terminal with successor", func(tpl *Template) { tpl.Steps[2].OnApproveNext = intp(4) }},
		{"non-terminal without successor", func(tpl *Template) { tpl.Steps[0].OnApproveNext = nil }},
		{"broken chain", func(tpl *Template) { tpl.Steps[0].OnApproveNext = intp(3) }},
		{"no terminal step", func(tpl *Template) {
			tpl.Steps[2].IsTerminal = false
			tpl.Steps[2].OnApproveNext = intp(4)
		}},
		{"two terminal steps", func(tpl *Template) {
			tpl.Steps[1].IsTerminal = true
			tpl.Steps[1].OnApproveNext = nil
		}},
		{"empty role name", func(tpl *Template) { tpl.Steps[0].Role.Name = "" }},
		{"unknown role kind", func(tpl *Template) { tpl.Steps[0].Role.Kind = "guesswork" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := linearTemplate()
			tt.mutate(tpl)
			if err := tpl.Validate(); !errors.Is(err, ErrTemplateIntegrity) {
				t.Errorf("Validate() error = %v, want ErrTemplateIntegrity", err)
			}
		})
	}
}

func TestTemplate_FirstSequence(t *testing.T) {
	tpl := linearTemplate()
	if got := tpl.FirstSequence(); got != 1 {
		t.Errorf("FirstSequence() = %d, want 1", got)
	}

	// Order in the slice must not matter.
	tpl.Steps[0], tpl.Steps[2] = tpl.Steps[2], tpl.Steps[0]
	if got := tpl.FirstSequence(); got != 1 {
		t.Errorf("FirstSequence() after shuffle = %d, want 1", got)
	}
}

func TestTemplate_StepAt(t *testing.T) {
	tpl := linearTemplate()

	step, err := tpl.StepAt(2)
	if err != nil {
		t.Fatalf("StepAt(2) failed: %v", err)
	}
	if step.Role.Name != "Department Focal" {
		t.Errorf("StepAt(2).Role.Name = %q, want %q", step.Role.Name, "Department Focal")
	}

	if _, err := tpl.StepAt(99); !errors.Is(err, ErrTemplateIntegrity) {
		t.Errorf("StepAt(99) error = %v, want ErrTemplateIntegrity", err)
	}
}
