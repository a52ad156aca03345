package workflow

import "fmt"

// RoleKind selects the resolution strategy for a step's role reference.
// It is a closed set: resolution dispatches on the kind, never on the role name.
type RoleKind string

const (
	// RoleLiteral matches every active user holding the named role
	RoleLiteral RoleKind = "literal"
	// RoleDepartment matches users holding the named role within the entity's department
	RoleDepartment RoleKind = "department"
	// RoleDynamic resolves a lookup key (e.g. "line-manager") against org metadata
	RoleDynamic RoleKind = "dynamic"
)

// IsValid returns true if the kind is a known resolution strategy
func (k RoleKind) IsValid() bool {
	switch k {
	case RoleLiteral, RoleDepartment, RoleDynamic:
		return true
	}
	return false
}

// RoleRef is a role reference attached to a step definition
type RoleRef struct {
	Name string
	Kind RoleKind
}

// Validate checks that the reference is well formed
func (r RoleRef) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: role name is empty", ErrValidation)
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: unknown role kind %q", ErrValidation, r.Kind)
	}
	return nil
}

// String returns the display name of the referenced role
func (r RoleRef) String() string {
	return r.Name
}
