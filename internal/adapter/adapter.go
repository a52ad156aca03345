// Package adapter maps the generic workflow vocabulary onto each request
// entity's own table and legacy approval-step mirror. The workflow tables are
// the system of record; everything written here is a derived cache for
// backward-reading callers.
package adapter

import (
	"fmt"

	"github.com/optalis/request-portal/internal/domain/entity"
	"github.com/optalis/request-portal/internal/domain/workflow"
)

// EntityAdapter bridges one request entity type and the workflow engine
type EntityAdapter interface {
	// EntityType names the request type this adapter serves
	EntityType() entity.EntityType

	// ReadApprovalContext loads the entity metadata role resolution needs.
	// A missing entity row is ErrEntityNotFound, distinct from a missing instance.
	ReadApprovalContext(entityID string) (*entity.ApprovalContext, error)

	// WriteStatus caches the projected status onto the entity's status column
	WriteStatus(entityID, projectedStatus string) error

	// AppendLegacyStep mirrors a step execution into the entity's legacy
	// approval-step table
	AppendLegacyStep(entityID string, exec *workflow.StepExecution) error
}

// Registry looks up the adapter for an entity type
type Registry struct {
	adapters map[entity.EntityType]EntityAdapter
}

// NewRegistry creates a registry over the given adapters
func NewRegistry(adapters ...EntityAdapter) *Registry {
	reg := &Registry{adapters: make(map[entity.EntityType]EntityAdapter, len(adapters))}
	for _, a := range adapters {
		reg.adapters[a.EntityType()] = a
	}
	return reg
}

// For returns the adapter serving the given entity type
func (r *Registry) For(entityType entity.EntityType) (EntityAdapter, error) {
	a, ok := r.adapters[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for entity type %q", workflow.ErrValidation, entityType)
	}
	return a, nil
}
