// Package roles translates abstract role references on workflow steps into
// concrete authorized actors.
package roles

import (
	"fmt"
	"strings"

	"github.com/optalis/request-portal/internal/domain/entity"
	"github.com/optalis/request-portal/internal/domain/workflow"
	"github.com/optalis/request-portal/internal/repository"
	"go.uber.org/zap"
)

// Dynamic lookup keys understood by the resolver
const (
	keyRequestor   = "requestor"
	keyLineManager = "line-manager"
)

// Resolver resolves step role references against the directory
type Resolver struct {
	dir    *repository.DirectoryRepository
	logger *zap.Logger
}

// NewResolver creates a new role resolver
func NewResolver(dir *repository.DirectoryRepository, logger *zap.Logger) *Resolver {
	return &Resolver{
		dir:    dir,
		logger: logger,
	}
}

// Resolve returns the actors authorized to act on the step for the given
// entity. An empty result means no eligible approver exists; callers must
// block progression rather than skip the step.
func (r *Resolver) Resolve(step *workflow.StepDefinition, ctx *entity.ApprovalContext) ([]entity.Actor, error) {
	switch step.Role.Kind {
	case workflow.RoleLiteral:
		return r.dir.UsersByRole(step.Role.Name, "")

	case workflow.RoleDepartment:
		return r.dir.UsersByRole(step.Role.Name, ctx.Department)

	case workflow.RoleDynamic:
		return r.resolveDynamic(step.Role.Name, ctx)
	}

	return nil, fmt.Errorf("%w: unknown role kind %q", workflow.ErrValidation, step.Role.Kind)
}

func (r *Resolver) resolveDynamic(name string, ctx *entity.ApprovalContext) ([]entity.Actor, error) {
	switch lookupKey(name) {
	case keyRequestor:
		actor, err := r.dir.UserByID(ctx.RequestorID)
		if err != nil {
			return nil, err
		}
		if actor == nil {
			r.logger.Warn("Requestor not found in directory",
				zap.String("requestor_id", ctx.RequestorID),
				zap.String("entity_id", ctx.EntityID))
			return nil, nil
		}
		return []entity.Actor{*actor}, nil

	case keyLineManager:
		actor, err := r.dir.LineManager(ctx.Department)
		if err != nil {
			return nil, err
		}
		if actor == nil {
			r.logger.Warn("Department has no line manager assigned",
				zap.String("department", ctx.Department),
				zap.String("entity_id", ctx.EntityID))
			return nil, nil
		}
		return []entity.Actor{*actor}, nil
	}

	return nil, fmt.Errorf("%w: unknown dynamic role %q", workflow.ErrValidation, name)
}

// Lookup retrieves a single actor from the directory, or nil when absent
func (r *Resolver) Lookup(actorID string) (*entity.Actor, error) {
	return r.dir.UserByID(actorID)
}

// lookupKey normalizes a display name ("Line Manager") into a lookup key
func lookupKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
