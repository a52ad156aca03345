package adapter

import (
	"database/sql"
	"fmt"

	"github.com/optalis/request-portal/internal/domain/entity"
	"github.com/optalis/request-portal/internal/domain/workflow"
	"go.uber.org/zap"
)

// sqlAdapter is the shared implementation behind every entity type; the five
// request tables have identical approval-relevant columns, so only the table
// names differ per type.
type sqlAdapter struct {
	entityType entity.EntityType
	table      string
	stepsTable string
	db         *sql.DB
	logger     *zap.Logger
}

func newSQLAdapter(entityType entity.EntityType, table, stepsTable string, db *sql.DB, logger *zap.Logger) *sqlAdapter {
	return &sqlAdapter{
		entityType: entityType,
		table:      table,
		stepsTable: stepsTable,
		db:         db,
		logger:     logger,
	}
}

// NewTravelAdapter serves TRF rows
func NewTravelAdapter(db *sql.DB, logger *zap.Logger) EntityAdapter {
	return newSQLAdapter(entity.EntityTRF, "travel_requests", "travel_request_approval_steps", db, logger)
}

// NewClaimAdapter serves expense claim rows
func NewClaimAdapter(db *sql.DB, logger *zap.Logger) EntityAdapter {
	return newSQLAdapter(entity.EntityClaim, "expense_claims", "expense_claim_approval_steps", db, logger)
}

// NewVisaAdapter serves visa request rows
func NewVisaAdapter(db *sql.DB, logger *zap.Logger) EntityAdapter {
	return newSQLAdapter(entity.EntityVisa, "visa_requests", "visa_request_approval_steps", db, logger)
}

// NewAccommodationAdapter serves accommodation request rows
func NewAccommodationAdapter(db *sql.DB, logger *zap.Logger) EntityAdapter {
	return newSQLAdapter(entity.EntityAccommodation, "accommodation_requests", "accommodation_request_approval_steps", db, logger)
}

// NewTransportAdapter serves transport request rows
func NewTransportAdapter(db *sql.DB, logger *zap.Logger) EntityAdapter {
	return newSQLAdapter(entity.EntityTransport, "transport_requests", "transport_request_approval_steps", db, logger)
}

// NewRegistryFromDB builds a registry covering all five entity types
func NewRegistryFromDB(db *sql.DB, logger *zap.Logger) *Registry {
	return NewRegistry(
		NewTravelAdapter(db, logger),
		NewClaimAdapter(db, logger),
		NewVisaAdapter(db, logger),
		NewAccommodationAdapter(db, logger),
		NewTransportAdapter(db, logger),
	)
}

func (a *sqlAdapter) EntityType() entity.EntityType {
	return a.entityType
}

func (a *sqlAdapter) ReadApprovalContext(entityID string) (*entity.ApprovalContext, error) {
	query := fmt.Sprintf(`
		SELECT id, requestor_id, department, cost_center
		FROM %s
		WHERE id = ?
	`, a.table)

	var ctx entity.ApprovalContext
	ctx.EntityType = a.entityType
	err := a.db.QueryRow(query, entityID).Scan(&ctx.EntityID, &ctx.RequestorID, &ctx.Department, &ctx.CostCenter)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", workflow.ErrEntityNotFound, a.entityType, entityID)
	}
	if err != nil {
		a.logger.Error("Failed to read approval context",
			zap.String("entity_type", a.entityType.String()),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read approval context: %w", err)
	}

	return &ctx, nil
}

func (a *sqlAdapter) WriteStatus(entityID, projectedStatus string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, a.table)

	result, err := a.db.Exec(query, projectedStatus, entityID)
	if err != nil {
		a.logger.Error("Failed to write entity status",
			zap.String("entity_type", a.entityType.String()),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return fmt.Errorf("failed to write entity status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", workflow.ErrEntityNotFound, a.entityType, entityID)
	}
	return nil
}

func (a *sqlAdapter) AppendLegacyStep(entityID string, exec *workflow.StepExecution) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (request_id, sequence_number, role_name, actor_id, decision, comments, step_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.stepsTable)

	_, err := a.db.Exec(query,
		entityID,
		exec.SequenceNumber,
		exec.RoleName,
		exec.ActorID,
		exec.Decision,
		exec.Comments,
		exec.StepDate,
	)
	if err != nil {
		a.logger.Error("Failed to append legacy approval step",
			zap.String("entity_type", a.entityType.String()),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return fmt.Errorf("failed to append legacy approval step: %w", err)
	}
	return nil
}
