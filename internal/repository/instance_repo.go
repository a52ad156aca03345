package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/optalis/request-portal/internal/domain/workflow"
	"go.uber.org/zap"
)

// InstanceRepository handles workflow instance database operations
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `id, entity_id, entity_type, template_id,
	current_sequence_number, status, initiated_by, initiated_at, completed_at`

// Create inserts a new instance. The UNIQUE(entity_id, entity_type) index is the
// authority on duplicates; constraint violations surface as ErrDuplicateInstance.
func (r *InstanceRepository) Create(tx *sql.Tx, instance *workflow.Instance) error {
	query := `
		INSERT INTO workflow_instances (
			entity_id, entity_type, template_id, current_sequence_number,
			status, initiated_by, initiated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var result sql.Result
	var err error

	if tx != nil {
		result, err = tx.Exec(query,
			instance.EntityID,
			instance.EntityType,
			instance.TemplateID,
			instance.CurrentSequence,
			instance.Status,
			instance.InitiatedBy,
			instance.InitiatedAt,
		)
	} else {
		result, err = r.db.Exec(query,
			instance.EntityID,
			instance.EntityType,
			instance.TemplateID,
			instance.CurrentSequence,
			instance.Status,
			instance.InitiatedBy,
			instance.InitiatedAt,
		)
	}

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s/%s", workflow.ErrDuplicateInstance, instance.EntityType, instance.EntityID)
		}
		r.logger.Error("Failed to create instance", zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	instance.ID = id
	return nil
}

// GetByEntity retrieves the instance bound to an entity, or ErrInstanceNotFound
func (r *InstanceRepository) GetByEntity(entityID, entityType string) (*workflow.Instance, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_instances
		WHERE entity_id = ? AND entity_type = ?
	`, instanceColumns)

	instance, err := r.scanOne(r.db.QueryRow(query, entityID, entityType))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", workflow.ErrInstanceNotFound, entityType, entityID)
	}
	if err != nil {
		r.logger.Error("Failed to get instance by entity",
			zap.String("entity_id", entityID),
			zap.String("entity_type", entityType),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return instance, nil
}

// GetByID retrieves an instance by its primary key
func (r *InstanceRepository) GetByID(id int64) (*workflow.Instance, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_instances WHERE id = ?`, instanceColumns)

	instance, err := r.scanOne(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", workflow.ErrInstanceNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get instance by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return instance, nil
}

// Transition performs the guarded status mutation. The WHERE clause pins the
// expected sequence and in-progress status, so of two racing writers only one
// matches a row; the loser sees zero rows affected and must fail with a
// conflict, never overwrite.
func (r *InstanceRepository) Transition(tx *sql.Tx, id int64, expectedSequence int, nextSequence int, status workflow.Status, completedAt *time.Time) (bool, error) {
	query := `
		UPDATE workflow_instances
		SET current_sequence_number = ?, status = ?, completed_at = ?
		WHERE id = ? AND current_sequence_number = ? AND status = ?
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, nextSequence, status, completedAt, id, expectedSequence, workflow.StatusInProgress)
	} else {
		result, err = r.db.Exec(query, nextSequence, status, completedAt, id, expectedSequence, workflow.StatusInProgress)
	}
	if err != nil {
		r.logger.Error("Failed to transition instance", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to transition instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListFilter narrows List results
type ListFilter struct {
	Status     workflow.Status
	EntityType string
}

// List retrieves instances matching the filter, newest first
func (r *InstanceRepository) List(filter ListFilter) ([]*workflow.Instance, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_instances`, instanceColumns)
	var conds []string
	var args []interface{}

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY initiated_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*workflow.Instance
	for rows.Next() {
		instance, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *InstanceRepository) scanOne(row *sql.Row) (*workflow.Instance, error) {
	return scanInstance(row)
}

func (r *InstanceRepository) scanRow(rows *sql.Rows) (*workflow.Instance, error) {
	instance, err := scanInstance(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}
	return instance, nil
}

func scanInstance(s rowScanner) (*workflow.Instance, error) {
	var instance workflow.Instance
	var completedAt sql.NullTime

	err := s.Scan(
		&instance.ID,
		&instance.EntityID,
		&instance.EntityType,
		&instance.TemplateID,
		&instance.CurrentSequence,
		&instance.Status,
		&instance.InitiatedBy,
		&instance.InitiatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}
	return &instance, nil
}
