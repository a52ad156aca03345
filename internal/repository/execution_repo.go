package repository

import (
	"database/sql"
	"fmt"

	"github.com/optalis/request-portal/internal/domain/workflow"
	"go.uber.org/zap"
)

// ExecutionRepository handles the append-only step execution log. There are no
// update or delete paths: corrections append new rows.
type ExecutionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *sql.DB, logger *zap.Logger) *ExecutionRepository {
	return &ExecutionRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an execution record
func (r *ExecutionRepository) Create(tx *sql.Tx, exec *workflow.StepExecution) error {
	query := `
		INSERT INTO workflow_step_executions (
			instance_id, sequence_number, role_name, actor_id, actor_name,
			decision, comments, step_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var result sql.Result
	var err error

	if tx != nil {
		result, err = tx.Exec(query,
			exec.InstanceID,
			exec.SequenceNumber,
			exec.RoleName,
			exec.ActorID,
			exec.ActorName,
			exec.Decision,
			exec.Comments,
			exec.StepDate,
		)
	} else {
		result, err = r.db.Exec(query,
			exec.InstanceID,
			exec.SequenceNumber,
			exec.RoleName,
			exec.ActorID,
			exec.ActorName,
			exec.Decision,
			exec.Comments,
			exec.StepDate,
		)
	}

	if err != nil {
		r.logger.Error("Failed to create step execution", zap.Error(err))
		return fmt.Errorf("failed to create step execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	exec.ID = id
	return nil
}

// GetByInstanceID retrieves the full execution history, oldest first
func (r *ExecutionRepository) GetByInstanceID(instanceID int64) ([]workflow.StepExecution, error) {
	query := `
		SELECT id, instance_id, sequence_number, role_name, actor_id, actor_name,
			decision, comments, step_date
		FROM workflow_step_executions
		WHERE instance_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get executions", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get executions: %w", err)
	}
	defer rows.Close()

	var executions []workflow.StepExecution
	for rows.Next() {
		var exec workflow.StepExecution
		err := rows.Scan(
			&exec.ID,
			&exec.InstanceID,
			&exec.SequenceNumber,
			&exec.RoleName,
			&exec.ActorID,
			&exec.ActorName,
			&exec.Decision,
			&exec.Comments,
			&exec.StepDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step execution: %w", err)
		}
		executions = append(executions, exec)
	}

	return executions, rows.Err()
}

// CountByInstanceID returns the number of execution rows for an instance
func (r *ExecutionRepository) CountByInstanceID(instanceID int64) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM workflow_step_executions WHERE instance_id = ?",
		instanceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}
	return count, nil
}
