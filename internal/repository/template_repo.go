package repository

import (
	"database/sql"
	"fmt"

	"github.com/optalis/request-portal/internal/domain/workflow"
	"go.uber.org/zap"
)

// TemplateRepository reads workflow templates. Templates are read-only at
// execution time; there is no write path here.
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a template and its step definitions. The loaded chain is
// validated before it is returned; a malformed chain is a configuration error,
// not something the engine guesses around.
func (r *TemplateRepository) GetByID(id int64) (*workflow.Template, error) {
	query := `
		SELECT id, entity_type, name, created_at
		FROM workflow_templates
		WHERE id = ?
	`

	var tpl workflow.Template
	err := r.db.QueryRow(query, id).Scan(&tpl.ID, &tpl.EntityType, &tpl.Name, &tpl.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: template %d", workflow.ErrTemplateMismatch, id)
	}
	if err != nil {
		r.logger.Error("Failed to get template", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if err := r.loadSteps(&tpl); err != nil {
		return nil, err
	}

	if err := tpl.Validate(); err != nil {
		r.logger.Error("Template failed integrity check", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}

	return &tpl, nil
}

// GetByEntityType retrieves the canonical template for an entity type
func (r *TemplateRepository) GetByEntityType(entityType string) (*workflow.Template, error) {
	query := `
		SELECT id, entity_type, name, created_at
		FROM workflow_templates
		WHERE entity_type = ?
		ORDER BY id
		LIMIT 1
	`

	var tpl workflow.Template
	err := r.db.QueryRow(query, entityType).Scan(&tpl.ID, &tpl.EntityType, &tpl.Name, &tpl.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no template for entity type %s", workflow.ErrTemplateMismatch, entityType)
	}
	if err != nil {
		r.logger.Error("Failed to get template by entity type", zap.String("entity_type", entityType), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if err := r.loadSteps(&tpl); err != nil {
		return nil, err
	}

	if err := tpl.Validate(); err != nil {
		r.logger.Error("Template failed integrity check", zap.Int64("id", tpl.ID), zap.Error(err))
		return nil, err
	}

	return &tpl, nil
}

func (r *TemplateRepository) loadSteps(tpl *workflow.Template) error {
	query := `
		SELECT id, template_id, sequence_number, role_name, role_kind,
			on_approve_next_sequence, on_reject_status, is_terminal
		FROM workflow_step_definitions
		WHERE template_id = ?
		ORDER BY sequence_number ASC
	`

	rows, err := r.db.Query(query, tpl.ID)
	if err != nil {
		r.logger.Error("Failed to load step definitions", zap.Int64("template_id", tpl.ID), zap.Error(err))
		return fmt.Errorf("failed to load step definitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step workflow.StepDefinition
		var next sql.NullInt64
		var rejectStatus string
		err := rows.Scan(
			&step.ID,
			&step.TemplateID,
			&step.SequenceNumber,
			&step.Role.Name,
			&step.Role.Kind,
			&next,
			&rejectStatus,
			&step.IsTerminal,
		)
		if err != nil {
			return fmt.Errorf("failed to scan step definition: %w", err)
		}
		if next.Valid {
			n := int(next.Int64)
			step.OnApproveNext = &n
		}
		step.OnRejectStatus = workflow.Status(rejectStatus)
		tpl.Steps = append(tpl.Steps, step)
	}

	return rows.Err()
}
