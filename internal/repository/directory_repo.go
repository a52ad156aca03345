package repository

import (
	"database/sql"
	"fmt"

	"github.com/optalis/request-portal/internal/domain/entity"
	"go.uber.org/zap"
)

// DirectoryRepository reads the user/department directory backing role resolution
type DirectoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *sql.DB, logger *zap.Logger) *DirectoryRepository {
	return &DirectoryRepository{
		db:     db,
		logger: logger,
	}
}

// UserByID retrieves one active user, or nil when absent
func (r *DirectoryRepository) UserByID(id string) (*entity.Actor, error) {
	query := `
		SELECT id, name, role, department
		FROM directory_users
		WHERE id = ? AND active = 1
	`

	var actor entity.Actor
	err := r.db.QueryRow(query, id).Scan(&actor.ID, &actor.Name, &actor.Role, &actor.Department)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get directory user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get directory user: %w", err)
	}
	return &actor, nil
}

// UsersByRole retrieves all active users holding a role, optionally scoped to a
// department. An empty department means no scoping.
func (r *DirectoryRepository) UsersByRole(role, department string) ([]entity.Actor, error) {
	query := `
		SELECT id, name, role, department
		FROM directory_users
		WHERE role = ? AND active = 1
	`
	args := []interface{}{role}
	if department != "" {
		query += " AND department = ?"
		args = append(args, department)
	}
	query += " ORDER BY id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to get users by role", zap.String("role", role), zap.Error(err))
		return nil, fmt.Errorf("failed to get users by role: %w", err)
	}
	defer rows.Close()

	var actors []entity.Actor
	for rows.Next() {
		var actor entity.Actor
		if err := rows.Scan(&actor.ID, &actor.Name, &actor.Role, &actor.Department); err != nil {
			return nil, fmt.Errorf("failed to scan directory user: %w", err)
		}
		actors = append(actors, actor)
	}

	return actors, rows.Err()
}

// LineManager retrieves the designated line manager of a department, or nil
// when the department has none assigned
func (r *DirectoryRepository) LineManager(department string) (*entity.Actor, error) {
	query := `
		SELECT u.id, u.name, u.role, u.department
		FROM departments d
		JOIN directory_users u ON u.id = d.line_manager_id AND u.active = 1
		WHERE d.name = ?
	`

	var actor entity.Actor
	err := r.db.QueryRow(query, department).Scan(&actor.ID, &actor.Name, &actor.Role, &actor.Department)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get line manager", zap.String("department", department), zap.Error(err))
		return nil, fmt.Errorf("failed to get line manager: %w", err)
	}
	return &actor, nil
}
