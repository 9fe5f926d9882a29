package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"cyberdesk/backend/services/desk-service/internal/models"
)

// OperatorRepository handles the operators table.
type OperatorRepository struct {
	db *sql.DB
}

// NewOperatorRepository returns repository instance.
func NewOperatorRepository(db *sql.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

// Create inserts a new operator.
func (r *OperatorRepository) Create(ctx context.Context, op *models.Operator) error {
	op.Username = strings.ToLower(strings.TrimSpace(op.Username))
	const query = `
		INSERT INTO operators (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, op.Username, op.PasswordHash).Scan(&op.ID, &op.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByUsername fetches an operator by username.
func (r *OperatorRepository) GetByUsername(ctx context.Context, username string) (*models.Operator, error) {
	const query = `
		SELECT id, username, password_hash, created_at
		FROM operators
		WHERE username = $1
		LIMIT 1
	`
	var op models.Operator
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(username))).
		Scan(&op.ID, &op.Username, &op.PasswordHash, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &op, nil
}
