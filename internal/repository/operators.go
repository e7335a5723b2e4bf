package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmehdipour/subscribers/internal/model"
	"github.com/jmoiron/sqlx"
)

type OperatorsRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Operator, error)
	Upsert(ctx context.Context, op model.Operator) error
}

type OperatorsRepositoryImpl struct {
	db *sqlx.DB
}

func NewOperatorsRepository(db *sqlx.DB) *OperatorsRepositoryImpl {
	return &OperatorsRepositoryImpl{db: db}
}

var _ OperatorsRepository = (*OperatorsRepositoryImpl)(nil)

// GetByAPIKey returns (nil, nil) when no operator owns the key.
func (r *OperatorsRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.Operator, error) {
	var o model.Operator
	err := r.db.GetContext(ctx, &o, `
		SELECT id, name, api_key, status, created_at, updated_at
		  FROM operators
		 WHERE api_key = ? LIMIT 1
	`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Upsert creates the operator or refreshes name/status for an existing api_key.
func (r *OperatorsRepositoryImpl) Upsert(ctx context.Context, op model.Operator) error {
	q := `
		INSERT INTO operators (name, api_key, status, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON DUPLICATE KEY UPDATE
		    name       = VALUES(name),
		    status     = VALUES(status),
		    updated_at = VALUES(updated_at)
	`
	if r.db.DriverName() == "sqlite" {
		q = `
		INSERT INTO operators (name, api_key, status, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (api_key) DO UPDATE SET
		    name       = excluded.name,
		    status     = excluded.status,
		    updated_at = excluded.updated_at
	`
	}
	if _, err := r.db.ExecContext(ctx, q, op.Name, op.APIKey, string(op.Status)); err != nil {
		return fmt.Errorf("upsert operator %q: %w", op.Name, err)
	}
	return nil
}
