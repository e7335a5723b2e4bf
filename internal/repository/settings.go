package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SettingsRepository is the key/value store behind the admin settings screen.
type SettingsRepository interface {
	// GetMany returns the stored values for keys; missing keys are absent from the map.
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	SetMany(ctx context.Context, values map[string]string) error
}

type SettingsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) *SettingsRepositoryImpl {
	return &SettingsRepositoryImpl{db: db}
}

var _ SettingsRepository = (*SettingsRepositoryImpl)(nil)

func (r *SettingsRepositoryImpl) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT name, value FROM settings WHERE name IN (?)`, keys)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var rows []struct {
		Name  string `db:"name"`
		Value string `db:"value"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	for _, rw := range rows {
		out[rw.Name] = rw.Value
	}
	return out, nil
}

// SetMany upserts all values in a single transaction.
func (r *SettingsRepositoryImpl) SetMany(ctx context.Context, values map[string]string) error {
	q := `
		INSERT INTO settings (name, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)
	`
	if r.db.DriverName() == "sqlite" {
		q = `
		INSERT INTO settings (name, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	}
	return withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, q, k, v); err != nil {
				return fmt.Errorf("set setting %q: %w", k, err)
			}
		}
		return nil
	})
}
