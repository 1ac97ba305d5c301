// Package postgres provides the PostgreSQL implementation of the settings store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookrelay/hookrelay/internal/settings"
)

// Repository implements settings.Store using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL settings repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// IsQueueEnabled reads the kill-switch. An absent row means enabled.
func (r *Repository) IsQueueEnabled(ctx context.Context) (bool, error) {
	var value string
	err := r.db.QueryRow(ctx,
		`SELECT value FROM app_settings WHERE key = $1`,
		settings.KeyQueueEnabled,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("read setting %s: %w", settings.KeyQueueEnabled, err)
	}

	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse setting %s: %w", settings.KeyQueueEnabled, err)
	}
	return enabled, nil
}

// SetQueueEnabled writes the kill-switch.
func (r *Repository) SetQueueEnabled(ctx context.Context, enabled bool) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO app_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, settings.KeyQueueEnabled, strconv.FormatBool(enabled))
	if err != nil {
		return fmt.Errorf("write setting %s: %w", settings.KeyQueueEnabled, err)
	}
	return nil
}
