// Package postgres provides the PostgreSQL implementation of the integration registry.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookrelay/hookrelay/internal/domain"
	"github.com/hookrelay/hookrelay/internal/registry"
)

// Repository implements registry.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL registry repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves an integration by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Integration, error) {
	query := `
		SELECT id, tenant_id, platform, name, webhook_url, content_type, enabled, created_at, updated_at
		FROM integrations
		WHERE id = $1
	`
	var in domain.Integration
	err := r.db.QueryRow(ctx, query, id).Scan(
		&in.ID,
		&in.TenantID,
		&in.Platform,
		&in.Name,
		&in.WebhookURL,
		&in.ContentType,
		&in.Enabled,
		&in.CreatedAt,
		&in.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, fmt.Errorf("get integration: %w", err)
	}
	return &in, nil
}
