// Package registry provides read access to the tenant integration registry.
package registry

import (
	"context"
	"errors"

	"github.com/hookrelay/hookrelay/internal/domain"
)

// Registry errors.
var (
	ErrNotFound = errors.New("integration not found")
)

// Repository defines read access to configured integrations.
type Repository interface {
	// GetByID returns the integration or ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Integration, error)
}
