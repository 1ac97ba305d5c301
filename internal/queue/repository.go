package queue

import (
	"context"
	"time"
)

// Repository defines data access for the notification queue.
type Repository interface {
	// Insert persists a new record. Returns ErrDuplicateID on id conflict.
	Insert(ctx context.Context, n *QueuedNotification) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (*QueuedNotification, error)

	// ListByStatus returns up to limit records in the given status,
	// ordered by priority DESC, created_at ASC.
	ListByStatus(ctx context.Context, status Status, limit int) ([]QueuedNotification, error)

	// ClaimEligiblePending atomically transitions up to limit pending records
	// whose next_retry_at is null or has elapsed into processing, stamping
	// last_attempt_at, and returns them. No two callers observe the same row.
	ClaimEligiblePending(ctx context.Context, limit int, now time.Time) ([]QueuedNotification, error)

	// Update merges the given fields into the record and bumps updated_at.
	// Returns ErrNotFound if the row no longer exists.
	Update(ctx context.Context, id string, fields UpdateFields) error

	// Delete removes the record. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error

	// CountByStatus returns record counts grouped by status.
	CountByStatus(ctx context.Context) (*Stats, error)

	// ReleaseStuck returns processing records whose last attempt started
	// before cutoff to pending, and reports how many were released.
	ReleaseStuck(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOldTerminal removes completed and failed records whose updated_at
	// is at or before cutoff, and reports how many were deleted. Pending and
	// processing records are never touched.
	DeleteOldTerminal(ctx context.Context, cutoff time.Time) (int64, error)
}

// UpdateFields describes a partial update of a queue record.
// Nil pointers leave the column unchanged; ClearNextRetryAt and
// ClearResponse explicitly null the corresponding columns.
type UpdateFields struct {
	Status         *Status
	RetryCount     *int
	NextRetryAt    *time.Time
	LastAttemptAt  *time.Time
	ResponseStatus *int
	ResponseBody   *string
	ErrorDetails   *string

	ClearNextRetryAt bool
	ClearResponse    bool
}

func statusPtr(s Status) *Status     { return &s }
func intPtr(v int) *int              { return &v }
func strPtr(v string) *string        { return &v }
func timePtr(t time.Time) *time.Time { return &t }
