// Package postgres provides the PostgreSQL implementation of the queue repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookrelay/hookrelay/internal/queue"
)

const notificationColumns = `
	id, tenant_id, integration_id, platform, webhook_url, content_type, payload,
	priority, status, retry_count, max_retries, next_retry_at, last_attempt_at,
	response_status, response_body, error_details, created_at, updated_at`

const getQuery = `SELECT` + notificationColumns + `
	FROM notification_queue
	WHERE id = $1`

const listByStatusQuery = `SELECT` + notificationColumns + `
	FROM notification_queue
	WHERE status = $1
	ORDER BY priority DESC, created_at ASC
	LIMIT $2`

const claimQuery = `
	UPDATE notification_queue
	SET status = 'processing', last_attempt_at = $2, updated_at = $2
	WHERE id IN (
		SELECT id FROM notification_queue
		WHERE status = 'pending'
		  AND (next_retry_at IS NULL OR next_retry_at <= $2)
		ORDER BY priority DESC, created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING` + notificationColumns

// Repository implements queue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL queue repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert persists a new notification.
func (r *Repository) Insert(ctx context.Context, n *queue.QueuedNotification) error {
	query := `
		INSERT INTO notification_queue (
			id, tenant_id, integration_id, platform, webhook_url, content_type,
			payload, priority, status, retry_count, max_retries, next_retry_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		n.ID,
		n.TenantID,
		n.IntegrationID,
		n.Platform,
		n.WebhookURL,
		n.ContentType,
		n.Payload,
		n.Priority,
		n.Status,
		n.RetryCount,
		n.MaxRetries,
		n.NextRetryAt,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return queue.ErrDuplicateID
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Get retrieves a notification by ID.
func (r *Repository) Get(ctx context.Context, id string) (*queue.QueuedNotification, error) {
	row := r.db.QueryRow(ctx, getQuery, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// ListByStatus retrieves notifications in the given status, highest priority
// first, oldest first within a priority.
func (r *Repository) ListByStatus(ctx context.Context, status queue.Status, limit int) ([]queue.QueuedNotification, error) {
	rows, err := r.db.Query(ctx, listByStatusQuery, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// ClaimEligiblePending atomically claims up to limit eligible pending
// notifications. The SKIP LOCKED subselect and the status update run as one
// statement, so concurrent passes can never claim the same row.
func (r *Repository) ClaimEligiblePending(ctx context.Context, limit int, now time.Time) ([]queue.QueuedNotification, error) {
	rows, err := r.db.Query(ctx, claimQuery, limit, now)
	if err != nil {
		return nil, fmt.Errorf("claim pending notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// Update merges the given fields into the notification and bumps updated_at.
func (r *Repository) Update(ctx context.Context, id string, fields queue.UpdateFields) error {
	set := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if fields.Status != nil {
		add("status", *fields.Status)
	}
	if fields.RetryCount != nil {
		add("retry_count", *fields.RetryCount)
	}
	if fields.ClearNextRetryAt {
		set = append(set, "next_retry_at = NULL")
	} else if fields.NextRetryAt != nil {
		add("next_retry_at", *fields.NextRetryAt)
	}
	if fields.LastAttemptAt != nil {
		add("last_attempt_at", *fields.LastAttemptAt)
	}
	if fields.ClearResponse {
		set = append(set, "response_status = NULL", "response_body = NULL", "error_details = NULL")
	} else {
		if fields.ResponseStatus != nil {
			add("response_status", *fields.ResponseStatus)
		}
		if fields.ResponseBody != nil {
			add("response_body", *fields.ResponseBody)
		}
		if fields.ErrorDetails != nil {
			add("error_details", *fields.ErrorDetails)
		}
	}

	query := fmt.Sprintf(`UPDATE notification_queue SET %s WHERE id = $1`, strings.Join(set, ", "))

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return queue.ErrNotFound
	}
	return nil
}

// Delete removes a notification. Deleting an absent id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM notification_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// CountByStatus returns record counts grouped by status.
func (r *Repository) CountByStatus(ctx context.Context) (*queue.Stats, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM notification_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}
	defer rows.Close()

	var stats queue.Stats
	for rows.Next() {
		var status queue.Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		switch status {
		case queue.StatusPending:
			stats.Pending = count
		case queue.StatusProcessing:
			stats.Processing = count
		case queue.StatusCompleted:
			stats.Completed = count
		case queue.StatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	return &stats, nil
}

// ReleaseStuck returns abandoned processing notifications to pending.
func (r *Repository) ReleaseStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing' AND last_attempt_at <= $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stuck notifications: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteOldTerminal removes completed and failed notifications last updated
// at or before cutoff.
func (r *Repository) DeleteOldTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM notification_queue
		WHERE status IN ('completed', 'failed') AND updated_at <= $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old terminal notifications: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*queue.QueuedNotification, error) {
	var n queue.QueuedNotification
	err := row.Scan(
		&n.ID,
		&n.TenantID,
		&n.IntegrationID,
		&n.Platform,
		&n.WebhookURL,
		&n.ContentType,
		&n.Payload,
		&n.Priority,
		&n.Status,
		&n.RetryCount,
		&n.MaxRetries,
		&n.NextRetryAt,
		&n.LastAttemptAt,
		&n.ResponseStatus,
		&n.ResponseBody,
		&n.ErrorDetails,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func collectNotifications(rows pgx.Rows) ([]queue.QueuedNotification, error) {
	items := make([]queue.QueuedNotification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read notifications: %w", err)
	}
	return items, nil
}
