// Package queue implements the durable webhook notification delivery queue.
package queue

import (
	"time"
	"unicode/utf8"
)

// Status represents the lifecycle state of a queued notification.
type Status string

// Notification statuses. Completed and failed are terminal.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s allows no further automatic transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Storage caps for delivery feedback columns.
const (
	MaxResponseBodyLen = 1000
	MaxErrorDetailsLen = 500
)

// QueuedNotification is one pending-or-resolved delivery attempt unit.
type QueuedNotification struct {
	ID            string     `json:"id"`
	TenantID      *string    `json:"tenant_id,omitempty"`
	IntegrationID string     `json:"integration_id"`
	Platform      string     `json:"platform"`
	WebhookURL    string     `json:"webhook_url"`
	ContentType   string     `json:"content_type"`
	Payload       []byte     `json:"payload"`
	Priority      int        `json:"priority"`
	Status        Status     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	ResponseStatus *int    `json:"response_status,omitempty"`
	ResponseBody   *string `json:"response_body,omitempty"`
	ErrorDetails   *string `json:"error_details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats contains queue record counts grouped by status.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Total returns the number of records across all statuses.
func (s Stats) Total() int64 {
	return s.Pending + s.Processing + s.Completed + s.Failed
}

// Truncate caps s at max bytes without splitting a UTF-8 rune, so the result
// stays valid for a TEXT column.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
