package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hookrelay/hookrelay/internal/version"
)

const defaultDeliveryTimeout = 10 * time.Second

// OutcomeKind classifies the result of a delivery attempt.
type OutcomeKind string

// Delivery outcomes.
const (
	// OutcomeDelivered means the platform accepted the notification (2xx).
	OutcomeDelivered OutcomeKind = "delivered"
	// OutcomeRetryable means the attempt failed and another attempt is due
	// after Outcome.Delay.
	OutcomeRetryable OutcomeKind = "retryable"
	// OutcomeExhausted means the attempt failed and no retries remain.
	OutcomeExhausted OutcomeKind = "exhausted"
)

// Outcome is the resolved result of exactly one delivery attempt. The
// controller consumes it to drive the record's state transition.
type Outcome struct {
	Kind  OutcomeKind
	Delay time.Duration // backoff before the next attempt, retryable only

	// RetryCount is the attempt count after this attempt, capped at the
	// record's max retries. Unchanged from the record on success.
	RetryCount int

	ResponseStatus *int    // last HTTP status, nil on transport failure
	ResponseBody   *string // truncated response body
	ErrorDetails   *string // truncated error message, failures only
}

// DelivererConfig contains delivery attempt configuration.
type DelivererConfig struct {
	Timeout   time.Duration
	RateLimit float64 // attempts per second across the process, 0 = unlimited
	UserAgent string
}

// Deliverer executes single webhook delivery attempts.
type Deliverer struct {
	config     DelivererConfig
	policy     Policy
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewDeliverer creates a deliverer with the given config and retry policy.
func NewDeliverer(config DelivererConfig, policy Policy) *Deliverer {
	if config.Timeout <= 0 {
		config.Timeout = defaultDeliveryTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = "hookrelay/" + version.Version
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &Deliverer{
		config:     config,
		policy:     policy,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Deliver performs one delivery attempt for a claimed record and resolves it
// to an outcome. It never returns an error for delivery failures; those are
// classified into the outcome. The only error path is context cancellation
// while waiting for the rate limiter.
func (d *Deliverer) Deliver(ctx context.Context, rec *QueuedNotification) (Outcome, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return Outcome{}, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	status, body, err := d.post(ctx, rec)
	duration := time.Since(start)

	if err != nil {
		// Transport-level failure: no HTTP status to record.
		recordDelivery(rec.Platform, "transport_error", duration)
		return d.failure(rec, nil, "", err.Error()), nil
	}

	if status >= 200 && status < 300 {
		recordDelivery(rec.Platform, "success", duration)
		return Outcome{
			Kind:           OutcomeDelivered,
			RetryCount:     rec.RetryCount,
			ResponseStatus: intPtr(status),
			ResponseBody:   strPtr(Truncate(body, MaxResponseBodyLen)),
		}, nil
	}

	recordDelivery(rec.Platform, "rejected", duration)
	return d.failure(rec, intPtr(status), body, fmt.Sprintf("delivery rejected with status %d", status)), nil
}

func (d *Deliverer) post(ctx context.Context, rec *QueuedNotification) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rec.WebhookURL, bytes.NewReader(rec.Payload))
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}

	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", d.config.UserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	// Read slightly past the cap so truncation is deterministic.
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodyLen+1))
	if err != nil {
		slog.Warn("failed to read response body",
			"notification_id", rec.ID,
			"status", resp.StatusCode,
			"error", err,
		)
	}

	return resp.StatusCode, string(body), nil
}

// failure applies the retry policy to a failed attempt. The retry count is
// incremented for the attempt just made and capped at the record's ceiling so
// a manually requeued, already-exhausted record cannot exceed it.
func (d *Deliverer) failure(rec *QueuedNotification, status *int, body, details string) Outcome {
	newCount := rec.RetryCount + 1
	if newCount > rec.MaxRetries {
		newCount = rec.MaxRetries
	}

	out := Outcome{
		RetryCount:     newCount,
		ResponseStatus: status,
		ErrorDetails:   strPtr(Truncate(details, MaxErrorDetailsLen)),
	}
	if status != nil {
		out.ResponseBody = strPtr(Truncate(body, MaxResponseBodyLen))
	}

	// The backoff schedule is indexed by the count before this failure;
	// whether another attempt remains depends on the count after it.
	if d.policy.NextAttempt(newCount, rec.MaxRetries).Retry {
		out.Kind = OutcomeRetryable
		out.Delay = d.policy.NextAttempt(rec.RetryCount, rec.MaxRetries).Delay
	} else {
		out.Kind = OutcomeExhausted
	}

	return out
}
