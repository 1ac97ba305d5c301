package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BulkLimit is the maximum number of ids accepted by a bulk operation.
const BulkLimit = 100

// cancelOffset pushes a cancelled record's next attempt effectively forever
// into the future while preserving the row for audit.
const cancelOffsetYears = 100

// Gate reads the global kill-switch that enables automatic processing.
type Gate interface {
	IsQueueEnabled(ctx context.Context) (bool, error)
}

// ControllerConfig contains queue controller configuration.
type ControllerConfig struct {
	BatchSize         int
	PollInterval      time.Duration
	NumWorkers        int
	StuckTimeout      time.Duration
	PauseOffset       time.Duration
	RetentionMaxAge   time.Duration
	RetentionInterval time.Duration
}

// DefaultControllerConfig returns default controller configuration.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		BatchSize:         50,
		PollInterval:      15 * time.Second,
		NumWorkers:        5,
		StuckTimeout:      10 * time.Minute,
		PauseOffset:       7 * 24 * time.Hour,
		RetentionMaxAge:   30 * 24 * time.Hour,
		RetentionInterval: 1 * time.Hour,
	}
}

// PassResult aggregates the outcome of one processing pass.
type PassResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BulkResult summarizes a bulk operation. Errors holds one "<id>: <reason>"
// entry per failed id.
type BulkResult struct {
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors"`
}

// Controller orchestrates queue processing passes and operator actions.
type Controller struct {
	config    ControllerConfig
	repo      Repository
	deliverer *Deliverer
	gate      Gate

	now func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewController creates a queue controller.
func NewController(config ControllerConfig, repo Repository, deliverer *Deliverer, gate Gate) *Controller {
	return &Controller{
		config:    config,
		repo:      repo,
		deliverer: deliverer,
		gate:      gate,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the recurring processing and retention loops.
func (c *Controller) Start(ctx context.Context) {
	slog.Info("starting queue controller",
		"batch_size", c.config.BatchSize,
		"poll_interval", c.config.PollInterval,
		"workers", c.config.NumWorkers,
	)

	c.wg.Add(2)
	go c.processLoop(ctx)
	go c.retentionLoop(ctx)
}

// Stop gracefully stops the loops, waiting for an in-flight pass to finish.
func (c *Controller) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	slog.Info("queue controller stopped")
}

func (c *Controller) processLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if _, err := c.ProcessQueue(ctx, c.config.BatchSize); err != nil {
				slog.Error("processing pass failed", "error", err)
			}
		}
	}
}

func (c *Controller) retentionLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			enabled, err := c.gate.IsQueueEnabled(ctx)
			if err != nil {
				slog.Error("failed to read kill-switch", "error", err)
				continue
			}
			if !enabled {
				continue
			}

			deleted, err := c.Cleanup(ctx, c.config.RetentionMaxAge)
			if err != nil {
				slog.Error("retention cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Info("retention cleanup finished", "deleted", deleted)
			}
		}
	}
}

// ProcessQueue runs one processing pass: consult the kill-switch, requeue
// stuck records, claim up to limit eligible pending records and deliver them
// on a bounded worker pool. Both the recurring loop and the operator-facing
// trigger land here, so concurrent passes share the atomic claim.
func (c *Controller) ProcessQueue(ctx context.Context, limit int) (PassResult, error) {
	if limit <= 0 {
		limit = c.config.BatchSize
	}

	enabled, err := c.gate.IsQueueEnabled(ctx)
	if err != nil {
		return PassResult{}, fmt.Errorf("read kill-switch: %w", err)
	}
	if !enabled {
		slog.Debug("queue processing disabled, skipping pass")
		return PassResult{}, nil
	}

	if _, err := c.ReclaimStuck(ctx); err != nil {
		// Stuck rows stay recoverable by the next pass.
		slog.Error("reclaim sweep failed", "error", err)
	}

	now := c.now()
	claimed, err := c.repo.ClaimEligiblePending(ctx, limit, now)
	if err != nil {
		return PassResult{}, fmt.Errorf("claim pending: %w", err)
	}

	recordPass(len(claimed))
	if len(claimed) == 0 {
		return PassResult{}, nil
	}

	slog.Debug("processing claimed notifications", "count", len(claimed))

	numWorkers := c.config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}

	var (
		mu     sync.Mutex
		result PassResult
		wg     sync.WaitGroup
		sem    = make(chan struct{}, numWorkers)
	)

	for i := range claimed {
		rec := claimed[i]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			delivered := c.processRecord(ctx, &rec)

			mu.Lock()
			result.Processed++
			if delivered {
				result.Succeeded++
			} else {
				result.Failed++
			}
			mu.Unlock()
		}()
	}

	wg.Wait()

	slog.Info("processing pass finished",
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)

	return result, nil
}

// processRecord runs one delivery attempt and applies the resulting state
// transition. Returns true when the notification was delivered.
func (c *Controller) processRecord(ctx context.Context, rec *QueuedNotification) bool {
	outcome, err := c.deliverer.Deliver(ctx, rec)
	if err != nil {
		// Attempt never started (cancellation); the record stays processing
		// and the reclaim sweep returns it to pending later.
		slog.Warn("delivery attempt aborted", "notification_id", rec.ID, "error", err)
		return false
	}

	if err := c.applyOutcome(ctx, rec, outcome); err != nil {
		// The record is left processing on purpose: losing the state change
		// silently would be worse, and the reclaim sweep picks it up.
		slog.Error("failed to persist delivery outcome",
			"notification_id", rec.ID,
			"outcome", outcome.Kind,
			"error", err,
		)
	}

	return outcome.Kind == OutcomeDelivered
}

func (c *Controller) applyOutcome(ctx context.Context, rec *QueuedNotification, out Outcome) error {
	fields := UpdateFields{
		RetryCount:     intPtr(out.RetryCount),
		ResponseStatus: out.ResponseStatus,
		ResponseBody:   out.ResponseBody,
		ErrorDetails:   out.ErrorDetails,
	}

	switch out.Kind {
	case OutcomeDelivered:
		fields.Status = statusPtr(StatusCompleted)
		fields.ClearNextRetryAt = true

	case OutcomeRetryable:
		fields.Status = statusPtr(StatusPending)
		fields.NextRetryAt = timePtr(c.now().Add(out.Delay))
		slog.Info("notification scheduled for retry",
			"notification_id", rec.ID,
			"retry_count", out.RetryCount,
			"max_retries", rec.MaxRetries,
			"delay", out.Delay,
		)

	case OutcomeExhausted:
		fields.Status = statusPtr(StatusFailed)
		fields.ClearNextRetryAt = true
		slog.Warn("notification failed permanently",
			"notification_id", rec.ID,
			"retry_count", out.RetryCount,
		)

	default:
		return fmt.Errorf("unknown outcome kind %q", out.Kind)
	}

	return c.repo.Update(ctx, rec.ID, fields)
}

// RetryFailed moves a failed notification back to pending for immediate
// redelivery. The retry count is kept so the next failure can still exhaust
// the ceiling. Returns ErrNotFound if the id is absent or not failed.
func (c *Controller) RetryFailed(ctx context.Context, id string) error {
	rec, err := c.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusFailed {
		return ErrNotFound
	}

	return c.repo.Update(ctx, id, UpdateFields{
		Status:           statusPtr(StatusPending),
		ClearNextRetryAt: true,
	})
}

// Pause defers a notification's next attempt by the configured offset
// without changing its status.
func (c *Controller) Pause(ctx context.Context, id string) error {
	if _, err := c.repo.Get(ctx, id); err != nil {
		return err
	}

	return c.repo.Update(ctx, id, UpdateFields{
		NextRetryAt: timePtr(c.now().Add(c.config.PauseOffset)),
	})
}

// Cancel defers a notification indefinitely instead of deleting it, keeping
// the record for audit.
func (c *Controller) Cancel(ctx context.Context, id string) error {
	if _, err := c.repo.Get(ctx, id); err != nil {
		return err
	}

	return c.repo.Update(ctx, id, UpdateFields{
		NextRetryAt: timePtr(c.now().AddDate(cancelOffsetYears, 0, 0)),
	})
}

// Delete removes a notification. Absent ids are not an error.
func (c *Controller) Delete(ctx context.Context, id string) error {
	return c.repo.Delete(ctx, id)
}

// BulkRetry applies RetryFailed to each id, collecting per-id failures.
func (c *Controller) BulkRetry(ctx context.Context, ids []string) (BulkResult, error) {
	return c.bulk(ctx, ids, c.RetryFailed)
}

// BulkDelete deletes each id, collecting per-id failures. Unlike the
// single-item Delete, an absent id is reported as a failure so the operator
// sees which ids in the batch did not exist.
func (c *Controller) BulkDelete(ctx context.Context, ids []string) (BulkResult, error) {
	return c.bulk(ctx, ids, c.deleteExisting)
}

func (c *Controller) deleteExisting(ctx context.Context, id string) error {
	if _, err := c.repo.Get(ctx, id); err != nil {
		return err
	}
	return c.repo.Delete(ctx, id)
}

// BulkCancel applies Cancel to each id, collecting per-id failures.
func (c *Controller) BulkCancel(ctx context.Context, ids []string) (BulkResult, error) {
	return c.bulk(ctx, ids, c.Cancel)
}

// bulk runs op over ids sequentially. A failure on one id never aborts the
// rest of the batch.
func (c *Controller) bulk(ctx context.Context, ids []string, op func(context.Context, string) error) (BulkResult, error) {
	if len(ids) > BulkLimit {
		return BulkResult{}, ErrTooManyIDs
	}

	result := BulkResult{Errors: make([]string, 0)}
	for _, id := range ids {
		if err := op(ctx, id); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		result.Successful++
	}

	return result, nil
}

// Cleanup deletes terminal notifications whose last update is at or before
// now minus maxAge. Returns the number of rows removed.
func (c *Controller) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = c.config.RetentionMaxAge
	}

	deleted, err := c.repo.DeleteOldTerminal(ctx, c.now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("delete old terminal records: %w", err)
	}

	return deleted, nil
}

// ReclaimStuck returns processing records abandoned past the stuck timeout
// to pending so they become eligible again.
func (c *Controller) ReclaimStuck(ctx context.Context) (int64, error) {
	released, err := c.repo.ReleaseStuck(ctx, c.now().Add(-c.config.StuckTimeout))
	if err != nil {
		return 0, fmt.Errorf("release stuck records: %w", err)
	}

	if released > 0 {
		recordReclaimed(released)
		slog.Warn("requeued stuck processing notifications", "count", released)
	}

	return released, nil
}

// Stats returns queue record counts grouped by status.
func (c *Controller) Stats(ctx context.Context) (*Stats, error) {
	return c.repo.CountByStatus(ctx)
}
