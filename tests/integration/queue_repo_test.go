//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/internal/queue"
	queuepostgres "github.com/hookrelay/hookrelay/internal/queue/postgres"
)

func newQueuedNotification() *queue.QueuedNotification {
	return &queue.QueuedNotification{
		ID:            uuid.New().String(),
		IntegrationID: uuid.New().String(),
		Platform:      "mattermost",
		WebhookURL:    "http://example.invalid/hook",
		ContentType:   "application/json",
		Payload:       []byte(`{"text":"hi"}`),
		Status:        queue.StatusPending,
		MaxRetries:    3,
	}
}

func TestRepositoryInsertAndGet(t *testing.T) {
	resetState(t)
	repo := queuepostgres.NewRepository(testDB)
	ctx := context.Background()

	n := newQueuedNotification()
	require.NoError(t, repo.Insert(ctx, n))

	got, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, queue.StatusPending, got.Status)
	assert.Equal(t, []byte(`{"text":"hi"}`), got.Payload)
	assert.False(t, got.CreatedAt.IsZero())

	// Duplicate id is rejected.
	assert.ErrorIs(t, repo.Insert(ctx, n), queue.ErrDuplicateID)

	_, err = repo.Get(ctx, uuid.New().String())
	assert.ErrorIs(t, err, queue.ErrNotFound)
}

func TestRepositoryClaimEligibility(t *testing.T) {
	resetState(t)
	repo := queuepostgres.NewRepository(testDB)
	ctx := context.Background()
	now := time.Now()

	ready := newQueuedNotification()
	require.NoError(t, repo.Insert(ctx, ready))

	elapsed := newQueuedNotification()
	elapsed.NextRetryAt = timePtr(now.Add(-time.Minute))
	require.NoError(t, repo.Insert(ctx, elapsed))

	future := newQueuedNotification()
	future.NextRetryAt = timePtr(now.Add(time.Hour))
	require.NoError(t, repo.Insert(ctx, future))

	claimed, err := repo.ClaimEligiblePending(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	for _, rec := range claimed {
		assert.NotEqual(t, future.ID, rec.ID)
		assert.Equal(t, queue.StatusProcessing, rec.Status)
		assert.NotNil(t, rec.LastAttemptAt)
	}

	// The future record is untouched.
	got, err := repo.Get(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, got.Status)
}

func TestRepositoryClaimOrdering(t *testing.T) {
	resetState(t)
	repo := queuepostgres.NewRepository(testDB)
	ctx := context.Background()

	low := newQueuedNotification()
	low.Priority = 1
	require.NoError(t, repo.Insert(ctx, low))

	high := newQueuedNotification()
	high.Priority = 9
	require.NoError(t, repo.Insert(ctx, high))

	claimed, err := repo.ClaimEligiblePending(ctx, 1, time.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, high.ID, claimed[0].ID, "higher priority claimed first")
}

func TestRepositoryConcurrentClaimNoDoubleProcessing(t *testing.T) {
	resetState(t)
	repo := queuepostgres.NewRepository(testDB)
	ctx := context.Background()

	const records = 20
	for i := 0; i < records; i++ {
		require.NoError(t, repo.Insert(ctx, newQueuedNotification()))
	}

	const claimers = 5
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]int)
	)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.ClaimEligiblePending(ctx, records, time.Now())
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}

			mu.Lock()
			for _, rec := range claimed {
				seen[rec.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, records, "every record claimed exactly once")
	for id, count := range seen {
		assert.Equal(t, 1, count, "record %s claimed %d times", id, count)
	}
}

func TestRepositoryUpdate(t *testing.T) {
	resetState(t)
	repo := queuepostgres.NewRepository(testDB)
	ctx := context.Background()

	n := newQueuedNotification()
	require.NoError(t, repo.Insert(ctx, n))

	next := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Update(ctx, n.ID, queue.UpdateFields{
		Status:         statusPtr(queue.StatusPending),
		RetryCount:     intPtr(1),
		NextRetryAt:    &next,
		ResponseStatus: intPtr(500),
		ResponseBody:   strPtr("boom"),
		ErrorDetails:   strPtr("delivery rejected with status 500"),
	}))

	got, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.NextRetryAt)
	assert.WithinDuration(t, next, *got.NextRetryAt, time.Millisecond)
	require.NotNil(t, got.ResponseStatus)
	assert.Equal(t, 500, *got.ResponseStatus)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	// ClearNextRetryAt nulls the column.
	require.NoError(t, repo.Update(ctx, n.ID, queue.UpdateFields{
		Status:           statusPtr(queue.StatusFailed),
		ClearNextRetryAt: true,
	}))

	got, err = repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, got.Status)
	assert.Nil(t, got.NextRetryAt)

	// Updating a missing row reports not found.
	err = repo.Update(ctx, uuid.New().String(), queue.UpdateFields{RetryCount: intPtr(1)})
	assert.ErrorIs(t, err, queue.ErrNotFound)
}

func TestRepositoryDeleteIdempotent(t *testing.T) {
	resetState(t)
	repo := queuepostgres.NewRepository(testDB)
	ctx := context.Background()

	n := newQueuedNotification()
	require.NoError(t, repo.Insert(ctx, n))

	require.NoError(t, repo.Delete(ctx, n.ID))
	require.NoError(t, repo.Delete(ctx, n.ID))
	require.NoError(t, repo.Delete(ctx, uuid.New().String()))
}

func TestRepositoryReleaseStuck(t *testing.T) {
	resetState(t)
	repo := queuepostgres.NewRepository(testDB)
	ctx := context.Background()
	now := time.Now()

	stale := newQueuedNotification()
	require.NoError(t, repo.Insert(ctx, stale))
	fresh := newQueuedNotification()
	require.NoError(t, repo.Insert(ctx, fresh))

	_, err := testDB.Exec(ctx, `
		UPDATE notification_queue SET status = 'processing', last_attempt_at = $2 WHERE id = $1`,
		stale.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = testDB.Exec(ctx, `
		UPDATE notification_queue SET status = 'processing', last_attempt_at = $2 WHERE id = $1`,
		fresh.ID, now)
	require.NoError(t, err)

	released, err := repo.ReleaseStuck(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	got, err := repo.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, got.Status)

	got, err = repo.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusProcessing, got.Status)
}

func TestRepositoryDeleteOldTerminalBoundary(t *testing.T) {
	resetState(t)
	repo := queuepostgres.NewRepository(testDB)
	ctx := context.Background()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	age := func(id string, status string, updatedAt time.Time) {
		_, err := testDB.Exec(ctx, `
			UPDATE notification_queue SET status = $2, updated_at = $3 WHERE id = $1`,
			id, status, updatedAt)
		require.NoError(t, err)
	}

	atBoundary := newQueuedNotification()
	require.NoError(t, repo.Insert(ctx, atBoundary))
	age(atBoundary.ID, "completed", cutoff)

	newer := newQueuedNotification()
	require.NoError(t, repo.Insert(ctx, newer))
	age(newer.ID, "failed", cutoff.Add(time.Second))

	oldPending := newQueuedNotification()
	require.NoError(t, repo.Insert(ctx, oldPending))
	age(oldPending.ID, "pending", cutoff.Add(-time.Hour))

	deleted, err := repo.DeleteOldTerminal(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.Get(ctx, atBoundary.ID)
	assert.ErrorIs(t, err, queue.ErrNotFound, "record at the boundary is deleted")

	_, err = repo.Get(ctx, newer.ID)
	assert.NoError(t, err, "newer terminal record survives")

	_, err = repo.Get(ctx, oldPending.ID)
	assert.NoError(t, err, "pending records are never purged")
}

func TestRepositoryCountByStatus(t *testing.T) {
	resetState(t)
	repo := queuepostgres.NewRepository(testDB)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(ctx, newQueuedNotification()))
	}
	failed := newQueuedNotification()
	require.NoError(t, repo.Insert(ctx, failed))
	_, err := testDB.Exec(ctx, `UPDATE notification_queue SET status = 'failed' WHERE id = $1`, failed.ID)
	require.NoError(t, err)

	stats, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Pending)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(4), stats.Total())
}

func timePtr(t time.Time) *time.Time { return &t }

func statusPtr(s queue.Status) *queue.Status { return &s }

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
