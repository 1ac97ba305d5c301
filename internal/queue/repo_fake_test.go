package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// fakeRepository is an in-memory Repository for controller and handler tests.
// It mirrors the claim and update semantics of the postgres implementation.
type fakeRepository struct {
	mu      sync.Mutex
	records map[string]*QueuedNotification

	insertErr error
	updateErr error
	claimErr  error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{records: make(map[string]*QueuedNotification)}
}

func (f *fakeRepository) put(n QueuedNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := n
	f.records[n.ID] = &cp
}

func (f *fakeRepository) get(id string) QueuedNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

func (f *fakeRepository) Insert(_ context.Context, n *QueuedNotification) error {
	if f.insertErr != nil {
		return f.insertErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.records[n.ID]; ok {
		return ErrDuplicateID
	}
	cp := *n
	f.records[n.ID] = &cp
	return nil
}

func (f *fakeRepository) Get(_ context.Context, id string) (*QueuedNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRepository) ListByStatus(_ context.Context, status Status, limit int) ([]QueuedNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []QueuedNotification
	for _, rec := range f.records {
		if rec.Status == status {
			out = append(out, *rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepository) ClaimEligiblePending(_ context.Context, limit int, now time.Time) ([]QueuedNotification, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var eligible []*QueuedNotification
	for _, rec := range f.records {
		if rec.Status != StatusPending {
			continue
		}
		if rec.NextRetryAt != nil && rec.NextRetryAt.After(now) {
			continue
		}
		eligible = append(eligible, rec)
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]QueuedNotification, 0, len(eligible))
	for _, rec := range eligible {
		rec.Status = StatusProcessing
		rec.LastAttemptAt = timePtr(now)
		rec.UpdatedAt = now
		claimed = append(claimed, *rec)
	}
	return claimed, nil
}

func (f *fakeRepository) Update(_ context.Context, id string, fields UpdateFields) error {
	if f.updateErr != nil {
		return f.updateErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok {
		return ErrNotFound
	}

	if fields.Status != nil {
		rec.Status = *fields.Status
	}
	if fields.RetryCount != nil {
		rec.RetryCount = *fields.RetryCount
	}
	if fields.NextRetryAt != nil {
		rec.NextRetryAt = fields.NextRetryAt
	}
	if fields.ClearNextRetryAt {
		rec.NextRetryAt = nil
	}
	if fields.LastAttemptAt != nil {
		rec.LastAttemptAt = fields.LastAttemptAt
	}
	if fields.ResponseStatus != nil {
		rec.ResponseStatus = fields.ResponseStatus
	}
	if fields.ResponseBody != nil {
		rec.ResponseBody = fields.ResponseBody
	}
	if fields.ErrorDetails != nil {
		rec.ErrorDetails = fields.ErrorDetails
	}
	if fields.ClearResponse {
		rec.ResponseStatus = nil
		rec.ResponseBody = nil
		rec.ErrorDetails = nil
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepository) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakeRepository) CountByStatus(_ context.Context) (*Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var stats Stats
	for _, rec := range f.records {
		switch rec.Status {
		case StatusPending:
			stats.Pending++
		case StatusProcessing:
			stats.Processing++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return &stats, nil
}

func (f *fakeRepository) ReleaseStuck(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var released int64
	for _, rec := range f.records {
		if rec.Status != StatusProcessing {
			continue
		}
		if rec.LastAttemptAt == nil || rec.LastAttemptAt.After(cutoff) {
			continue
		}
		rec.Status = StatusPending
		released++
	}
	return released, nil
}

func (f *fakeRepository) DeleteOldTerminal(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var deleted int64
	for id, rec := range f.records {
		if !rec.Status.Terminal() {
			continue
		}
		if rec.UpdatedAt.After(cutoff) {
			continue
		}
		delete(f.records, id)
		deleted++
	}
	return deleted, nil
}

// fakeGate is an in-memory kill-switch for tests.
type fakeGate struct {
	mu      sync.Mutex
	enabled bool
	err     error
}

func (g *fakeGate) IsQueueEnabled(_ context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled, g.err
}

func (g *fakeGate) SetQueueEnabled(_ context.Context, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
	return nil
}
