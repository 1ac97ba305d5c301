package queue

import "time"

// DefaultSchedule is the backoff schedule used when none is configured.
var DefaultSchedule = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
}

// Policy decides whether a failed delivery is retried and after what delay.
// It is stateless; the schedule is indexed by the retry count, reusing the
// last entry once the count runs past the end.
type Policy struct {
	schedule []time.Duration
}

// NewPolicy creates a retry policy with the given backoff schedule.
// An empty schedule falls back to DefaultSchedule.
func NewPolicy(schedule []time.Duration) Policy {
	if len(schedule) == 0 {
		schedule = DefaultSchedule
	}
	return Policy{schedule: schedule}
}

// Decision is the outcome of consulting the retry policy.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// NextAttempt maps a retry count to a retry decision. Retry is allowed while
// retryCount < maxRetries; the delay is the schedule entry for retryCount.
func (p Policy) NextAttempt(retryCount, maxRetries int) Decision {
	if retryCount >= maxRetries {
		return Decision{Retry: false}
	}

	idx := retryCount
	if idx >= len(p.schedule) {
		idx = len(p.schedule) - 1
	}
	if idx < 0 {
		idx = 0
	}

	return Decision{Retry: true, Delay: p.schedule[idx]}
}
