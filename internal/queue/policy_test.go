package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_NextAttempt_Schedule(t *testing.T) {
	schedule := []time.Duration{1 * time.Minute, 5 * time.Minute, 30 * time.Minute}
	policy := NewPolicy(schedule)

	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		wantRetry  bool
		wantDelay  time.Duration
	}{
		{"first entry", 0, 3, true, 1 * time.Minute},
		{"second entry", 1, 3, true, 5 * time.Minute},
		{"third entry", 2, 3, true, 30 * time.Minute},
		{"exhausted", 3, 3, false, 0},
		{"beyond max", 5, 3, false, 0},
		{"last entry reused", 3, 10, true, 30 * time.Minute},
		{"far past schedule", 8, 10, true, 30 * time.Minute},
		{"zero max retries", 0, 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := policy.NextAttempt(tt.retryCount, tt.maxRetries)
			assert.Equal(t, tt.wantRetry, dec.Retry)
			assert.Equal(t, tt.wantDelay, dec.Delay)
		})
	}
}

func TestPolicy_NextAttempt_Monotonic(t *testing.T) {
	policy := NewPolicy(nil)

	var prev time.Duration
	for i := 0; i < len(DefaultSchedule); i++ {
		dec := policy.NextAttempt(i, len(DefaultSchedule)+1)
		assert.True(t, dec.Retry)
		assert.GreaterOrEqual(t, dec.Delay, prev, "delay must not decrease at count %d", i)
		prev = dec.Delay
	}
}

func TestNewPolicy_EmptyScheduleUsesDefault(t *testing.T) {
	policy := NewPolicy(nil)

	dec := policy.NextAttempt(0, 3)
	assert.True(t, dec.Retry)
	assert.Equal(t, DefaultSchedule[0], dec.Delay)
}
