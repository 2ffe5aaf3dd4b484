package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaTracker_RejectsWhenExhausted(t *testing.T) {
	q := NewQuotaTracker(2, 24*time.Hour)

	assert.True(t, q.TryConsume())
	assert.True(t, q.TryConsume())
	assert.False(t, q.TryConsume())

	st := q.Status()
	assert.Equal(t, 2, st.Used)
	assert.Equal(t, 2, st.Limit)
}

func TestQuotaTracker_ResetsAfterPeriod(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := NewQuotaTracker(1, time.Hour).WithNow(func() time.Time { return now })

	require.True(t, q.TryConsume())
	require.False(t, q.TryConsume())

	now = now.Add(2 * time.Hour)
	assert.True(t, q.TryConsume())
}

func TestQuotaTracker_ZeroLimitIsUnlimited(t *testing.T) {
	q := NewQuotaTracker(0, time.Hour)
	for i := 0; i < 100; i++ {
		require.True(t, q.TryConsume())
	}
}

func TestLimiter_QuotaExceededDoesNotBlock(t *testing.T) {
	q := NewQuotaTracker(1, time.Hour)
	l := NewLimiter("test", RateDescriptor{Count: 10, Window: time.Second}, q)

	require.NoError(t, l.Acquire(context.Background()))

	start := time.Now()
	err := l.Acquire(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "quota rejection must not block")

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrQuotaExceeded, kind)
}

func TestLimiter_DeadlineProducesRateLimitTimeout(t *testing.T) {
	// One token per minute with burst 1: the second acquire cannot get a
	// token before the deadline.
	l := NewLimiter("test", RateDescriptor{Count: 1, Window: time.Minute}, nil)

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	require.Error(t, err)

	var rlErr *RateLimitTimeoutError
	assert.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "test", rlErr.Provider)
}

func TestLimiter_PacesRequests(t *testing.T) {
	l := NewLimiter("test", RateDescriptor{Count: 1, Window: 50 * time.Millisecond}, nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	// Burst of 1 means the second and third acquires each wait ~50ms.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
