package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces one provider's requests with a token bucket and enforces its
// period quota. Wait blocks cooperatively until a token is available or the
// context deadline elapses; quota exhaustion rejects immediately without
// blocking.
type Limiter struct {
	providerID string
	bucket     *rate.Limiter
	quota      *QuotaTracker
}

// NewLimiter builds a limiter from a rate descriptor and an optional quota
// tracker (nil means no period quota).
func NewLimiter(providerID string, rd RateDescriptor, quota *QuotaTracker) *Limiter {
	window := rd.Window
	if window <= 0 {
		window = time.Second
	}
	count := rd.Count
	if count <= 0 {
		count = 1
	}
	perSecond := rate.Limit(float64(count) / window.Seconds())
	return &Limiter{
		providerID: providerID,
		bucket:     rate.NewLimiter(perSecond, count),
		quota:      quota,
	}
}

// Acquire consumes quota and waits for a token. It returns a quota_exceeded
// provider error when the period quota is spent, and RateLimitTimeoutError
// when the context deadline expires before a token frees up.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.quota != nil {
		if !l.quota.TryConsume() {
			return NewError(l.providerID, ErrQuotaExceeded, errors.New("period quota exhausted"))
		}
	}

	start := time.Now()
	if err := l.bucket.Wait(ctx); err != nil {
		return &RateLimitTimeoutError{Provider: l.providerID, Waited: time.Since(start)}
	}
	return nil
}

// QuotaTracker counts requests within a rolling period. Shared across calls
// to one provider; guarded by its own mutex.
type QuotaTracker struct {
	mu          sync.Mutex
	limit       int
	period      time.Duration
	used        int
	periodStart time.Time
	now         func() time.Time
}

// NewQuotaTracker creates a tracker allowing limit requests per period.
// A limit of 0 disables quota enforcement.
func NewQuotaTracker(limit int, period time.Duration) *QuotaTracker {
	if period <= 0 {
		period = 24 * time.Hour
	}
	return &QuotaTracker{
		limit:  limit,
		period: period,
		now:    time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (q *QuotaTracker) WithNow(now func() time.Time) *QuotaTracker {
	q.now = now
	return q
}

// TryConsume registers one request if quota remains, returning false once
// the period quota is exhausted. The counter resets when the period rolls
// over.
func (q *QuotaTracker) TryConsume() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if q.periodStart.IsZero() || now.Sub(q.periodStart) >= q.period {
		q.periodStart = now
		q.used = 0
	}

	if q.limit > 0 && q.used >= q.limit {
		return false
	}
	q.used++
	return true
}

// Status reports current consumption.
func (q *QuotaTracker) Status() QuotaStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	used := q.used
	if !q.periodStart.IsZero() && now.Sub(q.periodStart) >= q.period {
		used = 0
	}
	return QuotaStatus{Used: used, Limit: q.limit, Period: q.period}
}
