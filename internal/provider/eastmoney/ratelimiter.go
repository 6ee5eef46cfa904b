package eastmoney

import (
	"context"
	"sync"
	"time"
)

// IntervalLimiter spaces requests so that two calls are at least delay apart,
// shared by every worker of a run.
type IntervalLimiter struct {
	mu    sync.Mutex
	last  time.Time
	delay time.Duration
}

// NewIntervalLimiter creates a limiter. A zero delay disables waiting.
func NewIntervalLimiter(delay time.Duration) *IntervalLimiter {
	return &IntervalLimiter{delay: delay}
}

// Wait blocks until the next request slot or until ctx is done.
func (r *IntervalLimiter) Wait(ctx context.Context) error {
	if r == nil || r.delay <= 0 {
		return ctx.Err()
	}
	r.mu.Lock()
	now := time.Now()
	next := r.last.Add(r.delay)
	if next.Before(now) {
		next = now
	}
	// reserve the slot before sleeping so concurrent callers queue behind it
	r.last = next
	r.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
