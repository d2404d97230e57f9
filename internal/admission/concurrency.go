package admission

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyLimiter wraps a non-blocking counting semaphore sized
// server.max_concurrent_requests (spec §4.4 step 1). The permit acquired
// here must be held for the entire request lifetime, including upstream
// streaming, and released exactly once.
type ConcurrencyLimiter struct {
	sem *semaphore.Weighted
}

// NewConcurrencyLimiter builds a limiter admitting up to max concurrent
// requests.
func NewConcurrencyLimiter(max int64) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{sem: semaphore.NewWeighted(max)}
}

// TryAcquire attempts a non-blocking acquire. On success the caller must
// call Release exactly once when the request completes.
func (c *ConcurrencyLimiter) TryAcquire() bool {
	return c.sem.TryAcquire(1)
}

// Release gives back the permit acquired by TryAcquire.
func (c *ConcurrencyLimiter) Release() {
	c.sem.Release(1)
}

// Acquire blocks until a permit is available or ctx is done. The request
// hot path always uses TryAcquire; nothing in this repository currently
// calls Acquire.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context) error {
	return c.sem.Acquire(ctx, 1)
}
