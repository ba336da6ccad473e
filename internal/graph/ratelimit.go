package graph

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MinQPS is the lowest rate a limiter accepts.
const MinQPS = 0.1

// RateLimiter paces Graph calls and backs off globally after the API
// reports throttling. It is safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter

	mu             sync.Mutex
	throttledUntil time.Time
	now            func() time.Time
}

// NewRateLimiter creates a limiter allowing qps requests per second with a
// small burst.
func NewRateLimiter(qps float64) *RateLimiter {
	if qps < MinQPS {
		qps = MinQPS
	}
	burst := int(qps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
		now:     time.Now,
	}
}

// Acquire blocks until a request may be sent or ctx is done.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if wait := r.throttleRemaining(); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return r.limiter.Wait(ctx)
}

// Throttle pauses all callers for d. Overlapping calls keep the later
// deadline.
func (r *RateLimiter) Throttle(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until := r.now().Add(d)
	if until.After(r.throttledUntil) {
		r.throttledUntil = until
	}
}

func (r *RateLimiter) throttleRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.throttledUntil.Sub(r.now())
}
