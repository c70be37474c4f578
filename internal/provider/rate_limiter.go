package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter caps outbound provider requests per rolling minute window.
// Wait blocks until a slot is free or the context is cancelled.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	count    int
	windowAt time.Time
}

func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		limit:    requestsPerMinute,
		windowAt: time.Now(),
	}
}

// Wait reserves one request slot, sleeping into the next window when the
// current one is exhausted.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		if now.Sub(r.windowAt) >= time.Minute {
			r.windowAt = now
			r.count = 0
		}
		if r.count < r.limit {
			r.count++
			r.mu.Unlock()
			return nil
		}
		wait := r.windowAt.Add(time.Minute).Sub(now)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Remaining reports the unused slots in the current window
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.windowAt) >= time.Minute {
		return r.limit
	}
	return r.limit - r.count
}
