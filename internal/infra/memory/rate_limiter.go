package memory

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a per-process fixed-window counter with the same contract
// as the Redis limiter.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string]*window), now: time.Now}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, per time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(per)}
		r.windows[key] = w
		r.gc(now)
	}
	w.count++
	return w.count <= limit, nil
}

// gc drops expired windows so idle users do not accumulate.
func (r *RateLimiter) gc(now time.Time) {
	if len(r.windows) < 1024 {
		return
	}
	for k, w := range r.windows {
		if !now.Before(w.resetAt) {
			delete(r.windows, k)
		}
	}
}
