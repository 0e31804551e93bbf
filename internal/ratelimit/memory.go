package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a sliding-window limiter keeping request timestamps
// per key. Suitable for single-instance deployments; use the Redis
// limiter when running more than one replica.
type MemoryLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	limit    int
	now      func() time.Time
}

// NewMemoryLimiter creates an in-process limiter allowing limit requests
// per key per window.
func NewMemoryLimiter(window time.Duration, limit int) *MemoryLimiter {
	return &MemoryLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		limit:    limit,
		now:      time.Now,
	}
}

// Allow implements Limiter
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	// Drop timestamps that fell out of the window
	valid := l.requests[key][:0]
	for _, t := range l.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= l.limit {
		l.requests[key] = valid
		retryAfter := valid[0].Add(l.window).Sub(now)
		return false, retryAfter, nil
	}

	l.requests[key] = append(valid, now)
	return true, 0, nil
}

// Cleanup removes keys with no requests inside the window. Run it
// periodically to keep the map from growing with one-off clients.
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, times := range l.requests {
		stale := true
		for _, t := range times {
			if t.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(l.requests, key)
		}
	}
}
