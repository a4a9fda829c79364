// Package ratelimit implements the per-IP fixed-window throttle sitting in
// front of every portal route.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one fixed-window check.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, floored at 1
// so the header is never zero.
func (d Decision) RetryAfter(now time.Time) int {
	if secs := int(d.ResetAt.Sub(now).Seconds()); secs > 1 {
		return secs
	}
	return 1
}

type Limiter interface {
	Allow(key string, limit int) Decision
}

// InMemoryLimiter is the process-local limiter used when Redis is down or
// disabled. Windows are tracked per key and pruned on every call.
type InMemoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	buckets map[string]bucket
}

type bucket struct {
	hits    int
	resetAt time.Time
}

func NewInMemory(window time.Duration) *InMemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &InMemoryLimiter{window: window, buckets: make(map[string]bucket)}
}

func (l *InMemoryLimiter) Allow(key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, k)
		}
	}

	b, live := l.buckets[key]
	if !live || now.After(b.resetAt) {
		b = bucket{resetAt: now.Add(l.window)}
	}
	b.hits++
	l.buckets[key] = b

	return Decision{
		Allowed:   b.hits <= limit,
		Count:     b.hits,
		Limit:     limit,
		Remaining: max(limit-b.hits, 0),
		ResetAt:   b.resetAt,
	}
}
