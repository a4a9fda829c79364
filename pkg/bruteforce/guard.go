// Package bruteforce throttles repeated failed logins per client key. It
// mirrors the portal's original guard: a small number of free retries, then
// an escalating wait window before the next attempt is accepted, with the
// counter record expiring after a day.
package bruteforce

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/store"
	"github.com/redis/go-redis/v9"
)

type Guard struct {
	Cache       store.Cache
	FreeRetries int
	MinWait     time.Duration
	MaxWait     time.Duration
	Lifetime    time.Duration
	KeyPrefix   string

	now func() time.Time
}

type record struct {
	Count        int       `json:"count"`
	FirstRequest time.Time `json:"firstRequest"`
	LastRequest  time.Time `json:"lastRequest"`
}

// New returns a guard with the portal defaults: two free retries, a wait
// window escalating from one to two minutes, and a one-day record lifetime.
func New(cache store.Cache) *Guard {
	return &Guard{
		Cache:       cache,
		FreeRetries: 2,
		MinWait:     time.Minute,
		MaxWait:     2 * time.Minute,
		Lifetime:    24 * time.Hour,
		KeyPrefix:   "bf:",
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Check reports whether the key is currently blocked and, if so, when the
// next attempt becomes valid.
func (g *Guard) Check(ctx context.Context, key string) (bool, time.Time, error) {
	rec, ok, err := g.load(ctx, key)
	if err != nil || !ok {
		return false, time.Time{}, err
	}
	wait := g.waitFor(rec.Count)
	if wait <= 0 {
		return false, time.Time{}, nil
	}
	nextValid := rec.LastRequest.Add(wait)
	if g.clock().Before(nextValid) {
		return true, nextValid, nil
	}
	return false, time.Time{}, nil
}

// Fail records one failed attempt for the key.
func (g *Guard) Fail(ctx context.Context, key string) error {
	now := g.clock()
	rec, ok, err := g.load(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		rec = record{FirstRequest: now}
	}
	rec.Count++
	rec.LastRequest = now
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return g.Cache.Set(ctx, g.KeyPrefix+key, string(raw), g.Lifetime)
}

// Reset clears the counter after a successful login.
func (g *Guard) Reset(ctx context.Context, key string) error {
	return g.Cache.Del(ctx, g.KeyPrefix+key)
}

func (g *Guard) load(ctx context.Context, key string) (record, bool, error) {
	raw, err := g.Cache.Get(ctx, g.KeyPrefix+key)
	if errors.Is(err, redis.Nil) {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, err
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// corrupt record: treat as absent rather than locking the client out
		return record{}, false, nil
	}
	return rec, true, nil
}

// waitFor doubles the minimum wait for each failure beyond the free
// retries, capped at the maximum.
func (g *Guard) waitFor(count int) time.Duration {
	over := count - g.FreeRetries
	if over <= 0 {
		return 0
	}
	wait := g.MinWait
	for i := 1; i < over; i++ {
		wait *= 2
		if wait >= g.MaxWait {
			return g.MaxWait
		}
	}
	if wait > g.MaxWait {
		return g.MaxWait
	}
	return wait
}

func (g *Guard) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now().UTC()
}
