// Package ratelimit implements a fixed-window per-user request
// limiter backed by a shared counter store, so every API replica sees
// the same window.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CounterStore is the slice of Redis the limiter needs.
type CounterStore interface {
	// Incr atomically increments the key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets the key's TTL. Returns false if the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// PTTL returns the key's remaining TTL. Negative when the key has
	// no expiry or does not exist.
	PTTL(ctx context.Context, key string) (time.Duration, error)
}

// Decision is the limiter's verdict for one request.
type Decision struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the current window expires and the counter
	// starts over.
	ResetAt time.Time
}

// Limiter counts requests per user in fixed windows. The first request
// of a window creates the counter and stamps the window TTL; every
// request past MaxRequests within the window is denied.
type Limiter struct {
	store    CounterStore
	window   time.Duration
	max      int
	failOpen bool
	logger   *slog.Logger

	now func() time.Time
}

func NewLimiter(store CounterStore, window time.Duration, max int, failOpen bool, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:    store,
		window:   window,
		max:      max,
		failOpen: failOpen,
		logger:   logger,
		now:      time.Now,
	}
}

func key(userID string) string {
	return "rate-limit:" + userID
}

// Allow records one request for userID and returns the verdict. When
// the store is unreachable the limiter either waves the request
// through (fail-open, the default) or denies it, per configuration.
func (l *Limiter) Allow(ctx context.Context, userID string) (Decision, error) {
	k := key(userID)

	count, err := l.store.Incr(ctx, k)
	if err != nil {
		return l.storeFailure(ctx, err)
	}
	if count == 1 {
		// New window: the counter's lifetime is the window length.
		if _, err := l.store.Expire(ctx, k, l.window); err != nil {
			return l.storeFailure(ctx, err)
		}
	}

	resetAt := l.now().Add(l.window)
	if ttl, err := l.store.PTTL(ctx, k); err == nil && ttl > 0 {
		resetAt = l.now().Add(ttl)
	}

	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(l.max),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func (l *Limiter) storeFailure(ctx context.Context, err error) (Decision, error) {
	if l.failOpen {
		l.logger.ErrorContext(ctx, "Rate limit store unavailable, allowing request", "error", err)
		// Remaining stays 0: the verdict is degraded, not a fresh window.
		return Decision{Allowed: true, Remaining: 0, ResetAt: l.now().Add(l.window)}, nil
	}
	return Decision{}, fmt.Errorf("rate limit store: %w", err)
}
