package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory CounterStore with manual clock control.
type fakeStore struct {
	counts  map[string]int64
	expiry  map[string]time.Time
	now     time.Time
	failing error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		counts: map[string]int64{},
		expiry: map[string]time.Time{},
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) advance(d time.Duration) {
	s.now = s.now.Add(d)
	for k, exp := range s.expiry {
		if !s.now.Before(exp) {
			delete(s.counts, k)
			delete(s.expiry, k)
		}
	}
}

func (s *fakeStore) Incr(_ context.Context, key string) (int64, error) {
	if s.failing != nil {
		return 0, s.failing
	}
	s.counts[key]++
	return s.counts[key], nil
}

func (s *fakeStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if s.failing != nil {
		return false, s.failing
	}
	if _, ok := s.counts[key]; !ok {
		return false, nil
	}
	s.expiry[key] = s.now.Add(ttl)
	return true, nil
}

func (s *fakeStore) PTTL(_ context.Context, key string) (time.Duration, error) {
	if s.failing != nil {
		return 0, s.failing
	}
	exp, ok := s.expiry[key]
	if !ok {
		return -1, nil
	}
	return exp.Sub(s.now), nil
}

func newTestLimiter(store *fakeStore, max int, failOpen bool) *Limiter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := NewLimiter(store, time.Hour, max, failOpen, logger)
	l.now = func() time.Time { return store.now }
	return l
}

func TestAllow_UnderLimit(t *testing.T) {
	store := newFakeStore()
	l := newTestLimiter(store, 100, true)

	for i := 1; i <= 100; i++ {
		d, err := l.Allow(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 100-i, d.Remaining)
	}
}

func TestAllow_DeniesPastLimit(t *testing.T) {
	store := newFakeStore()
	l := newTestLimiter(store, 100, true)

	for i := 0; i < 100; i++ {
		_, err := l.Allow(context.Background(), "user-1")
		require.NoError(t, err)
	}

	d, err := l.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, store.now.Add(time.Hour), d.ResetAt)
}

func TestAllow_WindowResets(t *testing.T) {
	store := newFakeStore()
	l := newTestLimiter(store, 2, true)

	for i := 0; i < 3; i++ {
		_, err := l.Allow(context.Background(), "user-1")
		require.NoError(t, err)
	}
	d, _ := l.Allow(context.Background(), "user-1")
	assert.False(t, d.Allowed)

	store.advance(time.Hour + time.Second)

	d, err := l.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestAllow_UsersHaveIndependentWindows(t *testing.T) {
	store := newFakeStore()
	l := newTestLimiter(store, 1, true)

	d, err := l.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, _ = l.Allow(context.Background(), "user-1")
	assert.False(t, d.Allowed)

	d, err = l.Allow(context.Background(), "user-2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAllow_StoreDownFailOpen(t *testing.T) {
	store := newFakeStore()
	store.failing = errors.New("connection refused")
	l := newTestLimiter(store, 100, true)

	d, err := l.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestAllow_StoreDownFailClosed(t *testing.T) {
	store := newFakeStore()
	storeErr := errors.New("connection refused")
	store.failing = storeErr
	l := newTestLimiter(store, 100, false)

	d, err := l.Allow(context.Background(), "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.False(t, d.Allowed)
}

func TestAllow_ResetUsesRemainingTTL(t *testing.T) {
	store := newFakeStore()
	l := newTestLimiter(store, 100, true)

	_, err := l.Allow(context.Background(), "user-1")
	require.NoError(t, err)

	store.advance(20 * time.Minute)

	d, err := l.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.now.Add(40*time.Minute), d.ResetAt)
}
