package ratelimiting

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/warofcoins/marketguard/internal/adapters/kvstore"
)

// CounterStore keeps fixed-window request counters
type CounterStore interface {
	// Increment counts a request in the current window of key, starting a new window if
	// there is none. It returns the count including this request and the time until the
	// window resets.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Peek returns the same as Increment without counting a request
	Peek(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type kvCounterStore struct {
	client kvstore.Client
}

func NewKVCounterStore(client kvstore.Client) CounterStore {
	return &kvCounterStore{client: client}
}

func (s *kvCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := s.client.IncrWithTTL(ctx, key, window)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	return count, s.resetIn(ctx, key, window), nil
}

func (s *kvCounterStore) Peek(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	raw, found, err := s.client.Get(ctx, key)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read counter: %w", err)
	}
	if !found {
		return 0, window, nil
	}

	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse counter %q: %w", raw, err)
	}

	return count, s.resetIn(ctx, key, window), nil
}

// resetIn falls back to the full window when the backend can't tell
func (s *kvCounterStore) resetIn(ctx context.Context, key string, window time.Duration) time.Duration {
	ttl, ok, err := s.client.TTL(ctx, key)
	if err != nil || !ok {
		return window
	}
	return ttl
}

type rateCounter struct {
	count   int64
	resetAt time.Time
}

type memoryCounterStore struct {
	mu       sync.Mutex
	counters *ttlcache.Cache[string, *rateCounter]
	nowFunc  func() time.Time
}

// NewMemoryCounterStore returns a process-local CounterStore.
// Expired windows are swept in the background until the returned stop function is called.
func NewMemoryCounterStore(nowFunc func() time.Time) (CounterStore, func()) {
	counters := ttlcache.New[string, *rateCounter](
		ttlcache.WithDisableTouchOnHit[string, *rateCounter](),
	)
	go counters.Start()

	return &memoryCounterStore{
		counters: counters,
		nowFunc:  nowFunc,
	}, counters.Stop
}

func (s *memoryCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	counter, ok := s.current(key, now)
	if !ok {
		counter = &rateCounter{count: 0, resetAt: now.Add(window)}
		s.counters.Set(key, counter, window)
	}
	counter.count++

	return counter.count, counter.resetAt.Sub(now), nil
}

func (s *memoryCounterStore) Peek(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	counter, ok := s.current(key, now)
	if !ok {
		return 0, window, nil
	}
	return counter.count, counter.resetAt.Sub(now), nil
}

// current returns the counter for key if its window is still open. Must hold s.mu.
func (s *memoryCounterStore) current(key string, now time.Time) (*rateCounter, bool) {
	item := s.counters.Get(key)
	if item == nil {
		return nil, false
	}
	counter := item.Value()
	if !now.Before(counter.resetAt) {
		return nil, false
	}
	return counter, true
}
