package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// immediateAfter fires right away and counts how many times it was asked to wait
type immediateAfter struct {
	calls atomic.Int64
}

func (a *immediateAfter) After(d time.Duration) <-chan time.Time {
	a.calls.Add(1)
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

type countingFetcher struct {
	calls atomic.Int64
	fetch func(ctx context.Context) (string, error)
}

func (f *countingFetcher) Fetch(ctx context.Context) (string, error) {
	f.calls.Add(1)
	return f.fetch(ctx)
}

func fetchValue(value string) *countingFetcher {
	return &countingFetcher{
		fetch: func(ctx context.Context) (string, error) {
			return value, nil
		},
	}
}

// countingLocker tracks how many callers hold the lock at once
type countingLocker struct {
	Locker

	mu           sync.Mutex
	holders      int
	maxHolders   int
	acquisitions int
}

func (l *countingLocker) TryAcquire(ctx context.Context, lockKey string, ttl time.Duration) bool {
	acquired := l.Locker.TryAcquire(ctx, lockKey, ttl)
	if acquired {
		l.mu.Lock()
		l.holders++
		l.acquisitions++
		l.maxHolders = max(l.maxHolders, l.holders)
		l.mu.Unlock()
	}
	return acquired
}

func (l *countingLocker) Release(ctx context.Context, lockKey string) {
	l.mu.Lock()
	l.holders--
	l.mu.Unlock()
	l.Locker.Release(ctx, lockKey)
}

func (l *countingLocker) MaxHolders() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxHolders
}

func (r *inflightRegistry[T]) has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[key]
	return ok
}
