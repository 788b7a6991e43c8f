package cache

import (
	"context"
	"errors"
	"time"
)

// ErrFetch wraps errors returned by a fetcher. Failed fetches are never stored.
var ErrFetch = errors.New("fetch failed")

type Status string

const (
	StatusHit     Status = "HIT"
	StatusStale   Status = "STALE"
	StatusDeduped Status = "DEDUPED"
	StatusMiss    Status = "MISS"
)

type Result[T any] struct {
	Data   T
	Status Status
}

// Fetcher produces a new value for a cache key.
// The context it receives is detached from the cancellation of the request that triggered it.
type Fetcher[T any] func(ctx context.Context) (T, error)

type Options struct {
	// TTL is how long a value is served as fresh
	TTL time.Duration
	// Stale is how long after TTL a value is still served while it is refreshed in the background
	Stale time.Duration
	// LockTTL bounds how long one instance may hold the refresh lock for a key
	LockTTL time.Duration
}

const (
	defaultTTL     = 15 * time.Second
	defaultLockTTL = 15 * time.Second
)

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.Stale < 0 {
		o.Stale = 0
	}
	if o.LockTTL <= 0 {
		o.LockTTL = defaultLockTTL
	}
	return o
}

// retention is how long the store has to keep an envelope around
func (o Options) retention() time.Duration {
	return o.TTL + o.Stale
}

// Store holds envelopes by key
type Store[T any] interface {
	Get(ctx context.Context, key string) (Envelope[T], bool, error)
	// Set replaces the envelope at key. The store may drop it once ttl has passed.
	Set(ctx context.Context, key string, envelope Envelope[T], ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Locker picks a single refresher for a key across instances
type Locker interface {
	// TryAcquire reports whether the lock was taken. Backend failures count as not acquired.
	TryAcquire(ctx context.Context, lockKey string, ttl time.Duration) bool
	Release(ctx context.Context, lockKey string)
}
