package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every failure to talk to the backing store.
// Callers treat it as "fall back to process-local behavior", never as a user-facing error.
var ErrUnavailable = errors.New("kv store unavailable")

// Client is the set of atomic operations the shared cache and rate limiter need
// from a networked key-value store.
type Client interface {
	// Get returns the raw value stored at key, and false if there is none.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value at key, replacing any existing value, expiring after ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// IncrWithTTL atomically increments the counter at key and returns the new value.
	// If the key did not exist it is created with the given ttl; an existing ttl is left untouched.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// TTL returns the remaining time to live of key.
	// The bool is false when the key does not exist or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)

	// SetNX stores value at key with the given ttl only if key does not already exist.
	// Returns true if the value was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}
