package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/warofcoins/marketguard/internal/adapters/kvstore"
	"github.com/warofcoins/marketguard/internal/logging"
)

type sharedStore[T any] struct {
	client kvstore.Client
}

// NewSharedStore returns a store backed by a networked key-value store shared by all instances.
// Values must be JSON serializable.
func NewSharedStore[T any](client kvstore.Client) Store[T] {
	return &sharedStore[T]{client: client}
}

// backendTTL rounds up to whole seconds, the resolution of the backend expiry
func backendTTL(ttl time.Duration) time.Duration {
	seconds := math.Ceil(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func (s *sharedStore[T]) Get(ctx context.Context, key string) (Envelope[T], bool, error) {
	raw, found, err := s.client.Get(ctx, key)
	if err != nil {
		return Envelope[T]{}, false, fmt.Errorf("failed to get envelope: %w", err)
	}
	if !found {
		return Envelope[T]{}, false, nil
	}

	var envelope Envelope[T]
	err = json.Unmarshal(raw, &envelope)
	if err != nil {
		// Treat garbage as a miss, the next successful fetch overwrites it
		logging.FromContext(ctx).WarnContext(ctx, "Failed to decode cached envelope", slog.String("cacheKey", key), slog.String("error", err.Error()))
		return Envelope[T]{}, false, nil
	}

	return envelope, true, nil
}

func (s *sharedStore[T]) Set(ctx context.Context, key string, envelope Envelope[T], ttl time.Duration) error {
	// One blob so value and timestamps are always read together
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	err = s.client.Set(ctx, key, raw, backendTTL(ttl))
	if err != nil {
		return fmt.Errorf("failed to set envelope: %w", err)
	}
	return nil
}

func (s *sharedStore[T]) Delete(ctx context.Context, key string) error {
	err := s.client.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to delete envelope: %w", err)
	}
	return nil
}
