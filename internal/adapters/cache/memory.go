package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type memoryStore[T any] struct {
	cache *ttlcache.Cache[string, Envelope[T]]
}

// NewMemoryStore returns a process-local store.
// Entries live until they are overwritten or deleted; the number of keys is bounded by the
// upstream queries the service makes, not by user input.
func NewMemoryStore[T any]() Store[T] {
	cache := ttlcache.New[string, Envelope[T]](
		ttlcache.WithTTL[string, Envelope[T]](ttlcache.NoTTL),
		ttlcache.WithDisableTouchOnHit[string, Envelope[T]](),
	)
	return &memoryStore[T]{cache: cache}
}

func (s *memoryStore[T]) Get(ctx context.Context, key string) (Envelope[T], bool, error) {
	item := s.cache.Get(key)
	if item == nil {
		return Envelope[T]{}, false, nil
	}
	return item.Value(), true, nil
}

func (s *memoryStore[T]) Set(ctx context.Context, key string, envelope Envelope[T], ttl time.Duration) error {
	s.cache.Set(key, envelope, ttlcache.NoTTL)
	return nil
}

func (s *memoryStore[T]) Delete(ctx context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}
