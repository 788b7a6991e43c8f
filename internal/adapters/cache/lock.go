package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/warofcoins/marketguard/internal/adapters/kvstore"
	"github.com/warofcoins/marketguard/internal/logging"
)

func lockKey(key string) string {
	return "lock:" + key
}

type kvLock struct {
	client kvstore.Client
}

// NewLock returns a Locker built on the store's atomic set-if-absent.
// Locks are never renewed, they expire after their ttl if the holder disappears.
func NewLock(client kvstore.Client) Locker {
	return &kvLock{client: client}
}

func (l *kvLock) TryAcquire(ctx context.Context, lockKey string, ttl time.Duration) bool {
	acquired, err := l.client.SetNX(ctx, lockKey, []byte("1"), backendTTL(ttl))
	if err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "Failed to acquire lock, treating as held", slog.String("lockKey", lockKey), slog.String("error", err.Error()))
		return false
	}
	return acquired
}

func (l *kvLock) Release(ctx context.Context, lockKey string) {
	err := l.client.Delete(ctx, lockKey)
	if err != nil {
		// The lock expires on its own
		logging.FromContext(ctx).WarnContext(ctx, "Failed to release lock", slog.String("lockKey", lockKey), slog.String("error", err.Error()))
	}
}
