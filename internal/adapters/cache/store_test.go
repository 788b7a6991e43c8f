package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warofcoins/marketguard/internal/adapters/kvstore"
	"github.com/warofcoins/marketguard/internal/adapters/kvstore/kvstoretest"
)

func TestEnvelope(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	envelope := newEnvelope(42, now, Options{TTL: 15 * time.Second, Stale: 45 * time.Second})

	require.Equal(t, now.Add(15*time.Second), envelope.ExpiresAt)
	require.Equal(t, now.Add(60*time.Second), envelope.StaleUntil)

	require.True(t, envelope.isFresh(now))
	require.True(t, envelope.isFresh(now.Add(14*time.Second)))
	require.False(t, envelope.isFresh(now.Add(15*time.Second)))

	require.True(t, envelope.isUsable(now.Add(59*time.Second)))
	require.False(t, envelope.isUsable(now.Add(60*time.Second)))
}

func TestOptionsWithDefaults(t *testing.T) {
	t.Parallel()

	require.Equal(t, Options{TTL: defaultTTL, LockTTL: defaultLockTTL}, Options{}.withDefaults())
	require.Equal(t, Options{TTL: defaultTTL, LockTTL: defaultLockTTL}, Options{Stale: -time.Second}.withDefaults())
	require.Equal(t,
		Options{TTL: time.Second, Stale: 2 * time.Second, LockTTL: 3 * time.Second},
		Options{TTL: time.Second, Stale: 2 * time.Second, LockTTL: 3 * time.Second}.withDefaults(),
	)
}

func TestBackendTTL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, time.Second},
		{time.Millisecond, time.Second},
		{time.Second, time.Second},
		{1500 * time.Millisecond, 2 * time.Second},
		{60 * time.Second, 60 * time.Second},
	}
	for _, c := range cases {
		require.Equal(t, c.want, backendTTL(c.in), "ttl %s", c.in)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewMemoryStore[string]()
	envelope := newEnvelope("v1", time.Now(), Options{TTL: time.Second})

	_, found, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.False(t, found)

	// The ttl is ignored, values stay until replaced or deleted
	require.NoError(t, store.Set(ctx, "key", envelope, time.Nanosecond))
	time.Sleep(time.Millisecond)

	got, found, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, envelope, got)

	require.NoError(t, store.Delete(ctx, "key"))
	_, found, err = store.Get(ctx, "key")
	require.NoError(t, err)
	require.False(t, found)
}

type overview struct {
	Mint      string  `json:"mint"`
	MarketCap float64 `json:"marketCap"`
}

func TestSharedStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	t.Run("round trips the whole envelope", func(t *testing.T) {
		t.Parallel()
		client, server := kvstoretest.NewMiniredis(t)
		store := NewSharedStore[overview](client)

		envelope := newEnvelope(overview{Mint: "mint", MarketCap: 1234.5}, now, Options{TTL: 15 * time.Second, Stale: 45 * time.Second})
		require.NoError(t, store.Set(ctx, "key", envelope, 60*time.Second))

		got, found, err := store.Get(ctx, "key")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, envelope.Value, got.Value)
		require.True(t, envelope.ExpiresAt.Equal(got.ExpiresAt))
		require.True(t, envelope.StaleUntil.Equal(got.StaleUntil))

		raw, err := server.Get("key")
		require.NoError(t, err)
		var blob map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &blob))
		require.Contains(t, blob, "value")
		require.Contains(t, blob, "expiresAt")
		require.Contains(t, blob, "staleUntil")

		require.Equal(t, 60*time.Second, server.TTL("key"))
	})

	t.Run("backend ttl is rounded up to seconds", func(t *testing.T) {
		t.Parallel()
		client, server := kvstoretest.NewMiniredis(t)
		store := NewSharedStore[string](client)

		require.NoError(t, store.Set(ctx, "key", newEnvelope("v", now, Options{TTL: time.Second}), 1500*time.Millisecond))
		require.Equal(t, 2*time.Second, server.TTL("key"))

		server.FastForward(2 * time.Second)
		_, found, err := store.Get(ctx, "key")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("undecodable values are misses", func(t *testing.T) {
		t.Parallel()
		client, server := kvstoretest.NewMiniredis(t)
		store := NewSharedStore[string](client)

		require.NoError(t, server.Set("key", "{not json"))
		_, found, err := store.Get(ctx, "key")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()
		client, server := kvstoretest.NewMiniredis(t)
		store := NewSharedStore[string](client)

		require.NoError(t, store.Set(ctx, "key", newEnvelope("v", now, Options{TTL: time.Second}), time.Second))
		require.NoError(t, store.Delete(ctx, "key"))
		require.False(t, server.Exists("key"))
	})

	t.Run("backend errors are returned", func(t *testing.T) {
		t.Parallel()
		store := NewSharedStore[string](&kvstoretest.FailingClient{})

		_, _, err := store.Get(ctx, "key")
		require.ErrorIs(t, err, kvstore.ErrUnavailable)
		require.ErrorIs(t, store.Set(ctx, "key", Envelope[string]{}, time.Second), kvstore.ErrUnavailable)
		require.ErrorIs(t, store.Delete(ctx, "key"), kvstore.ErrUnavailable)
	})
}

func TestLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("single holder until released", func(t *testing.T) {
		t.Parallel()
		client, _ := kvstoretest.NewMiniredis(t)
		lock := NewLock(client)

		require.True(t, lock.TryAcquire(ctx, "lock:a", 5*time.Second))
		require.False(t, lock.TryAcquire(ctx, "lock:a", 5*time.Second))
		require.True(t, lock.TryAcquire(ctx, "lock:b", 5*time.Second))

		lock.Release(ctx, "lock:a")
		require.True(t, lock.TryAcquire(ctx, "lock:a", 5*time.Second))
	})

	t.Run("expires", func(t *testing.T) {
		t.Parallel()
		client, server := kvstoretest.NewMiniredis(t)
		lock := NewLock(client)

		require.True(t, lock.TryAcquire(ctx, "lock:a", 5*time.Second))
		require.Equal(t, 5*time.Second, server.TTL("lock:a"))

		server.FastForward(5 * time.Second)
		require.True(t, lock.TryAcquire(ctx, "lock:a", 5*time.Second))
	})

	t.Run("backend errors mean not acquired", func(t *testing.T) {
		t.Parallel()
		client := &kvstoretest.FailingClient{}
		lock := NewLock(client)

		require.False(t, lock.TryAcquire(ctx, "lock:a", 5*time.Second))
		lock.Release(ctx, "lock:a")
		require.Equal(t, 2, client.Calls())
	})

	require.Equal(t, "lock:marketdata:x", lockKey("marketdata:x"))
}

func TestInflightRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	registry := newInflightRegistry[string]()
	release := make(chan struct{})

	first, created := registry.getOrCreate("key", func() (string, bool, error) {
		<-release
		return "v", true, nil
	})
	require.True(t, created)
	require.True(t, registry.has("key"))

	second, created := registry.getOrCreate("key", func() (string, bool, error) {
		t.Error("second start must not run")
		return "", false, nil
	})
	require.False(t, created)
	require.Same(t, first, second)

	close(release)
	value, ok, err := second.wait(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", value)
	require.False(t, registry.has("key"))
}
