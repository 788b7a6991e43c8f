package kvstoretest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/warofcoins/marketguard/internal/adapters/kvstore"
)

// NewMiniredis starts an in-process redis server for the duration of the test
// and returns a client connected to it.
func NewMiniredis(t *testing.T) (kvstore.Client, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		require.NoError(t, rdb.Close())
	})

	return kvstore.NewRedis(rdb), server
}

// CountingClient wraps a client and counts every call made through it.
type CountingClient struct {
	kvstore.Client
	calls atomic.Int64
}

func NewCountingClient(client kvstore.Client) *CountingClient {
	return &CountingClient{Client: client}
}

func (c *CountingClient) Calls() int64 {
	return c.calls.Load()
}

func (c *CountingClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.calls.Add(1)
	return c.Client.Get(ctx, key)
}

func (c *CountingClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.calls.Add(1)
	return c.Client.Set(ctx, key, value, ttl)
}

func (c *CountingClient) Delete(ctx context.Context, keys ...string) error {
	c.calls.Add(1)
	return c.Client.Delete(ctx, keys...)
}

func (c *CountingClient) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.calls.Add(1)
	return c.Client.IncrWithTTL(ctx, key, ttl)
}

func (c *CountingClient) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	c.calls.Add(1)
	return c.Client.TTL(ctx, key)
}

func (c *CountingClient) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.calls.Add(1)
	return c.Client.SetNX(ctx, key, value, ttl)
}

// FailingClient fails every operation with kvstore.ErrUnavailable.
type FailingClient struct {
	mu    sync.Mutex
	calls int
}

func (c *FailingClient) fail(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return fmt.Errorf("%w: %s: connection refused", kvstore.ErrUnavailable, op)
}

func (c *FailingClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *FailingClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, c.fail("get")
}

func (c *FailingClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.fail("set")
}

func (c *FailingClient) Delete(ctx context.Context, keys ...string) error {
	return c.fail("del")
}

func (c *FailingClient) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, c.fail("incr")
}

func (c *FailingClient) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	return 0, false, c.fail("ttl")
}

func (c *FailingClient) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return false, c.fail("setnx")
}

var _ kvstore.Client = (*CountingClient)(nil)
var _ kvstore.Client = (*FailingClient)(nil)
