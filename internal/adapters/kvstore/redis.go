package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisClient struct {
	rdb redis.UniversalClient
}

func NewRedis(rdb redis.UniversalClient) Client {
	return &redisClient{rdb: rdb}
}

// NewRedisFromURL connects to the redis server at redisURL and makes sure it is reachable.
// The returned close function releases the connection pool.
func NewRedisFromURL(ctx context.Context, redisURL string) (Client, func() error, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	// Keep calls short, the callers fall back to local state on failure
	options.DialTimeout = 2 * time.Second
	options.ReadTimeout = 1 * time.Second
	options.WriteTimeout = 1 * time.Second

	rdb := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}

	return &redisClient{rdb: rdb}, rdb.Close, nil
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, op, key, err)
}

func (c *redisClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get", key, err)
	}
	return value, true, nil
}

func (c *redisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.rdb.Set(ctx, key, value, ttl).Err()
	if err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (c *redisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := c.rdb.Del(ctx, keys...).Err()
	if err != nil {
		return unavailable("del", fmt.Sprint(keys), err)
	}
	return nil
}

func (c *redisClient) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	// SET NX creates the counter with its expiry, INCR keeps the expiry of an existing key.
	// Running both in MULTI/EXEC makes the pair atomic.
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, ttl)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, unavailable("incr", key, err)
	}
	return incr.Val(), nil
}

func (c *redisClient) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, unavailable("ttl", key, err)
	}
	// -2: missing key, -1: no expiry
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

func (c *redisClient) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	stored, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", key, err)
	}
	return stored, nil
}
