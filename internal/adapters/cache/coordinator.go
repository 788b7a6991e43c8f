package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warofcoins/marketguard/internal/adapters/kvstore"
	"github.com/warofcoins/marketguard/internal/logging"
	"github.com/warofcoins/marketguard/internal/reporting"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPollAttempts = 3
	defaultPollDelay    = 250 * time.Millisecond
)

// Coordinator serves cached values with stale-while-revalidate semantics and makes sure
// concurrent callers for the same key share a single upstream fetch.
//
// Without a Locker the coordination is process-local. With one, fetches are additionally
// coordinated across every instance using the same store.
type Coordinator[T any] struct {
	store    Store[T]
	locker   Locker
	inflight *inflightRegistry[T]

	nowFunc   func() time.Time
	afterFunc func(time.Duration) <-chan time.Time

	pollAttempts int
	pollDelay    time.Duration

	background sync.WaitGroup
	tracer     trace.Tracer
}

// NewCoordinator creates a coordinator over store. locker may be nil for a process-local cache.
func NewCoordinator[T any](store Store[T], locker Locker, nowFunc func() time.Time, afterFunc func(time.Duration) <-chan time.Time) *Coordinator[T] {
	return &Coordinator[T]{
		store:    store,
		locker:   locker,
		inflight: newInflightRegistry[T](),

		nowFunc:   nowFunc,
		afterFunc: afterFunc,

		pollAttempts: defaultPollAttempts,
		pollDelay:    defaultPollDelay,

		tracer: otel.Tracer(instrumentationName),
	}
}

// NewSharedOrLocalCoordinator uses the shared store and lock when client is set, and a
// process-local store otherwise.
func NewSharedOrLocalCoordinator[T any](client kvstore.Client, nowFunc func() time.Time, afterFunc func(time.Duration) <-chan time.Time) *Coordinator[T] {
	if client == nil {
		return NewCoordinator(NewMemoryStore[T](), nil, nowFunc, afterFunc)
	}
	return NewCoordinator(NewSharedStore[T](client), NewLock(client), nowFunc, afterFunc)
}

func (c *Coordinator[T]) Backend() string {
	if c.locker == nil {
		return "memory"
	}
	return "shared"
}

// GetOrFetch returns the value for key, calling fetcher when nothing usable is cached.
// Errors from fetcher are wrapped in ErrFetch and are never cached.
func (c *Coordinator[T]) GetOrFetch(ctx context.Context, key string, fetcher Fetcher[T], opts Options) (Result[T], error) {
	opts = opts.withDefaults()
	ctx = logging.AddMetaToContext(ctx, slog.String("cacheKey", key))

	if envelope, found := c.lookup(ctx, key); found {
		now := c.nowFunc()
		if envelope.isFresh(now) {
			return c.result(ctx, envelope.Value, StatusHit), nil
		}
		if opts.Stale > 0 && envelope.isUsable(now) {
			c.refreshInBackground(ctx, key, fetcher, opts)
			return c.result(ctx, envelope.Value, StatusStale), nil
		}
	}

	// The fetch outlives any single caller so waiters giving up does not waste it
	detached := context.WithoutCancel(ctx)

	for {
		t, created := c.inflight.getOrCreate(key, func() (T, bool, error) {
			value, err := c.fetchAndStore(detached, key, fetcher, opts)
			if err != nil {
				var empty T
				return empty, false, err
			}
			return value, true, nil
		})
		if !created {
			logging.FromContext(ctx).InfoContext(ctx, "Waiting for inflight fetch")
		}

		value, ok, err := t.wait(ctx)
		if err != nil {
			return Result[T]{}, err
		}

		if ok {
			if created {
				return c.result(ctx, value, StatusMiss), nil
			}
			return c.result(ctx, value, StatusDeduped), nil
		}

		// A background refresh settled without a value. It may still have been
		// written by another instance.
		if envelope, found := c.lookup(ctx, key); found && envelope.isUsable(c.nowFunc()) {
			return c.result(ctx, envelope.Value, StatusDeduped), nil
		}
	}
}

// Purge removes the cached value and any refresh lock for key.
// A fetch already in flight still completes and writes its result.
func (c *Coordinator[T]) Purge(ctx context.Context, key string) error {
	err := c.store.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to purge cache entry: %w", err)
	}
	if c.locker != nil {
		c.locker.Release(ctx, lockKey(key))
	}
	logging.FromContext(ctx).InfoContext(ctx, "Purged cache entry", slog.String("cacheKey", key))
	return nil
}

// Drain waits for background refreshes to finish, or for ctx to be done.
func (c *Coordinator[T]) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background refreshes did not finish: %w", ctx.Err())
	}
}

func (c *Coordinator[T]) refreshInBackground(ctx context.Context, key string, fetcher Fetcher[T], opts Options) {
	ctx = context.WithoutCancel(ctx)

	c.background.Add(1)
	_, created := c.inflight.getOrCreate(key, func() (value T, ok bool, err error) {
		defer c.background.Done()

		// Failures settle the task without a value so attached waiters fetch for themselves
		defer func() {
			if recovered := recover(); recovered != nil {
				c.backgroundRefreshFailed(ctx, key, fmt.Errorf("%w: panic: %v", ErrFetch, recovered))
				var empty T
				value, ok, err = empty, false, nil
			}
		}()

		value, ok, err = c.refresh(ctx, key, fetcher, opts)
		if err != nil {
			c.backgroundRefreshFailed(ctx, key, err)
			var empty T
			return empty, false, nil
		}
		return value, ok, nil
	})
	if !created {
		c.background.Done()
	}
}

func (c *Coordinator[T]) backgroundRefreshFailed(ctx context.Context, key string, err error) {
	logging.FromContext(ctx).ErrorContext(ctx, "Background refresh failed", slog.String("error", err.Error()))
	reporting.Report(ctx, err, map[string]string{"cacheKey": key})
}

// refresh is the background variant of fetchAndStore. It skips if another instance holds the lock.
func (c *Coordinator[T]) refresh(ctx context.Context, key string, fetcher Fetcher[T], opts Options) (T, bool, error) {
	var empty T

	if c.locker == nil {
		value, err := c.fetchAndPersist(ctx, key, fetcher, opts)
		if err != nil {
			return empty, false, err
		}
		return value, true, nil
	}

	lock := lockKey(key)
	if !c.locker.TryAcquire(ctx, lock, opts.LockTTL) {
		logging.FromContext(ctx).InfoContext(ctx, "Skipping background refresh, lock is held")
		return empty, false, nil
	}
	defer c.locker.Release(ctx, lock)

	if envelope, found := c.lookup(ctx, key); found && envelope.isFresh(c.nowFunc()) {
		return envelope.Value, true, nil
	}

	value, err := c.fetchAndPersist(ctx, key, fetcher, opts)
	if err != nil {
		return empty, false, err
	}
	return value, true, nil
}

func (c *Coordinator[T]) fetchAndStore(ctx context.Context, key string, fetcher Fetcher[T], opts Options) (T, error) {
	if c.locker == nil {
		return c.fetchAndPersist(ctx, key, fetcher, opts)
	}

	lock := lockKey(key)
	if c.locker.TryAcquire(ctx, lock, opts.LockTTL) {
		defer c.locker.Release(ctx, lock)

		// Another instance may have written while we were acquiring
		if envelope, found := c.lookup(ctx, key); found && envelope.isFresh(c.nowFunc()) {
			return envelope.Value, nil
		}

		return c.fetchAndPersist(ctx, key, fetcher, opts)
	}

	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		<-c.afterFunc(c.pollDelay)

		if envelope, found := c.lookup(ctx, key); found && envelope.isUsable(c.nowFunc()) {
			return envelope.Value, nil
		}
	}

	// The holder is slow or gone. This may duplicate an upstream call.
	logging.FromContext(ctx).WarnContext(ctx, "Lock holder did not produce a value, fetching without lock", slog.Int("pollAttempts", c.pollAttempts))
	return c.fetchAndPersist(ctx, key, fetcher, opts)
}

func (c *Coordinator[T]) fetchAndPersist(ctx context.Context, key string, fetcher Fetcher[T], opts Options) (T, error) {
	value, err := c.fetch(ctx, fetcher)
	if err != nil {
		var empty T
		return empty, err
	}

	envelope := newEnvelope(value, c.nowFunc(), opts)
	err = c.store.Set(ctx, key, envelope, opts.retention())
	if err != nil {
		// The value is still good for the callers waiting on it
		logging.FromContext(ctx).WarnContext(ctx, "Failed to persist fetched value", slog.String("error", err.Error()))
	}

	return value, nil
}

func (c *Coordinator[T]) fetch(ctx context.Context, fetcher Fetcher[T]) (T, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.fetch")
	defer span.End()

	start := time.Now()
	value, err := fetcher(ctx)
	duration := time.Since(start)

	metrics.fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", err == nil)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		var empty T
		if errors.Is(err, ErrFetch) {
			return empty, err
		}
		return empty, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	logging.FromContext(ctx).InfoContext(ctx, "Fetched value", slog.Duration("duration", duration))
	return value, nil
}

func (c *Coordinator[T]) lookup(ctx context.Context, key string) (Envelope[T], bool) {
	envelope, found, err := c.store.Get(ctx, key)
	if err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "Failed to read cache, treating as miss", slog.String("error", err.Error()))
		return Envelope[T]{}, false
	}
	return envelope, found
}

func (c *Coordinator[T]) result(ctx context.Context, value T, status Status) Result[T] {
	metrics.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
		attribute.String("backend", c.Backend()),
	))
	logging.FromContext(ctx).InfoContext(ctx, "Cache lookup", slog.String("cache", string(status)))
	return Result[T]{Data: value, Status: status}
}
