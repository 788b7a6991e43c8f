package ratelimiting

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/warofcoins/marketguard/internal/logging"
	"github.com/warofcoins/marketguard/internal/reporting"
)

type Backend string

const (
	BackendShared Backend = "shared"
	BackendMemory Backend = "memory"
	BackendBypass Backend = "bypass"
)

type Options struct {
	Class  string
	Limit  int64
	Window time.Duration
	// AdminSecret is the secret presented by the caller, if any
	AdminSecret string
}

type Result struct {
	Allowed   bool
	Remaining int64
	ResetIn   time.Duration
	Bypassed  bool
	Backend   Backend
	Limit     int64
}

type Stats struct {
	Class     string
	Count     int64
	Limit     int64
	Remaining int64
	ResetIn   time.Duration
	Backend   Backend
}

// Limiter is a fixed-window rate limiter.
// Counters live in the shared store when one is configured. Whenever the shared store
// fails the in-process counters are used instead, so the limit may be applied per instance
// while the shared store is down.
type Limiter struct {
	shared      CounterStore
	fallback    CounterStore
	adminSecret string
}

// NewLimiter creates a limiter. shared may be nil. An empty adminSecret disables bypass.
func NewLimiter(shared CounterStore, fallback CounterStore, adminSecret string) *Limiter {
	return &Limiter{
		shared:      shared,
		fallback:    fallback,
		adminSecret: adminSecret,
	}
}

func counterKey(class, identity string) string {
	return fmt.Sprintf("ratelimit:%s:%s", class, identity)
}

func (l *Limiter) isAdmin(presented string) bool {
	if l.adminSecret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(l.adminSecret)) == 1
}

// CheckRateLimit counts a request from identity and reports whether it is allowed
func (l *Limiter) CheckRateLimit(ctx context.Context, identity string, opts Options) Result {
	if l.isAdmin(opts.AdminSecret) {
		result := Result{
			Allowed:   true,
			Remaining: opts.Limit,
			ResetIn:   opts.Window,
			Bypassed:  true,
			Backend:   BackendBypass,
			Limit:     opts.Limit,
		}
		recordDecision(ctx, opts.Class, result)
		return result
	}

	key := counterKey(opts.Class, identity)
	count, resetIn, backend, err := l.increment(ctx, key, opts.Window)
	if err != nil {
		// Only reachable if the in-process counters fail. Prefer serving over locking everyone out.
		err = fmt.Errorf("failed to count request: %w", err)
		logging.FromContext(ctx).ErrorContext(ctx, "Rate limit check failed, allowing request", slog.String("class", opts.Class), slog.String("error", err.Error()))
		reporting.Report(ctx, err, map[string]string{"class": opts.Class})
		return Result{Allowed: true, Remaining: opts.Limit, ResetIn: opts.Window, Backend: BackendMemory, Limit: opts.Limit}
	}

	result := Result{
		Allowed:   count <= opts.Limit,
		Remaining: max(opts.Limit-count, 0),
		ResetIn:   resetIn,
		Backend:   backend,
		Limit:     opts.Limit,
	}
	recordDecision(ctx, opts.Class, result)

	if !result.Allowed {
		logging.FromContext(ctx).InfoContext(ctx, "Rate limit exceeded", slog.String("class", opts.Class), slog.Int64("count", count), slog.Duration("resetIn", resetIn))
	}

	return result
}

// Stats reports the state of identity's current window without counting a request
func (l *Limiter) Stats(ctx context.Context, identity string, opts Options) (Stats, error) {
	key := counterKey(opts.Class, identity)

	if l.shared != nil {
		count, resetIn, err := l.shared.Peek(ctx, key, opts.Window)
		if err == nil {
			return newStats(opts, count, resetIn, BackendShared), nil
		}
		logging.FromContext(ctx).WarnContext(ctx, "Shared rate limit store unavailable, using local counters", slog.String("error", err.Error()))
	}

	count, resetIn, err := l.fallback.Peek(ctx, key, opts.Window)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read counter: %w", err)
	}
	return newStats(opts, count, resetIn, BackendMemory), nil
}

func newStats(opts Options, count int64, resetIn time.Duration, backend Backend) Stats {
	return Stats{
		Class:     opts.Class,
		Count:     count,
		Limit:     opts.Limit,
		Remaining: max(opts.Limit-count, 0),
		ResetIn:   resetIn,
		Backend:   backend,
	}
}

func (l *Limiter) increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, Backend, error) {
	if l.shared != nil {
		count, resetIn, err := l.shared.Increment(ctx, key, window)
		if err == nil {
			return count, resetIn, BackendShared, nil
		}
		logging.FromContext(ctx).WarnContext(ctx, "Shared rate limit store unavailable, using local counters", slog.String("error", err.Error()))
	}

	count, resetIn, err := l.fallback.Increment(ctx, key, window)
	if err != nil {
		return 0, 0, BackendMemory, err
	}
	return count, resetIn, BackendMemory, nil
}

func recordDecision(ctx context.Context, class string, result Result) {
	metrics.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("class", class),
		attribute.Bool("allowed", result.Allowed),
		attribute.String("backend", string(result.Backend)),
	))
}
