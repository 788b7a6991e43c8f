package ports

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/warofcoins/marketguard/internal/logging"
	"github.com/warofcoins/marketguard/internal/ratelimiting"
	"github.com/warofcoins/marketguard/internal/reporting"
)

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, identity string, opts ratelimiting.Options) ratelimiting.Result
}

func ceilSeconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}

// NewRateLimitMiddleware counts every request against class and rejects it with 429 when
// the caller's window is exhausted. The decision is always reported in X-RateLimit-* headers.
func NewRateLimitMiddleware(rateLimiter RateLimiter, class string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			identity := ratelimiting.IdentityFromRequest(r)
			ctx = reporting.SetIdentityInContext(ctx, identity)

			opts := ratelimiting.OptionsForClass(class, ratelimiting.AdminSecretFromRequest(r))
			result := rateLimiter.CheckRateLimit(ctx, identity, opts)

			header := w.Header()
			header.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
			header.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			header.Set("X-RateLimit-Reset", strconv.FormatInt(ceilSeconds(result.ResetIn), 10))
			header.Set("X-RateLimit-Backend", string(result.Backend))
			header.Set("X-RateLimit-Bypassed", strconv.FormatBool(result.Bypassed))

			if !result.Allowed {
				retryAfter := ceilSeconds(result.ResetIn)
				logging.FromContext(ctx).InfoContext(ctx, "Rate limit exceeded", "statusCode", http.StatusTooManyRequests, "class", opts.Class, "retryAfter", retryAfter)

				header.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				header.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(fmt.Sprintf(`{"success":false,"cause":"rate limit exceeded","retryAfter":%d}`, retryAfter)))
				return
			}

			ctx = logging.AddMetaToContext(ctx, slog.String("rateLimitClass", opts.Class))
			next(w, r.WithContext(ctx))
		}
	}
}

func ComposeMiddlewares(middlewares ...func(http.HandlerFunc) http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	if len(middlewares) == 1 {
		return middlewares[0]
	}
	first := middlewares[0]
	rest := ComposeMiddlewares(middlewares[1:]...)
	return func(h http.HandlerFunc) http.HandlerFunc {
		return first(rest(h))
	}
}
