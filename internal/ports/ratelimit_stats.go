package ports

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/warofcoins/marketguard/internal/logging"
	"github.com/warofcoins/marketguard/internal/ratelimiting"
	"github.com/warofcoins/marketguard/internal/reporting"
)

type RateLimitStatsReader interface {
	RateLimiter
	Stats(ctx context.Context, identity string, opts ratelimiting.Options) (ratelimiting.Stats, error)
}

type rateLimitStatsResponse struct {
	Success   bool   `json:"success"`
	Identity  string `json:"identity"`
	Class     string `json:"class"`
	Count     int64  `json:"count"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	ResetIn   int64  `json:"resetIn"`
	Backend   string `json:"backend"`
}

// MakeGetRateLimitStatsHandler reports the caller's usage of a rate limit class without counting against it
func MakeGetRateLimitStatsHandler(
	rateLimiter RateLimitStatsReader,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := ComposeMiddlewares(
		buildMetricsMiddleware(),
		logging.NewRequestLoggerMiddleware(rootLogger, ratelimiting.IdentityFromRequest),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware("ratelimit"),
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(rateLimiter, ratelimiting.ClassStats),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		class := r.URL.Query().Get("class")
		if class == "" {
			class = ratelimiting.ClassDefault
		}
		opts := ratelimiting.OptionsForClass(class, "")
		identity := ratelimiting.IdentityFromRequest(r)

		stats, err := rateLimiter.Stats(ctx, identity, opts)
		if err != nil {
			reporting.Report(ctx, fmt.Errorf("failed to get rate limit stats: %w", err))
			writeError(ctx, w, http.StatusInternalServerError, "internal server error")
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(ctx, w, http.StatusOK, rateLimitStatsResponse{
			Success:   true,
			Identity:  identity,
			Class:     stats.Class,
			Count:     stats.Count,
			Limit:     stats.Limit,
			Remaining: stats.Remaining,
			ResetIn:   ceilSeconds(stats.ResetIn),
			Backend:   string(stats.Backend),
		})
	}

	return middleware(handler)
}
