package ports

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/warofcoins/marketguard/internal/adapters/cache"
	"github.com/warofcoins/marketguard/internal/app"
	"github.com/warofcoins/marketguard/internal/domain"
	"github.com/warofcoins/marketguard/internal/logging"
	"github.com/warofcoins/marketguard/internal/ratelimiting"
	"github.com/warofcoins/marketguard/internal/reporting"
)

// Non-standard, used by proxies to log requests the client abandoned
const statusClientClosedRequest = 499

// Lets a CDN serve the value briefly and keep serving it while we revalidate
const tokenOverviewCacheControl = "public, max-age=0, s-maxage=10, stale-while-revalidate=45"

var chainPattern = regexp.MustCompile(`^[a-z0-9-]{1,32}$`)

type tokenOverviewResponse struct {
	Success   bool     `json:"success"`
	Mint      string   `json:"mint"`
	Chain     string   `json:"chain"`
	MarketCap float64  `json:"marketCap"`
	Price     *float64 `json:"price"`
	QueriedAt string   `json:"queriedAt"`
}

func tokenOverviewToResponse(overview domain.TokenOverview) tokenOverviewResponse {
	return tokenOverviewResponse{
		Success:   true,
		Mint:      overview.Mint,
		Chain:     overview.Chain,
		MarketCap: overview.MarketCap,
		Price:     overview.Price,
		QueriedAt: overview.QueriedAt.UTC().Format(time.RFC3339),
	}
}

// MakeGetPriceHandler serves the cached overview of the tracked token
func MakeGetPriceHandler(
	getTokenOverview app.GetTokenOverview,
	defaultChain string,
	mint string,
	rateLimiter RateLimiter,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	return makeTokenOverviewHandler("price", ratelimiting.ClassDefault, getTokenOverview, defaultChain, mint, rateLimiter, allowedOrigins, rootLogger, sentryMiddleware)
}

// MakeRefreshHandler drops the cached overview of the tracked token and fetches a new one
func MakeRefreshHandler(
	refreshTokenOverview app.GetTokenOverview,
	defaultChain string,
	mint string,
	rateLimiter RateLimiter,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	return makeTokenOverviewHandler("refresh", ratelimiting.ClassForce, refreshTokenOverview, defaultChain, mint, rateLimiter, allowedOrigins, rootLogger, sentryMiddleware)
}

func makeTokenOverviewHandler(
	portName string,
	class string,
	getTokenOverview app.GetTokenOverview,
	defaultChain string,
	mint string,
	rateLimiter RateLimiter,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := ComposeMiddlewares(
		buildMetricsMiddleware(),
		logging.NewRequestLoggerMiddleware(rootLogger, ratelimiting.IdentityFromRequest),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware(portName),
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(rateLimiter, class),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		chain := r.URL.Query().Get("chain")
		if chain == "" {
			chain = defaultChain
		}
		if !chainPattern.MatchString(chain) {
			writeError(ctx, w, http.StatusBadRequest, "invalid chain")
			return
		}

		ctx = logging.AddMetaToContext(ctx, slog.String("chain", chain), slog.String("mint", mint))
		ctx = reporting.AddExtrasToContext(ctx, map[string]string{"chain": chain, "mint": mint})

		result, err := getTokenOverview(ctx, chain, mint)
		if err != nil {
			handleTokenOverviewError(ctx, w, err)
			return
		}

		ctx = logging.AddMetaToContext(ctx, slog.String("cache", string(result.Status)))
		logging.FromContext(ctx).InfoContext(ctx, "Serving token overview")

		w.Header().Set("X-Cache", string(result.Status))
		w.Header().Set("Cache-Control", tokenOverviewCacheControl)
		writeJSON(ctx, w, http.StatusOK, tokenOverviewToResponse(result.Data))
	}

	return middleware(handler)
}

func handleTokenOverviewError(ctx context.Context, w http.ResponseWriter, err error) {
	// NOTE: GetTokenOverview implementations handle their own error reporting
	w.Header().Set("Cache-Control", "no-store")
	switch {
	case errors.Is(err, context.Canceled):
		logging.FromContext(ctx).InfoContext(ctx, "Client went away while waiting for token overview")
		writeError(ctx, w, statusClientClosedRequest, "client closed request")
	case errors.Is(err, domain.ErrTokenNotFound):
		writeError(ctx, w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrTemporarilyUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, "temporarily unavailable")
	case errors.Is(err, cache.ErrFetch):
		writeError(ctx, w, http.StatusBadGateway, "upstream error")
	default:
		writeError(ctx, w, http.StatusInternalServerError, "internal server error")
	}
}
