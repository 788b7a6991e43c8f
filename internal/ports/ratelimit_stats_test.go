package ports_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warofcoins/marketguard/internal/ports"
	"github.com/warofcoins/marketguard/internal/ratelimiting"
)

func TestMakeGetRateLimitStatsHandler(t *testing.T) {
	t.Parallel()

	testLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	allowedOrigins, err := ports.NewDomainSuffixes(PROD_DOMAIN_SUFFIX)
	require.NoError(t, err)

	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	fallback, stop := ratelimiting.NewMemoryCounterStore(func() time.Time { return now })
	t.Cleanup(stop)
	limiter := ratelimiting.NewLimiter(nil, fallback, "")

	handler := ports.MakeGetRateLimitStatsHandler(limiter, allowedOrigins, testLogger, noopMiddleware)

	request := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", target, nil)
		req.RemoteAddr = "10.0.0.7:5555"
		w := httptest.NewRecorder()
		handler(w, req)
		return w
	}

	for range 3 {
		limiter.CheckRateLimit(t.Context(), "10.0.0.7", ratelimiting.OptionsForClass(ratelimiting.ClassDefault, ""))
	}

	w := request("/v1/ratelimit")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	require.Equal(t, "30", w.Header().Get("X-RateLimit-Limit"))
	require.JSONEq(t, `{"success":true,"identity":"10.0.0.7","class":"default","count":3,"limit":60,"remaining":57,"resetIn":60,"backend":"memory"}`, w.Body.String())

	// The stats endpoint counts against its own class
	w = request("/v1/ratelimit?class=stats")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true,"identity":"10.0.0.7","class":"stats","count":2,"limit":30,"remaining":28,"resetIn":60,"backend":"memory"}`, w.Body.String())

	w = request("/v1/ratelimit?class=force")
	require.JSONEq(t, `{"success":true,"identity":"10.0.0.7","class":"force","count":0,"limit":5,"remaining":5,"resetIn":60,"backend":"memory"}`, w.Body.String())
}
