package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/warofcoins/marketguard/internal/config"
	"github.com/warofcoins/marketguard/internal/constants"
	"github.com/warofcoins/marketguard/internal/domain"
	"github.com/warofcoins/marketguard/internal/logging"
	"github.com/warofcoins/marketguard/internal/reporting"
)

type birdeyeMetricsCollection struct {
	requestCount metric.Int64Counter
}

func setupBirdeyeMetrics(meter metric.Meter) (birdeyeMetricsCollection, error) {
	requestCount, err := meter.Int64Counter("marketdata/birdeye/request_count")
	if err != nil {
		return birdeyeMetricsCollection{}, fmt.Errorf("failed to create request count metric: %w", err)
	}

	return birdeyeMetricsCollection{
		requestCount: requestCount,
	}, nil
}

type birdeye struct {
	httpClient HttpClient
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	nowFunc    func() time.Time

	metrics birdeyeMetricsCollection
	tracer  trace.Tracer
}

// NewBirdeye creates a provider for the Birdeye public API.
// Outgoing requests are throttled to requestsPerSecond across all callers in the process.
func NewBirdeye(httpClient HttpClient, baseURL string, apiKey string, requestsPerSecond float64, nowFunc func() time.Time) (*birdeye, error) {
	const name = "marketguard/marketdata/birdeye"

	meter := otel.Meter(name)
	tracer := otel.Tracer(name)

	metrics, err := setupBirdeyeMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	return &birdeye{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		nowFunc:    nowFunc,

		metrics: metrics,
		tracer:  tracer,
	}, nil
}

func (b *birdeye) GetTokenOverview(ctx context.Context, chain string, mint string) (domain.TokenOverview, error) {
	ctx, span := b.tracer.Start(ctx, "Birdeye.GetTokenOverview")
	defer span.End()

	requestURL := fmt.Sprintf("%s/defi/token_overview?address=%s", b.baseURL, url.QueryEscape(mint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		err := fmt.Errorf("failed to create request: %w", err)
		reporting.Report(ctx, err)
		return domain.TokenOverview{}, err
	}

	req.Header.Set("User-Agent", constants.USER_AGENT)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", b.apiKey)
	req.Header.Set("x-chain", chain)

	err = b.limiter.Wait(ctx)
	if err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "Did not call Birdeye due to rate limiting", "ctx_error", ctx.Err())
		return domain.TokenOverview{}, fmt.Errorf("%w: too many requests to birdeye: %w", domain.ErrTemporarilyUnavailable, err)
	}

	start := time.Now()
	resp, err := b.httpClient.Do(req)
	if err != nil {
		err := fmt.Errorf("%w: failed to send request: %w", domain.ErrTemporarilyUnavailable, err)
		reporting.Report(ctx, err)
		return domain.TokenOverview{}, err
	}
	queriedAt := b.nowFunc()

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		err := fmt.Errorf("%w: failed to read response body: %w", domain.ErrTemporarilyUnavailable, err)
		reporting.Report(ctx, err)
		return domain.TokenOverview{}, err
	}

	logging.FromContext(ctx).InfoContext(
		ctx,
		"birdeye request completed",
		slog.Int("status", resp.StatusCode),
		slog.String("duration", time.Since(start).String()),
	)

	b.metrics.requestCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status_code", strconv.Itoa(resp.StatusCode)),
		attribute.String("chain", chain),
	))

	overview, err := tokenOverviewFromBirdeyeResponse(resp.StatusCode, data, chain, mint, queriedAt)
	if errors.Is(err, domain.ErrInvalidAPIKey) || errors.Is(err, domain.ErrTokenNotFound) {
		// Not intermittent, and not something we can fix by reporting it
		return domain.TokenOverview{}, err
	} else if err != nil {
		err := fmt.Errorf("failed to get token overview from birdeye response: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"data":   string(data),
			"status": strconv.Itoa(resp.StatusCode),
			"mint":   mint,
			"chain":  chain,
		})
		return domain.TokenOverview{}, err
	}

	return overview, nil
}

type mockedProvider struct {
	nowFunc func() time.Time
}

func (m *mockedProvider) GetTokenOverview(ctx context.Context, chain string, mint string) (domain.TokenOverview, error) {
	price := 0.0123
	return domain.TokenOverview{
		Mint:      mint,
		Chain:     chain,
		MarketCap: 1_234_567.89,
		Price:     &price,
		QueriedAt: m.nowFunc(),
	}, nil
}

func NewProviderOrMock(conf config.Config, httpClient HttpClient, nowFunc func() time.Time) (Provider, error) {
	if conf.UpstreamAPIKey() != "" {
		return NewBirdeye(httpClient, conf.UpstreamBaseURL(), conf.UpstreamAPIKey(), conf.UpstreamRPS(), nowFunc)
	}
	if conf.IsDevelopment() {
		return &mockedProvider{nowFunc: nowFunc}, nil
	}
	return nil, fmt.Errorf("missing upstream API key in non-development environment")
}
