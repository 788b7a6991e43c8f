package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "golang.org/x/crypto/x509roots/fallback"
	"golang.org/x/sync/errgroup"

	"github.com/warofcoins/marketguard/internal/adapters/cache"
	"github.com/warofcoins/marketguard/internal/adapters/kvstore"
	"github.com/warofcoins/marketguard/internal/adapters/marketdata"
	"github.com/warofcoins/marketguard/internal/app"
	"github.com/warofcoins/marketguard/internal/config"
	"github.com/warofcoins/marketguard/internal/domain"
	"github.com/warofcoins/marketguard/internal/logging"
	"github.com/warofcoins/marketguard/internal/ports"
	"github.com/warofcoins/marketguard/internal/ratelimiting"
	"github.com/warofcoins/marketguard/internal/reporting"
	"github.com/warofcoins/marketguard/internal/strutils"
	"github.com/warofcoins/marketguard/internal/telemetry"
)

const PROD_DOMAIN_SUFFIX = "warofcoins.io"
const PREVIEW_DOMAIN_SUFFIX = "woc-arena.pages.dev"

const shutdownTimeout = 20 * time.Second

func main() {
	instanceID := uuid.New().String()
	logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(os.Stdout, nil))).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	if config.OTelEnabled() {
		shutdownTelemetry, err := telemetry.SetupOTelSDK(ctx, "marketguard", instanceID)
		if err != nil {
			fail("Failed to initialize telemetry", "error", err.Error())
		}
		defer func() {
			err := shutdownTelemetry(context.Background())
			if err != nil {
				logger.Error("Failed to shut down telemetry", "error", err.Error())
			}
		}()
		logger.Info("Initialized telemetry")
	}

	sentryMiddleware, flush, err := reporting.NewSentryMiddlewareOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry middleware")

	mint, err := strutils.NormalizeMint(config.TrackedMint())
	if err != nil {
		fail("Invalid tracked mint", "error", err.Error())
	}

	var kvClient kvstore.Client
	if config.RedisURL() != "" {
		client, closeClient, err := kvstore.NewRedisFromURL(ctx, config.RedisURL())
		if err != nil {
			fail("Failed to connect to shared store", "error", err.Error())
		}
		defer closeClient()
		kvClient = client
		logger.Info("Connected to shared store")
	} else {
		logger.Warn("No shared store configured, caching and rate limiting are per instance")
	}

	tokenOverviewCoordinator := cache.NewSharedOrLocalCoordinator[domain.TokenOverview](kvClient, time.Now, time.After)
	logger.Info("Initialized cache", "backend", tokenOverviewCoordinator.Backend())

	localCounters, stopLocalCounters := ratelimiting.NewMemoryCounterStore(time.Now)
	defer stopLocalCounters()
	var sharedCounters ratelimiting.CounterStore
	if kvClient != nil {
		sharedCounters = ratelimiting.NewKVCounterStore(kvClient)
	}
	rateLimiter := ratelimiting.NewLimiter(sharedCounters, localCounters, config.AdminSecret())

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	provider, err := marketdata.NewProviderOrMock(config, httpClient, time.Now)
	if err != nil {
		fail("Failed to initialize market data provider", "error", err.Error())
	}
	logger.Info("Initialized market data provider")

	originSuffixes := config.AllowedOriginSuffixes()
	if len(originSuffixes) == 0 {
		originSuffixes = []string{PROD_DOMAIN_SUFFIX, PREVIEW_DOMAIN_SUFFIX}
	}
	allowedOrigins, err := ports.NewDomainSuffixes(originSuffixes...)
	if err != nil {
		fail("Failed to initialize allowed origins", "error", err.Error())
	}

	getTokenOverview := app.BuildGetTokenOverviewWithCache(tokenOverviewCoordinator, provider)
	refreshTokenOverview := app.BuildRefreshTokenOverview(tokenOverviewCoordinator, getTokenOverview)

	mux := http.NewServeMux()

	mux.HandleFunc(
		"OPTIONS /v1/price",
		ports.BuildCORSHandler(allowedOrigins),
	)
	mux.HandleFunc(
		"GET /v1/price",
		ports.MakeGetPriceHandler(
			getTokenOverview,
			config.UpstreamChain(),
			mint,
			rateLimiter,
			allowedOrigins,
			logger.With("port", "price"),
			sentryMiddleware,
		),
	)

	mux.HandleFunc(
		"OPTIONS /v1/refresh",
		ports.BuildCORSHandler(allowedOrigins),
	)
	mux.HandleFunc(
		"POST /v1/refresh",
		ports.MakeRefreshHandler(
			refreshTokenOverview,
			config.UpstreamChain(),
			mint,
			rateLimiter,
			allowedOrigins,
			logger.With("port", "refresh"),
			sentryMiddleware,
		),
	)

	mux.HandleFunc(
		"OPTIONS /v1/ratelimit",
		ports.BuildCORSHandler(allowedOrigins),
	)
	mux.HandleFunc(
		"GET /v1/ratelimit",
		ports.MakeGetRateLimitStatsHandler(
			rateLimiter,
			allowedOrigins,
			logger.With("port", "ratelimit"),
			sentryMiddleware,
		),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Port()),
		Handler:           otelhttp.NewHandler(mux, "marketguard"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Init complete", "addr", server.Addr)
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}

		// Let background revalidations finish writing to the store
		err = tokenOverviewCoordinator.Drain(shutdownCtx)
		if err != nil {
			return fmt.Errorf("failed to drain cache refreshes: %w", err)
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		// Deferred cleanup is skipped by os.Exit
		flush()
		fail("Server error", "error", err.Error())
	}
	logger.Info("Server shutdown")
}
