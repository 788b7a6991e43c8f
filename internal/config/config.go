package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

const (
	defaultPort            = "8080"
	defaultUpstreamBaseURL = "https://public-api.birdeye.so"
	defaultUpstreamChain   = "solana"
	defaultUpstreamRPS     = 1.0
	// Wrapped SOL, used when developing without a configured mint
	defaultDevelopmentMint = "So11111111111111111111111111111111111111112"
)

type Config struct {
	port            string
	sentryDSN       string
	redisURL        string
	adminSecret     string
	upstreamAPIKey  string
	upstreamBaseURL string
	upstreamChain   string
	upstreamRPS     float64
	trackedMint     string
	originSuffixes  []string
	otelEnabled     bool
	env             environment
}

func (c *Config) Port() string {
	return c.port
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

// RedisURL is the shared key-value store. Empty means process-local caching and rate limiting.
func (c *Config) RedisURL() string {
	return c.redisURL
}

func (c *Config) AdminSecret() string {
	return c.adminSecret
}

func (c *Config) UpstreamAPIKey() string {
	return c.upstreamAPIKey
}

func (c *Config) UpstreamBaseURL() string {
	return c.upstreamBaseURL
}

func (c *Config) UpstreamChain() string {
	return c.upstreamChain
}

// UpstreamRPS is the maximum sustained request rate towards the upstream API
func (c *Config) UpstreamRPS() float64 {
	return c.upstreamRPS
}

func (c *Config) TrackedMint() string {
	return c.trackedMint
}

// AllowedOriginSuffixes are the https origins (including subdomains) allowed to call the API from a browser
func (c *Config) AllowedOriginSuffixes() []string {
	return c.originSuffixes
}

func (c *Config) OTelEnabled() bool {
	return c.otelEnabled
}

func (c *Config) Environment() string {
	return string(c.env)
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{env: %s, port: %s, sharedStore: %t, upstream: %s, chain: %s, rps: %g, mint: %s, otel: %t, ...}",
		string(c.env), c.port, c.redisURL != "", c.upstreamBaseURL, c.upstreamChain, c.upstreamRPS, c.trackedMint, c.otelEnabled,
	)
}

func getenvOr(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("MARKETGUARD_ENVIRONMENT")
	if !ok {
		return missingKey("MARKETGUARD_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return Config{}, fmt.Errorf("%w: MARKETGUARD_ENVIRONMENT (%s)", ErrInvalidValue, rawEnv)
	}

	upstreamRPS := defaultUpstreamRPS
	if rawRPS := os.Getenv("UPSTREAM_RPS"); rawRPS != "" {
		parsed, err := strconv.ParseFloat(rawRPS, 64)
		if err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("%w: UPSTREAM_RPS (%s)", ErrInvalidValue, rawRPS)
		}
		upstreamRPS = parsed
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	redisURL := os.Getenv("REDIS_URL")
	adminSecret := os.Getenv("ADMIN_SECRET")
	upstreamAPIKey := os.Getenv("UPSTREAM_API_KEY")
	trackedMint := os.Getenv("TRACKED_MINT")

	if env == production || env == staging {
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
		if redisURL == "" {
			return missingKey("REDIS_URL")
		}
		if adminSecret == "" {
			return missingKey("ADMIN_SECRET")
		}
		if upstreamAPIKey == "" {
			return missingKey("UPSTREAM_API_KEY")
		}
		if trackedMint == "" {
			return missingKey("TRACKED_MINT")
		}
	}

	if trackedMint == "" {
		trackedMint = defaultDevelopmentMint
	}

	return Config{
		port:            getenvOr("PORT", defaultPort),
		sentryDSN:       sentryDSN,
		redisURL:        redisURL,
		adminSecret:     adminSecret,
		upstreamAPIKey:  upstreamAPIKey,
		upstreamBaseURL: getenvOr("UPSTREAM_BASE_URL", defaultUpstreamBaseURL),
		upstreamChain:   getenvOr("UPSTREAM_CHAIN", defaultUpstreamChain),
		upstreamRPS:     upstreamRPS,
		trackedMint:     trackedMint,
		originSuffixes:  splitList(os.Getenv("CORS_ORIGIN_SUFFIXES")),
		otelEnabled:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		env:             env,
	}, nil
}
