package cache

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "marketguard/cache"

type cacheMetricsCollection struct {
	lookups       metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

var metrics cacheMetricsCollection

func init() {
	meter := otel.Meter(instrumentationName)

	lookups, err := meter.Int64Counter(
		"cache/lookups",
		metric.WithDescription("Cache lookups by resulting status"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lookups metric: %w", err))
	}

	fetchDuration, err := meter.Float64Histogram(
		"cache/fetch_duration_seconds",
		metric.WithDescription("Time spent in upstream fetches started by the cache"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create fetch duration metric: %w", err))
	}

	metrics = cacheMetricsCollection{
		lookups:       lookups,
		fetchDuration: fetchDuration,
	}
}
