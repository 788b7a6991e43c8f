package ratelimiting

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type rateLimitMetricsCollection struct {
	decisions metric.Int64Counter
}

var metrics rateLimitMetricsCollection

func init() {
	meter := otel.Meter("marketguard/ratelimiting")

	decisions, err := meter.Int64Counter(
		"ratelimit/decisions",
		metric.WithDescription("Rate limit decisions by class, outcome and backend"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create decisions metric: %w", err))
	}

	metrics = rateLimitMetricsCollection{
		decisions: decisions,
	}
}
