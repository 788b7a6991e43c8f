package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/warofcoins/marketguard/internal/logging"
)

func TestTracingLogHandler(t *testing.T) {
	t.Parallel()

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	spanContext := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})

	t.Run("with span", func(t *testing.T) {
		t.Parallel()

		buf := &bytes.Buffer{}
		logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(buf, nil))).With(slog.String("component", "test"))

		ctx := trace.ContextWithSpanContext(context.Background(), spanContext)
		logger.InfoContext(ctx, "traced")

		require.Equal(t, map[string]any{
			"level":        "INFO",
			"msg":          "traced",
			"component":    "test",
			"traceID":      "0102030405060708090a0b0c0d0e0f10",
			"spanID":       "0102030405060708",
			"traceSampled": true,
		}, lastEntry(t, buf))
	})

	t.Run("without span", func(t *testing.T) {
		t.Parallel()

		buf := &bytes.Buffer{}
		logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(buf, nil)))

		logger.InfoContext(context.Background(), "untraced")

		require.Equal(t, map[string]any{
			"level": "INFO",
			"msg":   "untraced",
		}, lastEntry(t, buf))
	})
}
