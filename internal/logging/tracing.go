package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// NewTracingLogHandler wraps baseHandler so that records logged with a context carrying
// an active span get the trace and span ids attached.
//
// NOTE: Only the *Context slog methods pass the context along
func NewTracingLogHandler(baseHandler slog.Handler) slog.Handler {
	return &tracingLogHandler{base: baseHandler}
}

type tracingLogHandler struct {
	base slog.Handler
}

func (h *tracingLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *tracingLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("traceID", sc.TraceID().String()),
			slog.String("spanID", sc.SpanID().String()),
			slog.Bool("traceSampled", sc.TraceFlags().IsSampled()),
		)
	}
	return h.base.Handle(ctx, r)
}

func (h *tracingLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &tracingLogHandler{base: h.base.WithAttrs(attrs)}
}

func (h *tracingLogHandler) WithGroup(name string) slog.Handler {
	return &tracingLogHandler{base: h.base.WithGroup(name)}
}

var _ slog.Handler = (*tracingLogHandler)(nil)
