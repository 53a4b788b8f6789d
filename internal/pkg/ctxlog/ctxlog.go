// Package ctxlog carries a request-scoped slog logger through context.
package ctxlog

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{}

// FromContext returns the logger stored in ctx, or slog.Default().
// When ctx carries a sampled span, trace_id and span_id are attached.
func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		logger = slog.Default()
	}

	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		logger = logger.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	return logger
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// With returns a context whose logger has args appended.
func With(ctx context.Context, args ...any) context.Context {
	logger, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		logger = slog.Default()
	}
	return WithLogger(ctx, logger.With(args...))
}
