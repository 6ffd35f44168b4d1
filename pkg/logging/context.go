package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey int

const (
	correlationIDKey contextKey = iota
	commandIDKey
)

// ContextWithCorrelationID adds correlation ID to context
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext returns the correlation ID stored in ctx, if any
func CorrelationIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// ContextWithCommandID adds command ID to context
func ContextWithCommandID(ctx context.Context, commandID string) context.Context {
	if commandID == "" {
		return ctx
	}
	return context.WithValue(ctx, commandIDKey, commandID)
}

// CommandIDFromContext returns the command ID stored in ctx, if any
func CommandIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(commandIDKey).(string)
	return v
}

// contextAttrs returns the ids found in ctx. The trace id comes from the active span.
func contextAttrs(ctx context.Context) []any {
	var attrs []any
	if v := CorrelationIDFromContext(ctx); v != "" {
		attrs = append(attrs, "correlationId", v)
	}
	if v := CommandIDFromContext(ctx); v != "" {
		attrs = append(attrs, "commandId", v)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs, "traceId", sc.TraceID().String(), "spanId", sc.SpanID().String())
	}
	return attrs
}
