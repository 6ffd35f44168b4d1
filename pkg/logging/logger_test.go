package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func capture(level LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(&Config{Level: level, ServiceName: "stock-engine", Environment: "test", Output: &buf}), &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestWithContext_AddsIdsAndActiveTrace(t *testing.T) {
	logger, buf := capture(LevelInfo)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	ctx = ContextWithCommandID(ctx, "cmd-1")

	logger.WithContext(ctx).Info("moved")

	entry := lastLine(t, buf)
	assert.Equal(t, "corr-1", entry["correlationId"])
	assert.Equal(t, "cmd-1", entry["commandId"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["traceId"])
	assert.Equal(t, "stock-engine", entry["service"])
}

func TestWithContext_EmptyContextAddsNothing(t *testing.T) {
	logger, _ := capture(LevelInfo)
	assert.Same(t, logger, logger.WithContext(context.Background()))
	assert.Same(t, logger, logger.WithError(nil))
}

func TestContextSetters_IgnoreEmptyIds(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "")
	ctx = ContextWithCommandID(ctx, "")
	assert.Empty(t, CorrelationIDFromContext(ctx))
	assert.Empty(t, CommandIDFromContext(ctx))
}

func TestNew_LevelFiltersAndIsCaseInsensitive(t *testing.T) {
	logger, buf := capture(LogLevel("WARN"))
	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Equal(t, "kept", lastLine(t, buf)["msg"])
}

func TestAudit_OmitsEmptyOperator(t *testing.T) {
	logger, buf := capture(LevelInfo)
	logger.Audit(context.Background(), "command.rejected", "command", "cmd-9", "", map[string]any{"reason": "insufficient balance"})

	entry := lastLine(t, buf)
	assert.Equal(t, "command.rejected", entry["auditAction"])
	assert.Equal(t, "insufficient balance", entry["reason"])
	assert.NotContains(t, entry, "operatorId")
}
