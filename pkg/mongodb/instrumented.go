package mongodb

import (
	"context"
	"time"

	"github.com/wms-platform/stock-engine/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation records a span and metrics around repository operations.
// The zero value and a nil pointer are both usable and only trace.
type Instrumentation struct {
	metrics  *metrics.Metrics
	database string
}

// NewInstrumentation creates instrumentation for operations against database
func NewInstrumentation(m *metrics.Metrics, database string) *Instrumentation {
	return &Instrumentation{metrics: m, database: database}
}

// Observe runs fn inside a client span named mongodb.<operation>.
// A missing document is not counted as a failed operation.
func (i *Instrumentation) Observe(ctx context.Context, collection, operation string, fn func(ctx context.Context) error) error {
	var (
		m  *metrics.Metrics
		db string
	)
	if i != nil {
		m, db = i.metrics, i.database
	}

	ctx, span := otel.Tracer("mongodb").Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(db),
			semconv.DBOperationKey.String(operation),
			attribute.String("db.collection", collection),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	success := err == nil || IsNotFound(err)
	m.RecordMongoDBOperation(collection, operation, success, time.Since(start))

	if !success {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}
