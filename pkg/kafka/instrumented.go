package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/metrics"
	"github.com/wms-platform/stock-engine/pkg/tracing"
)

const (
	spanPublish = "kafka.publish"
	spanConsume = "kafka.consume"
)

// startSpan opens a messaging span for event on topic
func startSpan(ctx context.Context, tracer trace.Tracer, name, topic string, event *cloudevents.WMSCloudEvent) (context.Context, trace.Span) {
	kind, operation := trace.SpanKindProducer, "publish"
	if name == spanConsume {
		kind, operation = trace.SpanKindConsumer, "receive"
	}

	attrs := append(tracing.MessagingSpanAttributes("kafka", topic, operation),
		attribute.String("messaging.kafka.event_type", event.Type),
		attribute.String("messaging.message_id", event.ID),
	)
	if event.CorrelationID != "" {
		attrs = append(attrs, attribute.String("wms.correlation_id", event.CorrelationID))
	}
	if event.WarehouseID != "" {
		attrs = append(attrs, attribute.String("wms.warehouse_id", event.WarehouseID))
	}
	return tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InstrumentedProducer traces and measures every publish. The span context travels
// to consumers in the traceparent extension of the event.
type InstrumentedProducer struct {
	next    EventPublisher
	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewInstrumentedProducer creates a new instrumented producer
func NewInstrumentedProducer(next EventPublisher, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	return &InstrumentedProducer{
		next:    next,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("stock-engine/kafka"),
	}
}

// PublishEvent implements EventPublisher
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) (err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, p.tracer, spanPublish, topic, event)
	defer func() { endSpan(span, err) }()

	carrier := tracing.MapCarrier{}
	tracing.InjectTraceContext(ctx, carrier)
	if traceParent := carrier.Get("traceparent"); traceParent != "" {
		event.TraceParent = traceParent
		event.TraceState = carrier.Get("tracestate")
	}

	err = p.next.PublishEvent(ctx, topic, event)

	elapsed := time.Since(start)
	p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, elapsed)
	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, elapsed)
	}
	return err
}

// InstrumentedConsumer continues the producer's trace around each handler
// invocation and counts outcomes per attempt
type InstrumentedConsumer struct {
	*Consumer
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewInstrumentedConsumer creates a new instrumented consumer
func NewInstrumentedConsumer(consumer *Consumer, m *metrics.Metrics) *InstrumentedConsumer {
	return &InstrumentedConsumer{
		Consumer: consumer,
		metrics:  m,
		tracer:   otel.Tracer("stock-engine/kafka"),
	}
}

// Subscribe registers handler wrapped in a consumer span
func (c *InstrumentedConsumer) Subscribe(topic string, eventType string, handler EventHandler) {
	c.Consumer.Subscribe(topic, eventType, func(ctx context.Context, event *cloudevents.WMSCloudEvent) (err error) {
		if event.TraceParent != "" {
			ctx = tracing.ExtractTraceContext(ctx, tracing.MapCarrier{
				"traceparent": event.TraceParent,
				"tracestate":  event.TraceState,
			})
		}
		ctx, span := startSpan(ctx, c.tracer, spanConsume, topic, event)
		defer func() { endSpan(span, err) }()

		err = handler(ctx, event)
		c.metrics.RecordKafkaConsume(topic, event.Type, err == nil)
		return err
	})
}
