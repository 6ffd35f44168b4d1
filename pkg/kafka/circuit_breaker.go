package kafka

import (
	"context"
	"io"

	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/metrics"
	"github.com/wms-platform/stock-engine/pkg/resilience"
)

// CircuitBreakerProducer stops hammering the broker when publishes keep failing.
// The outbox keeps the rejected events and retries them on a later tick.
type CircuitBreakerProducer struct {
	producer       EventPublisher
	circuitBreaker *resilience.CircuitBreaker
}

// NewCircuitBreakerProducer creates a new circuit breaker protected Kafka producer
func NewCircuitBreakerProducer(producer EventPublisher, logger *logging.Logger, m *metrics.Metrics) *CircuitBreakerProducer {
	config := resilience.DefaultCircuitBreakerConfig("kafka-producer")
	config.HalfOpenProbes = 5
	config.OnStateChange = func(name string, to resilience.State) {
		m.SetCircuitBreakerState(name, int(to))
	}

	return &CircuitBreakerProducer{
		producer:       producer,
		circuitBreaker: resilience.NewCircuitBreaker(config, logger.Logger),
	}
}

// PublishEvent publishes a CloudEvent with circuit breaker protection
func (p *CircuitBreakerProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	return p.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return p.producer.PublishEvent(ctx, topic, event)
	})
}

// Close closes the underlying producer when it supports it
func (p *CircuitBreakerProducer) Close() error {
	if c, ok := p.producer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Underlying returns the wrapped publisher
func (p *CircuitBreakerProducer) Underlying() EventPublisher {
	return p.producer
}

// ProductionProducer is the full producer chain together with the raw
// producer owning the writers
type ProductionProducer struct {
	*CircuitBreakerProducer
	base *Producer
}

// Close closes the Kafka writers
func (p *ProductionProducer) Close() error {
	return p.base.Close()
}

// NewProductionProducer creates a Kafka producer with instrumentation and circuit breaker
func NewProductionProducer(config *Config, m *metrics.Metrics, logger *logging.Logger) *ProductionProducer {
	base := NewProducer(config)
	instrumented := NewInstrumentedProducer(base, m, logger)
	return &ProductionProducer{
		CircuitBreakerProducer: NewCircuitBreakerProducer(instrumented, logger, m),
		base:                   base,
	}
}

// NewProductionConsumer creates a Kafka consumer with instrumentation
func NewProductionConsumer(config *Config, m *metrics.Metrics, logger *logging.Logger) *InstrumentedConsumer {
	return NewInstrumentedConsumer(NewConsumer(config, logger.Logger), m)
}
