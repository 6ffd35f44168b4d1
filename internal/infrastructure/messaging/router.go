package messaging

import (
	"context"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	"github.com/wms-platform/stock-engine/pkg/idempotency"
	"github.com/wms-platform/stock-engine/pkg/kafka"
	"github.com/wms-platform/stock-engine/pkg/logging"
)

// DomainHandler handles a decoded domain event or saga message
type DomainHandler func(ctx context.Context, event domain.DomainEvent) error

// Subscriber is the subscription side of a Kafka consumer
type Subscriber interface {
	Subscribe(topic string, eventType string, handler kafka.EventHandler)
}

// RouterConfig names the consumer for deduplication records
type RouterConfig struct {
	ServiceName   string
	ConsumerGroup string
}

// PayloadValidator checks a CloudEvent's data against its contract
type PayloadValidator interface {
	ValidateEvent(ce *cloudevents.WMSCloudEvent) error
}

// Router subscribes domain handlers. Every delivery is checked against its
// contract schema, decoded and deduplicated by message id before the handler runs.
type Router struct {
	subscriber   Subscriber
	validator    PayloadValidator
	processed    idempotency.MessageRepository
	dedupMetrics *idempotency.Metrics
	config       RouterConfig
	logger       *logging.Logger
}

// NewRouter creates a Router. validator and dedupMetrics may be nil.
func NewRouter(
	subscriber Subscriber,
	validator PayloadValidator,
	processed idempotency.MessageRepository,
	dedupMetrics *idempotency.Metrics,
	config RouterConfig,
	logger *logging.Logger,
) *Router {
	return &Router{
		subscriber:   subscriber,
		validator:    validator,
		processed:    processed,
		dedupMetrics: dedupMetrics,
		config:       config,
		logger:       logger.WithComponent("router"),
	}
}

// Route subscribes handler to eventTypes on topic
func (r *Router) Route(topic string, eventTypes []string, handler DomainHandler) {
	dedup := idempotency.DefaultConsumerConfig(r.config.ServiceName, topic, r.config.ConsumerGroup, r.processed)
	wrapped := idempotency.DeduplicatingHandler(dedup, r.dedupMetrics, r.logger, r.decoding(handler))

	for _, eventType := range eventTypes {
		r.subscriber.Subscribe(topic, eventType, kafka.EventHandler(wrapped))
	}
}

func (r *Router) decoding(handler DomainHandler) idempotency.EventHandler {
	return func(ctx context.Context, ce *cloudevents.WMSCloudEvent) error {
		log := r.logger.WithContext(ctx)

		if r.validator != nil {
			if err := r.validator.ValidateEvent(ce); err != nil {
				// a payload that breaks the contract will never succeed; drop it
				log.WithError(err).Error("Event rejected by contract", "eventId", ce.ID, "eventType", ce.Type)
				return nil
			}
		}

		event, err := Decode(ce)
		if err != nil {
			log.WithError(err).Error("Undecodable event dropped", "eventId", ce.ID, "eventType", ce.Type)
			return nil
		}
		return handler(ctx, event)
	}
}
