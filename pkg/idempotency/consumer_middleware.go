package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	"github.com/wms-platform/stock-engine/pkg/logging"
)

// EventHandler has the shape of kafka.EventHandler so either can be passed
type EventHandler func(ctx context.Context, event *cloudevents.WMSCloudEvent) error

// DeduplicatingHandler runs handler at most once per message id and consumer group.
// The id is recorded only after handler succeeds, so a failed message stays
// eligible for redelivery. metrics and logger may be nil.
func DeduplicatingHandler(config *ConsumerConfig, metrics *Metrics, logger *logging.Logger, handler EventHandler) EventHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("dedup").WithFields(map[string]any{
		"topic":         config.Topic,
		"consumerGroup": config.ConsumerGroup,
	})
	record := func(event *cloudevents.WMSCloudEvent, outcome DeliveryOutcome) {
		metrics.RecordDelivery(config.ServiceName, config.Topic, event.Type, outcome)
	}

	return func(ctx context.Context, event *cloudevents.WMSCloudEvent) error {
		log := logger.WithContext(ctx).WithFields(map[string]any{"messageId": event.ID, "eventType": event.Type})

		seen, err := config.Repository.IsProcessed(ctx, event.ID, config.Topic, config.ConsumerGroup)
		switch {
		case err != nil:
			record(event, DeliveryError)
			log.WithError(err).Error("Deduplication lookup failed")
			return err
		case seen:
			record(event, DeliveryDuplicate)
			log.Info("Duplicate message skipped")
			return nil
		}
		record(event, DeliveryNew)

		if err := handler(ctx, event); err != nil {
			return err
		}

		processedAt := time.Now().UTC()
		err = config.Repository.MarkProcessed(ctx, &ProcessedMessage{
			MessageID:     event.ID,
			Topic:         config.Topic,
			EventType:     event.Type,
			ConsumerGroup: config.ConsumerGroup,
			ServiceID:     config.ServiceName,
			CorrelationID: event.CorrelationID,
			ProcessedAt:   processedAt,
			ExpiresAt:     processedAt.Add(config.RetentionPeriod),
		})
		if errors.Is(err, ErrMessageAlreadyProcessed) {
			log.Warn("Message was processed concurrently")
			return nil
		}
		if err != nil {
			record(event, DeliveryError)
			log.WithError(err).Error("Failed to record processed message")
			return err
		}
		return nil
	}
}
