package messaging

import (
	"context"
	"fmt"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	"github.com/wms-platform/stock-engine/pkg/kafka"
	"github.com/wms-platform/stock-engine/pkg/outbox"
)

// TopicFor routes an event type to its topic
func TopicFor(eventType string) string {
	switch eventType {
	case cloudevents.PickReservationDeferred, cloudevents.RetryConsumeReservation:
		return kafka.Topics.PickSagaCommands
	case cloudevents.PickFailedPermanently:
		return kafka.Topics.StockAlerts
	default:
		return kafka.Topics.StockEvents
	}
}

// AggregateTypeFor names the aggregate an event belongs to, as recorded in the outbox
func AggregateTypeFor(event domain.DomainEvent) string {
	switch event.(type) {
	case *domain.StockMovedEvent:
		return "StockLedger"
	case *domain.PickingStartedEvent, *domain.ReservationConsumedEvent, *domain.ReservationCancelledEvent:
		return "Reservation"
	default:
		return "PickStockSaga"
	}
}

// EnvelopeFactory wraps domain events in CloudEvents
type EnvelopeFactory struct {
	events *cloudevents.EventFactory
}

// NewEnvelopeFactory creates an EnvelopeFactory for the engine's source
func NewEnvelopeFactory() *EnvelopeFactory {
	return &EnvelopeFactory{events: cloudevents.NewEventFactory(cloudevents.SourceStockEngine)}
}

// Wrap creates the CloudEvent for event. The subject is the aggregate id so that
// every event of one aggregate is keyed onto one partition.
func (f *EnvelopeFactory) Wrap(ctx context.Context, event domain.DomainEvent) (*cloudevents.WMSCloudEvent, error) {
	return f.events.CreateEvent(ctx, event.EventType(), event.AggregateID(), event,
		cloudevents.WithCorrelationID(correlationOf(event)),
		cloudevents.WithWarehouse(warehouseOf(event)),
		cloudevents.OccurredAt(event.OccurredAt()),
	)
}

// ToOutbox wraps events and routes them into outbox records
func (f *EnvelopeFactory) ToOutbox(ctx context.Context, events ...domain.DomainEvent) ([]*outbox.Record, error) {
	records := make([]*outbox.Record, 0, len(events))
	for _, event := range events {
		ce, err := f.Wrap(ctx, event)
		if err != nil {
			return nil, err
		}
		record, err := outbox.NewRecord(TopicFor(ce.Type), AggregateTypeFor(event), ce)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Decode turns a CloudEvent back into the domain event or message it carries
func Decode(ce *cloudevents.WMSCloudEvent) (domain.DomainEvent, error) {
	var event domain.DomainEvent
	switch ce.Type {
	case cloudevents.StockMoved:
		event = &domain.StockMovedEvent{}
	case cloudevents.PickingStarted:
		event = &domain.PickingStartedEvent{}
	case cloudevents.ReservationConsumed:
		event = &domain.ReservationConsumedEvent{}
	case cloudevents.ReservationCancelled:
		event = &domain.ReservationCancelledEvent{}
	case cloudevents.PickReservationDeferred:
		event = &domain.ConsumePickReservationDeferred{}
	case cloudevents.RetryConsumeReservation:
		event = &domain.RetryConsumeReservation{}
	case cloudevents.PickFailedPermanently:
		event = &domain.PickStockFailedPermanentlyEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", ce.Type)
	}

	if err := ce.DecodeData(event); err != nil {
		return nil, err
	}
	return event, nil
}

func correlationOf(event domain.DomainEvent) string {
	switch e := event.(type) {
	case *domain.ConsumePickReservationDeferred:
		return e.CorrelationID
	case *domain.RetryConsumeReservation:
		return e.CorrelationID
	case *domain.PickStockFailedPermanentlyEvent:
		return e.CorrelationID
	default:
		return ""
	}
}

func warehouseOf(event domain.DomainEvent) string {
	switch e := event.(type) {
	case *domain.StockMovedEvent:
		return e.WarehouseID
	case *domain.PickingStartedEvent:
		return e.WarehouseID
	case *domain.ReservationConsumedEvent:
		return e.WarehouseID
	case *domain.ReservationCancelledEvent:
		return e.WarehouseID
	case *domain.ConsumePickReservationDeferred:
		return e.WarehouseID
	case *domain.PickStockFailedPermanentlyEvent:
		return e.WarehouseID
	default:
		return ""
	}
}
