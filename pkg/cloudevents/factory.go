package cloudevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/stock-engine/pkg/logging"
)

// EventOption adjusts an envelope before it is returned by the factory
type EventOption func(*WMSCloudEvent)

// WithCorrelationID overrides the correlation id taken from the context. Empty ids are ignored.
func WithCorrelationID(id string) EventOption {
	return func(e *WMSCloudEvent) {
		if id != "" {
			e.CorrelationID = id
		}
	}
}

// WithWarehouse sets the warehouse extension
func WithWarehouse(warehouseID string) EventOption {
	return func(e *WMSCloudEvent) { e.WarehouseID = warehouseID }
}

// OccurredAt stamps the envelope with the time the fact happened instead of
// the time it was wrapped. A zero time is ignored.
func OccurredAt(t time.Time) EventOption {
	return func(e *WMSCloudEvent) {
		if !t.IsZero() {
			e.Time = t.UTC()
		}
	}
}

// EventFactory creates envelopes for one source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates an EventFactory for source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// CreateEvent wraps data in a new envelope with a fresh id. Correlation and
// command ids carried by ctx are copied onto the extensions before opts run.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data any, opts ...EventOption) (*WMSCloudEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", eventType, err)
	}

	event := &WMSCloudEvent{
		SpecVersion:     SpecVersion,
		ID:              uuid.NewString(),
		Source:          f.source,
		Type:            eventType,
		Subject:         subject,
		Time:            f.now().UTC(),
		DataContentType: "application/json",
		Data:            payload,
		CorrelationID:   logging.CorrelationIDFromContext(ctx),
		CommandID:       logging.CommandIDFromContext(ctx),
	}
	for _, opt := range opts {
		opt(event)
	}
	return event, nil
}
