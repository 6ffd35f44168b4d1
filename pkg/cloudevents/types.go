package cloudevents

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType constants for stock engine events
const (
	// Ledger events
	StockMoved = "wms.stock.moved"

	// Reservation events
	PickingStarted       = "wms.stock.picking-started"
	ReservationConsumed  = "wms.stock.reservation-consumed"
	ReservationCancelled = "wms.stock.reservation-cancelled"

	// Pick saga messages
	PickReservationDeferred = "wms.stock.pick-reservation-deferred"
	RetryConsumeReservation = "wms.stock.retry-consume-reservation"
	PickFailedPermanently   = "wms.stock.pick-failed-permanently"

	// Inbound commands
	RecordStockMovementRequested = "wms.stock.command.record-movement"
	PickStockRequested           = "wms.stock.command.pick-stock"
	CreateReservationRequested   = "wms.stock.command.create-reservation"
	StartPickingRequested        = "wms.stock.command.start-picking"
	CancelReservationRequested   = "wms.stock.command.cancel-reservation"
)

// SourceStockEngine is the CloudEvents source of everything this module emits
const SourceStockEngine = "/wms/stock-engine"

// SpecVersion is the CloudEvents version written on every envelope
const SpecVersion = "1.0"

// WMSCloudEvent represents a CloudEvents v1.0 envelope
type WMSCloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	ID              string          `json:"id"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`

	// WMS extensions
	CorrelationID string `json:"wmscorrelationid,omitempty"`
	CommandID     string `json:"wmscommandid,omitempty"`
	WarehouseID   string `json:"wmswarehouseid,omitempty"`

	// W3C trace context
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

// DecodeData unmarshals the event payload into v
func (e *WMSCloudEvent) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s (%s) has no data", e.ID, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", e.Type, err)
	}
	return nil
}

// Validate checks the required CloudEvents attributes
func (e *WMSCloudEvent) Validate() error {
	switch {
	case e.SpecVersion != SpecVersion:
		return fmt.Errorf("unsupported specversion %q", e.SpecVersion)
	case e.ID == "":
		return fmt.Errorf("event id is required")
	case e.Type == "":
		return fmt.Errorf("event type is required")
	case e.Source == "":
		return fmt.Errorf("event source is required")
	}
	return nil
}
