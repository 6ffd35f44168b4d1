package domain

import "time"

// Pick saga messages. All are keyed by correlation id so one saga's messages stay ordered.

// ConsumePickReservationDeferred asks the saga to finish consuming a reservation
// after the pick movement was committed but consumption failed inline.
type ConsumePickReservationDeferred struct {
	CorrelationID string    `json:"correlationId"`
	ReservationID string    `json:"reservationId"`
	MovementID    string    `json:"movementId"`
	WarehouseID   string    `json:"warehouseId"`
	SKU           string    `json:"sku"`
	FromLocation  string    `json:"fromLocation,omitempty"`
	Quantity      int64     `json:"quantity"`
	LastError     string    `json:"lastError,omitempty"`
	DeferredAt    time.Time `json:"deferredAt"`
}

func (m *ConsumePickReservationDeferred) EventType() string {
	return "wms.stock.pick-reservation-deferred"
}
func (m *ConsumePickReservationDeferred) OccurredAt() time.Time { return m.DeferredAt }
func (m *ConsumePickReservationDeferred) AggregateID() string   { return m.CorrelationID }

// RetryConsumeReservation is the delayed re-delivery the saga schedules for itself
type RetryConsumeReservation struct {
	CorrelationID string    `json:"correlationId"`
	RetryToken    string    `json:"retryToken"`
	Attempt       int       `json:"attempt"`
	ScheduledAt   time.Time `json:"scheduledAt"`
}

func (m *RetryConsumeReservation) EventType() string {
	return "wms.stock.retry-consume-reservation"
}
func (m *RetryConsumeReservation) OccurredAt() time.Time { return m.ScheduledAt }
func (m *RetryConsumeReservation) AggregateID() string   { return m.CorrelationID }

// PickStockFailedPermanentlyEvent reports that a committed pick could not be reconciled
// with its reservation after all retries. It is emitted once per saga.
type PickStockFailedPermanentlyEvent struct {
	CorrelationID string    `json:"correlationId"`
	ReservationID string    `json:"reservationId"`
	MovementID    string    `json:"movementId"`
	WarehouseID   string    `json:"warehouseId,omitempty"`
	SKU           string    `json:"sku,omitempty"`
	Attempts      int       `json:"attempts"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failedAt"`
}

func (e *PickStockFailedPermanentlyEvent) EventType() string {
	return "wms.stock.pick-failed-permanently"
}
func (e *PickStockFailedPermanentlyEvent) OccurredAt() time.Time { return e.FailedAt }
func (e *PickStockFailedPermanentlyEvent) AggregateID() string   { return e.CorrelationID }
