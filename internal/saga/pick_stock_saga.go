package saga

import (
	"time"

	"github.com/wms-platform/stock-engine/internal/domain"
)

// PickStockSagaState is the persisted state of one deferred reservation consumption,
// keyed by the correlation id of the pick that deferred it.
type PickStockSagaState struct {
	CorrelationID string `bson:"_id" json:"correlationId"`
	CurrentState  State  `bson:"currentState" json:"currentState"`

	ReservationID string `bson:"reservationId" json:"reservationId"`
	MovementID    string `bson:"movementId" json:"movementId"`
	WarehouseID   string `bson:"warehouseId" json:"warehouseId"`
	SKU           string `bson:"sku" json:"sku"`
	FromLocation  string `bson:"fromLocation" json:"fromLocation"`
	Quantity      int64  `bson:"quantity" json:"quantity"`

	// RetryCount is the number of failed consumption attempts so far
	RetryCount int    `bson:"retryCount" json:"retryCount"`
	LastError  string `bson:"lastError,omitempty" json:"lastError,omitempty"`

	// RetryToken identifies the one scheduled retry this saga is waiting for.
	// Retries carrying any other token are stale and ignored.
	RetryToken  string    `bson:"retryToken,omitempty" json:"retryToken,omitempty"`
	NextRetryAt time.Time `bson:"nextRetryAt,omitempty" json:"nextRetryAt,omitempty"`

	Version     int64      `bson:"version" json:"version"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// NewPickStockSagaState starts a saga from a deferred consumption
func NewPickStockSagaState(msg *domain.ConsumePickReservationDeferred, now time.Time) *PickStockSagaState {
	return &PickStockSagaState{
		CorrelationID: msg.CorrelationID,
		CurrentState:  StateConsumingReservation,
		ReservationID: msg.ReservationID,
		MovementID:    msg.MovementID,
		WarehouseID:   msg.WarehouseID,
		SKU:           msg.SKU,
		FromLocation:  msg.FromLocation,
		Quantity:      msg.Quantity,
		LastError:     msg.LastError,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsTerminal reports whether the saga ignores further messages
func (s *PickStockSagaState) IsTerminal() bool {
	return s.CurrentState.IsFinal()
}

// AwaitingRetry reports whether a retry is scheduled for the saga
func (s *PickStockSagaState) AwaitingRetry() bool {
	return !s.IsTerminal() && s.RetryToken != ""
}

// Consumption returns the reservation consumption this saga keeps attempting
func (s *PickStockSagaState) Consumption() domain.Consumption {
	return domain.Consumption{
		ReservationID: s.ReservationID,
		MovementID:    s.MovementID,
		Location:      s.FromLocation,
		SKU:           s.SKU,
		Quantity:      s.Quantity,
	}
}

func (s *PickStockSagaState) fire(trigger Trigger, now time.Time) (State, error) {
	from := s.CurrentState
	next, err := from.Next(trigger)
	if err != nil {
		return from, err
	}
	s.CurrentState = next
	s.UpdatedAt = now
	if next.IsFinal() {
		s.RetryToken = ""
		s.NextRetryAt = time.Time{}
		completed := now
		s.CompletedAt = &completed
	}
	return from, nil
}
