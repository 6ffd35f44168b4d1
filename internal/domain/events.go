package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	// AggregateID is the partition key the event is published under
	AggregateID() string
}

// LockLine is a quantity of one SKU held at one location
type LockLine struct {
	Location string `json:"location" bson:"location"`
	SKU      string `json:"sku" bson:"sku"`
	Quantity int64  `json:"quantity" bson:"quantity"`
}

// StockMovedEvent records one physical movement. It is appended to the stream of its owning location.
type StockMovedEvent struct {
	MovementID   string       `json:"movementId" bson:"movementId"`
	WarehouseID  string       `json:"warehouseId" bson:"warehouseId"`
	SKU          string       `json:"sku" bson:"sku"`
	Quantity     int64        `json:"quantity" bson:"quantity"`
	FromLocation string       `json:"fromLocation,omitempty" bson:"fromLocation,omitempty"`
	ToLocation   string       `json:"toLocation,omitempty" bson:"toLocation,omitempty"`
	MovementType MovementType `json:"movementType" bson:"movementType"`
	OperatorID   string       `json:"operatorId" bson:"operatorId"`
	Reason       string       `json:"reason,omitempty" bson:"reason,omitempty"`
	Timestamp    time.Time    `json:"timestamp" bson:"timestamp"`
}

func (e *StockMovedEvent) EventType() string     { return "wms.stock.moved" }
func (e *StockMovedEvent) OccurredAt() time.Time { return e.Timestamp }

// AggregateID returns the owning stream id, or the movement id if the event is malformed
func (e *StockMovedEvent) AggregateID() string {
	key, err := e.StreamKey()
	if err != nil {
		return e.MovementID
	}
	return key.String()
}

// StreamKey returns the partition that owns this movement
func (e *StockMovedEvent) StreamKey() (StreamKey, error) {
	location, err := e.MovementType.OwningLocation(e.FromLocation, e.ToLocation)
	if err != nil {
		return StreamKey{}, err
	}
	return NewStreamKey(e.WarehouseID, location, e.SKU)
}

// PickingStartedEvent is emitted when a reservation's lines become hard locks
type PickingStartedEvent struct {
	ReservationID string     `json:"reservationId"`
	WarehouseID   string     `json:"warehouseId"`
	Lines         []LockLine `json:"lines"`
	StartedAt     time.Time  `json:"startedAt"`
}

func (e *PickingStartedEvent) EventType() string     { return "wms.stock.picking-started" }
func (e *PickingStartedEvent) OccurredAt() time.Time { return e.StartedAt }
func (e *PickingStartedEvent) AggregateID() string   { return e.ReservationID }

// ReservationConsumedEvent is emitted when picked stock releases hard locks
type ReservationConsumedEvent struct {
	ReservationID string     `json:"reservationId"`
	MovementID    string     `json:"movementId"`
	WarehouseID   string     `json:"warehouseId"`
	ReleasedLines []LockLine `json:"releasedLines"`
	FullyConsumed bool       `json:"fullyConsumed"`
	ConsumedAt    time.Time  `json:"consumedAt"`
}

func (e *ReservationConsumedEvent) EventType() string     { return "wms.stock.reservation-consumed" }
func (e *ReservationConsumedEvent) OccurredAt() time.Time { return e.ConsumedAt }
func (e *ReservationConsumedEvent) AggregateID() string   { return e.ReservationID }

// ReservationCancelledEvent is emitted when a reservation is cancelled.
// ReleasedLines is empty when picking never started.
type ReservationCancelledEvent struct {
	ReservationID string     `json:"reservationId"`
	WarehouseID   string     `json:"warehouseId"`
	Reason        string     `json:"reason,omitempty"`
	ReleasedLines []LockLine `json:"releasedLines"`
	CancelledAt   time.Time  `json:"cancelledAt"`
}

func (e *ReservationCancelledEvent) EventType() string     { return "wms.stock.reservation-cancelled" }
func (e *ReservationCancelledEvent) OccurredAt() time.Time { return e.CancelledAt }
func (e *ReservationCancelledEvent) AggregateID() string   { return e.ReservationID }
