package domain

import (
	"fmt"
	"time"
)

// ReservationStatus represents the status of a reservation
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "Active"
	ReservationStatusPicking   ReservationStatus = "Picking"
	ReservationStatusConsumed  ReservationStatus = "Consumed"
	ReservationStatusCancelled ReservationStatus = "Cancelled"
)

// Reservation holds stock for an order. Once picking starts its lines become hard locks,
// which picks then consume location by location.
type Reservation struct {
	ReservationID string            `bson:"_id"`
	WarehouseID   string            `bson:"warehouseId"`
	OrderID       string            `bson:"orderId,omitempty"`
	Lines         []LockLine        `bson:"lines"`
	HardLocks     []LockLine        `bson:"hardLocks"`
	Status        ReservationStatus `bson:"status"`

	// ConsumedMovements lists the movements already applied, so a redelivered consume is a no-op
	ConsumedMovements []string `bson:"consumedMovements"`

	// Version is the optimistic concurrency token, incremented on every save
	Version int64 `bson:"version"`

	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`

	domainEvents []DomainEvent
}

// NewReservation creates an Active reservation
func NewReservation(reservationID, warehouseID, orderID string, lines []LockLine, now time.Time) (*Reservation, error) {
	if reservationID == "" {
		return nil, &ArgumentError{Param: "reservationId", Reason: "must not be empty"}
	}
	if warehouseID == "" {
		return nil, &ArgumentError{Param: "warehouseId", Reason: "must not be empty"}
	}
	if len(lines) == 0 {
		return nil, ErrReservationWithoutLines
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if line.Location == "" || line.SKU == "" {
			return nil, &ArgumentError{Param: "lines", Reason: "location and sku are required"}
		}
	}

	return &Reservation{
		ReservationID: reservationID,
		WarehouseID:   warehouseID,
		OrderID:       orderID,
		Lines:         append([]LockLine(nil), lines...),
		Status:        ReservationStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// StartPicking turns every line into a hard lock
func (r *Reservation) StartPicking(now time.Time) error {
	if r.Status != ReservationStatusActive {
		return fmt.Errorf("%w: status %s", ErrReservationNotActive, r.Status)
	}

	r.HardLocks = append([]LockLine(nil), r.Lines...)
	r.Status = ReservationStatusPicking
	r.UpdatedAt = now

	r.addEvent(&PickingStartedEvent{
		ReservationID: r.ReservationID,
		WarehouseID:   r.WarehouseID,
		Lines:         append([]LockLine(nil), r.HardLocks...),
		StartedAt:     now,
	})
	return nil
}

// HasConsumed reports whether movementID was already applied to this reservation
func (r *Reservation) HasConsumed(movementID string) bool {
	for _, id := range r.ConsumedMovements {
		if id == movementID {
			return true
		}
	}
	return false
}

// Consume releases quantity of sku held at location by a pick movement.
// Applying the same movement twice is a no-op. The reservation becomes Consumed when no hard lock remains.
func (r *Reservation) Consume(movementID, location, sku string, quantity int64, now time.Time) error {
	if movementID == "" {
		return &ArgumentError{Param: "movementId", Reason: "must not be empty"}
	}
	if r.HasConsumed(movementID) {
		return nil
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	switch r.Status {
	case ReservationStatusPicking:
	case ReservationStatusConsumed, ReservationStatusCancelled:
		return fmt.Errorf("%w: status %s", ErrReservationClosed, r.Status)
	default:
		return fmt.Errorf("%w: status %s", ErrReservationNotPicking, r.Status)
	}

	var held int64
	for _, lock := range r.HardLocks {
		if lock.Location == location && lock.SKU == sku {
			held += lock.Quantity
		}
	}
	if held < quantity {
		return fmt.Errorf("%w: held %d, consumed %d at %s", ErrConsumeExceedsHardLock, held, quantity, location)
	}

	remaining := quantity
	kept := r.HardLocks[:0]
	for _, lock := range r.HardLocks {
		if remaining > 0 && lock.Location == location && lock.SKU == sku {
			take := min(lock.Quantity, remaining)
			lock.Quantity -= take
			remaining -= take
		}
		if lock.Quantity > 0 {
			kept = append(kept, lock)
		}
	}
	r.HardLocks = kept
	r.ConsumedMovements = append(r.ConsumedMovements, movementID)
	r.UpdatedAt = now

	fully := len(r.HardLocks) == 0
	if fully {
		r.Status = ReservationStatusConsumed
	}

	r.addEvent(&ReservationConsumedEvent{
		ReservationID: r.ReservationID,
		MovementID:    movementID,
		WarehouseID:   r.WarehouseID,
		ReleasedLines: []LockLine{{Location: location, SKU: sku, Quantity: quantity}},
		FullyConsumed: fully,
		ConsumedAt:    now,
	})
	return nil
}

// Cancel closes the reservation and releases any outstanding hard locks
func (r *Reservation) Cancel(reason string, now time.Time) error {
	if r.Status == ReservationStatusConsumed || r.Status == ReservationStatusCancelled {
		return fmt.Errorf("%w: status %s", ErrReservationClosed, r.Status)
	}

	released := append([]LockLine{}, r.HardLocks...)
	r.HardLocks = nil
	r.Status = ReservationStatusCancelled
	r.UpdatedAt = now

	r.addEvent(&ReservationCancelledEvent{
		ReservationID: r.ReservationID,
		WarehouseID:   r.WarehouseID,
		Reason:        reason,
		ReleasedLines: released,
		CancelledAt:   now,
	})
	return nil
}

// HardLockedAt returns the outstanding hard lock of sku at location
func (r *Reservation) HardLockedAt(location, sku string) int64 {
	var total int64
	for _, lock := range r.HardLocks {
		if lock.Location == location && lock.SKU == sku {
			total += lock.Quantity
		}
	}
	return total
}

func (r *Reservation) addEvent(e DomainEvent) {
	r.domainEvents = append(r.domainEvents, e)
}

// PendingEvents returns events raised since the last ClearEvents
func (r *Reservation) PendingEvents() []DomainEvent {
	return r.domainEvents
}

// ClearEvents drops pending events once they are persisted
func (r *Reservation) ClearEvents() {
	r.domainEvents = nil
}

// Consumption is a request to release a reservation's hard lock for a recorded pick movement
type Consumption struct {
	ReservationID string
	MovementID    string
	Location      string
	SKU           string
	Quantity      int64
}
