package projections

import (
	"time"

	"github.com/wms-platform/stock-engine/internal/domain"
)

// recentEventsKept bounds the per-view list of applied event ids
const recentEventsKept = 64

// AvailableStockView is the read model of one (warehouse, location, sku) partition.
// It lags the ledger; AvailableQty is clamped at zero so lag never shows negative stock.
type AvailableStockView struct {
	Key         string `bson:"_id" json:"key"`
	WarehouseID string `bson:"warehouseId" json:"warehouseId"`
	Location    string `bson:"location" json:"location"`
	SKU         string `bson:"sku" json:"sku"`

	OnHandQty     int64 `bson:"onHandQty" json:"onHandQty"`
	HardLockedQty int64 `bson:"hardLockedQty" json:"hardLockedQty"`
	ReservedQty   int64 `bson:"reservedQty" json:"reservedQty"`
	AvailableQty  int64 `bson:"availableQty" json:"availableQty"`

	// RecentEvents lists the most recently applied events, newest last
	RecentEvents []string `bson:"recentEvents" json:"-"`

	Version   int64     `bson:"version" json:"version"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ViewKey returns "{warehouseId}:{location}:{sku}"
func ViewKey(warehouseID, location, sku string) string {
	return warehouseID + ":" + location + ":" + sku
}

// NewAvailableStockView returns the empty view of a partition
func NewAvailableStockView(warehouseID, location, sku string) AvailableStockView {
	return AvailableStockView{
		Key:         ViewKey(warehouseID, location, sku),
		WarehouseID: warehouseID,
		Location:    location,
		SKU:         sku,
	}
}

func (v AvailableStockView) matches(warehouseID, location, sku string) bool {
	return v.WarehouseID == warehouseID && v.Location == location && v.SKU == sku
}

// HasApplied reports whether eventID is among the view's recent events
func (v AvailableStockView) HasApplied(eventID string) bool {
	for _, id := range v.RecentEvents {
		if id == eventID {
			return true
		}
	}
	return false
}

func (v AvailableStockView) markApplied(eventID string) AvailableStockView {
	recent := append(append([]string(nil), v.RecentEvents...), eventID)
	if len(recent) > recentEventsKept {
		recent = recent[len(recent)-recentEventsKept:]
	}
	v.RecentEvents = recent
	return v
}

// ApplyMovement credits the view when it is the movement's toLocation and debits it when it
// is the fromLocation, whatever the movement type. Handling units and PRODUCTION therefore
// show what was moved onto them, although the ledger only tracks the owning location.
func ApplyMovement(e *domain.StockMovedEvent, v AvailableStockView) AvailableStockView {
	if e.WarehouseID != v.WarehouseID || e.SKU != v.SKU {
		return v
	}
	if e.ToLocation == v.Location {
		v.OnHandQty += e.Quantity
	}
	if e.FromLocation == v.Location {
		v.OnHandQty -= e.Quantity
	}
	return RecomputeAvailable(v)
}

// ApplyPickingStarted raises the hard lock by the lines held at this view's location
func ApplyPickingStarted(e *domain.PickingStartedEvent, v AvailableStockView) AvailableStockView {
	v.HardLockedQty += sumLines(e.WarehouseID, e.Lines, v)
	return RecomputeAvailable(v)
}

// ApplyReservationConsumed releases the hard lock of the consumed lines
func ApplyReservationConsumed(e *domain.ReservationConsumedEvent, v AvailableStockView) AvailableStockView {
	v.HardLockedQty -= sumLines(e.WarehouseID, e.ReleasedLines, v)
	return RecomputeAvailable(v)
}

// ApplyReservationCancelled releases the hard lock still outstanding on the cancelled reservation
func ApplyReservationCancelled(e *domain.ReservationCancelledEvent, v AvailableStockView) AvailableStockView {
	v.HardLockedQty -= sumLines(e.WarehouseID, e.ReleasedLines, v)
	return RecomputeAvailable(v)
}

// RecomputeAvailable sets AvailableQty = max(0, onHand - hardLocked - reserved)
func RecomputeAvailable(v AvailableStockView) AvailableStockView {
	v.AvailableQty = max(0, v.OnHandQty-v.HardLockedQty-v.ReservedQty)
	return v
}

func sumLines(warehouseID string, lines []domain.LockLine, v AvailableStockView) int64 {
	var total int64
	for _, line := range lines {
		if v.matches(warehouseID, line.Location, line.SKU) {
			total += line.Quantity
		}
	}
	return total
}

// Apply folds any projected event into v. Events the projection does not track leave v unchanged.
func Apply(event domain.DomainEvent, v AvailableStockView) AvailableStockView {
	switch e := event.(type) {
	case *domain.StockMovedEvent:
		return ApplyMovement(e, v)
	case *domain.PickingStartedEvent:
		return ApplyPickingStarted(e, v)
	case *domain.ReservationConsumedEvent:
		return ApplyReservationConsumed(e, v)
	case *domain.ReservationCancelledEvent:
		return ApplyReservationCancelled(e, v)
	default:
		return v
	}
}

// AffectedViews returns the partitions an event touches, as (warehouse, location, sku) triples
func AffectedViews(event domain.DomainEvent) [][3]string {
	var out [][3]string
	seen := make(map[string]bool)
	add := func(w, l, s string) {
		if w == "" || l == "" || s == "" {
			return
		}
		k := ViewKey(w, l, s)
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, [3]string{w, l, s})
	}

	switch e := event.(type) {
	case *domain.StockMovedEvent:
		add(e.WarehouseID, e.FromLocation, e.SKU)
		add(e.WarehouseID, e.ToLocation, e.SKU)
	case *domain.PickingStartedEvent:
		for _, l := range e.Lines {
			add(e.WarehouseID, l.Location, l.SKU)
		}
	case *domain.ReservationConsumedEvent:
		for _, l := range e.ReleasedLines {
			add(e.WarehouseID, l.Location, l.SKU)
		}
	case *domain.ReservationCancelledEvent:
		for _, l := range e.ReleasedLines {
			add(e.WarehouseID, l.Location, l.SKU)
		}
	}
	return out
}

// EventID identifies an event for the per-view applied check
func EventID(event domain.DomainEvent) string {
	switch e := event.(type) {
	case *domain.StockMovedEvent:
		return "moved:" + e.MovementID
	case *domain.PickingStartedEvent:
		return "picking:" + e.ReservationID
	case *domain.ReservationConsumedEvent:
		return "consumed:" + e.ReservationID + ":" + e.MovementID
	case *domain.ReservationCancelledEvent:
		return "cancelled:" + e.ReservationID
	default:
		return event.EventType() + ":" + event.AggregateID()
	}
}
