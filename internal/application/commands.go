package application

import (
	"github.com/wms-platform/stock-engine/internal/domain"
)

// Command type names, used as claim types and metric labels
const (
	CommandRecordStockMovement = "RecordStockMovement"
	CommandPickStock           = "PickStock"
)

// RecordStockMovementCommand records one physical movement in the ledger
type RecordStockMovementCommand struct {
	CommandID     string              `json:"commandId" validate:"required,max=128"`
	CorrelationID string              `json:"correlationId,omitempty" validate:"max=128"`
	WarehouseID   string              `json:"warehouseId" validate:"required,stream_segment"`
	SKU           string              `json:"sku" validate:"required,stream_segment"`
	Quantity      int64               `json:"quantity"`
	FromLocation  string              `json:"fromLocation,omitempty" validate:"omitempty,stream_segment"`
	ToLocation    string              `json:"toLocation,omitempty" validate:"omitempty,stream_segment"`
	MovementType  domain.MovementType `json:"movementType" validate:"required"`
	OperatorID    string              `json:"operatorId" validate:"required"`
	Reason        string              `json:"reason,omitempty" validate:"max=512"`
}

func (c RecordStockMovementCommand) GetCommandID() string   { return c.CommandID }
func (c RecordStockMovementCommand) GetCommandType() string { return CommandRecordStockMovement }

// MovementResult is returned for a recorded movement
type MovementResult struct {
	MovementID string `json:"movementId"`
	StreamID   string `json:"streamId"`
	Version    int64  `json:"version"`
	Attempts   int    `json:"attempts"`
}

// PickStockCommand moves picked stock out of its location and consumes the matching reservation
type PickStockCommand struct {
	CommandID      string `json:"commandId" validate:"required,max=128"`
	CorrelationID  string `json:"correlationId,omitempty" validate:"max=128"`
	ReservationID  string `json:"reservationId" validate:"required"`
	HandlingUnitID string `json:"handlingUnitId,omitempty" validate:"omitempty,stream_segment"`
	WarehouseID    string `json:"warehouseId" validate:"required,stream_segment"`
	SKU            string `json:"sku" validate:"required,stream_segment"`
	Quantity       int64  `json:"quantity"`
	FromLocation   string `json:"fromLocation" validate:"required,stream_segment"`
	OperatorID     string `json:"operatorId" validate:"required"`
}

func (c PickStockCommand) GetCommandID() string   { return c.CommandID }
func (c PickStockCommand) GetCommandType() string { return CommandPickStock }

// PickStockResult reports what happened to a pick. Deferred means the movement is recorded
// and the reservation will be consumed asynchronously under CorrelationID.
type PickStockResult struct {
	MovementID          string `json:"movementId"`
	StreamID            string `json:"streamId"`
	ReservationConsumed bool   `json:"reservationConsumed"`
	Deferred            bool   `json:"deferred"`
	CorrelationID       string `json:"correlationId,omitempty"`
}
