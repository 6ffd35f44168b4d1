package application

import (
	"context"

	"github.com/wms-platform/stock-engine/pkg/idempotency"
	"github.com/wms-platform/stock-engine/pkg/logging"
)

// Engine is the command surface of the stock engine. Every command runs at most once per command id.
type Engine struct {
	recordMovement idempotency.HandlerFunc[RecordStockMovementCommand, *MovementResult]
	pickStock      idempotency.HandlerFunc[PickStockCommand, *PickStockResult]
}

// NewEngine guards the handlers with the claim store
func NewEngine(
	movements *MovementHandler,
	picks *PickStockHandler,
	claims idempotency.ClaimStore,
	logger *logging.Logger,
	claimMetrics *idempotency.Metrics,
) *Engine {
	return &Engine{
		recordMovement: idempotency.NewBehavior[RecordStockMovementCommand, *MovementResult](claims, logger, claimMetrics).
			Wrap(movements.Handle),
		pickStock: idempotency.NewBehavior[PickStockCommand, *PickStockResult](claims, logger, claimMetrics).
			Wrap(picks.Handle),
	}
}

// RecordStockMovement records a receipt, dispatch or transfer
func (e *Engine) RecordStockMovement(ctx context.Context, cmd RecordStockMovementCommand) (*MovementResult, error) {
	return e.recordMovement(ctx, cmd)
}

// PickStock records a pick and consumes its reservation, deferring the consumption if needed
func (e *Engine) PickStock(ctx context.Context, cmd PickStockCommand) (*PickStockResult, error) {
	return e.pickStock(ctx, cmd)
}
