package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/metrics"
	"github.com/wms-platform/stock-engine/pkg/tracing"
)

// deferPublishAttempts bounds how often a deferred-consumption message is offered to the bus
const deferPublishAttempts = 3

// PickStockHandler records a pick as a dispatch and then consumes the reservation it satisfies.
// The movement is authoritative: once appended, a failure to consume never fails the command.
// The reservation is instead reconciled by the pick saga.
type PickStockHandler struct {
	movements    *MovementHandler
	reservations domain.ReservationConsumer
	publisher    domain.EventPublisher
	logger       *logging.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer

	now   func() time.Time
	newID func() string
}

// NewPickStockHandler creates a PickStockHandler
func NewPickStockHandler(
	movements *MovementHandler,
	reservations domain.ReservationConsumer,
	publisher domain.EventPublisher,
	logger *logging.Logger,
	m *metrics.Metrics,
) *PickStockHandler {
	return &PickStockHandler{
		movements:    movements,
		reservations: reservations,
		publisher:    publisher,
		logger:       logger.WithComponent("pick-handler"),
		metrics:      m,
		tracer:       otel.Tracer("stock-engine/pick"),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// Handle executes a pick
func (h *PickStockHandler) Handle(ctx context.Context, cmd PickStockCommand) (*PickStockResult, error) {
	start := time.Now()
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = h.newID()
	}
	ctx = logging.ContextWithCorrelationID(ctx, cmd.CorrelationID)
	ctx = logging.ContextWithCommandID(ctx, cmd.CommandID)

	result, err := tracing.TracedOperation(ctx, h.tracer, "stock.pick",
		func(ctx context.Context) (*PickStockResult, error) {
			return h.handle(ctx, cmd)
		},
		append(tracing.CommandSpanAttributes(cmd.GetCommandType(), cmd.CommandID, cmd.CorrelationID),
			attribute.String("stock.reservation_id", cmd.ReservationID),
			attribute.String("stock.sku", cmd.SKU),
		)...,
	)

	h.metrics.RecordCommand(CommandPickStock, outcome(err), time.Since(start))
	return result, err
}

func (h *PickStockHandler) handle(ctx context.Context, cmd PickStockCommand) (*PickStockResult, error) {
	if err := validateCommand(cmd); err != nil {
		h.metrics.RecordValidationRejection("envelope")
		return nil, err
	}

	event := &domain.StockMovedEvent{
		MovementID:   h.newID(),
		WarehouseID:  cmd.WarehouseID,
		SKU:          cmd.SKU,
		Quantity:     cmd.Quantity,
		FromLocation: cmd.FromLocation,
		ToLocation:   cmd.HandlingUnitID,
		MovementType: domain.MovementDispatch,
		OperatorID:   cmd.OperatorID,
		Reason:       "pick for reservation " + cmd.ReservationID,
		Timestamp:    h.now(),
	}

	moved, err := h.movements.record(ctx, event)
	if err != nil {
		return nil, err
	}

	result := &PickStockResult{
		MovementID:    moved.MovementID,
		StreamID:      moved.StreamID,
		CorrelationID: cmd.CorrelationID,
	}

	// The stock has left the location. Nothing after this point may undo or fail the pick.
	ctx = context.WithoutCancel(ctx)
	log := h.logger.WithContext(ctx)

	consumeErr := h.reservations.Consume(ctx, domain.Consumption{
		ReservationID: cmd.ReservationID,
		MovementID:    moved.MovementID,
		Location:      cmd.FromLocation,
		SKU:           cmd.SKU,
		Quantity:      cmd.Quantity,
	})
	if consumeErr == nil {
		result.ReservationConsumed = true
		return result, nil
	}

	log.Warn("Reservation consumption failed, deferring to pick saga",
		"reservationId", cmd.ReservationID,
		"movementId", moved.MovementID,
		"error", consumeErr.Error(),
	)

	h.metrics.RecordDeferredConsumption()
	result.Deferred = true

	deferred := &domain.ConsumePickReservationDeferred{
		CorrelationID: cmd.CorrelationID,
		ReservationID: cmd.ReservationID,
		MovementID:    moved.MovementID,
		WarehouseID:   cmd.WarehouseID,
		SKU:           cmd.SKU,
		FromLocation:  cmd.FromLocation,
		Quantity:      cmd.Quantity,
		LastError:     consumeErr.Error(),
		DeferredAt:    h.now(),
	}

	var publishErr error
	for attempt := 1; attempt <= deferPublishAttempts; attempt++ {
		if publishErr = h.publisher.Publish(ctx, deferred); publishErr == nil {
			return result, nil
		}
		log.Warn("Publishing deferred consumption failed", "attempt", attempt, "error", publishErr.Error())
	}

	// the movement stands; an operator has to reconcile the reservation by hand
	log.WithError(publishErr).Error("Deferred consumption could not be handed to the pick saga",
		"reservationId", cmd.ReservationID,
		"movementId", moved.MovementID,
	)
	log.Audit(ctx, "pick.reconciliation_required", "reservation", cmd.ReservationID, cmd.OperatorID, map[string]any{
		"movementId":    moved.MovementID,
		"correlationId": cmd.CorrelationID,
		"quantity":      cmd.Quantity,
	})
	return result, nil
}
