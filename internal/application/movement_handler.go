package application

import (
	"context"
	"errors"
	"fmt"
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

// DefaultMaxRetries is the default number of append attempts per movement
const DefaultMaxRetries = 3

// MovementHandlerConfig bounds the optimistic concurrency loop
type MovementHandlerConfig struct {
	// MaxRetries is the total number of load-validate-append attempts
	MaxRetries int
}

// MovementHandler records stock movements in the ledger
type MovementHandler struct {
	repo       domain.LedgerRepository
	logger     *logging.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	maxRetries int

	now   func() time.Time
	newID func() string
}

// NewMovementHandler creates a MovementHandler. metrics may be nil.
func NewMovementHandler(
	repo domain.LedgerRepository,
	config MovementHandlerConfig,
	logger *logging.Logger,
	m *metrics.Metrics,
) *MovementHandler {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	return &MovementHandler{
		repo:       repo,
		logger:     logger.WithComponent("movement-handler"),
		metrics:    m,
		tracer:     otel.Tracer("stock-engine/movement"),
		maxRetries: config.MaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// Handle loads the owning stream, validates the movement and appends it with the observed version.
// On a concurrency conflict the stream is reloaded and the attempt repeated up to MaxRetries times.
// Validation failures return immediately. Once an append starts, caller cancellation no longer applies.
func (h *MovementHandler) Handle(ctx context.Context, cmd RecordStockMovementCommand) (*MovementResult, error) {
	start := time.Now()
	ctx = logging.ContextWithCorrelationID(ctx, cmd.CorrelationID)
	ctx = logging.ContextWithCommandID(ctx, cmd.CommandID)

	result, err := tracing.TracedOperation(ctx, h.tracer, "stock.record_movement",
		func(ctx context.Context) (*MovementResult, error) {
			return h.handle(ctx, cmd)
		},
		append(tracing.CommandSpanAttributes(cmd.GetCommandType(), cmd.CommandID, cmd.CorrelationID),
			attribute.String("stock.movement_type", string(cmd.MovementType)),
			attribute.String("stock.sku", cmd.SKU),
		)...,
	)

	h.metrics.RecordCommand(CommandRecordStockMovement, outcome(err), time.Since(start))
	return result, err
}

func (h *MovementHandler) handle(ctx context.Context, cmd RecordStockMovementCommand) (*MovementResult, error) {
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
		ToLocation:   cmd.ToLocation,
		MovementType: cmd.MovementType,
		OperatorID:   cmd.OperatorID,
		Reason:       cmd.Reason,
		Timestamp:    h.now(),
	}
	return h.record(ctx, event)
}

// record runs the optimistic concurrency loop for an already built event
func (h *MovementHandler) record(ctx context.Context, event *domain.StockMovedEvent) (*MovementResult, error) {
	if event.Quantity <= 0 {
		h.metrics.RecordValidationRejection("quantity")
		return nil, domain.ErrInvalidQuantity
	}
	if err := event.MovementType.Validate(); err != nil {
		h.metrics.RecordValidationRejection("movement_type")
		return nil, err
	}

	key, err := event.StreamKey()
	if err != nil {
		h.metrics.RecordValidationRejection("routing")
		return nil, err
	}
	streamID := key.String()
	log := h.logger.WithContext(ctx).WithStream(streamID)

	for attempt := 1; attempt <= h.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("movement %s cancelled before append: %w", event.MovementID, err)
		}

		ledger, version, err := h.repo.Load(ctx, streamID)
		if err != nil {
			return nil, fmt.Errorf("load stream %s: %w", streamID, err)
		}

		if err := ledger.ValidateMovement(event); err != nil {
			if domain.IsValidationError(err) {
				h.metrics.RecordValidationRejection(validationReason(err))
				log.Info("Movement rejected", "reason", err.Error(), "movementType", event.MovementType)
			}
			return nil, err
		}

		// the append is the physical fact; it is not abandoned halfway because the caller left
		err = h.repo.Append(context.WithoutCancel(ctx), streamID, event, version)
		if err == nil {
			h.metrics.RecordLedgerAppend(string(event.MovementType))
			log.Event(ctx, event.EventType(), map[string]any{
				"movementId":   event.MovementID,
				"movementType": event.MovementType,
				"quantity":     event.Quantity,
				"version":      version + 1,
				"attempt":      attempt,
			})
			return &MovementResult{
				MovementID: event.MovementID,
				StreamID:   streamID,
				Version:    version + 1,
				Attempts:   attempt,
			}, nil
		}

		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil, fmt.Errorf("append to %s: %w", streamID, err)
		}

		h.metrics.RecordConcurrencyConflict(string(event.MovementType))
		log.Warn("Concurrency conflict on append, reloading",
			"attempt", attempt,
			"maxRetries", h.maxRetries,
			"expectedVersion", version,
		)
	}

	h.metrics.RecordConflictRetriesExhausted(string(event.MovementType))
	return nil, fmt.Errorf("%w after %d attempts", domain.ErrConcurrencyConflict, h.maxRetries)
}

func validationReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		return "quantity"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrUnknownMovementType):
		return "movement_type"
	default:
		return "other"
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsValidationError(err), errors.Is(err, ErrInvalidCommand):
		return "rejected"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}
