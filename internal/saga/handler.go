package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/metrics"
)

// Handler coordinates pick-stock sagas. It reacts to ConsumePickReservationDeferred and
// RetryConsumeReservation messages and drives each saga to Completed or Failed.
type Handler struct {
	store        Store
	scheduler    RetryScheduler
	reservations domain.ReservationConsumer
	config       Config
	logger       *logging.Logger
	metrics      *metrics.Metrics

	now      func() time.Time
	newToken func() string
}

// NewHandler creates a saga Handler. The config must be valid.
func NewHandler(
	store Store,
	scheduler RetryScheduler,
	reservations domain.ReservationConsumer,
	config Config,
	logger *logging.Logger,
	m *metrics.Metrics,
) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Handler{
		store:        store,
		scheduler:    scheduler,
		reservations: reservations,
		config:       config,
		logger:       logger.WithComponent("pick-saga"),
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
		newToken:     uuid.NewString,
	}, nil
}

// Handle dispatches a saga message by type. Other messages are ignored.
func (h *Handler) Handle(ctx context.Context, msg domain.DomainEvent) error {
	switch m := msg.(type) {
	case *domain.ConsumePickReservationDeferred:
		return h.HandleDeferred(ctx, m)
	case *domain.RetryConsumeReservation:
		return h.HandleRetry(ctx, m)
	default:
		return nil
	}
}

// HandleDeferred starts a saga for a deferred consumption.
// A redelivered message for an existing saga is ignored unless that saga never got
// as far as scheduling a retry, in which case the attempt is resumed.
func (h *Handler) HandleDeferred(ctx context.Context, msg *domain.ConsumePickReservationDeferred) error {
	if msg.CorrelationID == "" {
		return &domain.ArgumentError{Param: "correlationId", Reason: "must not be empty"}
	}
	ctx = logging.ContextWithCorrelationID(ctx, msg.CorrelationID)
	log := h.logger.WithContext(ctx)

	state, err := h.store.Get(ctx, msg.CorrelationID)
	switch {
	case errors.Is(err, domain.ErrSagaNotFound):
		state = NewPickStockSagaState(msg, h.now())
		if err := h.store.Create(ctx, state); err != nil {
			if errors.Is(err, ErrSagaExists) {
				log.Info("Saga created concurrently, ignoring deferred message")
				return nil
			}
			return fmt.Errorf("create saga %s: %w", msg.CorrelationID, err)
		}
		log.Info("Pick saga started",
			"reservationId", msg.ReservationID,
			"movementId", msg.MovementID,
			"reason", msg.LastError,
		)
	case err != nil:
		return fmt.Errorf("load saga %s: %w", msg.CorrelationID, err)
	case state.IsTerminal() || state.AwaitingRetry():
		log.Debug("Deferred message redelivered, ignoring", "state", state.CurrentState)
		return nil
	default:
		log.Info("Resuming saga that has no scheduled retry", "retryCount", state.RetryCount)
	}

	return h.attempt(ctx, state)
}

// HandleRetry runs a scheduled consumption attempt. Stale or unknown retries are ignored.
func (h *Handler) HandleRetry(ctx context.Context, msg *domain.RetryConsumeReservation) error {
	ctx = logging.ContextWithCorrelationID(ctx, msg.CorrelationID)
	log := h.logger.WithContext(ctx)

	state, err := h.store.Get(ctx, msg.CorrelationID)
	if errors.Is(err, domain.ErrSagaNotFound) {
		log.Warn("Retry for unknown saga, ignoring", "retryToken", msg.RetryToken)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load saga %s: %w", msg.CorrelationID, err)
	}

	if state.IsTerminal() {
		log.Debug("Retry for finished saga, ignoring", "state", state.CurrentState)
		return nil
	}
	if msg.RetryToken != state.RetryToken {
		log.Info("Stale retry, ignoring", "retryToken", msg.RetryToken, "expectedToken", state.RetryToken)
		return nil
	}

	return h.attempt(ctx, state)
}

// attempt calls reservation consumption once and records the outcome
func (h *Handler) attempt(ctx context.Context, state *PickStockSagaState) error {
	log := h.logger.WithContext(ctx)

	consumeErr := h.reservations.Consume(ctx, state.Consumption())
	now := h.now()

	if consumeErr == nil {
		return h.transition(ctx, state, TriggerReservationConsumed, now)
	}

	state.RetryCount++
	state.LastError = consumeErr.Error()
	log.Warn("Reservation consumption attempt failed",
		"retryCount", state.RetryCount,
		"maxRetryAttempts", h.config.MaxRetryAttempts,
		"error", consumeErr.Error(),
	)

	if state.RetryCount >= h.config.MaxRetryAttempts {
		return h.fail(ctx, state, now)
	}
	return h.scheduleRetry(ctx, state, now)
}

func (h *Handler) transition(ctx context.Context, state *PickStockSagaState, trigger Trigger, now time.Time, events ...domain.DomainEvent) error {
	from, err := state.fire(trigger, now)
	if err != nil {
		return err
	}
	if err := h.store.Save(ctx, state, events...); err != nil {
		return fmt.Errorf("save saga %s: %w", state.CorrelationID, err)
	}
	h.metrics.RecordSagaTransition(string(from), string(state.CurrentState))
	if state.CurrentState == StateCompleted {
		h.logger.WithContext(ctx).Info("Pick saga completed", "retryCount", state.RetryCount)
	}
	return nil
}

func (h *Handler) fail(ctx context.Context, state *PickStockSagaState, now time.Time) error {
	event := &domain.PickStockFailedPermanentlyEvent{
		CorrelationID: state.CorrelationID,
		ReservationID: state.ReservationID,
		MovementID:    state.MovementID,
		WarehouseID:   state.WarehouseID,
		SKU:           state.SKU,
		Attempts:      state.RetryCount,
		Reason:        state.LastError,
		FailedAt:      now,
	}

	// the event is stored with the Failed state, so a concurrent duplicate cannot emit a second one
	if err := h.transition(ctx, state, TriggerRetriesExhausted, now, event); err != nil {
		return err
	}

	h.metrics.RecordSagaFailedPermanently()
	h.logger.Audit(ctx, "pick.failed_permanently", "reservation", state.ReservationID, "", map[string]any{
		"correlationId": state.CorrelationID,
		"movementId":    state.MovementID,
		"attempts":      state.RetryCount,
		"reason":        state.LastError,
	})
	return nil
}

func (h *Handler) scheduleRetry(ctx context.Context, state *PickStockSagaState, now time.Time) error {
	delay := h.config.Backoff.Delay(state.RetryCount)
	token := h.newToken()
	msg := &domain.RetryConsumeReservation{
		CorrelationID: state.CorrelationID,
		RetryToken:    token,
		Attempt:       state.RetryCount + 1,
		ScheduledAt:   now.Add(delay),
	}

	if err := h.scheduler.Schedule(ctx, msg, delay); err != nil {
		return fmt.Errorf("schedule retry for saga %s: %w", state.CorrelationID, err)
	}

	previous := state.RetryToken
	state.RetryToken = token
	state.NextRetryAt = msg.ScheduledAt
	if err := h.transition(ctx, state, TriggerConsumptionFailed, now); err != nil {
		// nothing references the new token, so it would be ignored anyway
		if cErr := h.scheduler.Cancel(context.WithoutCancel(ctx), token); cErr != nil {
			h.logger.WithContext(ctx).WithError(cErr).Warn("Failed to cancel orphaned retry", "retryToken", token)
		}
		return err
	}

	if previous != "" && previous != token {
		// the retry that got us here was delivered; dropping it is housekeeping
		_ = h.scheduler.Cancel(context.WithoutCancel(ctx), previous)
	}

	h.metrics.RecordSagaRetryScheduled(schedulerName(h.scheduler))
	h.logger.WithContext(ctx).Info("Retry scheduled",
		"attempt", msg.Attempt,
		"delay", delay.String(),
		"retryToken", token,
	)
	return nil
}
