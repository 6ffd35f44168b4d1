package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/metrics"
	"github.com/wms-platform/stock-engine/pkg/resilience"
)

// reservationSaveAttempts bounds the reload loop when two picks consume the same reservation concurrently
const reservationSaveAttempts = 3

// ReservationService drives reservation state changes. Each change is saved together with the
// events it raised, so the projection and the pick saga see it exactly when it commits.
type ReservationService struct {
	repo    domain.ReservationRepository
	breaker *resilience.CircuitBreaker
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewReservationService creates a ReservationService. breakerConfig may be nil for defaults.
func NewReservationService(
	repo domain.ReservationRepository,
	breakerConfig *resilience.CircuitBreakerConfig,
	logger *logging.Logger,
	m *metrics.Metrics,
) *ReservationService {
	if breakerConfig == nil {
		breakerConfig = resilience.DefaultCircuitBreakerConfig("reservations")
	}
	if breakerConfig.IsSuccessful == nil {
		breakerConfig.IsSuccessful = func(err error) bool {
			return err == nil || isReservationRejection(err)
		}
	}
	if breakerConfig.OnStateChange == nil {
		breakerConfig.OnStateChange = func(name string, to resilience.State) {
			m.SetCircuitBreakerState(name, int(to))
		}
	}

	log := logger.WithComponent("reservation-service")
	return &ReservationService{
		repo:    repo,
		breaker: resilience.NewCircuitBreaker(breakerConfig, log.Logger),
		logger:  log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new Active reservation
func (s *ReservationService) Create(ctx context.Context, reservationID, warehouseID, orderID string, lines []domain.LockLine) (*domain.Reservation, error) {
	reservation, err := domain.NewReservation(reservationID, warehouseID, orderID, lines, s.now())
	if err != nil {
		return nil, err
	}

	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.repo.Save(ctx, reservation)
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// StartPicking turns the reservation's lines into hard locks
func (s *ReservationService) StartPicking(ctx context.Context, reservationID string) error {
	return s.mutate(ctx, reservationID, func(r *domain.Reservation) error {
		return r.StartPicking(s.now())
	})
}

// Cancel closes the reservation and releases its outstanding hard locks
func (s *ReservationService) Cancel(ctx context.Context, reservationID, reason string) error {
	return s.mutate(ctx, reservationID, func(r *domain.Reservation) error {
		return r.Cancel(reason, s.now())
	})
}

// Consume releases the hard lock matched by a committed pick movement.
// A movement that was already applied is accepted without a second save.
func (s *ReservationService) Consume(ctx context.Context, c domain.Consumption) error {
	return s.mutate(ctx, c.ReservationID, func(r *domain.Reservation) error {
		if r.HasConsumed(c.MovementID) {
			return errUnchanged
		}
		return r.Consume(c.MovementID, c.Location, c.SKU, c.Quantity, s.now())
	})
}

// Get returns the reservation
func (s *ReservationService) Get(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return s.repo.FindByID(ctx, reservationID)
}

var errUnchanged = errors.New("reservation unchanged")

// mutate loads, applies change and saves, reloading when another writer got there first
func (s *ReservationService) mutate(ctx context.Context, reservationID string, change func(*domain.Reservation) error) error {
	if reservationID == "" {
		return &domain.ArgumentError{Param: "reservationId", Reason: "must not be empty"}
	}

	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		for attempt := 1; attempt <= reservationSaveAttempts; attempt++ {
			reservation, err := s.repo.FindByID(ctx, reservationID)
			if err != nil {
				return err
			}

			if err := change(reservation); err != nil {
				if errors.Is(err, errUnchanged) {
					return nil
				}
				return err
			}

			err = s.repo.Save(ctx, reservation)
			if err == nil {
				s.logger.WithContext(ctx).Debug("Reservation saved",
					"reservationId", reservationID,
					"status", reservation.Status,
					"version", reservation.Version,
				)
				return nil
			}
			if !errors.Is(err, domain.ErrConcurrencyConflict) {
				return err
			}
		}
		return fmt.Errorf("%w: reservation %s after %d attempts", domain.ErrConcurrencyConflict, reservationID, reservationSaveAttempts)
	})
}

// isReservationRejection reports business outcomes that say nothing about the health of storage
func isReservationRejection(err error) bool {
	var argErr *domain.ArgumentError
	return domain.IsValidationError(err) ||
		errors.As(err, &argErr) ||
		errors.Is(err, domain.ErrReservationNotFound) ||
		errors.Is(err, domain.ErrReservationNotActive) ||
		errors.Is(err, domain.ErrReservationNotPicking) ||
		errors.Is(err, domain.ErrReservationClosed) ||
		errors.Is(err, domain.ErrConsumeExceedsHardLock) ||
		errors.Is(err, domain.ErrReservationAlreadyExists) ||
		errors.Is(err, domain.ErrConcurrencyConflict)
}
