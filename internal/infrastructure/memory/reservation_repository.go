package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/wms-platform/stock-engine/internal/domain"
)

// ReservationRepository keeps reservations in memory with optimistic versioning.
// Like LedgerRepository, a save and its events are kept only if the publish succeeds.
type ReservationRepository struct {
	mu        sync.Mutex
	items     map[string]domain.Reservation
	publisher domain.EventPublisher
}

// NewReservationRepository creates an empty repository. publisher may be nil.
func NewReservationRepository(publisher domain.EventPublisher) *ReservationRepository {
	return &ReservationRepository{
		items:     make(map[string]domain.Reservation),
		publisher: publisher,
	}
}

func (r *ReservationRepository) FindByID(_ context.Context, reservationID string) (*domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[reservationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrReservationNotFound, reservationID)
	}
	return cloneReservation(stored), nil
}

func (r *ReservationRepository) Save(ctx context.Context, reservation *domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.items[reservation.ReservationID]
	switch {
	case !exists && reservation.Version != 0:
		return fmt.Errorf("%w: %s", domain.ErrReservationNotFound, reservation.ReservationID)
	case exists && reservation.Version == 0:
		return fmt.Errorf("%w: %s", domain.ErrReservationAlreadyExists, reservation.ReservationID)
	case exists && stored.Version != reservation.Version:
		return fmt.Errorf("%w: reservation %s is at version %d, expected %d",
			domain.ErrConcurrencyConflict, reservation.ReservationID, stored.Version, reservation.Version)
	}

	if events := reservation.PendingEvents(); r.publisher != nil && len(events) > 0 {
		if err := r.publisher.Publish(ctx, events...); err != nil {
			return fmt.Errorf("save reservation %s: %w", reservation.ReservationID, err)
		}
	}

	reservation.Version++
	reservation.ClearEvents()
	r.items[reservation.ReservationID] = *cloneReservation(*reservation)
	return nil
}

func cloneReservation(r domain.Reservation) *domain.Reservation {
	r.Lines = append([]domain.LockLine(nil), r.Lines...)
	r.HardLocks = append([]domain.LockLine(nil), r.HardLocks...)
	r.ConsumedMovements = append([]string(nil), r.ConsumedMovements...)
	r.ClearEvents()
	return &r
}
