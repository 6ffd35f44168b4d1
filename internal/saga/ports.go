package saga

import (
	"context"
	"errors"
	"time"

	"github.com/wms-platform/stock-engine/internal/domain"
)

// ErrSagaExists is returned by Store.Create when the correlation id is already taken
var ErrSagaExists = errors.New("saga already exists")

// Store persists saga state
type Store interface {
	// Get returns domain.ErrSagaNotFound for an unknown correlation id
	Get(ctx context.Context, correlationID string) (*PickStockSagaState, error)

	// Create inserts a new saga at version 1
	Create(ctx context.Context, state *PickStockSagaState) error

	// Save writes state and events atomically if the stored version still equals state.Version,
	// then increments state.Version. A moved version wraps domain.ErrConcurrencyConflict.
	Save(ctx context.Context, state *PickStockSagaState, events ...domain.DomainEvent) error

	// List returns sagas in the given state last updated before the cutoff; a zero cutoff matches all
	List(ctx context.Context, state State, updatedBefore time.Time, limit int) ([]*PickStockSagaState, error)
}

// RetryScheduler delivers a RetryConsumeReservation after a delay. Scheduled messages
// survive process restarts. msg.RetryToken identifies the schedule.
type RetryScheduler interface {
	Schedule(ctx context.Context, msg *domain.RetryConsumeReservation, delay time.Duration) error
	Cancel(ctx context.Context, token string) error
}

// namedScheduler is implemented by schedulers that label their metrics
type namedScheduler interface {
	Name() string
}

func schedulerName(s RetryScheduler) string {
	if n, ok := s.(namedScheduler); ok {
		return n.Name()
	}
	return "unknown"
}
