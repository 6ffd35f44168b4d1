package application

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/wms-platform/stock-engine/internal/domain"
)

// mockLedgerRepository is a mock implementation of domain.LedgerRepository
type mockLedgerRepository struct {
	mock.Mock
}

func (m *mockLedgerRepository) Load(ctx context.Context, streamID string) (*domain.StockLedger, int64, error) {
	args := m.Called(ctx, streamID)
	ledger, _ := args.Get(0).(*domain.StockLedger)
	return ledger, args.Get(1).(int64), args.Error(2)
}

func (m *mockLedgerRepository) Append(ctx context.Context, streamID string, event *domain.StockMovedEvent, expectedVersion int64) error {
	args := m.Called(ctx, streamID, event, expectedVersion)
	return args.Error(0)
}

// mockReservationConsumer is a mock implementation of domain.ReservationConsumer
type mockReservationConsumer struct {
	mock.Mock
}

func (m *mockReservationConsumer) Consume(ctx context.Context, c domain.Consumption) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// mockPublisher is a mock implementation of domain.EventPublisher
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, events ...domain.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// fakeReservationRepository keeps reservations in memory with version checks
type fakeReservationRepository struct {
	mu        sync.Mutex
	items     map[string]domain.Reservation
	published []domain.DomainEvent
	saveErr   error
}

func newFakeReservationRepository() *fakeReservationRepository {
	return &fakeReservationRepository{items: make(map[string]domain.Reservation)}
}

func (r *fakeReservationRepository) FindByID(_ context.Context, id string) (*domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.items[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	res.Lines = append([]domain.LockLine(nil), res.Lines...)
	res.HardLocks = append([]domain.LockLine(nil), res.HardLocks...)
	res.ConsumedMovements = append([]string(nil), res.ConsumedMovements...)
	return &res, nil
}

func (r *fakeReservationRepository) Save(_ context.Context, res *domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	stored, ok := r.items[res.ReservationID]
	if ok && stored.Version != res.Version {
		return domain.ErrConcurrencyConflict
	}
	if !ok && res.Version != 0 {
		return domain.ErrReservationNotFound
	}
	res.Version++
	r.published = append(r.published, res.PendingEvents()...)
	res.ClearEvents()
	r.items[res.ReservationID] = *res
	return nil
}
