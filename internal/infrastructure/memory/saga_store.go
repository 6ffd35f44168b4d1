package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/internal/saga"
)

// SagaStore keeps saga state in memory. Events saved with a state change are published
// while the store lock is held, so they are emitted exactly when the change is stored.
type SagaStore struct {
	mu        sync.Mutex
	items     map[string]saga.PickStockSagaState
	publisher domain.EventPublisher
}

// NewSagaStore creates an empty store. publisher may be nil.
func NewSagaStore(publisher domain.EventPublisher) *SagaStore {
	return &SagaStore{
		items:     make(map[string]saga.PickStockSagaState),
		publisher: publisher,
	}
}

func (s *SagaStore) Get(_ context.Context, correlationID string) (*saga.PickStockSagaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.items[correlationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSagaNotFound, correlationID)
	}
	return &state, nil
}

func (s *SagaStore) Create(_ context.Context, state *saga.PickStockSagaState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[state.CorrelationID]; ok {
		return fmt.Errorf("%w: %s", saga.ErrSagaExists, state.CorrelationID)
	}
	state.Version = 1
	s.items[state.CorrelationID] = *state
	return nil
}

func (s *SagaStore) Save(ctx context.Context, state *saga.PickStockSagaState, events ...domain.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[state.CorrelationID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSagaNotFound, state.CorrelationID)
	}
	if stored.Version != state.Version {
		return fmt.Errorf("%w: saga %s is at version %d, expected %d",
			domain.ErrConcurrencyConflict, state.CorrelationID, stored.Version, state.Version)
	}

	if s.publisher != nil && len(events) > 0 {
		if err := s.publisher.Publish(ctx, events...); err != nil {
			return err
		}
	}

	state.Version++
	s.items[state.CorrelationID] = *state
	return nil
}

func (s *SagaStore) List(_ context.Context, state saga.State, updatedBefore time.Time, limit int) ([]*saga.PickStockSagaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*saga.PickStockSagaState
	for _, item := range s.items {
		if item.CurrentState != state {
			continue
		}
		if !updatedBefore.IsZero() && !item.UpdatedAt.Before(updatedBefore) {
			continue
		}
		copied := item
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
