package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/wms-platform/stock-engine/internal/domain"
)

// LedgerRepository is an in-memory event store. An appended event is published while the
// store lock is held and kept only if the publish succeeds, which stands in for the outbox
// transaction of the MongoDB store. Subscribers must not call back into the repository.
type LedgerRepository struct {
	mu        sync.Mutex
	streams   map[string][]*domain.StockMovedEvent
	publisher domain.EventPublisher
}

// NewLedgerRepository creates an empty store. publisher may be nil.
func NewLedgerRepository(publisher domain.EventPublisher) *LedgerRepository {
	return &LedgerRepository{
		streams:   make(map[string][]*domain.StockMovedEvent),
		publisher: publisher,
	}
}

func (r *LedgerRepository) Load(_ context.Context, streamID string) (*domain.StockLedger, int64, error) {
	key, err := domain.ParseStreamID(streamID)
	if err != nil {
		return nil, 0, err
	}

	r.mu.Lock()
	history := append([]*domain.StockMovedEvent(nil), r.streams[streamID]...)
	r.mu.Unlock()

	return domain.ReplayStockLedger(key, history), int64(len(history)), nil
}

func (r *LedgerRepository) Append(ctx context.Context, streamID string, event *domain.StockMovedEvent, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := int64(len(r.streams[streamID]))
	if current != expectedVersion {
		return fmt.Errorf("%w: stream %s is at version %d, expected %d", domain.ErrConcurrencyConflict, streamID, current, expectedVersion)
	}

	stored := *event
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, &stored); err != nil {
			return fmt.Errorf("append to %s: %w", streamID, err)
		}
	}
	r.streams[streamID] = append(r.streams[streamID], &stored)
	return nil
}

// Events returns the stream's events in version order
func (r *LedgerRepository) Events(streamID string) []*domain.StockMovedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.StockMovedEvent(nil), r.streams[streamID]...)
}
