package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/stock-engine/internal/domain"
)

// ScheduledRetry is a retry waiting in the RetryScheduler
type ScheduledRetry struct {
	Message *domain.RetryConsumeReservation
	DueAt   time.Time
}

// RetryScheduler holds scheduled retries until DeliverDue hands them to the publisher.
// Time is driven by the caller, which keeps saga tests deterministic.
type RetryScheduler struct {
	mu        sync.Mutex
	pending   map[string]ScheduledRetry
	publisher domain.EventPublisher
	now       func() time.Time
}

// NewRetryScheduler creates a scheduler that delivers through publisher
func NewRetryScheduler(publisher domain.EventPublisher, now func() time.Time) *RetryScheduler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &RetryScheduler{
		pending:   make(map[string]ScheduledRetry),
		publisher: publisher,
		now:       now,
	}
}

// Name labels the scheduler in metrics
func (s *RetryScheduler) Name() string { return "memory" }

// Schedule stores msg under its retry token. Scheduling the same token twice keeps one entry.
func (s *RetryScheduler) Schedule(_ context.Context, msg *domain.RetryConsumeReservation, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *msg
	s.pending[msg.RetryToken] = ScheduledRetry{Message: &copied, DueAt: s.now().Add(delay)}
	return nil
}

// Cancel drops a scheduled retry. Unknown tokens are ignored.
func (s *RetryScheduler) Cancel(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, token)
	return nil
}

// Pending returns the scheduled retries ordered by due time
func (s *RetryScheduler) Pending() []ScheduledRetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledRetry, 0, len(s.pending))
	for _, r := range s.pending {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}

// DeliverDue publishes every retry due at or before now and returns how many were delivered.
// A retry whose publish fails stays scheduled.
func (s *RetryScheduler) DeliverDue(ctx context.Context, now time.Time) (int, error) {
	delivered := 0
	for _, r := range s.Pending() {
		if r.DueAt.After(now) {
			break
		}

		s.mu.Lock()
		_, still := s.pending[r.Message.RetryToken]
		delete(s.pending, r.Message.RetryToken)
		s.mu.Unlock()
		if !still {
			continue
		}

		if err := s.publisher.Publish(ctx, r.Message); err != nil {
			s.mu.Lock()
			s.pending[r.Message.RetryToken] = r
			s.mu.Unlock()
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}
