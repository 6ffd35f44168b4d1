package outbox

import "context"

// Repository persists outbox records. Writers pass a session context to SaveAll
// so the records commit with the state change that produced them.
type Repository interface {
	SaveAll(ctx context.Context, records []*Record) error

	// FindPending returns pending records oldest first
	FindPending(ctx context.Context, limit int) ([]*Record, error)

	MarkPublished(ctx context.Context, id string) error

	// RecordFailure counts a failed attempt, parking the record when park is set
	RecordFailure(ctx context.Context, id, reason string, park bool) error

	// CountParked returns how many records wait for an operator
	CountParked(ctx context.Context) (int64, error)
}
