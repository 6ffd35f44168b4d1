package domain

import "context"

// LedgerRepository is the append-only event store behind the stock ledger
type LedgerRepository interface {
	// Load replays the stream and returns the ledger with the version it was read at.
	// An unknown stream yields an empty ledger at version 0.
	Load(ctx context.Context, streamID string) (*StockLedger, int64, error)

	// Append stores event as version expectedVersion+1.
	// It returns an error wrapping ErrConcurrencyConflict when the stream is no longer at expectedVersion.
	Append(ctx context.Context, streamID string, event *StockMovedEvent, expectedVersion int64) error
}

// ReservationRepository persists reservations with optimistic concurrency
type ReservationRepository interface {
	FindByID(ctx context.Context, reservationID string) (*Reservation, error)

	// Save inserts or updates the reservation and records its pending events atomically.
	// Updates wrap ErrConcurrencyConflict if the stored version moved.
	Save(ctx context.Context, reservation *Reservation) error
}

// EventPublisher publishes domain events and saga messages to the message bus
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// ReservationConsumer consumes reservations for committed pick movements
type ReservationConsumer interface {
	Consume(ctx context.Context, c Consumption) error
}
