package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/stock-engine/internal/infrastructure/projections"
	"github.com/wms-platform/stock-engine/pkg/idempotency"
	outboxMongo "github.com/wms-platform/stock-engine/pkg/outbox/mongodb"
)

// IndexMigration names one collection's index setup
type IndexMigration struct {
	Collection string
	Ensure     func(ctx context.Context) error
}

// IndexMigrations lists the index setup of every collection the engine writes
func IndexMigrations(db *mongo.Database) []IndexMigration {
	return []IndexMigration{
		{StockEventsCollection, NewLedgerRepository(db, nil, nil, nil).EnsureIndexes},
		{ReservationsCollection, NewReservationRepository(db, nil, nil, nil).EnsureIndexes},
		{SagasCollection, NewSagaStore(db, nil, nil, nil).EnsureIndexes},
		{RetrySchedulesCollection, NewRetryScheduleStore(db, nil).EnsureIndexes},
		{projections.CollectionName, projections.NewMongoAvailableStockRepository(db, nil).EnsureIndexes},
		{outboxMongo.CollectionName, outboxMongo.NewOutboxRepository(db).EnsureIndexes},
		{"idempotency", func(ctx context.Context) error { return idempotency.EnsureIndexes(ctx, db) }},
	}
}

// EnsureIndexes creates every index the engine relies on. It is safe to run repeatedly.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for _, m := range IndexMigrations(db) {
		if err := m.Ensure(ctx); err != nil {
			return fmt.Errorf("failed to ensure indexes on %s: %w", m.Collection, err)
		}
	}
	return nil
}
