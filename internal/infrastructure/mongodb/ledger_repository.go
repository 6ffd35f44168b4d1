package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/internal/infrastructure/messaging"
	mongodbpkg "github.com/wms-platform/stock-engine/pkg/mongodb"
	"github.com/wms-platform/stock-engine/pkg/outbox"
)

// StockEventsCollection holds one document per appended StockMovedEvent
const StockEventsCollection = "stock_events"

// storedStockEvent is the persisted form of one ledger event.
// The unique (streamId, version) index is what enforces optimistic concurrency.
type storedStockEvent struct {
	ID         string                 `bson:"_id"`
	StreamID   string                 `bson:"streamId"`
	Version    int64                  `bson:"version"`
	Event      domain.StockMovedEvent `bson:"event"`
	RecordedAt time.Time              `bson:"recordedAt"`
}

// LedgerRepository is the MongoDB event store behind the stock ledger.
// Appends write the event and its outbox record in one transaction.
type LedgerRepository struct {
	db         *mongo.Database
	collection *mongo.Collection
	outboxRepo outbox.Repository
	envelopes  *messaging.EnvelopeFactory
	instr      *mongodbpkg.Instrumentation
}

// NewLedgerRepository creates a ledger repository
func NewLedgerRepository(db *mongo.Database, outboxRepo outbox.Repository, envelopes *messaging.EnvelopeFactory, instr *mongodbpkg.Instrumentation) *LedgerRepository {
	return &LedgerRepository{
		db:         db,
		collection: db.Collection(StockEventsCollection),
		outboxRepo: outboxRepo,
		envelopes:  envelopes,
		instr:      instr,
	}
}

// EnsureIndexes creates the unique stream version index
func (r *LedgerRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "streamId", Value: 1}, {Key: "version", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_stream_version"),
		},
		{
			Keys:    bson.D{{Key: "event.movementId", Value: 1}},
			Options: options.Index().SetName("idx_movement"),
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *LedgerRepository) Load(ctx context.Context, streamID string) (*domain.StockLedger, int64, error) {
	key, err := domain.ParseStreamID(streamID)
	if err != nil {
		return nil, 0, err
	}

	var docs []storedStockEvent
	err = r.instr.Observe(ctx, StockEventsCollection, "load", func(ctx context.Context) error {
		opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})
		cursor, err := r.collection.Find(ctx, bson.M{"streamId": streamID}, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load stream %s: %w", streamID, err)
	}

	history := make([]*domain.StockMovedEvent, len(docs))
	for i := range docs {
		history[i] = &docs[i].Event
	}
	return domain.ReplayStockLedger(key, history), int64(len(docs)), nil
}

func (r *LedgerRepository) Append(ctx context.Context, streamID string, event *domain.StockMovedEvent, expectedVersion int64) error {
	records, err := r.envelopes.ToOutbox(ctx, event)
	if err != nil {
		return err
	}

	doc := storedStockEvent{
		ID:         fmt.Sprintf("%s@%d", streamID, expectedVersion+1),
		StreamID:   streamID,
		Version:    expectedVersion + 1,
		Event:      *event,
		RecordedAt: mongodbpkg.Now(),
	}

	err = r.instr.Observe(ctx, StockEventsCollection, "append", func(ctx context.Context) error {
		return mongodbpkg.WithTransaction(ctx, r.db, func(sessCtx mongo.SessionContext) error {
			if expectedVersion > 0 {
				// the expected head must exist, otherwise the caller read a stream that never reached it
				err := r.collection.FindOne(sessCtx, bson.M{"streamId": streamID, "version": expectedVersion}).Err()
				if mongodbpkg.IsNotFound(err) {
					return errStaleHead
				}
				if err != nil {
					return err
				}
			}
			if _, err := r.collection.InsertOne(sessCtx, doc); err != nil {
				return err
			}
			return r.outboxRepo.SaveAll(sessCtx, records)
		})
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStaleHead) || mongodbpkg.IsDuplicateKey(err):
		return fmt.Errorf("%w: stream %s moved past version %d", domain.ErrConcurrencyConflict, streamID, expectedVersion)
	default:
		return fmt.Errorf("failed to append to stream %s: %w", streamID, err)
	}
}

// Events returns the stream's events in version order
func (r *LedgerRepository) Events(ctx context.Context, streamID string) ([]*domain.StockMovedEvent, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"streamId": streamID}, options.Find().SetSort(bson.D{{Key: "version", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []storedStockEvent
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	events := make([]*domain.StockMovedEvent, len(docs))
	for i := range docs {
		events[i] = &docs[i].Event
	}
	return events, nil
}
