package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/internal/infrastructure/messaging"
	"github.com/wms-platform/stock-engine/internal/saga"
	mongodbpkg "github.com/wms-platform/stock-engine/pkg/mongodb"
	"github.com/wms-platform/stock-engine/pkg/outbox"
)

// SagasCollection holds pick stock saga state keyed by correlation id
const SagasCollection = "pick_stock_sagas"

// SagaStore implements saga.Store. Events saved with a transition are written to the outbox
// in the transaction that stores the new state.
type SagaStore struct {
	db         *mongo.Database
	collection *mongo.Collection
	outboxRepo outbox.Repository
	envelopes  *messaging.EnvelopeFactory
	instr      *mongodbpkg.Instrumentation
}

// NewSagaStore creates a saga store
func NewSagaStore(db *mongo.Database, outboxRepo outbox.Repository, envelopes *messaging.EnvelopeFactory, instr *mongodbpkg.Instrumentation) *SagaStore {
	return &SagaStore{
		db:         db,
		collection: db.Collection(SagasCollection),
		outboxRepo: outboxRepo,
		envelopes:  envelopes,
		instr:      instr,
	}
}

// EnsureIndexes creates the index used by List
func (s *SagaStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "currentState", Value: 1}, {Key: "updatedAt", Value: 1}},
		Options: options.Index().SetName("idx_state_updatedAt"),
	})
	return err
}

func (s *SagaStore) Get(ctx context.Context, correlationID string) (*saga.PickStockSagaState, error) {
	var state saga.PickStockSagaState
	err := s.instr.Observe(ctx, SagasCollection, "find", func(ctx context.Context) error {
		return s.collection.FindOne(ctx, bson.M{"_id": correlationID}).Decode(&state)
	})
	if err != nil {
		if mongodbpkg.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSagaNotFound, correlationID)
		}
		return nil, fmt.Errorf("failed to load saga %s: %w", correlationID, err)
	}
	return &state, nil
}

func (s *SagaStore) Create(ctx context.Context, state *saga.PickStockSagaState) error {
	doc := *state
	doc.Version = 1

	err := s.instr.Observe(ctx, SagasCollection, "insert", func(ctx context.Context) error {
		_, err := s.collection.InsertOne(ctx, &doc)
		return err
	})
	if err != nil {
		if mongodbpkg.IsDuplicateKey(err) {
			return fmt.Errorf("%w: %s", saga.ErrSagaExists, state.CorrelationID)
		}
		return fmt.Errorf("failed to create saga %s: %w", state.CorrelationID, err)
	}
	state.Version = 1
	return nil
}

func (s *SagaStore) Save(ctx context.Context, state *saga.PickStockSagaState, events ...domain.DomainEvent) error {
	records, err := s.envelopes.ToOutbox(ctx, events...)
	if err != nil {
		return err
	}

	next := *state
	next.Version = state.Version + 1

	var outcome error
	err = s.instr.Observe(ctx, SagasCollection, "save", func(ctx context.Context) error {
		return mongodbpkg.WithTransaction(ctx, s.db, func(sessCtx mongo.SessionContext) error {
			outcome = nil
			res, err := s.collection.ReplaceOne(sessCtx, bson.M{"_id": state.CorrelationID, "version": state.Version}, &next)
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				outcome = s.missingOrMoved(sessCtx, state)
				return outcome
			}
			return s.outboxRepo.SaveAll(sessCtx, records)
		})
	})
	if err != nil {
		if outcome != nil {
			return outcome
		}
		return fmt.Errorf("failed to save saga %s: %w", state.CorrelationID, err)
	}

	state.Version = next.Version
	return nil
}

// List returns sagas in state, oldest update first. A zero updatedBefore does not filter on age.
func (s *SagaStore) List(ctx context.Context, state saga.State, updatedBefore time.Time, limit int) ([]*saga.PickStockSagaState, error) {
	filter := bson.M{"currentState": state}
	if !updatedBefore.IsZero() {
		filter["updatedAt"] = bson.M{"$lt": updatedBefore}
	}

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	var out []*saga.PickStockSagaState
	err := s.instr.Observe(ctx, SagasCollection, "list", func(ctx context.Context) error {
		cursor, err := s.collection.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sagas: %w", err)
	}
	return out, nil
}

// missingOrMoved explains a version-guarded replace that matched nothing
func (s *SagaStore) missingOrMoved(ctx context.Context, state *saga.PickStockSagaState) error {
	count, err := s.collection.CountDocuments(ctx, bson.M{"_id": state.CorrelationID}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSagaNotFound, state.CorrelationID)
	}
	return fmt.Errorf("%w: saga %s moved past version %d", domain.ErrConcurrencyConflict, state.CorrelationID, state.Version)
}
