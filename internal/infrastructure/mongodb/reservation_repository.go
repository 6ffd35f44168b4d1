package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/internal/infrastructure/messaging"
	mongodbpkg "github.com/wms-platform/stock-engine/pkg/mongodb"
	"github.com/wms-platform/stock-engine/pkg/outbox"
)

// ReservationsCollection holds reservation documents keyed by reservation id
const ReservationsCollection = "reservations"

// ReservationRepository persists reservations with a version guard.
// Pending events go to the outbox in the same transaction as the document.
type ReservationRepository struct {
	db         *mongo.Database
	collection *mongo.Collection
	outboxRepo outbox.Repository
	envelopes  *messaging.EnvelopeFactory
	instr      *mongodbpkg.Instrumentation
}

// NewReservationRepository creates a reservation repository
func NewReservationRepository(db *mongo.Database, outboxRepo outbox.Repository, envelopes *messaging.EnvelopeFactory, instr *mongodbpkg.Instrumentation) *ReservationRepository {
	return &ReservationRepository{
		db:         db,
		collection: db.Collection(ReservationsCollection),
		outboxRepo: outboxRepo,
		envelopes:  envelopes,
		instr:      instr,
	}
}

// EnsureIndexes creates the lookup indexes
func (r *ReservationRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "warehouseId", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "orderId", Value: 1}},
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *ReservationRepository) FindByID(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	var reservation domain.Reservation
	err := r.instr.Observe(ctx, ReservationsCollection, "find", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": reservationID}).Decode(&reservation)
	})
	if err != nil {
		if mongodbpkg.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrReservationNotFound, reservationID)
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return &reservation, nil
}

func (r *ReservationRepository) Save(ctx context.Context, reservation *domain.Reservation) error {
	records, err := r.envelopes.ToOutbox(ctx, reservation.PendingEvents()...)
	if err != nil {
		return err
	}

	next := *reservation
	next.Version = reservation.Version + 1

	var outcome error
	err = r.instr.Observe(ctx, ReservationsCollection, "save", func(ctx context.Context) error {
		return mongodbpkg.WithTransaction(ctx, r.db, func(sessCtx mongo.SessionContext) error {
			outcome = nil
			if reservation.Version == 0 {
				if _, err := r.collection.InsertOne(sessCtx, &next); err != nil {
					if mongodbpkg.IsDuplicateKey(err) {
						outcome = fmt.Errorf("%w: %s", domain.ErrReservationAlreadyExists, reservation.ReservationID)
						return outcome
					}
					return err
				}
			} else {
				filter := bson.M{"_id": reservation.ReservationID, "version": reservation.Version}
				res, err := r.collection.ReplaceOne(sessCtx, filter, &next)
				if err != nil {
					return err
				}
				if res.MatchedCount == 0 {
					outcome = r.missingOrMoved(sessCtx, reservation)
					return outcome
				}
			}
			return r.outboxRepo.SaveAll(sessCtx, records)
		})
	})
	if err != nil {
		if outcome != nil {
			return outcome
		}
		return fmt.Errorf("failed to save reservation %s: %w", reservation.ReservationID, err)
	}

	reservation.Version = next.Version
	reservation.ClearEvents()
	return nil
}

// missingOrMoved explains a version-guarded replace that matched nothing
func (r *ReservationRepository) missingOrMoved(ctx context.Context, reservation *domain.Reservation) error {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": reservation.ReservationID}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", domain.ErrReservationNotFound, reservation.ReservationID)
	}
	return fmt.Errorf("%w: reservation %s moved past version %d",
		domain.ErrConcurrencyConflict, reservation.ReservationID, reservation.Version)
}
