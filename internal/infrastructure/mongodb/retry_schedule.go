package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/stock-engine/internal/domain"
	mongodbpkg "github.com/wms-platform/stock-engine/pkg/mongodb"
)

// RetrySchedulesCollection holds scheduled saga retries keyed by retry token
const RetrySchedulesCollection = "saga_retry_schedules"

// ScheduleStatus is the lifecycle of a scheduled retry
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "Pending"
	ScheduleStatusDelivered ScheduleStatus = "Delivered"
	ScheduleStatusCancelled ScheduleStatus = "Cancelled"
)

// deliveredRetention is how long delivered and cancelled schedules are kept
const deliveredRetention = 3 * 24 * time.Hour

// ScheduledRetry is the persisted form of one RetryConsumeReservation waiting for its due time
type ScheduledRetry struct {
	Token         string         `bson:"_id"`
	CorrelationID string         `bson:"correlationId"`
	Attempt       int            `bson:"attempt"`
	ScheduledAt   time.Time      `bson:"scheduledAt"`
	DueAt         time.Time      `bson:"dueAt"`
	Status        ScheduleStatus `bson:"status"`
	LeasedUntil   time.Time      `bson:"leasedUntil,omitempty"`
	ClosedAt      *time.Time     `bson:"closedAt,omitempty"`
}

// Message rebuilds the saga message the schedule delivers
func (s *ScheduledRetry) Message() *domain.RetryConsumeReservation {
	return &domain.RetryConsumeReservation{
		CorrelationID: s.CorrelationID,
		RetryToken:    s.Token,
		Attempt:       s.Attempt,
		ScheduledAt:   s.ScheduledAt,
	}
}

// RetryScheduleStore implements saga.RetryScheduler on a MongoDB collection.
// Schedules survive restarts; a RetryPoller delivers them when due.
type RetryScheduleStore struct {
	collection *mongo.Collection
	instr      *mongodbpkg.Instrumentation
	now        func() time.Time
}

// NewRetryScheduleStore creates a schedule store
func NewRetryScheduleStore(db *mongo.Database, instr *mongodbpkg.Instrumentation) *RetryScheduleStore {
	return &RetryScheduleStore{
		collection: db.Collection(RetrySchedulesCollection),
		instr:      instr,
		now:        mongodbpkg.Now,
	}
}

// Name labels the scheduler in metrics
func (s *RetryScheduleStore) Name() string { return "mongodb" }

// EnsureIndexes creates the due-time index and expires closed schedules
func (s *RetryScheduleStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "dueAt", Value: 1}},
			Options: options.Index().SetName("idx_status_dueAt"),
		},
		{
			Keys: bson.D{{Key: "closedAt", Value: 1}},
			Options: options.Index().
				SetName("idx_closedAt_ttl").
				SetExpireAfterSeconds(int32(deliveredRetention.Seconds())),
		},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Schedule stores msg under its retry token. Scheduling a token twice keeps the first schedule.
func (s *RetryScheduleStore) Schedule(ctx context.Context, msg *domain.RetryConsumeReservation, delay time.Duration) error {
	now := s.now()
	doc := ScheduledRetry{
		Token:         msg.RetryToken,
		CorrelationID: msg.CorrelationID,
		Attempt:       msg.Attempt,
		ScheduledAt:   msg.ScheduledAt,
		DueAt:         now.Add(delay),
		Status:        ScheduleStatusPending,
	}
	if doc.ScheduledAt.IsZero() {
		doc.ScheduledAt = now
	}

	err := s.instr.Observe(ctx, RetrySchedulesCollection, "schedule", func(ctx context.Context) error {
		_, err := s.collection.UpdateOne(ctx,
			bson.M{"_id": doc.Token},
			bson.M{"$setOnInsert": doc},
			options.Update().SetUpsert(true),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retry %s: %w", msg.RetryToken, err)
	}
	return nil
}

// Cancel closes a pending schedule. Unknown or already closed tokens are ignored.
func (s *RetryScheduleStore) Cancel(ctx context.Context, token string) error {
	return s.close(ctx, token, ScheduleStatusCancelled)
}

// MarkDelivered closes a schedule after its message was published
func (s *RetryScheduleStore) MarkDelivered(ctx context.Context, token string) error {
	return s.close(ctx, token, ScheduleStatusDelivered)
}

func (s *RetryScheduleStore) close(ctx context.Context, token string, status ScheduleStatus) error {
	now := s.now()
	return s.instr.Observe(ctx, RetrySchedulesCollection, "close", func(ctx context.Context) error {
		_, err := s.collection.UpdateOne(ctx,
			bson.M{"_id": token, "status": ScheduleStatusPending},
			bson.M{"$set": bson.M{"status": status, "closedAt": now}},
		)
		return err
	})
}

// ClaimDue leases the earliest pending schedule due at or before now. It returns nil when none is due.
// A lease that expires without MarkDelivered makes the schedule claimable again.
func (s *RetryScheduleStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration) (*ScheduledRetry, error) {
	filter := bson.M{
		"status": ScheduleStatusPending,
		"dueAt":  bson.M{"$lte": now},
		"$or": bson.A{
			bson.M{"leasedUntil": bson.M{"$exists": false}},
			bson.M{"leasedUntil": bson.M{"$lte": now}},
		},
	}
	update := bson.M{"$set": bson.M{"leasedUntil": now.Add(lease)}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "dueAt", Value: 1}}).
		SetReturnDocument(options.After)

	var claimed ScheduledRetry
	err := s.instr.Observe(ctx, RetrySchedulesCollection, "claim", func(ctx context.Context) error {
		return s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&claimed)
	})
	if err != nil {
		if mongodbpkg.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim due retry: %w", err)
	}
	return &claimed, nil
}

// Get returns a schedule by token, or nil if unknown
func (s *RetryScheduleStore) Get(ctx context.Context, token string) (*ScheduledRetry, error) {
	var doc ScheduledRetry
	err := s.collection.FindOne(ctx, bson.M{"_id": token}).Decode(&doc)
	if err != nil {
		if mongodbpkg.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}
