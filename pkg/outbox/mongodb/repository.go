package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/stock-engine/pkg/outbox"
)

// CollectionName holds outbox records
const CollectionName = "outbox"

// publishedRetention is how long shipped records stay around for inspection
const publishedRetention = 7 * 24 * time.Hour

// OutboxRepository implements outbox.Repository for MongoDB
type OutboxRepository struct {
	collection *mongo.Collection
}

// NewOutboxRepository creates a new MongoDB outbox repository
func NewOutboxRepository(db *mongo.Database) *OutboxRepository {
	return &OutboxRepository{collection: db.Collection(CollectionName)}
}

// SaveAll inserts records in order. Pass the session context of the surrounding
// transaction so a failed insert rolls back the state change too.
func (r *OutboxRepository) SaveAll(ctx context.Context, records []*outbox.Record) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, len(records))
	for i, record := range records {
		docs[i] = record
	}
	if _, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("insert %d outbox records: %w", len(records), err)
	}
	return nil
}

// FindPending returns pending records oldest first
func (r *OutboxRepository) FindPending(ctx context.Context, limit int) ([]*outbox.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"status": outbox.StatusPending}, opts)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*outbox.Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode outbox records: %w", err)
	}
	return records, nil
}

// MarkPublished moves a pending record to published
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string) error {
	return r.transition(ctx, id, bson.M{
		"$set": bson.M{"status": outbox.StatusPublished, "publishedAt": time.Now().UTC()},
	})
}

// RecordFailure counts a failed attempt on a pending record and parks it when park is set
func (r *OutboxRepository) RecordFailure(ctx context.Context, id, reason string, park bool) error {
	set := bson.M{"lastError": reason}
	if park {
		set["status"] = outbox.StatusParked
	}
	return r.transition(ctx, id, bson.M{"$inc": bson.M{"attempts": 1}, "$set": set})
}

func (r *OutboxRepository) transition(ctx context.Context, id string, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id, "status": outbox.StatusPending}, update)
	if err != nil {
		return fmt.Errorf("update outbox record %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("outbox record %s is not pending", id)
	}
	return nil
}

// CountParked returns how many records wait for an operator
func (r *OutboxRepository) CountParked(ctx context.Context) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"status": outbox.StatusParked})
	if err != nil {
		return 0, fmt.Errorf("count parked outbox records: %w", err)
	}
	return n, nil
}

// Indexes returns the indexes the outbox collection needs
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_status_createdAt"),
		},
		{
			// pending and parked records have no publishedAt and never expire
			Keys: bson.D{{Key: "publishedAt", Value: 1}},
			Options: options.Index().
				SetName("idx_publishedAt_ttl").
				SetExpireAfterSeconds(int32(publishedRetention.Seconds())),
		},
	}
}

// EnsureIndexes creates the outbox indexes
func (r *OutboxRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.collection.Indexes().CreateMany(ctx, Indexes()); err != nil {
		return fmt.Errorf("create outbox indexes: %w", err)
	}
	return nil
}
