package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	processedCommandsCollection = "processed_commands"
	processedMessagesCollection = "processed_messages"
)

// MongoClaimStore implements ClaimStore using MongoDB.
// The command id is the document _id, so a concurrent duplicate insert fails with a duplicate key error.
type MongoClaimStore struct {
	collection *mongo.Collection
	config     *ClaimConfig
	now        func() time.Time
}

// NewMongoClaimStore creates a new MongoDB-backed claim store
func NewMongoClaimStore(db *mongo.Database, config *ClaimConfig) *MongoClaimStore {
	return &MongoClaimStore{
		collection: db.Collection(processedCommandsCollection),
		config:     config.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// TryStart inserts a fresh claim. With a LeaseTimeout configured, an abandoned
// in-progress claim is taken over; Completed and Failed claims are never reopened.
func (s *MongoClaimStore) TryStart(ctx context.Context, commandID, commandType string) (*ClaimResult, error) {
	if commandID == "" {
		return nil, ErrCommandIDRequired
	}

	now := s.now()
	token := uuid.NewString()
	claim := &ProcessedCommand{
		CommandID:   commandID,
		CommandType: commandType,
		Status:      StatusInProgress,
		Attempts:    1,
		Token:       token,
		StartedAt:   now,
		ExpiresAt:   now.Add(s.config.RetentionPeriod),
	}

	_, err := s.collection.InsertOne(ctx, claim)
	if err == nil {
		return &ClaimResult{Outcome: ClaimStarted, Token: token}, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("insert claim: %w", err)
	}

	if s.config.LeaseTimeout > 0 {
		res, err := s.collection.UpdateOne(ctx,
			bson.M{
				"_id":       commandID,
				"status":    StatusInProgress,
				"startedAt": bson.M{"$lt": now.Add(-s.config.LeaseTimeout)},
			},
			bson.M{
				"$set": bson.M{
					"token":     token,
					"startedAt": now,
					"expiresAt": now.Add(s.config.RetentionPeriod),
				},
				"$inc": bson.M{"attempts": 1},
			},
		)
		if err != nil {
			return nil, fmt.Errorf("take over claim: %w", err)
		}
		if res.MatchedCount == 1 {
			return &ClaimResult{Outcome: ClaimStarted, Token: token}, nil
		}
	}

	existing, err := s.Get(ctx, commandID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// removed by TTL between the insert and the read; the caller may retry
			return &ClaimResult{Outcome: ClaimInProgress}, nil
		}
		return nil, err
	}
	return existing.settled(), nil
}

// Complete marks the claim completed and stores the result
func (s *MongoClaimStore) Complete(ctx context.Context, commandID, token string, result []byte) error {
	now := s.now()
	return s.finish(ctx, commandID, token, bson.M{
		"status":      StatusCompleted,
		"result":      result,
		"completedAt": now,
		"expiresAt":   now.Add(s.config.RetentionPeriod),
	})
}

// Fail marks the claim failed with a reason
func (s *MongoClaimStore) Fail(ctx context.Context, commandID, token, reason string) error {
	now := s.now()
	return s.finish(ctx, commandID, token, bson.M{
		"status":        StatusFailed,
		"failureReason": reason,
		"completedAt":   now,
		"expiresAt":     now.Add(s.config.RetentionPeriod),
	})
}

func (s *MongoClaimStore) finish(ctx context.Context, commandID, token string, set bson.M) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": commandID, "status": StatusInProgress, "token": token},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrClaimNotHeld, commandID)
	}
	return nil
}

// Get retrieves a claim by command id
func (s *MongoClaimStore) Get(ctx context.Context, commandID string) (*ProcessedCommand, error) {
	var result ProcessedCommand
	err := s.collection.FindOne(ctx, bson.M{"_id": commandID}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

// Clean removes expired claims
func (s *MongoClaimStore) Clean(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": before}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// EnsureIndexes creates the TTL and lookup indexes for claims
func (s *MongoClaimStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "startedAt", Value: 1}},
			Options: options.Index().SetName("idx_status_started"),
		},
	}

	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// MongoMessageRepository implements MessageRepository using MongoDB
type MongoMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoMessageRepository creates a new MongoDB-backed message repository
func NewMongoMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{
		collection: db.Collection(processedMessagesCollection),
	}
}

// MarkProcessed marks a message as processed
func (r *MongoMessageRepository) MarkProcessed(ctx context.Context, msg *ProcessedMessage) error {
	_, err := r.collection.InsertOne(ctx, msg)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrMessageAlreadyProcessed
		}
		return err
	}
	return nil
}

// IsProcessed checks if a message has been processed
func (r *MongoMessageRepository) IsProcessed(ctx context.Context, messageID, topic, consumerGroup string) (bool, error) {
	filter := bson.M{
		"messageId":     messageID,
		"topic":         topic,
		"consumerGroup": consumerGroup,
	}

	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Clean removes expired processed messages
func (r *MongoMessageRepository) Clean(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": before}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// EnsureIndexes ensures that all required indexes are created
func (r *MongoMessageRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "messageId", Value: 1},
				{Key: "topic", Value: 1},
				{Key: "consumerGroup", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("idx_msg_topic_group"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// EnsureIndexes creates the claim and processed-message indexes
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if err := NewMongoClaimStore(db, nil).EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("processed_commands indexes: %w", err)
	}
	if err := NewMongoMessageRepository(db).EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("processed_messages indexes: %w", err)
	}
	return nil
}
