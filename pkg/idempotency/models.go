package idempotency

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ClaimStatus is the lifecycle state of a command claim
type ClaimStatus string

const (
	StatusInProgress ClaimStatus = "InProgress"
	StatusCompleted  ClaimStatus = "Completed"
	StatusFailed     ClaimStatus = "Failed"
)

// ClaimOutcome is the answer TryStart gives for a command id
type ClaimOutcome int

const (
	// ClaimStarted means the caller now owns the claim and must Complete or Fail it
	ClaimStarted ClaimOutcome = iota
	// ClaimInProgress means another execution holds the claim
	ClaimInProgress
	// ClaimAlreadyCompleted means the command ran before; the stored result is returned
	ClaimAlreadyCompleted
	// ClaimAlreadyFailed means the command ran before and failed; the stored reason is returned
	ClaimAlreadyFailed
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimStarted:
		return "started"
	case ClaimInProgress:
		return "in_progress"
	case ClaimAlreadyCompleted:
		return "already_completed"
	case ClaimAlreadyFailed:
		return "already_failed"
	default:
		return "unknown"
	}
}

// ProcessedCommand is the stored claim for an at-most-once command.
// The command id is the document key so uniqueness is enforced by the store.
type ProcessedCommand struct {
	CommandID     string      `bson:"_id"`
	CommandType   string      `bson:"commandType"`
	Status        ClaimStatus `bson:"status"`
	Result        []byte      `bson:"result,omitempty"` // JSON encoded handler response
	FailureReason string      `bson:"failureReason,omitempty"`
	Attempts      int         `bson:"attempts"`

	// Token identifies the execution holding the claim; only that execution may settle it
	Token string `bson:"token"`

	StartedAt   time.Time  `bson:"startedAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty"`
	ExpiresAt   time.Time  `bson:"expiresAt"` // TTL index
}

// IsAbandoned reports whether an in-progress claim is older than lease and may be taken over.
// Completed and Failed claims are terminal. A zero lease never abandons a claim.
func (c *ProcessedCommand) IsAbandoned(now time.Time, lease time.Duration) bool {
	return c.Status == StatusInProgress && lease > 0 && now.Sub(c.StartedAt) > lease
}

// settled is the TryStart answer for a claim the caller could not take
func (c *ProcessedCommand) settled() *ClaimResult {
	switch c.Status {
	case StatusCompleted:
		return &ClaimResult{Outcome: ClaimAlreadyCompleted, Result: append([]byte(nil), c.Result...)}
	case StatusFailed:
		return &ClaimResult{Outcome: ClaimAlreadyFailed, FailureReason: c.FailureReason}
	default:
		return &ClaimResult{Outcome: ClaimInProgress}
	}
}

// ClaimResult is returned from TryStart
type ClaimResult struct {
	Outcome ClaimOutcome
	// Token must be passed to Complete or Fail when Outcome is ClaimStarted
	Token string
	// Result holds the stored response when Outcome is ClaimAlreadyCompleted
	Result []byte
	// FailureReason holds the stored reason when Outcome is ClaimAlreadyFailed
	FailureReason string
}

// ProcessedMessage represents a deduplicated Kafka message
type ProcessedMessage struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	MessageID     string             `bson:"messageId"`     // CloudEvent.ID
	Topic         string             `bson:"topic"`         // Kafka topic
	EventType     string             `bson:"eventType"`     // CloudEvent.Type
	ConsumerGroup string             `bson:"consumerGroup"` // Kafka consumer group
	ServiceID     string             `bson:"serviceId"`

	ProcessedAt time.Time `bson:"processedAt"`
	ExpiresAt   time.Time `bson:"expiresAt"`

	CorrelationID string `bson:"correlationId,omitempty"`
}
