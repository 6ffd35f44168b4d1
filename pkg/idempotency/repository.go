package idempotency

import (
	"context"
	"time"
)

// ClaimStore records which commands have been executed.
// Implementations must make TryStart atomic per command id.
type ClaimStore interface {
	// TryStart claims commandID for the caller.
	//   - ClaimStarted: the caller must later call Complete or Fail with ClaimResult.Token
	//   - ClaimInProgress: another execution holds a live claim
	//   - ClaimAlreadyCompleted: the stored result is returned in ClaimResult.Result
	//   - ClaimAlreadyFailed: the stored reason is returned in ClaimResult.FailureReason
	TryStart(ctx context.Context, commandID, commandType string) (*ClaimResult, error)

	// Complete marks the claim completed and stores the serialized result.
	// It returns ErrClaimNotHeld unless token still holds an in-progress claim.
	Complete(ctx context.Context, commandID, token string, result []byte) error

	// Fail marks the claim failed. Failed is terminal like Completed.
	Fail(ctx context.Context, commandID, token, reason string) error

	// Get returns the stored claim or ErrNotFound
	Get(ctx context.Context, commandID string) (*ProcessedCommand, error)

	// Clean removes claims that expired before the given time
	Clean(ctx context.Context, before time.Time) (int64, error)
}

// MessageRepository manages processed messages for Kafka consumers
type MessageRepository interface {
	// MarkProcessed returns ErrMessageAlreadyProcessed if the message was already recorded
	MarkProcessed(ctx context.Context, msg *ProcessedMessage) error

	IsProcessed(ctx context.Context, messageID, topic, consumerGroup string) (bool, error)

	Clean(ctx context.Context, before time.Time) (int64, error)
}
