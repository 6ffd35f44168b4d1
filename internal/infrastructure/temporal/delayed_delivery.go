// Package temporal schedules saga retries as Temporal timers.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/stock-engine/internal/domain"
	temporalpkg "github.com/wms-platform/stock-engine/pkg/temporal"
)

// DeliverRetryActivity is the registered name of the delivery activity
const DeliverRetryActivity = "DeliverRetry"

// DelayedDeliveryInput is the input of DelayedDeliveryWorkflow
type DelayedDeliveryInput struct {
	Message domain.RetryConsumeReservation `json:"message"`
	Delay   time.Duration                  `json:"delay"`
}

// DelayedDeliveryResult reports whether the message went out
type DelayedDeliveryResult struct {
	Delivered   bool      `json:"delivered"`
	DeliveredAt time.Time `json:"deliveredAt,omitempty"`
}

// deliveryRetryPolicy keeps retrying the publish; the timer has already fired
var deliveryRetryPolicy = &temporal.RetryPolicy{
	InitialInterval:    time.Second,
	BackoffCoefficient: 2.0,
	MaximumInterval:    time.Minute,
	MaximumAttempts:    0,
}

// DelayedDeliveryWorkflow sleeps for the requested delay and then publishes the retry message.
// A cancelled workflow completes without delivering.
func DelayedDeliveryWorkflow(ctx workflow.Context, input DelayedDeliveryInput) (*DelayedDeliveryResult, error) {
	logger := workflow.GetLogger(ctx)

	if err := workflow.Sleep(ctx, input.Delay); err != nil {
		if temporal.IsCanceledError(err) {
			logger.Info("Retry cancelled before delivery", "retryToken", input.Message.RetryToken)
			return &DelayedDeliveryResult{}, nil
		}
		return nil, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporalpkg.ActivityTimeout,
		RetryPolicy:         deliveryRetryPolicy,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	if err := workflow.ExecuteActivity(ctx, DeliverRetryActivity, input.Message).Get(ctx, nil); err != nil {
		return nil, fmt.Errorf("deliver retry %s: %w", input.Message.RetryToken, err)
	}

	return &DelayedDeliveryResult{Delivered: true, DeliveredAt: workflow.Now(ctx)}, nil
}

// DeliveryActivities publishes retry messages to the bus
type DeliveryActivities struct {
	publisher domain.EventPublisher
}

// NewDeliveryActivities creates the delivery activities
func NewDeliveryActivities(publisher domain.EventPublisher) *DeliveryActivities {
	return &DeliveryActivities{publisher: publisher}
}

// DeliverRetry publishes msg. Malformed messages fail without retry.
func (a *DeliveryActivities) DeliverRetry(ctx context.Context, msg domain.RetryConsumeReservation) error {
	if msg.CorrelationID == "" || msg.RetryToken == "" {
		return temporal.NewNonRetryableApplicationError("retry message lacks correlation id or token", "ValidationError", errors.New("invalid retry message"))
	}

	activity.GetLogger(ctx).Info("Delivering scheduled retry",
		"correlationId", msg.CorrelationID,
		"retryToken", msg.RetryToken,
		"attempt", msg.Attempt,
	)
	return a.publisher.Publish(ctx, &msg)
}
