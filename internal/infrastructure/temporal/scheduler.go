package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/internal/saga"
	temporalpkg "github.com/wms-platform/stock-engine/pkg/temporal"
)

var _ saga.RetryScheduler = (*RetryScheduler)(nil)

// RetryScheduler implements saga.RetryScheduler with one DelayedDeliveryWorkflow per retry token
type RetryScheduler struct {
	client    client.Client
	taskQueue string
}

// NewRetryScheduler creates a scheduler that starts workflows on taskQueue
func NewRetryScheduler(c client.Client, taskQueue string) *RetryScheduler {
	if taskQueue == "" {
		taskQueue = temporalpkg.TaskQueues.StockEngine
	}
	return &RetryScheduler{client: c, taskQueue: taskQueue}
}

// Name labels the scheduler in metrics
func (s *RetryScheduler) Name() string { return "temporal" }

// WorkflowID returns the workflow id used for a retry token
func WorkflowID(token string) string {
	return "pick-retry-" + token
}

// Schedule starts the delivery workflow. A workflow already running for the token counts as scheduled.
func (s *RetryScheduler) Schedule(ctx context.Context, msg *domain.RetryConsumeReservation, delay time.Duration) error {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(msg.RetryToken),
		TaskQueue: s.taskQueue,
	}

	_, err := s.client.ExecuteWorkflow(ctx, opts, temporalpkg.WorkflowNames.DelayedDelivery, DelayedDeliveryInput{
		Message: *msg,
		Delay:   delay,
	})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil
		}
		return fmt.Errorf("failed to schedule retry %s: %w", msg.RetryToken, err)
	}
	return nil
}

// Cancel cancels the delivery workflow. Unknown or finished workflows are ignored.
func (s *RetryScheduler) Cancel(ctx context.Context, token string) error {
	err := s.client.CancelWorkflow(ctx, WorkflowID(token), "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to cancel retry %s: %w", token, err)
	}
	return nil
}

// Register registers the delivery workflow and activity on w
func Register(w worker.Worker, activities *DeliveryActivities) {
	w.RegisterWorkflowWithOptions(DelayedDeliveryWorkflow, workflow.RegisterOptions{Name: temporalpkg.WorkflowNames.DelayedDelivery})
	w.RegisterActivityWithOptions(activities.DeliverRetry, activity.RegisterOptions{Name: DeliverRetryActivity})
}
