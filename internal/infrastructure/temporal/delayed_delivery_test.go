package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/internal/infrastructure/memory"
	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	temporalpkg "github.com/wms-platform/stock-engine/pkg/temporal"
)

func retryMessage() domain.RetryConsumeReservation {
	return domain.RetryConsumeReservation{
		CorrelationID: "corr-1",
		RetryToken:    "tok-1",
		Attempt:       2,
		ScheduledAt:   time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func newEnv(t *testing.T, bus *memory.Bus) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(DelayedDeliveryWorkflow, workflow.RegisterOptions{Name: temporalpkg.WorkflowNames.DelayedDelivery})
	env.RegisterActivityWithOptions(NewDeliveryActivities(bus).DeliverRetry, activity.RegisterOptions{Name: DeliverRetryActivity})
	return env
}

func TestDelayedDeliveryWorkflow_PublishesAfterDelay(t *testing.T) {
	bus := memory.NewBus()
	env := newEnv(t, bus)

	start := env.Now()
	env.ExecuteWorkflow(DelayedDeliveryWorkflow, DelayedDeliveryInput{Message: retryMessage(), Delay: 20 * time.Second})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result DelayedDeliveryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Delivered)

	published := bus.PublishedOfType(cloudevents.RetryConsumeReservation)
	require.Len(t, published, 1)
	assert.Equal(t, "tok-1", published[0].(*domain.RetryConsumeReservation).RetryToken)
	assert.GreaterOrEqual(t, result.DeliveredAt.Sub(start), 20*time.Second)
}

func TestDelayedDeliveryWorkflow_CancelledBeforeDelay(t *testing.T) {
	bus := memory.NewBus()
	env := newEnv(t, bus)

	env.RegisterDelayedCallback(env.CancelWorkflow, 5*time.Second)
	env.ExecuteWorkflow(DelayedDeliveryWorkflow, DelayedDeliveryInput{Message: retryMessage(), Delay: time.Minute})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result DelayedDeliveryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.False(t, result.Delivered)
	assert.Empty(t, bus.PublishedOfType(cloudevents.RetryConsumeReservation))
}

func TestDelayedDeliveryWorkflow_RetriesFailedPublish(t *testing.T) {
	bus := memory.NewBus()
	bus.FailNext(errors.New("broker unavailable"))
	env := newEnv(t, bus)

	env.ExecuteWorkflow(DelayedDeliveryWorkflow, DelayedDeliveryInput{Message: retryMessage(), Delay: time.Second})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Len(t, bus.PublishedOfType(cloudevents.RetryConsumeReservation), 1)
}

func TestDeliverRetry_RejectsMessageWithoutToken(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	bus := memory.NewBus()
	env.RegisterActivity(NewDeliveryActivities(bus).DeliverRetry)

	msg := retryMessage()
	msg.RetryToken = ""
	_, err := env.ExecuteActivity(NewDeliveryActivities(bus).DeliverRetry, msg)
	assert.Error(t, err)
	assert.Empty(t, bus.Published())
}
