package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	temporalpkg "github.com/wms-platform/stock-engine/pkg/temporal"
)

func TestRetryScheduler_Schedule(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == "pick-retry-tok-1" && o.TaskQueue == temporalpkg.TaskQueues.StockEngine
		}),
		temporalpkg.WorkflowNames.DelayedDelivery,
		mock.MatchedBy(func(in DelayedDeliveryInput) bool {
			return in.Message.RetryToken == "tok-1" && in.Delay == 10*time.Second
		}),
	).Return(nil, nil).Once()

	s := NewRetryScheduler(c, "")
	msg := retryMessage()
	assert.NoError(t, s.Schedule(context.Background(), &msg, 10*time.Second))
	assert.Equal(t, "temporal", s.Name())
	c.AssertExpectations(t)
}

func TestRetryScheduler_ScheduleTwiceIsIdempotent(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("running", "", "")).Once()

	msg := retryMessage()
	assert.NoError(t, NewRetryScheduler(c, "q").Schedule(context.Background(), &msg, time.Second))
}

func TestRetryScheduler_ScheduleFailure(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("frontend unavailable")).Once()

	msg := retryMessage()
	err := NewRetryScheduler(c, "q").Schedule(context.Background(), &msg, time.Second)
	assert.ErrorContains(t, err, "frontend unavailable")
}

func TestRetryScheduler_Cancel(t *testing.T) {
	c := &mocks.Client{}
	c.On("CancelWorkflow", mock.Anything, "pick-retry-tok-1", "").Return(nil).Once()
	c.On("CancelWorkflow", mock.Anything, "pick-retry-gone", "").Return(serviceerror.NewNotFound("gone")).Once()

	s := NewRetryScheduler(c, "q")
	assert.NoError(t, s.Cancel(context.Background(), "tok-1"))
	assert.NoError(t, s.Cancel(context.Background(), "gone"))
	c.AssertExpectations(t)
}
