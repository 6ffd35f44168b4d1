package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/logging"
)

func pickCommand() PickStockCommand {
	return PickStockCommand{
		CommandID:      "pick-1",
		CorrelationID:  "corr-1",
		ReservationID:  "res-1",
		HandlingUnitID: "HU-9",
		WarehouseID:    "WH1",
		SKU:            "SKU-1",
		Quantity:       40,
		FromLocation:   "LOC-A",
		OperatorID:     "picker-3",
	}
}

type pickFixture struct {
	ledger       *mockLedgerRepository
	reservations *mockReservationConsumer
	publisher    *mockPublisher
	handler      *PickStockHandler
}

func newPickFixture() *pickFixture {
	f := &pickFixture{
		ledger:       new(mockLedgerRepository),
		reservations: new(mockReservationConsumer),
		publisher:    new(mockPublisher),
	}
	movements := newTestMovementHandler(f.ledger)
	f.handler = NewPickStockHandler(movements, f.reservations, f.publisher, logging.NewNop(), nil)
	f.handler.newID = func() string { return "generated" }
	return f
}

func (f *pickFixture) expectDispatch() {
	f.ledger.On("Load", mock.Anything, streamLocA).Return(ledgerWith(100), int64(1), nil).Once()
	f.ledger.On("Append", mock.Anything, streamLocA, mock.MatchedBy(func(e *domain.StockMovedEvent) bool {
		return e.MovementType == domain.MovementDispatch && e.ToLocation == "HU-9" && e.Quantity == 40
	}), int64(1)).Return(nil).Once()
}

func TestPickStock_ConsumesReservation(t *testing.T) {
	f := newPickFixture()
	f.expectDispatch()
	f.reservations.On("Consume", mock.Anything, domain.Consumption{
		ReservationID: "res-1",
		MovementID:    "mv-1",
		Location:      "LOC-A",
		SKU:           "SKU-1",
		Quantity:      40,
	}).Return(nil).Once()

	result, err := f.handler.Handle(context.Background(), pickCommand())

	require.NoError(t, err)
	assert.True(t, result.ReservationConsumed)
	assert.False(t, result.Deferred)
	assert.Equal(t, "mv-1", result.MovementID)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	f.ledger.AssertExpectations(t)
	f.reservations.AssertExpectations(t)
}

func TestPickStock_DefersWhenConsumptionFails(t *testing.T) {
	f := newPickFixture()
	f.expectDispatch()
	f.reservations.On("Consume", mock.Anything, mock.Anything).Return(errors.New("reservation store unavailable")).Once()

	var published *domain.ConsumePickReservationDeferred
	f.publisher.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			events := args.Get(1).([]domain.DomainEvent)
			published = events[0].(*domain.ConsumePickReservationDeferred)
		}).
		Return(nil).Once()

	result, err := f.handler.Handle(context.Background(), pickCommand())

	require.NoError(t, err, "a committed movement is never reported as failed")
	assert.True(t, result.Deferred)
	assert.False(t, result.ReservationConsumed)
	assert.Equal(t, "mv-1", result.MovementID)

	require.NotNil(t, published)
	assert.Equal(t, "corr-1", published.CorrelationID)
	assert.Equal(t, "res-1", published.ReservationID)
	assert.Equal(t, "mv-1", published.MovementID)
	assert.Equal(t, int64(40), published.Quantity)
	assert.Equal(t, "reservation store unavailable", published.LastError)
	f.ledger.AssertNumberOfCalls(t, "Append", 1)
}

func TestPickStock_GeneratesCorrelationID(t *testing.T) {
	f := newPickFixture()
	f.expectDispatch()
	f.reservations.On("Consume", mock.Anything, mock.Anything).Return(domain.ErrReservationNotPicking).Once()
	f.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(events []domain.DomainEvent) bool {
		return events[0].AggregateID() == "generated"
	})).Return(nil).Once()

	cmd := pickCommand()
	cmd.CorrelationID = ""
	result, err := f.handler.Handle(context.Background(), cmd)

	require.NoError(t, err)
	assert.Equal(t, "generated", result.CorrelationID)
	f.publisher.AssertExpectations(t)
}

func TestPickStock_ConsumptionSurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	f := newPickFixture()
	f.ledger.On("Load", mock.Anything, streamLocA).Return(ledgerWith(100), int64(1), nil).Once()
	f.ledger.On("Append", mock.Anything, streamLocA, mock.Anything, int64(1)).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil).Once()
	f.reservations.On("Consume", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), mock.Anything).
		Return(nil).Once()

	result, err := f.handler.Handle(ctx, pickCommand())

	require.NoError(t, err)
	assert.True(t, result.ReservationConsumed)
	f.reservations.AssertExpectations(t)
}

func TestPickStock_FailedMovementSkipsReservation(t *testing.T) {
	f := newPickFixture()
	f.ledger.On("Load", mock.Anything, streamLocA).Return(ledgerWith(10), int64(1), nil).Once()

	_, err := f.handler.Handle(context.Background(), pickCommand())

	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	f.reservations.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestPickStock_PublishFailureStillSucceeds(t *testing.T) {
	f := newPickFixture()
	f.expectDispatch()
	f.reservations.On("Consume", mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus down"))

	result, err := f.handler.Handle(context.Background(), pickCommand())

	require.NoError(t, err)
	assert.True(t, result.Deferred)
	f.publisher.AssertNumberOfCalls(t, "Publish", deferPublishAttempts)
}

func TestPickStock_RequiresReservation(t *testing.T) {
	f := newPickFixture()
	cmd := pickCommand()
	cmd.ReservationID = ""

	_, err := f.handler.Handle(context.Background(), cmd)

	assert.ErrorIs(t, err, ErrInvalidCommand)
	f.ledger.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}
