package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-engine/internal/application"
	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	"github.com/wms-platform/stock-engine/pkg/kafka"
	"github.com/wms-platform/stock-engine/pkg/logging"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) RecordStockMovement(ctx context.Context, cmd application.RecordStockMovementCommand) (*application.MovementResult, error) {
	args := m.Called(ctx, cmd)
	res, _ := args.Get(0).(*application.MovementResult)
	return res, args.Error(1)
}

func (m *mockEngine) PickStock(ctx context.Context, cmd application.PickStockCommand) (*application.PickStockResult, error) {
	args := m.Called(ctx, cmd)
	res, _ := args.Get(0).(*application.PickStockResult)
	return res, args.Error(1)
}

type mockReservations struct {
	mock.Mock
}

func (m *mockReservations) Create(ctx context.Context, reservationID, warehouseID, orderID string, lines []domain.LockLine) (*domain.Reservation, error) {
	args := m.Called(ctx, reservationID, warehouseID, orderID, lines)
	res, _ := args.Get(0).(*domain.Reservation)
	return res, args.Error(1)
}

func (m *mockReservations) StartPicking(ctx context.Context, reservationID string) error {
	return m.Called(ctx, reservationID).Error(0)
}

func (m *mockReservations) Cancel(ctx context.Context, reservationID, reason string) error {
	return m.Called(ctx, reservationID, reason).Error(0)
}

type recordingSubscriber struct {
	subscriptions map[string]string
}

func (s *recordingSubscriber) Subscribe(topic string, eventType string, _ kafka.EventHandler) {
	s.subscriptions[eventType] = topic
}

func commandEvent(t *testing.T, eventType string, data any) *cloudevents.WMSCloudEvent {
	t.Helper()
	ce, err := cloudevents.NewEventFactory("/wms/tests").CreateEvent(context.Background(), eventType, "", data)
	require.NoError(t, err)
	ce.CorrelationID = "corr-env"
	return ce
}

func TestCommandConsumer_RecordsMovementWithEnvelopeIDs(t *testing.T) {
	engine := new(mockEngine)
	consumer := NewCommandConsumer(engine, new(mockReservations), nil, logging.NewNop())

	ce := commandEvent(t, cloudevents.RecordStockMovementRequested, map[string]any{
		"warehouseId":  "WH1",
		"sku":          "SKU-1",
		"quantity":     10,
		"toLocation":   "LOC-A",
		"movementType": string(domain.MovementReceipt),
		"operatorId":   "op-1",
	})

	engine.On("RecordStockMovement", mock.Anything, mock.MatchedBy(func(cmd application.RecordStockMovementCommand) bool {
		return cmd.CommandID == ce.ID && cmd.CorrelationID == "corr-env" && cmd.Quantity == 10
	})).Return(&application.MovementResult{MovementID: "mv-1", StreamID: "WH1:LOC-A:SKU-1", Version: 1, Attempts: 1}, nil)

	require.NoError(t, consumer.Handle(context.Background(), ce))
	engine.AssertExpectations(t)
}

func TestCommandConsumer_ExplicitCommandIDWins(t *testing.T) {
	engine := new(mockEngine)
	consumer := NewCommandConsumer(engine, new(mockReservations), nil, logging.NewNop())

	ce := commandEvent(t, cloudevents.PickStockRequested, map[string]any{
		"commandId":     "cmd-7",
		"correlationId": "corr-7",
		"reservationId": "res-1",
		"warehouseId":   "WH1",
		"sku":           "SKU-1",
		"quantity":      5,
		"fromLocation":  "LOC-A",
		"operatorId":    "op-1",
	})

	engine.On("PickStock", mock.Anything, mock.MatchedBy(func(cmd application.PickStockCommand) bool {
		return cmd.CommandID == "cmd-7" && cmd.CorrelationID == "corr-7"
	})).Return(&application.PickStockResult{MovementID: "mv-1", ReservationConsumed: true}, nil)

	require.NoError(t, consumer.Handle(context.Background(), ce))
	engine.AssertExpectations(t)
}

func TestCommandConsumer_DropsPermanentRejections(t *testing.T) {
	for name, err := range map[string]error{
		"validation": domain.ErrInsufficientBalance,
		"conflict":   domain.ErrReservationNotPicking,
		"not found":  domain.ErrReservationNotFound,
	} {
		t.Run(name, func(t *testing.T) {
			engine := new(mockEngine)
			consumer := NewCommandConsumer(engine, new(mockReservations), nil, logging.NewNop())
			engine.On("PickStock", mock.Anything, mock.Anything).Return(nil, err)

			ce := commandEvent(t, cloudevents.PickStockRequested, map[string]any{"reservationId": "res-1"})
			assert.NoError(t, consumer.Handle(context.Background(), ce))
		})
	}
}

func TestCommandConsumer_ReturnsTransientFailures(t *testing.T) {
	for name, err := range map[string]error{
		"conflict":    domain.ErrConcurrencyConflict,
		"unavailable": errors.New("mongo: no reachable servers"),
	} {
		t.Run(name, func(t *testing.T) {
			engine := new(mockEngine)
			consumer := NewCommandConsumer(engine, new(mockReservations), nil, logging.NewNop())
			engine.On("RecordStockMovement", mock.Anything, mock.Anything).Return(nil, err)

			ce := commandEvent(t, cloudevents.RecordStockMovementRequested, map[string]any{"sku": "SKU-1"})
			assert.ErrorIs(t, consumer.Handle(context.Background(), ce), err)
		})
	}
}

func TestCommandConsumer_DropsUndecodablePayload(t *testing.T) {
	engine := new(mockEngine)
	consumer := NewCommandConsumer(engine, new(mockReservations), nil, logging.NewNop())

	ce := commandEvent(t, cloudevents.RecordStockMovementRequested, nil)
	ce.Data = []byte(`{"quantity":"ten"}`)

	assert.NoError(t, consumer.Handle(context.Background(), ce))
	engine.AssertNotCalled(t, "RecordStockMovement", mock.Anything, mock.Anything)
}

func TestCommandConsumer_Register(t *testing.T) {
	sub := &recordingSubscriber{subscriptions: map[string]string{}}
	NewCommandConsumer(new(mockEngine), new(mockReservations), nil, logging.NewNop()).Register(sub)

	require.Len(t, sub.subscriptions, len(CommandTypes()))
	for _, eventType := range CommandTypes() {
		assert.Equal(t, kafka.Topics.StockCommands, sub.subscriptions[eventType])
	}
}

func TestCommandConsumer_ReservationLifecycle(t *testing.T) {
	reservations := new(mockReservations)
	consumer := NewCommandConsumer(new(mockEngine), reservations, nil, logging.NewNop())
	lines := []domain.LockLine{{Location: "LOC-A", SKU: "SKU-1", Quantity: 40}}

	reservations.On("Create", mock.Anything, "res-1", "WH1", "order-1", lines).Return(&domain.Reservation{ReservationID: "res-1"}, nil)
	reservations.On("StartPicking", mock.Anything, "res-1").Return(nil)
	reservations.On("Cancel", mock.Anything, "res-1", "order cancelled").Return(domain.ErrReservationClosed)

	require.NoError(t, consumer.Handle(context.Background(), commandEvent(t, cloudevents.CreateReservationRequested,
		ReservationRequest{ReservationID: "res-1", WarehouseID: "WH1", OrderID: "order-1", Lines: lines})))
	require.NoError(t, consumer.Handle(context.Background(), commandEvent(t, cloudevents.StartPickingRequested,
		ReservationRequest{ReservationID: "res-1"})))

	// closed reservations cannot be cancelled; the command is dropped rather than redelivered
	require.NoError(t, consumer.Handle(context.Background(), commandEvent(t, cloudevents.CancelReservationRequested,
		ReservationRequest{ReservationID: "res-1", Reason: "order cancelled"})))

	reservations.AssertExpectations(t)
}

func TestCommandConsumer_ReservationStoreOutageIsRedelivered(t *testing.T) {
	reservations := new(mockReservations)
	consumer := NewCommandConsumer(new(mockEngine), reservations, nil, logging.NewNop())
	outage := errors.New("connection reset")
	reservations.On("StartPicking", mock.Anything, "res-1").Return(outage)

	err := consumer.Handle(context.Background(), commandEvent(t, cloudevents.StartPickingRequested,
		ReservationRequest{ReservationID: "res-1"}))
	assert.ErrorIs(t, err, outage)
}

func TestCommandConsumer_UnknownTypeIsDropped(t *testing.T) {
	consumer := NewCommandConsumer(new(mockEngine), new(mockReservations), nil, logging.NewNop())
	assert.NoError(t, consumer.Handle(context.Background(), commandEvent(t, "wms.stock.command.unknown", map[string]any{})))
}
