package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-engine/internal/domain"
	apperrors "github.com/wms-platform/stock-engine/pkg/errors"
	"github.com/wms-platform/stock-engine/pkg/idempotency"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/resilience"
)

func TestEngine_ReplaysCompletedCommand(t *testing.T) {
	repo := new(mockLedgerRepository)
	repo.On("Load", mock.Anything, streamLocA).Return(ledgerWith(0), int64(0), nil).Once()
	repo.On("Append", mock.Anything, streamLocA, mock.Anything, int64(0)).Return(nil).Once()

	movements := newTestMovementHandler(repo)
	picks := NewPickStockHandler(movements, new(mockReservationConsumer), new(mockPublisher), logging.NewNop(), nil)
	engine := NewEngine(movements, picks, idempotency.NewMemoryClaimStore(nil), logging.NewNop(), nil)

	cmd := RecordStockMovementCommand{
		CommandID:    "cmd-42",
		WarehouseID:  "WH1",
		SKU:          "SKU-1",
		Quantity:     100,
		ToLocation:   "LOC-A",
		MovementType: domain.MovementReceipt,
		OperatorID:   "op",
	}

	first, err := engine.RecordStockMovement(context.Background(), cmd)
	require.NoError(t, err)

	second, err := engine.RecordStockMovement(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	repo.AssertNumberOfCalls(t, "Append", 1)
}

func TestEngine_FailedCommandAnswersFromStoredFailure(t *testing.T) {
	repo := new(mockLedgerRepository)
	repo.On("Load", mock.Anything, streamLocA).Return(ledgerWith(5), int64(1), nil).Once()
	repo.On("Load", mock.Anything, streamLocA).Return(ledgerWith(50), int64(2), nil).Once()
	repo.On("Append", mock.Anything, streamLocA, mock.Anything, int64(2)).Return(nil).Once()

	movements := newTestMovementHandler(repo)
	picks := NewPickStockHandler(movements, new(mockReservationConsumer), new(mockPublisher), logging.NewNop(), nil)
	engine := NewEngine(movements, picks, idempotency.NewMemoryClaimStore(nil), logging.NewNop(), nil)

	_, err := engine.RecordStockMovement(context.Background(), dispatchCommand(10))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = engine.RecordStockMovement(context.Background(), dispatchCommand(10))
	require.ErrorIs(t, err, idempotency.ErrCommandFailed)
	assert.Contains(t, err.Error(), "insufficient balance")
	assert.True(t, ClassifyError(err).Permanent())
	repo.AssertNumberOfCalls(t, "Load", 1)

	// a corrected resubmission carries a new command id
	retry := dispatchCommand(10)
	retry.CommandID = "cmd-2"
	result, err := engine.RecordStockMovement(context.Background(), retry)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Version)
}

func TestEngine_LostAppendAcknowledgementIsNotReExecuted(t *testing.T) {
	repo := new(mockLedgerRepository)
	repo.On("Load", mock.Anything, streamLocA).Return(ledgerWith(50), int64(1), nil).Once()
	repo.On("Append", mock.Anything, streamLocA, mock.Anything, int64(1)).
		Return(fmt.Errorf("connection reset after write")).Once()

	movements := newTestMovementHandler(repo)
	picks := NewPickStockHandler(movements, new(mockReservationConsumer), new(mockPublisher), logging.NewNop(), nil)
	engine := NewEngine(movements, picks, idempotency.NewMemoryClaimStore(nil), logging.NewNop(), nil)

	_, err := engine.RecordStockMovement(context.Background(), dispatchCommand(10))
	require.Error(t, err)

	_, err = engine.RecordStockMovement(context.Background(), dispatchCommand(10))
	assert.ErrorIs(t, err, idempotency.ErrCommandFailed)
	repo.AssertNumberOfCalls(t, "Append", 1)
}

func TestEngine_PickReplayDoesNotDispatchTwice(t *testing.T) {
	f := newPickFixture()
	f.expectDispatch()
	f.reservations.On("Consume", mock.Anything, mock.Anything).Return(nil).Once()

	engine := NewEngine(newTestMovementHandler(f.ledger), f.handler, idempotency.NewMemoryClaimStore(nil), logging.NewNop(), nil)

	first, err := engine.PickStock(context.Background(), pickCommand())
	require.NoError(t, err)
	second, err := engine.PickStock(context.Background(), pickCommand())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	f.ledger.AssertNumberOfCalls(t, "Append", 1)
	f.reservations.AssertNumberOfCalls(t, "Consume", 1)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.Code
	}{
		{"insufficient balance", fmt.Errorf("%w: on hand 1, requested 2", domain.ErrInsufficientBalance), apperrors.CodeValidationError},
		{"envelope", &CommandValidationError{Fields: map[string]string{"sku": "is required"}}, apperrors.CodeValidationError},
		{"argument", &domain.ArgumentError{Param: "warehouseId", Reason: "must not be empty"}, apperrors.CodeValidationError},
		{"conflict", fmt.Errorf("%w after 3 attempts", domain.ErrConcurrencyConflict), apperrors.CodeConcurrencyConflict},
		{"in progress", &idempotency.InProgressError{CommandID: "cmd-1"}, apperrors.CodeInProgress},
		{"previously failed", &idempotency.FailedError{CommandID: "cmd-1", Reason: "boom"}, apperrors.CodeConflict},
		{"reservation missing", domain.ErrReservationNotFound, apperrors.CodeNotFound},
		{"reservation closed", domain.ErrReservationClosed, apperrors.CodeConflict},
		{"breaker", fmt.Errorf("%w: reservations", resilience.ErrCircuitOpen), apperrors.CodeServiceUnavailable},
		{"unknown", fmt.Errorf("socket closed"), apperrors.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ClassifyError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.code.Permanent(), appErr.Permanent())
			assert.ErrorIs(t, appErr, tt.err)
		})
	}

	assert.Nil(t, ClassifyError(nil))
	assert.Equal(t, "cmd-1", ClassifyError(&idempotency.InProgressError{CommandID: "cmd-1"}).Details["commandId"])
}
