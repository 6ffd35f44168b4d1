package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func receipt(to string, qty int64) *StockMovedEvent {
	return &StockMovedEvent{
		MovementID: "mv", WarehouseID: "WH1", SKU: "SKU-1", Quantity: qty,
		ToLocation: to, MovementType: MovementReceipt, OperatorID: "op", Timestamp: ts,
	}
}

func dispatch(from string, qty int64) *StockMovedEvent {
	return &StockMovedEvent{
		MovementID: "mv", WarehouseID: "WH1", SKU: "SKU-1", Quantity: qty,
		FromLocation: from, ToLocation: "PRODUCTION", MovementType: MovementDispatch, OperatorID: "op", Timestamp: ts,
	}
}

func transfer(from, to string, qty int64) *StockMovedEvent {
	return &StockMovedEvent{
		MovementID: "mv", WarehouseID: "WH1", SKU: "SKU-1", Quantity: qty,
		FromLocation: from, ToLocation: to, MovementType: MovementTransfer, OperatorID: "op", Timestamp: ts,
	}
}

func locA() StreamKey { return StreamKey{WarehouseID: "WH1", Location: "LOC-A", SKU: "SKU-1"} }

func TestStockLedger_Apply(t *testing.T) {
	l := ReplayStockLedger(locA(), []*StockMovedEvent{
		receipt("LOC-A", 100),
		dispatch("LOC-A", 30),
		transfer("LOC-A", "LOC-B", 20),
		transfer("LOC-B", "LOC-A", 5),
		receipt("LOC-B", 999),
	})

	assert.Equal(t, int64(55), l.OnHand())
	assert.Equal(t, 5, l.Applied())
}

func TestStockLedger_ValidateMovement(t *testing.T) {
	l := ReplayStockLedger(locA(), []*StockMovedEvent{receipt("LOC-A", 10)})

	tests := []struct {
		name string
		e    *StockMovedEvent
		want error
	}{
		{"valid dispatch", dispatch("LOC-A", 10), nil},
		{"valid receipt", receipt("LOC-A", 1), nil},
		{"zero quantity", dispatch("LOC-A", 0), ErrInvalidQuantity},
		{"negative quantity", receipt("LOC-A", -5), ErrInvalidQuantity},
		{"overdraw", dispatch("LOC-A", 11), ErrInsufficientBalance},
		{"transfer overdraw", transfer("LOC-A", "LOC-B", 11), ErrInsufficientBalance},
		{"same location transfer", transfer("LOC-A", "LOC-A", 1), ErrSameLocation},
		{"other stream", dispatch("LOC-B", 1), ErrStreamMismatch},
		{"unknown type", &StockMovedEvent{WarehouseID: "WH1", SKU: "SKU-1", Quantity: 1, OperatorID: "op", MovementType: "Adjust"}, ErrUnknownMovementType},
		{"missing operator", &StockMovedEvent{WarehouseID: "WH1", SKU: "SKU-1", Quantity: 1, ToLocation: "LOC-A", MovementType: MovementReceipt}, ErrMissingOperator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.ValidateMovement(tt.e)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStockLedger_InsufficientBalanceMessage(t *testing.T) {
	err := NewStockLedger(locA()).ValidateMovement(dispatch("LOC-A", 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
	assert.True(t, IsValidationError(err))

	err = NewStockLedger(locA()).ValidateMovement(dispatch("LOC-A", 0))
	assert.EqualError(t, err, "quantity must be greater than zero")
}

// Random movement sequences: applying only validated movements never drives the balance negative.
func TestStockLedger_BalanceNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		l := NewStockLedger(locA())
		for step := 0; step < 50; step++ {
			qty := int64(rng.Intn(40)) - 5
			var e *StockMovedEvent
			switch rng.Intn(3) {
			case 0:
				e = receipt("LOC-A", qty)
			case 1:
				e = dispatch("LOC-A", qty)
			default:
				e = transfer("LOC-A", "LOC-B", qty)
			}

			if err := l.ValidateMovement(e); err != nil {
				require.True(t, IsValidationError(err), "unexpected error: %v", err)
				continue
			}
			l.Apply(e)
			require.GreaterOrEqual(t, l.OnHand(), int64(0))
		}
	}
}

func TestMovementType_OwningLocation(t *testing.T) {
	loc, err := MovementReceipt.OwningLocation("X", "LOC-A")
	require.NoError(t, err)
	assert.Equal(t, "LOC-A", loc)

	loc, err = MovementDispatch.OwningLocation("LOC-A", "")
	require.NoError(t, err)
	assert.Equal(t, "LOC-A", loc)

	loc, err = MovementTransfer.OwningLocation("LOC-A", "LOC-B")
	require.NoError(t, err)
	assert.Equal(t, "LOC-A", loc)

	_, err = MovementReceipt.OwningLocation("LOC-A", "")
	assert.ErrorIs(t, err, ErrMissingLocation)
	_, err = MovementTransfer.OwningLocation("", "LOC-B")
	assert.ErrorIs(t, err, ErrMissingLocation)

	_, err = ParseMovementType("Teleport")
	assert.ErrorIs(t, err, ErrUnknownMovementType)
	mt, err := ParseMovementType("Dispatch")
	require.NoError(t, err)
	assert.True(t, mt.DrawsDown())
	assert.False(t, MovementReceipt.DrawsDown())
}
