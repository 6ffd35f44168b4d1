package domain

import "fmt"

// StockLedger is the on-hand balance of one (warehouse, location, sku) partition.
// It holds no state beyond what replaying the stream's StockMoved events produces.
type StockLedger struct {
	key     StreamKey
	onHand  int64
	applied int
}

// NewStockLedger returns an empty ledger for key
func NewStockLedger(key StreamKey) *StockLedger {
	return &StockLedger{key: key}
}

// ReplayStockLedger rebuilds a ledger from its ordered event history
func ReplayStockLedger(key StreamKey, history []*StockMovedEvent) *StockLedger {
	l := NewStockLedger(key)
	for _, e := range history {
		l.Apply(e)
	}
	return l
}

func (l *StockLedger) Key() StreamKey { return l.key }
func (l *StockLedger) OnHand() int64  { return l.onHand }

// Applied returns how many events were folded into the ledger
func (l *StockLedger) Applied() int { return l.applied }

// Apply folds a recorded movement into the balance. History is authoritative, so nothing is validated here.
func (l *StockLedger) Apply(e *StockMovedEvent) {
	l.onHand += l.delta(e)
	l.applied++
}

// delta is the signed effect of e on this partition
func (l *StockLedger) delta(e *StockMovedEvent) int64 {
	if e.WarehouseID != l.key.WarehouseID || e.SKU != l.key.SKU {
		return 0
	}
	loc := l.key.Location
	switch e.MovementType {
	case MovementReceipt:
		if e.ToLocation == loc {
			return e.Quantity
		}
	case MovementDispatch:
		if e.FromLocation == loc {
			return -e.Quantity
		}
	case MovementTransfer:
		if e.FromLocation == loc {
			return -e.Quantity
		}
		if e.ToLocation == loc {
			return e.Quantity
		}
	}
	return 0
}

// ValidateMovement checks a proposed movement against the current balance.
// Business-rule failures wrap the validation sentinels; a movement owned by another stream wraps ErrStreamMismatch.
func (l *StockLedger) ValidateMovement(e *StockMovedEvent) error {
	if e.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if err := e.MovementType.Validate(); err != nil {
		return err
	}
	if e.OperatorID == "" {
		return ErrMissingOperator
	}

	owner, err := e.StreamKey()
	if err != nil {
		return err
	}
	if owner != l.key {
		return fmt.Errorf("%w: movement owned by %s, ledger is %s", ErrStreamMismatch, owner, l.key)
	}

	if e.MovementType.DrawsDown() && l.onHand-e.Quantity < 0 {
		return fmt.Errorf("%w: on hand %d, requested %d", ErrInsufficientBalance, l.onHand, e.Quantity)
	}
	return nil
}
