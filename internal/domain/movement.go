package domain

import "fmt"

// MovementType is the closed set of physical movements the ledger records
type MovementType string

const (
	MovementReceipt  MovementType = "Receipt"
	MovementDispatch MovementType = "Dispatch"
	MovementTransfer MovementType = "Transfer"
)

// ParseMovementType converts a wire value into a MovementType
func ParseMovementType(s string) (MovementType, error) {
	t := MovementType(s)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate rejects values outside the closed set
func (t MovementType) Validate() error {
	switch t {
	case MovementReceipt, MovementDispatch, MovementTransfer:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMovementType, string(t))
	}
}

// OwningLocation returns the location whose stream records the movement.
// Receipts belong to the destination; dispatches and transfers to the source.
func (t MovementType) OwningLocation(from, to string) (string, error) {
	switch t {
	case MovementReceipt:
		if to == "" {
			return "", fmt.Errorf("%w: receipt needs toLocation", ErrMissingLocation)
		}
		return to, nil
	case MovementDispatch:
		if from == "" {
			return "", fmt.Errorf("%w: dispatch needs fromLocation", ErrMissingLocation)
		}
		return from, nil
	case MovementTransfer:
		if from == "" || to == "" {
			return "", fmt.Errorf("%w: transfer needs fromLocation and toLocation", ErrMissingLocation)
		}
		if from == to {
			return "", ErrSameLocation
		}
		return from, nil
	default:
		return "", t.Validate()
	}
}

// DrawsDown reports whether the movement reduces stock at its owning location
func (t MovementType) DrawsDown() bool {
	switch t {
	case MovementDispatch, MovementTransfer:
		return true
	default:
		return false
	}
}
