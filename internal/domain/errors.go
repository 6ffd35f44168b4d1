package domain

import (
	"errors"
	"fmt"
)

// Movement validation errors. These are terminal for a command attempt and are never retried.
var (
	ErrInvalidQuantity     = errors.New("quantity must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownMovementType = errors.New("unknown movement type")
	ErrMissingLocation     = errors.New("movement is missing a required location")
	ErrSameLocation        = errors.New("transfer source and destination must differ")
	ErrMissingOperator     = errors.New("operator id is required")
)

// Ledger and stream errors
var (
	// ErrConcurrencyConflict is returned by Append when the stream moved past the expected version
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrStreamMismatch is returned when a movement is validated against a stream that does not own it
	ErrStreamMismatch = errors.New("movement does not belong to this stream")

	// ErrInvalidStreamID is returned by ParseStreamID
	ErrInvalidStreamID = errors.New("invalid stream id")
)

// Reservation errors
var (
	ErrReservationNotFound      = errors.New("reservation not found")
	ErrReservationNotActive     = errors.New("reservation is not active")
	ErrReservationNotPicking    = errors.New("reservation is not being picked")
	ErrReservationClosed        = errors.New("reservation is already consumed or cancelled")
	ErrConsumeExceedsHardLock   = errors.New("consumed quantity exceeds hard lock at location")
	ErrReservationWithoutLines  = errors.New("reservation requires at least one line")
	ErrReservationAlreadyExists = errors.New("reservation already exists")
)

// Saga errors
var (
	ErrSagaNotFound = errors.New("saga not found")
)

// IsValidationError reports whether err is a business-rule rejection of a movement
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrUnknownMovementType) ||
		errors.Is(err, ErrMissingLocation) ||
		errors.Is(err, ErrSameLocation) ||
		errors.Is(err, ErrMissingOperator)
}

// ArgumentError reports a programming error in a call: a required argument was missing or malformed.
// It is not a domain rejection and callers are not expected to recover from it.
type ArgumentError struct {
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Param, e.Reason)
}
