package idempotency

import "errors"

var (
	// ErrCommandIDRequired indicates that a command arrived without a command id
	ErrCommandIDRequired = errors.New("command id is required for idempotent execution")

	// ErrCommandInProgress indicates that another execution of the same command holds the claim
	ErrCommandInProgress = errors.New("idempotency in progress")

	// ErrCommandFailed indicates that an earlier execution of the same command failed
	ErrCommandFailed = errors.New("command previously failed")

	// ErrClaimNotHeld indicates Complete or Fail was called by an execution that no longer holds the claim
	ErrClaimNotHeld = errors.New("command claim is not in progress")

	// ErrNotFound indicates that a claim was not found
	ErrNotFound = errors.New("command claim not found")

	// ErrMessageAlreadyProcessed indicates that a message has already been processed
	ErrMessageAlreadyProcessed = errors.New("message has already been processed")
)

// InProgressError is returned when a duplicate arrives while the original still holds the claim
type InProgressError struct {
	CommandID string
}

func (e *InProgressError) Error() string {
	return ErrCommandInProgress.Error() + ": command " + e.CommandID
}

func (e *InProgressError) Unwrap() error { return ErrCommandInProgress }

// FailedError is returned for a command whose earlier execution failed. The handler is not run again.
type FailedError struct {
	CommandID string
	Reason    string
}

func (e *FailedError) Error() string {
	return ErrCommandFailed.Error() + ": command " + e.CommandID + ": " + e.Reason
}

func (e *FailedError) Unwrap() error { return ErrCommandFailed }
