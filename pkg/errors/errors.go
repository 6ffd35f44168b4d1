// Package errors classifies engine failures into codes that callers act on:
// a permanent code means resubmitting the same request cannot succeed.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure
type Code string

const (
	CodeValidationError     Code = "VALIDATION_ERROR"
	CodeNotFound            Code = "RESOURCE_NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeInProgress          Code = "IDEMPOTENCY_IN_PROGRESS"
	CodeInternalError       Code = "INTERNAL_ERROR"
	CodeServiceUnavailable  Code = "SERVICE_UNAVAILABLE"
	CodeTimeout             Code = "TIMEOUT"
)

// Permanent reports whether a failure with this code will repeat on resubmission
func (c Code) Permanent() bool {
	switch c {
	case CodeValidationError, CodeNotFound, CodeConflict:
		return true
	default:
		return false
	}
}

// AppError is the outward form of a failure returned by the engine
type AppError struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func newError(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Permanent reports whether resubmitting the request can succeed
func (e *AppError) Permanent() bool {
	return e.Code.Permanent()
}

// Wrap records the underlying cause
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// ErrValidation rejects a malformed request or one that breaks a stock rule
func ErrValidation(message string) *AppError {
	return newError(CodeValidationError, "%s", message)
}

// ErrNotFound reports a missing resource
func ErrNotFound(resource string) *AppError {
	return newError(CodeNotFound, "%s not found", resource)
}

// ErrConflict reports a request the resource's current state does not allow
func ErrConflict(message string) *AppError {
	return newError(CodeConflict, "%s", message)
}

// ErrConcurrencyConflict reports optimistic concurrency retries running out
func ErrConcurrencyConflict(message string) *AppError {
	return newError(CodeConcurrencyConflict, "%s", message)
}

// ErrInProgress reports a command whose claim another execution still holds
func ErrInProgress(commandID string) *AppError {
	e := newError(CodeInProgress, "command is being processed")
	e.Details = map[string]string{"commandId": commandID}
	return e
}

func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return newError(CodeInternalError, "%s", message)
}

func ErrServiceUnavailable(service string) *AppError {
	return newError(CodeServiceUnavailable, "%s is temporarily unavailable", service)
}

func ErrTimeout(operation string) *AppError {
	return newError(CodeTimeout, "%s timed out", operation)
}

// AsAppError finds the first AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
