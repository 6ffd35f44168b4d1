package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode_Permanent(t *testing.T) {
	permanent := []Code{CodeValidationError, CodeNotFound, CodeConflict}
	transient := []Code{CodeConcurrencyConflict, CodeInProgress, CodeInternalError, CodeServiceUnavailable, CodeTimeout}

	for _, c := range permanent {
		assert.True(t, c.Permanent(), c)
	}
	for _, c := range transient {
		assert.False(t, c.Permanent(), c)
	}
}

func TestAppError_WrapsCause(t *testing.T) {
	cause := errors.New("write concern timeout")
	err := fmt.Errorf("append: %w", ErrServiceUnavailable("storage").Wrap(cause))

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodeServiceUnavailable, appErr.Code)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "SERVICE_UNAVAILABLE: storage is temporarily unavailable: write concern timeout", appErr.Error())
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, "reservation not found", ErrNotFound("reservation").Message)
	assert.Equal(t, "an internal error occurred", ErrInternal("").Message)
	assert.Equal(t, "cmd-1", ErrInProgress("cmd-1").Details["commandId"])
	assert.Equal(t, "VALIDATION_ERROR: quantity must be positive", ErrValidation("quantity must be positive").Error())

	_, ok := AsAppError(errors.New("plain"))
	assert.False(t, ok)
}
