package application

import (
	"context"
	"errors"

	"github.com/wms-platform/stock-engine/internal/domain"
	apperrors "github.com/wms-platform/stock-engine/pkg/errors"
	"github.com/wms-platform/stock-engine/pkg/idempotency"
	"github.com/wms-platform/stock-engine/pkg/resilience"
)

// ClassifyError maps an engine error to its outward AppError form
func ClassifyError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}

	var argErr *domain.ArgumentError
	switch {
	case domain.IsValidationError(err), errors.Is(err, ErrInvalidCommand), errors.As(err, &argErr):
		return apperrors.ErrValidation(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrStreamMismatch):
		return apperrors.ErrValidation(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return apperrors.ErrConcurrencyConflict(err.Error()).Wrap(err)
	case errors.Is(err, idempotency.ErrCommandInProgress):
		return apperrors.ErrInProgress(commandIDOf(err)).Wrap(err)
	case errors.Is(err, idempotency.ErrCommandFailed):
		return apperrors.ErrConflict(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrReservationNotFound):
		return apperrors.ErrNotFound("reservation").Wrap(err)
	case errors.Is(err, domain.ErrSagaNotFound):
		return apperrors.ErrNotFound("saga").Wrap(err)
	case errors.Is(err, domain.ErrReservationNotActive),
		errors.Is(err, domain.ErrReservationNotPicking),
		errors.Is(err, domain.ErrReservationClosed),
		errors.Is(err, domain.ErrConsumeExceedsHardLock),
		errors.Is(err, domain.ErrReservationAlreadyExists):
		return apperrors.ErrConflict(err.Error()).Wrap(err)
	case errors.Is(err, resilience.ErrCircuitOpen):
		return apperrors.ErrServiceUnavailable("storage").Wrap(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrTimeout("command").Wrap(err)
	default:
		return apperrors.ErrInternal("").Wrap(err)
	}
}

func commandIDOf(err error) string {
	var inProgress *idempotency.InProgressError
	if errors.As(err, &inProgress) {
		return inProgress.CommandID
	}
	return ""
}
