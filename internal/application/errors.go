package application

import (
	"context"
	"errors"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	apperrors "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/errors"
)

// toAppError maps domain and store errors onto the API error taxonomy.
// Details name the entities the failing operation touched.
func toAppError(err error, operation string, details map[string]string) error {
	if err == nil {
		return nil
	}

	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.WithDetails(details)
	}

	var mapped *apperrors.AppError
	switch {
	case errors.Is(err, domain.ErrInvalidStage),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidQualityStatus),
		errors.Is(err, domain.ErrInvalidComplexity),
		errors.Is(err, domain.ErrEmptyBatch),
		errors.Is(err, domain.ErrDuplicateOrder):
		mapped = apperrors.ErrValidation(err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidRework),
		errors.Is(err, domain.ErrStagePassed),
		errors.Is(err, domain.ErrStageNotCurrent),
		errors.Is(err, domain.ErrNotTerminal):
		mapped = apperrors.ErrInvalidTransition(err.Error())
	case errors.Is(err, domain.ErrQualityBlocked):
		mapped = apperrors.ErrQualityBlocked(err.Error())
	case errors.Is(err, domain.ErrBatchNotFound),
		errors.Is(err, domain.ErrBatchArchived):
		mapped = apperrors.ErrNotFound("batch")
	case errors.Is(err, domain.ErrAssignmentNotFound):
		mapped = apperrors.ErrNotFound("assignment")
	case errors.Is(err, domain.ErrWorkerNotFound):
		mapped = apperrors.ErrNotFound("worker")
	case errors.Is(err, domain.ErrNotEligible):
		mapped = apperrors.ErrNotEligible(err.Error())
	case errors.Is(err, domain.ErrCapacityExceeded):
		mapped = apperrors.ErrNotEligible(err.Error()).WithDetail("reason", "at_capacity")
	case errors.Is(err, domain.ErrAlreadyCompleted):
		mapped = apperrors.ErrAlreadyCompleted(err.Error())
	case errors.Is(err, domain.ErrOrderNotPending),
		errors.Is(err, domain.ErrConflict):
		mapped = apperrors.ErrConflict(err.Error())
	case errors.Is(err, domain.ErrForbidden):
		mapped = apperrors.ErrForbidden(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		mapped = apperrors.ErrTimeout(operation)
	default:
		mapped = apperrors.ErrStorage(operation)
	}

	return mapped.Wrap(err).WithDetails(details)
}

// unavailable reports a failed collaborator call
func unavailable(service string, err error) error {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ErrTimeout(service).Wrap(err)
	}
	return apperrors.ErrServiceUnavailable(service).Wrap(err)
}

// errorCode is the metric label for an operation result
func errorCode(err error) string {
	if err == nil {
		return "success"
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.Code
	}
	return apperrors.CodeInternalError
}
