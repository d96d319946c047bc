package domain

import "errors"

// Errors
var (
	ErrInvalidStage         = errors.New("invalid stage")
	ErrInvalidPriority      = errors.New("invalid priority value")
	ErrInvalidQualityStatus = errors.New("invalid quality status")
	ErrInvalidComplexity    = errors.New("invalid complexity hint")

	ErrInvalidTransition = errors.New("stage transition not allowed")
	ErrInvalidRework     = errors.New("rework target must be an earlier stage")
	ErrStagePassed       = errors.New("batch has already passed this stage")
	ErrStageNotCurrent   = errors.New("stage is not the batch's current stage")
	ErrNotTerminal       = errors.New("batch has not reached the terminal stage")
	ErrQualityBlocked    = errors.New("batch is blocked by its quality status")

	ErrBatchNotFound      = errors.New("batch not found")
	ErrBatchArchived      = errors.New("batch is archived")
	ErrEmptyBatch         = errors.New("batch must contain at least one order")
	ErrDuplicateOrder     = errors.New("order listed more than once")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrWorkerNotFound     = errors.New("worker not found")

	ErrNotEligible      = errors.New("worker is not eligible for assignment")
	ErrCapacityExceeded = errors.New("worker is at assignment capacity")
	ErrAlreadyCompleted = errors.New("assignment already completed")
	ErrForbidden        = errors.New("actor is not allowed to perform this operation")
	ErrConflict         = errors.New("concurrent modification")
)
