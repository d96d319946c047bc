package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	apperrors "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/errors"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/resilience"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/tracing"
)

// Assignment modes for metrics
const (
	modeManual = "manual"
	modeAuto   = "auto"
)

// AssignmentService handles worker assignment use cases
type AssignmentService struct {
	store     Store
	directory domain.WorkerDirectory
	notifier  domain.Notifier
	logger    *logging.Logger
	opts      options
	retry     *resilience.RetryConfig
}

// NewAssignmentService creates a new AssignmentService
func NewAssignmentService(store Store, directory domain.WorkerDirectory, notifier domain.Notifier, logger *logging.Logger, opts ...Option) *AssignmentService {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.InitialDelay = 10 * time.Millisecond
	retry.RetryableErrors = func(err error) bool {
		return errors.Is(err, domain.ErrConflict)
	}

	return &AssignmentService{
		store:     store,
		directory: directory,
		notifier:  notifier,
		logger:    logger.WithComponent("assignment-service"),
		opts:      buildOptions(opts),
		retry:     retry,
	}
}

// slotResult is the outcome of a committed slot write
type slotResult struct {
	assignment       *domain.StageAssignment
	batch            *domain.Batch
	previousWorkerID string
}

// fillSlot writes workerID into the (batch, stage) slot. An open slot held by
// another worker is reassigned; the same worker gets a fresh start time.
func (s *AssignmentService) fillSlot(ctx context.Context, batchID string, stage domain.Stage, workerID, actorID string) (*slotResult, error) {
	var result *slotResult
	err := s.store.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		batch, err := loadBatch(ctx, s.store, batchID, true)
		if err != nil {
			return err
		}
		if stage.IsBefore(batch.CurrentStage) {
			return domain.ErrStagePassed
		}

		now := s.opts.now()
		existing, err := s.store.Assignments.FindOpen(ctx, batchID, stage)
		if err != nil {
			return err
		}

		if existing == nil {
			if err := s.store.WorkerLoads.Reserve(ctx, workerID, domain.MaxOpenAssignments); err != nil {
				return err
			}
			a := domain.NewStageAssignment(s.opts.newID(), batchID, stage, workerID, actorID, now)
			if err := s.store.Assignments.Create(ctx, a); err != nil {
				return err
			}
			result = &slotResult{assignment: a, batch: batch}
			return nil
		}

		previous := existing.WorkerID
		if previous != workerID {
			if err := s.store.WorkerLoads.Reserve(ctx, workerID, domain.MaxOpenAssignments); err != nil {
				return err
			}
			if err := s.store.WorkerLoads.Release(ctx, previous); err != nil {
				return err
			}
		}
		if err := existing.Reassign(workerID, actorID, now); err != nil {
			return err
		}
		if err := s.store.Assignments.Update(ctx, existing); err != nil {
			return err
		}
		result = &slotResult{assignment: existing, batch: batch, previousWorkerID: previous}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Assign puts a named worker on a (batch, stage) slot, replacing whoever held
// it. The worker must be active, available and below capacity.
func (s *AssignmentService) Assign(ctx context.Context, cmd AssignCommand) (*AssignmentDTO, error) {
	details := map[string]string{"batchId": cmd.BatchID, "stage": cmd.Stage, "workerId": cmd.WorkerID}

	return tracing.TracedOperation(ctx, s.opts.tracer, "AssignmentService.Assign", func(ctx context.Context) (*AssignmentDTO, error) {
		if err := cmd.Actor.RequireSupervisor(); err != nil {
			return nil, toAppError(err, "assign", details)
		}
		stage, err := domain.ParseStage(cmd.Stage)
		if err != nil {
			return nil, toAppError(err, "assign", details)
		}

		worker, err := s.directory.GetWorker(ctx, cmd.WorkerID, s.opts.now())
		if err != nil {
			return nil, unavailable("worker directory", err)
		}
		if worker == nil {
			return nil, toAppError(domain.ErrWorkerNotFound, "assign", details)
		}
		counts, err := s.store.WorkerLoads.OpenCounts(ctx, []string{worker.WorkerID})
		if err != nil {
			return nil, toAppError(err, "assign", details)
		}
		overlayLoad(worker, counts)
		if reason := worker.IneligibilityReason(); reason != "" {
			return nil, apperrors.ErrNotEligible(fmt.Sprintf("worker %s is %s", worker.WorkerID, reason)).
				WithDetails(details).
				WithDetail("reason", reason)
		}

		var result *slotResult
		err = resilience.Retry(ctx, s.retry, func() error {
			var err error
			result, err = s.fillSlot(ctx, cmd.BatchID, stage, worker.WorkerID, cmd.Actor.ID)
			return err
		})
		if err != nil {
			return nil, toAppError(err, "assign", details)
		}

		s.opts.metrics.RecordAssignment(string(stage), modeManual)
		s.logger.Audit(ctx, "assignment.assigned", "assignment", result.assignment.ID, cmd.Actor.ID, map[string]any{
			"batchId":          cmd.BatchID,
			"stage":            string(stage),
			"workerId":         worker.WorkerID,
			"previousWorkerId": result.previousWorkerID,
		})
		s.notifyAssigned(ctx, result)

		return ToAssignmentDTO(result.assignment), nil
	})
}

// AutoAssignBatch staffs every stage the batch has not yet passed with its
// best-ranked eligible worker. Slots that are already staffed keep their
// worker. Stages without a candidate map to nil; a miss never fails the call.
func (s *AssignmentService) AutoAssignBatch(ctx context.Context, cmd AutoAssignCommand) (*AutoAssignResultDTO, error) {
	details := map[string]string{"batchId": cmd.BatchID}

	return tracing.TracedOperation(ctx, s.opts.tracer, "AssignmentService.AutoAssignBatch", func(ctx context.Context) (*AutoAssignResultDTO, error) {
		if err := cmd.Actor.RequireSupervisor(); err != nil {
			return nil, toAppError(err, "auto-assign", details)
		}
		hint, err := domain.ParseComplexityHint(cmd.ComplexityHint)
		if err != nil {
			return nil, toAppError(err, "auto-assign", details)
		}

		batch, err := loadBatch(ctx, s.store, cmd.BatchID, true)
		if err != nil {
			return nil, toAppError(err, "auto-assign", details)
		}
		open, err := s.store.Assignments.FindOpenByBatch(ctx, batch.ID)
		if err != nil {
			return nil, toAppError(err, "auto-assign", details)
		}
		staffed := make(map[domain.Stage]string, len(open))
		for _, a := range open {
			staffed[a.Stage] = a.WorkerID
		}

		// Fetch every pool before writing anything so a directory outage
		// leaves the batch untouched.
		pools := make(map[domain.Stage][]domain.Worker)
		for _, stage := range domain.Catalog {
			if stage.IsBefore(batch.CurrentStage) {
				continue
			}
			if _, ok := staffed[stage]; ok {
				continue
			}
			pool, err := s.stagePool(ctx, stage)
			if err != nil {
				return nil, err
			}
			pools[stage] = pool
		}

		result := &AutoAssignResultDTO{
			BatchID:     batch.ID,
			Assignments: make(map[string]*string, len(domain.Catalog)),
			Unassigned:  make([]string, 0),
		}
		for _, stage := range domain.Catalog {
			if stage.IsBefore(batch.CurrentStage) {
				result.Assignments[string(stage)] = nil
				continue
			}
			if workerID, ok := staffed[stage]; ok {
				result.Assignments[string(stage)] = &workerID
				continue
			}

			// counts move as earlier stages of this call are staffed
			pool := pools[stage]
			if err := s.refreshLoads(ctx, pool); err != nil {
				return nil, toAppError(err, "auto-assign", details)
			}
			workerID, err := s.autoFill(ctx, batch.ID, stage, hint, pool, cmd.Actor.ID)
			if err != nil {
				return nil, toAppError(err, "auto-assign", details)
			}
			if workerID == "" {
				s.opts.metrics.RecordAutoAssignMiss(string(stage))
				result.Assignments[string(stage)] = nil
				result.Unassigned = append(result.Unassigned, string(stage))
				continue
			}
			result.Assignments[string(stage)] = &workerID
		}

		s.logger.Audit(ctx, "batch.auto_assigned", "batch", batch.ID, cmd.Actor.ID, map[string]any{
			"complexity": string(hint),
			"unassigned": result.Unassigned,
		})

		return result, nil
	})
}

// autoFill walks the ranked pool until one candidate is committed. Candidates
// that hit capacity are skipped. A slot filled concurrently reports its
// holder. Returns "" when nobody could be placed.
func (s *AssignmentService) autoFill(ctx context.Context, batchID string, stage domain.Stage, hint domain.ComplexityHint, pool []domain.Worker, actorID string) (string, error) {
	for _, candidate := range domain.RankWorkersForStage(stage, hint, pool) {
		res, err := s.fillSlot(ctx, batchID, stage, candidate.WorkerID, actorID)
		switch {
		case err == nil:
			s.opts.metrics.RecordAssignment(string(stage), modeAuto)
			s.notifyAssigned(ctx, res)
			return candidate.WorkerID, nil
		case errors.Is(err, domain.ErrCapacityExceeded):
			continue
		case errors.Is(err, domain.ErrConflict):
			holder, err := s.store.Assignments.FindOpen(ctx, batchID, stage)
			if err != nil {
				return "", err
			}
			if holder != nil {
				return holder.WorkerID, nil
			}
		case errors.Is(err, domain.ErrStagePassed):
			return "", nil
		default:
			return "", err
		}
	}
	return "", nil
}

// stagePool returns the directory's active workers for a stage with open
// assignment counts reconciled against the store
func (s *AssignmentService) stagePool(ctx context.Context, stage domain.Stage) ([]domain.Worker, error) {
	pool, err := s.directory.GetActiveWorkers(ctx, domain.WorkerFilter{
		Specialization:   stage,
		AvailabilityDate: s.opts.now(),
	})
	if err != nil {
		return nil, unavailable("worker directory", err)
	}
	if len(pool) == 0 {
		return pool, nil
	}

	if err := s.refreshLoads(ctx, pool); err != nil {
		return nil, toAppError(err, "load worker counts", map[string]string{"stage": string(stage)})
	}
	return pool, nil
}

// refreshLoads overlays the store's current open counts on pool in place
func (s *AssignmentService) refreshLoads(ctx context.Context, pool []domain.Worker) error {
	if len(pool) == 0 {
		return nil
	}
	ids := make([]string, 0, len(pool))
	for _, w := range pool {
		ids = append(ids, w.WorkerID)
	}
	counts, err := s.store.WorkerLoads.OpenCounts(ctx, ids)
	if err != nil {
		return err
	}
	for i := range pool {
		overlayLoad(&pool[i], counts)
	}
	return nil
}

// overlayLoad keeps the higher of the directory's and the store's count
func overlayLoad(w *domain.Worker, counts map[string]int) {
	if n := counts[w.WorkerID]; n > w.OpenAssignments {
		w.OpenAssignments = n
	}
}

// CompleteWork closes an assignment with its quality outcome and frees the
// worker's capacity. The outcome is not folded into the batch.
func (s *AssignmentService) CompleteWork(ctx context.Context, cmd CompleteWorkCommand) (*AssignmentDTO, error) {
	details := map[string]string{"assignmentId": cmd.AssignmentID}

	return tracing.TracedOperation(ctx, s.opts.tracer, "AssignmentService.CompleteWork", func(ctx context.Context) (*AssignmentDTO, error) {
		outcome, err := domain.ParseQualityStatus(cmd.Outcome)
		if err != nil {
			return nil, toAppError(err, "complete work", details)
		}

		var completed *domain.StageAssignment
		err = s.store.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			a, err := s.store.Assignments.FindByID(ctx, cmd.AssignmentID)
			if err != nil {
				return err
			}
			if a == nil {
				return domain.ErrAssignmentNotFound
			}
			if !cmd.Actor.CanActFor(a.WorkerID) {
				return domain.ErrForbidden
			}
			if err := a.Complete(outcome, s.opts.now()); err != nil {
				return err
			}
			if err := s.store.Assignments.Update(ctx, a); err != nil {
				return err
			}
			if err := s.store.WorkerLoads.Release(ctx, a.WorkerID); err != nil {
				return err
			}
			completed = a
			return nil
		})
		if err != nil {
			return nil, toAppError(err, "complete work", details)
		}

		s.opts.metrics.RecordAssignmentCompleted(string(completed.Stage), string(outcome))
		s.logger.Audit(ctx, "assignment.completed", "assignment", completed.ID, cmd.Actor.ID, map[string]any{
			"batchId":  completed.BatchID,
			"stage":    string(completed.Stage),
			"workerId": completed.WorkerID,
			"outcome":  string(outcome),
		})

		return ToAssignmentDTO(completed), nil
	})
}

// ListAssignments returns every assignment of a batch, open or not
func (s *AssignmentService) ListAssignments(ctx context.Context, query ListAssignmentsQuery) (*AssignmentListDTO, error) {
	details := map[string]string{"batchId": query.BatchID}

	batch, err := loadBatch(ctx, s.store, query.BatchID, false)
	if err != nil {
		return nil, toAppError(err, "list assignments", details)
	}
	assignments, err := s.store.Assignments.FindByBatch(ctx, batch.ID)
	if err != nil {
		return nil, toAppError(err, "list assignments", details)
	}

	dto := &AssignmentListDTO{
		BatchID:     batch.ID,
		Assignments: make([]AssignmentDTO, 0, len(assignments)),
	}
	for _, a := range assignments {
		dto.Assignments = append(dto.Assignments, *ToAssignmentDTO(a))
	}
	return dto, nil
}

// RankWorkers scores the eligible pool for a stage, best first
func (s *AssignmentService) RankWorkers(ctx context.Context, query RankWorkersQuery) (*RankingsDTO, error) {
	details := map[string]string{"stage": query.Stage}

	return tracing.TracedOperation(ctx, s.opts.tracer, "AssignmentService.RankWorkers", func(ctx context.Context) (*RankingsDTO, error) {
		stage, err := domain.ParseStage(query.Stage)
		if err != nil {
			return nil, toAppError(err, "rank workers", details)
		}
		hint, err := domain.ParseComplexityHint(query.ComplexityHint)
		if err != nil {
			return nil, toAppError(err, "rank workers", details)
		}

		pool, err := s.stagePool(ctx, stage)
		if err != nil {
			return nil, err
		}

		ranked := domain.RankWorkersForStage(stage, hint, pool)
		dto := &RankingsDTO{
			Stage:      string(stage),
			Complexity: string(hint),
			Rankings:   make([]WorkerScoreDTO, 0, len(ranked)),
		}
		for _, score := range ranked {
			dto.Rankings = append(dto.Rankings, ToWorkerScoreDTO(score))
		}
		return dto, nil
	})
}

// notifyAssigned tells the worker about a new assignment. Delivery is best
// effort and never fails the committed write.
func (s *AssignmentService) notifyAssigned(ctx context.Context, res *slotResult) {
	if s.notifier == nil || res == nil {
		return
	}
	a := res.assignment
	message := fmt.Sprintf("You are assigned to %s for batch %s", a.Stage.DisplayName(), res.batch.BatchNumber)
	payload := map[string]any{
		"assignmentId": a.ID,
		"batchId":      a.BatchID,
		"batchNumber":  res.batch.BatchNumber,
		"stage":        string(a.Stage),
		"priority":     string(res.batch.Priority),
	}

	if err := s.notifier.NotifyWorker(ctx, a.WorkerID, message, payload); err != nil {
		s.opts.metrics.RecordNotificationFailure()
		s.logger.WithContext(ctx).WithError(err).Warn("Worker notification failed",
			"workerId", a.WorkerID,
			"assignmentId", a.ID,
		)
	}
}
