package application

import (
	"context"
	"strings"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	apperrors "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/errors"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/tracing"
)

// PipelineService handles batch lifecycle use cases
type PipelineService struct {
	store   Store
	orders  domain.OrderSource
	quality domain.QualityGate
	logger  *logging.Logger
	opts    options
}

// NewPipelineService creates a new PipelineService
func NewPipelineService(store Store, orders domain.OrderSource, quality domain.QualityGate, logger *logging.Logger, opts ...Option) *PipelineService {
	return &PipelineService{
		store:   store,
		orders:  orders,
		quality: quality,
		logger:  logger.WithComponent("pipeline-service"),
		opts:    buildOptions(opts),
	}
}

// CreateBatch groups pending orders into a new batch at the initial stage
func (s *PipelineService) CreateBatch(ctx context.Context, cmd CreateBatchCommand) (*BatchDTO, error) {
	return tracing.TracedOperation(ctx, s.opts.tracer, "PipelineService.CreateBatch", func(ctx context.Context) (*BatchDTO, error) {
		if err := cmd.Actor.RequireSupervisor(); err != nil {
			return nil, toAppError(err, "create batch", nil)
		}
		if len(cmd.OrderIDs) == 0 {
			return nil, toAppError(domain.ErrEmptyBatch, "create batch", nil)
		}

		pending, err := s.orders.GetPendingOrders(ctx)
		if err != nil {
			return nil, unavailable("order management", err)
		}
		byID := make(map[string]domain.Order, len(pending))
		for _, o := range pending {
			if o.IsPending() {
				byID[o.OrderID] = o
			}
		}

		orders := make([]domain.Order, 0, len(cmd.OrderIDs))
		seen := make(map[string]bool, len(cmd.OrderIDs))
		for _, id := range cmd.OrderIDs {
			if seen[id] {
				return nil, toAppError(domain.ErrDuplicateOrder, "create batch", map[string]string{"orderId": id})
			}
			seen[id] = true

			o, ok := byID[id]
			if !ok {
				return nil, toAppError(domain.ErrOrderNotPending, "create batch", map[string]string{"orderId": id})
			}
			orders = append(orders, o)
		}

		var created *domain.Batch
		err = s.store.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			number, err := s.store.Batches.NextBatchNumber(ctx)
			if err != nil {
				return err
			}
			batch, err := domain.NewBatch(s.opts.newID(), number, orders, cmd.Actor.ID, s.opts.now())
			if err != nil {
				return err
			}
			if err := s.store.Batches.Create(ctx, batch); err != nil {
				return err
			}
			created = batch
			return nil
		})
		if err != nil {
			return nil, toAppError(err, "create batch", nil)
		}

		s.logger.Audit(ctx, "batch.created", "batch", created.ID, cmd.Actor.ID, map[string]any{
			"batchNumber": created.BatchNumber,
			"orderCount":  len(created.OrderIDs),
			"priority":    string(created.Priority),
		})

		return ToBatchDTO(created), nil
	})
}

// GetBatch retrieves a batch, archived or not
func (s *PipelineService) GetBatch(ctx context.Context, query GetBatchQuery) (*BatchDTO, error) {
	batch, err := loadBatch(ctx, s.store, query.BatchID, false)
	if err != nil {
		return nil, toAppError(err, "get batch", map[string]string{"batchId": query.BatchID})
	}
	return ToBatchDTO(batch), nil
}

// Transition moves a batch forward. The quality subsystem reports the status
// for the target stage, and the open assignments of every stage the batch
// leaves behind are closed in the same transaction.
func (s *PipelineService) Transition(ctx context.Context, cmd TransitionCommand) (*BatchDTO, error) {
	details := map[string]string{"batchId": cmd.BatchID, "toStage": cmd.ToStage}

	result, err := tracing.TracedOperation(ctx, s.opts.tracer, "PipelineService.Transition", func(ctx context.Context) (*BatchDTO, error) {
		if err := cmd.Actor.RequireSupervisor(); err != nil {
			return nil, toAppError(err, "transition", details)
		}
		to, err := domain.ParseStage(cmd.ToStage)
		if err != nil {
			return nil, toAppError(err, "transition", details)
		}

		batch, err := loadBatch(ctx, s.store, cmd.BatchID, true)
		if err != nil {
			return nil, toAppError(err, "transition", details)
		}
		if err := batch.CanTransition(to); err != nil {
			return nil, toAppError(err, "transition", details)
		}

		quality, err := s.quality.GetOpenQualityStatus(ctx, batch.ID, to)
		if err != nil {
			return nil, unavailable("quality subsystem", err)
		}

		var (
			updated *domain.Batch
			from    domain.Stage
			closed  []*domain.StageAssignment
		)
		err = s.store.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			b, err := loadBatch(ctx, s.store, cmd.BatchID, true)
			if err != nil {
				return err
			}
			now := s.opts.now()
			from = b.CurrentStage
			if err := b.Transition(to, quality, cmd.Actor.ID, now); err != nil {
				return err
			}
			closed, err = closeOpenAssignments(ctx, s.store, b.ID, domain.StagesBetween(from, to), domain.ClosedByTransition, now)
			if err != nil {
				return err
			}
			if err := s.store.Batches.Update(ctx, b); err != nil {
				return err
			}
			updated = b
			return nil
		})
		if err != nil {
			return nil, toAppError(err, "transition", details)
		}

		s.logger.Audit(ctx, "batch.transitioned", "batch", updated.ID, cmd.Actor.ID, map[string]any{
			"fromStage":         string(from),
			"toStage":           string(to),
			"qualityStatus":     string(updated.QualityStatus),
			"closedAssignments": len(closed),
			"version":           updated.Version,
		})

		return ToBatchDTO(updated), nil
	})

	s.opts.metrics.RecordTransition(stageLabel(cmd.ToStage), errorCode(err))
	return result, err
}

// Rework sends a batch back to an earlier stage. Quality does not block rework.
func (s *PipelineService) Rework(ctx context.Context, cmd ReworkCommand) (*BatchDTO, error) {
	details := map[string]string{"batchId": cmd.BatchID, "toStage": cmd.ToStage}

	return tracing.TracedOperation(ctx, s.opts.tracer, "PipelineService.Rework", func(ctx context.Context) (*BatchDTO, error) {
		if err := cmd.Actor.RequireSupervisor(); err != nil {
			return nil, toAppError(err, "rework", details)
		}
		to, err := domain.ParseStage(cmd.ToStage)
		if err != nil {
			return nil, toAppError(err, "rework", details)
		}
		if strings.TrimSpace(cmd.Reason) == "" {
			return nil, apperrors.ErrValidationWithFields("rework reason is required", map[string]string{"reason": "required"})
		}

		batch, err := loadBatch(ctx, s.store, cmd.BatchID, true)
		if err != nil {
			return nil, toAppError(err, "rework", details)
		}
		if !to.IsBefore(batch.CurrentStage) {
			return nil, toAppError(domain.ErrInvalidRework, "rework", details)
		}

		quality, err := s.quality.GetOpenQualityStatus(ctx, batch.ID, to)
		if err != nil {
			return nil, unavailable("quality subsystem", err)
		}

		var (
			updated *domain.Batch
			from    domain.Stage
		)
		err = s.store.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			b, err := loadBatch(ctx, s.store, cmd.BatchID, true)
			if err != nil {
				return err
			}
			now := s.opts.now()
			from = b.CurrentStage
			if err := b.Rework(to, cmd.Reason, quality, cmd.Actor.ID, now); err != nil {
				return err
			}
			if _, err := closeOpenAssignments(ctx, s.store, b.ID, []domain.Stage{from}, domain.ClosedByRework, now); err != nil {
				return err
			}
			if err := s.store.Batches.Update(ctx, b); err != nil {
				return err
			}
			updated = b
			return nil
		})
		if err != nil {
			return nil, toAppError(err, "rework", details)
		}

		s.logger.Audit(ctx, "batch.reworked", "batch", updated.ID, cmd.Actor.ID, map[string]any{
			"fromStage": string(from),
			"toStage":   string(to),
			"reason":    cmd.Reason,
		})

		return ToBatchDTO(updated), nil
	})
}

// RecordQualityCheck folds a quality result for the current stage into the
// batch. The worse status wins.
func (s *PipelineService) RecordQualityCheck(ctx context.Context, cmd RecordQualityCheckCommand) (*BatchDTO, error) {
	details := map[string]string{"batchId": cmd.BatchID, "stage": cmd.Stage}

	return tracing.TracedOperation(ctx, s.opts.tracer, "PipelineService.RecordQualityCheck", func(ctx context.Context) (*BatchDTO, error) {
		if cmd.Actor.ID == "" {
			return nil, apperrors.ErrUnauthorized("")
		}
		stage, err := domain.ParseStage(cmd.Stage)
		if err != nil {
			return nil, toAppError(err, "record quality check", details)
		}
		status, err := domain.ParseQualityStatus(cmd.Status)
		if err != nil {
			return nil, toAppError(err, "record quality check", details)
		}

		var (
			result  *domain.Batch
			changed bool
		)
		err = s.store.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			b, err := loadBatch(ctx, s.store, cmd.BatchID, true)
			if err != nil {
				return err
			}
			changed, err = b.RecordQuality(stage, status, cmd.Actor.ID, s.opts.now())
			if err != nil {
				return err
			}
			if changed {
				if err := s.store.Batches.Update(ctx, b); err != nil {
					return err
				}
			}
			result = b
			return nil
		})
		if err != nil {
			return nil, toAppError(err, "record quality check", details)
		}

		if changed {
			s.logger.Audit(ctx, "batch.quality_changed", "batch", result.ID, cmd.Actor.ID, map[string]any{
				"stage":         string(stage),
				"reported":      string(status),
				"qualityStatus": string(result.QualityStatus),
			})
		}

		return ToBatchDTO(result), nil
	})
}

// ArchiveBatch removes a batch at the terminal stage from the pipeline and
// closes whatever assignments remain open on it
func (s *PipelineService) ArchiveBatch(ctx context.Context, cmd ArchiveBatchCommand) (*BatchDTO, error) {
	details := map[string]string{"batchId": cmd.BatchID}

	return tracing.TracedOperation(ctx, s.opts.tracer, "PipelineService.ArchiveBatch", func(ctx context.Context) (*BatchDTO, error) {
		if err := cmd.Actor.RequireSupervisor(); err != nil {
			return nil, toAppError(err, "archive batch", details)
		}

		var archived *domain.Batch
		err := s.store.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			b, err := loadBatch(ctx, s.store, cmd.BatchID, true)
			if err != nil {
				return err
			}
			now := s.opts.now()
			if err := b.Archive(cmd.Actor.ID, now); err != nil {
				return err
			}
			open, err := s.store.Assignments.FindOpenByBatch(ctx, b.ID)
			if err != nil {
				return err
			}
			for _, a := range open {
				if err := closeAssignment(ctx, s.store, a, domain.ClosedByArchive, now); err != nil {
					return err
				}
			}
			if err := s.store.Batches.Update(ctx, b); err != nil {
				return err
			}
			archived = b
			return nil
		})
		if err != nil {
			return nil, toAppError(err, "archive batch", details)
		}

		s.logger.Audit(ctx, "batch.archived", "batch", archived.ID, cmd.Actor.ID, nil)
		return ToBatchDTO(archived), nil
	})
}

// PipelineView groups every active batch by current stage, each group
// ordered by priority then age
func (s *PipelineService) PipelineView(ctx context.Context) (*PipelineDTO, error) {
	return tracing.TracedOperation(ctx, s.opts.tracer, "PipelineService.PipelineView", func(ctx context.Context) (*PipelineDTO, error) {
		batches, err := s.store.Batches.FindActive(ctx)
		if err != nil {
			return nil, toAppError(err, "pipeline view", nil)
		}
		return ToPipelineDTO(domain.GroupByStage(batches), s.opts.now()), nil
	})
}

// ActiveBatches returns the active batches for seeding live projections
func (s *PipelineService) ActiveBatches(ctx context.Context) ([]*domain.Batch, error) {
	batches, err := s.store.Batches.FindActive(ctx)
	if err != nil {
		return nil, toAppError(err, "list active batches", nil)
	}
	return batches, nil
}
