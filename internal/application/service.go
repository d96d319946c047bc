package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/metrics"
)

const tracerName = "production-service/application"

// Store bundles the repositories that share one transactional store
type Store struct {
	Batches     domain.BatchRepository
	Assignments domain.AssignmentRepository
	WorkerLoads domain.WorkerLoadRepository
	Transactor  domain.Transactor
}

// Option configures a service
type Option func(*options)

type options struct {
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// WithMetrics records business metrics on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer overrides the global tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides UUID generation
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// defaultNow truncates to the store's millisecond precision
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func buildOptions(opts []Option) options {
	o := options{
		tracer: otel.Tracer(tracerName),
		now:    defaultNow,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// closeOpenAssignments closes the open assignment of each listed stage and
// frees the worker's capacity. Must run inside a transaction.
func closeOpenAssignments(ctx context.Context, store Store, batchID string, stages []domain.Stage, closedBy string, now time.Time) ([]*domain.StageAssignment, error) {
	var closed []*domain.StageAssignment
	for _, stage := range stages {
		a, err := store.Assignments.FindOpen(ctx, batchID, stage)
		if err != nil {
			return nil, err
		}
		if a == nil {
			continue
		}
		if err := closeAssignment(ctx, store, a, closedBy, now); err != nil {
			return nil, err
		}
		closed = append(closed, a)
	}
	return closed, nil
}

func closeAssignment(ctx context.Context, store Store, a *domain.StageAssignment, closedBy string, now time.Time) error {
	if err := a.Close(closedBy, now); err != nil {
		return err
	}
	if err := store.Assignments.Update(ctx, a); err != nil {
		return err
	}
	return store.WorkerLoads.Release(ctx, a.WorkerID)
}

// loadBatch returns the batch or ErrBatchNotFound
func loadBatch(ctx context.Context, store Store, batchID string, activeOnly bool) (*domain.Batch, error) {
	batch, err := store.Batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrBatchNotFound
	}
	if activeOnly && !batch.IsActive() {
		return nil, domain.ErrBatchArchived
	}
	return batch, nil
}

// stageLabel bounds metric label values to the catalog
func stageLabel(raw string) string {
	stage, err := domain.ParseStage(raw)
	if err != nil {
		return "unknown"
	}
	return string(stage)
}
