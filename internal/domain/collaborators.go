package domain

import (
	"context"
	"time"
)

// OrderSource is order management
type OrderSource interface {
	GetPendingOrders(ctx context.Context) ([]Order, error)
}

// QualityGate is the quality subsystem
type QualityGate interface {
	GetOpenQualityStatus(ctx context.Context, batchID string, stage Stage) (QualityStatus, error)
}

// WorkerFilter narrows a worker directory query
type WorkerFilter struct {
	Specialization   Stage
	AvailabilityDate time.Time
}

// WorkerDirectory lists production staff
type WorkerDirectory interface {
	GetActiveWorkers(ctx context.Context, filter WorkerFilter) ([]Worker, error)
	// GetWorker returns nil, nil for unknown workers
	GetWorker(ctx context.Context, workerID string, availabilityDate time.Time) (*Worker, error)
}

// Notifier delivers fire-and-forget messages to workers
type Notifier interface {
	NotifyWorker(ctx context.Context, workerID, message string, payload map[string]any) error
}
