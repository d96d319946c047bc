package domain

import "context"

// BatchRepository defines the interface for batch persistence. Create and
// Update write the aggregate's pending domain events as change records in the
// same store transaction. Lookups return nil, nil when nothing matches.
type BatchRepository interface {
	// Create inserts a new batch at version 1 and claims its orders. An order
	// already held by an open batch yields ErrConflict.
	Create(ctx context.Context, batch *Batch) error
	// Update saves the batch if its stored version still equals batch.Version,
	// then bumps the version. A lost race yields ErrConflict. Archiving
	// releases the batch's order membership.
	Update(ctx context.Context, batch *Batch) error
	FindByID(ctx context.Context, batchID string) (*Batch, error)
	FindActive(ctx context.Context) ([]*Batch, error)
	// NextBatchNumber allocates the next human-readable batch number
	NextBatchNumber(ctx context.Context) (string, error)
}

// AssignmentRepository defines the interface for stage assignment persistence.
// At most one open assignment may exist per (batch, stage); a second Create
// for an occupied slot yields ErrConflict.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *StageAssignment) error
	Update(ctx context.Context, assignment *StageAssignment) error
	FindByID(ctx context.Context, assignmentID string) (*StageAssignment, error)
	FindOpen(ctx context.Context, batchID string, stage Stage) (*StageAssignment, error)
	FindOpenByBatch(ctx context.Context, batchID string) ([]*StageAssignment, error)
	FindByBatch(ctx context.Context, batchID string) ([]*StageAssignment, error)
}

// WorkerLoadRepository tracks open assignment counts per worker. It is the
// store-side guard on worker capacity shared by every process.
type WorkerLoadRepository interface {
	// Reserve increments the worker's count only while it is below limit,
	// otherwise ErrCapacityExceeded
	Reserve(ctx context.Context, workerID string, limit int) error
	Release(ctx context.Context, workerID string) error
	OpenCounts(ctx context.Context, workerIDs []string) (map[string]int, error)
}

// Transactor runs fn as a single atomic unit against the store. Repositories
// called with the context passed to fn join the transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
