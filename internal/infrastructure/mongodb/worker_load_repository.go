package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	sharedmongo "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/mongodb"
)

type workerLoad struct {
	WorkerID  string `bson:"_id"`
	OpenCount int    `bson:"openCount"`
}

// WorkerLoadRepository implements domain.WorkerLoadRepository for MongoDB
type WorkerLoadRepository struct {
	store *Store
}

// NewWorkerLoadRepository creates a new WorkerLoadRepository
func NewWorkerLoadRepository(store *Store) *WorkerLoadRepository {
	return &WorkerLoadRepository{store: store}
}

// Reserve increments the worker's count with a conditional upsert. A worker at
// limit fails the filter, the upsert then collides on _id and the duplicate
// key is reported as ErrCapacityExceeded.
func (r *WorkerLoadRepository) Reserve(ctx context.Context, workerID string, limit int) error {
	if limit <= 0 {
		return domain.ErrCapacityExceeded
	}

	_, err := r.store.loads.UpdateOne(ctx,
		bson.M{"_id": workerID, "openCount": bson.M{"$lt": limit}},
		bson.M{"$inc": bson.M{"openCount": 1}},
		options.Update().SetUpsert(true),
	)
	if sharedmongo.IsDuplicateKey(err) {
		return domain.ErrCapacityExceeded
	}
	if err != nil {
		return fmt.Errorf("failed to reserve worker load: %w", err)
	}
	return nil
}

// Release decrements the worker's count, never below zero
func (r *WorkerLoadRepository) Release(ctx context.Context, workerID string) error {
	_, err := r.store.loads.UpdateOne(ctx,
		bson.M{"_id": workerID, "openCount": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"openCount": -1}},
	)
	if err != nil {
		return fmt.Errorf("failed to release worker load: %w", err)
	}
	return nil
}

// OpenCounts returns the stored counts of the given workers
func (r *WorkerLoadRepository) OpenCounts(ctx context.Context, workerIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(workerIDs))
	if len(workerIDs) == 0 {
		return counts, nil
	}

	cursor, err := r.store.loads.Find(ctx, bson.M{"_id": bson.M{"$in": workerIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to find worker loads: %w", err)
	}
	defer cursor.Close(ctx)

	var loads []workerLoad
	if err := cursor.All(ctx, &loads); err != nil {
		return nil, fmt.Errorf("failed to decode worker loads: %w", err)
	}
	for _, l := range loads {
		counts[l.WorkerID] = l.OpenCount
	}
	return counts, nil
}
