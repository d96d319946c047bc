package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	sharedmongo "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/mongodb"
)

const batchCounterID = "batch_number"

// BatchRepository implements domain.BatchRepository for MongoDB
type BatchRepository struct {
	store *Store
}

// NewBatchRepository creates a new BatchRepository
func NewBatchRepository(store *Store) *BatchRepository {
	return &BatchRepository{store: store}
}

// Create inserts the batch at version 1. The partial unique index on orderIds
// rejects an order already held by an active batch.
func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	return r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		batch.Version = 1
		if _, err := r.store.batches.InsertOne(ctx, batch); err != nil {
			if sharedmongo.IsDuplicateKey(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("failed to insert batch: %w", err)
		}
		return r.writeChange(ctx, batch)
	})
}

// Update saves the batch if the stored version still matches
func (r *BatchRepository) Update(ctx context.Context, batch *domain.Batch) error {
	return r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		filter := bson.M{"_id": batch.ID, "version": batch.Version}
		set := bson.M{
			"currentStage":  batch.CurrentStage,
			"qualityStatus": batch.QualityStatus,
			"priority":      batch.Priority,
			"status":        batch.Status,
			"updatedAt":     batch.UpdatedAt,
		}
		update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
		if batch.ArchivedAt != nil {
			set["archivedAt"] = *batch.ArchivedAt
		}

		result, err := r.store.batches.UpdateOne(ctx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to update batch: %w", err)
		}
		if result.MatchedCount == 0 {
			return domain.ErrConflict
		}
		batch.Version++
		return r.writeChange(ctx, batch)
	})
}

func (r *BatchRepository) writeChange(ctx context.Context, batch *domain.Batch) error {
	record, err := r.store.builder.ForBatch(ctx, batch)
	if err != nil {
		return err
	}
	if err := r.store.saveChange(ctx, record); err != nil {
		return err
	}
	batch.ClearDomainEvents()
	return nil
}

// FindByID returns nil, nil when the batch does not exist
func (r *BatchRepository) FindByID(ctx context.Context, batchID string) (*domain.Batch, error) {
	var batch domain.Batch
	err := r.store.batches.FindOne(ctx, bson.M{"_id": batchID}).Decode(&batch)
	if sharedmongo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find batch: %w", err)
	}
	return &batch, nil
}

// FindActive returns every active batch, oldest first
func (r *BatchRepository) FindActive(ctx context.Context) ([]*domain.Batch, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "batchNumber", Value: 1}})

	cursor, err := r.store.batches.Find(ctx, bson.M{"status": domain.BatchStatusActive}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find active batches: %w", err)
	}
	defer cursor.Close(ctx)

	var batches []*domain.Batch
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, fmt.Errorf("failed to decode batches: %w", err)
	}
	return batches, nil
}

// NextBatchNumber increments the batch counter document
func (r *BatchRepository) NextBatchNumber(ctx context.Context) (string, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter struct {
		Value int64 `bson:"value"`
	}
	err := r.store.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": batchCounterID},
		bson.M{"$inc": bson.M{"value": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return "", fmt.Errorf("failed to allocate batch number: %w", err)
	}
	return fmt.Sprintf("B-%d", counter.Value), nil
}
