package mongodb

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	sharedmongo "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/mongodb"
)

// AssignmentRepository implements domain.AssignmentRepository for MongoDB
type AssignmentRepository struct {
	store *Store
}

// NewAssignmentRepository creates a new AssignmentRepository
func NewAssignmentRepository(store *Store) *AssignmentRepository {
	return &AssignmentRepository{store: store}
}

// Create inserts the assignment at version 1. The partial unique index on
// open slots turns a second open assignment into ErrConflict.
func (r *AssignmentRepository) Create(ctx context.Context, a *domain.StageAssignment) error {
	return r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		a.Version = 1
		if _, err := r.store.assignments.InsertOne(ctx, a); err != nil {
			if sharedmongo.IsDuplicateKey(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
		return r.writeChange(ctx, a)
	})
}

// Update saves the assignment if the stored version still matches
func (r *AssignmentRepository) Update(ctx context.Context, a *domain.StageAssignment) error {
	return r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		set := bson.M{
			"workerId":   a.WorkerID,
			"status":     a.Status,
			"assignedBy": a.AssignedBy,
			"startedAt":  a.StartedAt,
			"outcome":    a.Outcome,
			"closedBy":   a.ClosedBy,
			"updatedAt":  a.UpdatedAt,
		}
		if a.CompletedAt != nil {
			set["completedAt"] = *a.CompletedAt
		}

		result, err := r.store.assignments.UpdateOne(ctx,
			bson.M{"_id": a.ID, "version": a.Version},
			bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		)
		if err != nil {
			if sharedmongo.IsDuplicateKey(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("failed to update assignment: %w", err)
		}
		if result.MatchedCount == 0 {
			return domain.ErrConflict
		}
		a.Version++
		return r.writeChange(ctx, a)
	})
}

func (r *AssignmentRepository) writeChange(ctx context.Context, a *domain.StageAssignment) error {
	record, err := r.store.builder.ForAssignment(ctx, a)
	if err != nil {
		return err
	}
	if err := r.store.saveChange(ctx, record); err != nil {
		return err
	}
	a.ClearDomainEvents()
	return nil
}

// FindByID returns nil, nil when the assignment does not exist
func (r *AssignmentRepository) FindByID(ctx context.Context, assignmentID string) (*domain.StageAssignment, error) {
	return r.findOne(ctx, bson.M{"_id": assignmentID})
}

// FindOpen returns the open assignment of a slot, or nil
func (r *AssignmentRepository) FindOpen(ctx context.Context, batchID string, stage domain.Stage) (*domain.StageAssignment, error) {
	return r.findOne(ctx, bson.M{
		"batchId": batchID,
		"stage":   stage,
		"status":  domain.AssignmentStatusOpen,
	})
}

// FindOpenByBatch returns the open assignments of a batch in catalog order
func (r *AssignmentRepository) FindOpenByBatch(ctx context.Context, batchID string) ([]*domain.StageAssignment, error) {
	assignments, err := r.find(ctx, bson.M{"batchId": batchID, "status": domain.AssignmentStatusOpen})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(assignments, func(i, j int) bool {
		return assignments[i].Stage.Ordinal() < assignments[j].Stage.Ordinal()
	})
	return assignments, nil
}

// FindByBatch returns every assignment of a batch, oldest first
func (r *AssignmentRepository) FindByBatch(ctx context.Context, batchID string) ([]*domain.StageAssignment, error) {
	return r.find(ctx, bson.M{"batchId": batchID})
}

func (r *AssignmentRepository) findOne(ctx context.Context, filter bson.M) (*domain.StageAssignment, error) {
	var a domain.StageAssignment
	err := r.store.assignments.FindOne(ctx, filter).Decode(&a)
	if sharedmongo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find assignment: %w", err)
	}
	return &a, nil
}

func (r *AssignmentRepository) find(ctx context.Context, filter bson.M) ([]*domain.StageAssignment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.store.assignments.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find assignments: %w", err)
	}
	defer cursor.Close(ctx)

	var assignments []*domain.StageAssignment
	if err := cursor.All(ctx, &assignments); err != nil {
		return nil, fmt.Errorf("failed to decode assignments: %w", err)
	}
	return assignments, nil
}
