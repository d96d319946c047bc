package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/outbox"
)

const assignmentsTable = "stage_assignments"

var assignmentColumns = []string{
	"id", "batch_id", "stage", "worker_id", "status", "assigned_by", "started_at",
	"completed_at", "outcome", "closed_by", "version", "created_at", "updated_at",
}

// AssignmentRepository implements domain.AssignmentRepository on SQLite
type AssignmentRepository struct {
	store *Store
}

// NewAssignmentRepository creates a new AssignmentRepository
func NewAssignmentRepository(store *Store) *AssignmentRepository {
	return &AssignmentRepository{store: store}
}

// Create inserts the assignment at version 1. An open assignment already on
// the same (batch, stage) slot yields ErrConflict.
func (r *AssignmentRepository) Create(ctx context.Context, a *domain.StageAssignment) error {
	return r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		a.Version = 1
		query, args, err := psql.Insert(assignmentsTable).
			Columns(assignmentColumns...).
			Values(
				a.ID, a.BatchID, string(a.Stage), a.WorkerID, string(a.Status), a.AssignedBy, toMillis(a.StartedAt),
				toNullMillis(a.CompletedAt), string(a.Outcome), a.ClosedBy, a.Version, toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
			).
			ToSql()
		if err != nil {
			return err
		}

		err = r.store.observe(ctx, assignmentsTable, "insert", func(ctx context.Context) error {
			_, err := r.store.conn(ctx).ExecContext(ctx, query, args...)
			return err
		})
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("insert assignment: %w", err)
		}
		return r.writeChange(ctx, a)
	})
}

// Update saves the assignment if the stored version still matches
func (r *AssignmentRepository) Update(ctx context.Context, a *domain.StageAssignment) error {
	return r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		query, args, err := psql.Update(assignmentsTable).
			Set("worker_id", a.WorkerID).
			Set("status", string(a.Status)).
			Set("assigned_by", a.AssignedBy).
			Set("started_at", toMillis(a.StartedAt)).
			Set("completed_at", toNullMillis(a.CompletedAt)).
			Set("outcome", string(a.Outcome)).
			Set("closed_by", a.ClosedBy).
			Set("version", sq.Expr("version + 1")).
			Set("updated_at", toMillis(a.UpdatedAt)).
			Where(sq.Eq{"id": a.ID, "version": a.Version}).
			ToSql()
		if err != nil {
			return err
		}

		var affected int64
		err = r.store.observe(ctx, assignmentsTable, "update", func(ctx context.Context) error {
			res, err := r.store.conn(ctx).ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			affected, err = res.RowsAffected()
			return err
		})
		if err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		if affected == 0 {
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
	if record != nil {
		if err := NewOutboxRepository(r.store).SaveAll(ctx, []*outbox.OutboxEvent{record}); err != nil {
			return err
		}
	}
	a.ClearDomainEvents()
	return nil
}

// FindByID returns nil, nil when the assignment does not exist
func (r *AssignmentRepository) FindByID(ctx context.Context, assignmentID string) (*domain.StageAssignment, error) {
	return r.findOne(ctx, sq.Eq{"id": assignmentID})
}

// FindOpen returns the open assignment of a slot, or nil
func (r *AssignmentRepository) FindOpen(ctx context.Context, batchID string, stage domain.Stage) (*domain.StageAssignment, error) {
	return r.findOne(ctx, sq.Eq{
		"batch_id": batchID,
		"stage":    string(stage),
		"status":   string(domain.AssignmentStatusOpen),
	})
}

// FindOpenByBatch returns the open assignments of a batch in catalog order
func (r *AssignmentRepository) FindOpenByBatch(ctx context.Context, batchID string) ([]*domain.StageAssignment, error) {
	assignments, err := r.find(ctx, sq.Eq{"batch_id": batchID, "status": string(domain.AssignmentStatusOpen)})
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
	return r.find(ctx, sq.Eq{"batch_id": batchID})
}

func (r *AssignmentRepository) findOne(ctx context.Context, where sq.Eq) (*domain.StageAssignment, error) {
	query, args, err := psql.Select(assignmentColumns...).From(assignmentsTable).Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}

	var a *domain.StageAssignment
	err = r.store.observe(ctx, assignmentsTable, "findOne", func(ctx context.Context) error {
		var err error
		a, err = scanAssignment(r.store.conn(ctx).QueryRowContext(ctx, query, args...))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return a, nil
}

func (r *AssignmentRepository) find(ctx context.Context, where sq.Eq) ([]*domain.StageAssignment, error) {
	query, args, err := psql.Select(assignmentColumns...).
		From(assignmentsTable).
		Where(where).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var assignments []*domain.StageAssignment
	err = r.store.observe(ctx, assignmentsTable, "find", func(ctx context.Context) error {
		rows, err := r.store.conn(ctx).QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			a, err := scanAssignment(rows)
			if err != nil {
				return err
			}
			assignments = append(assignments, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("find assignments: %w", err)
	}
	return assignments, nil
}

func scanAssignment(row rowScanner) (*domain.StageAssignment, error) {
	var (
		a           domain.StageAssignment
		stage       string
		status      string
		outcome     string
		startedAt   int64
		completedAt sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(
		&a.ID, &a.BatchID, &stage, &a.WorkerID, &status, &a.AssignedBy, &startedAt,
		&completedAt, &outcome, &a.ClosedBy, &a.Version, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	a.Stage = domain.Stage(stage)
	a.Status = domain.AssignmentStatus(status)
	a.Outcome = domain.QualityStatus(outcome)
	a.StartedAt = fromMillis(startedAt)
	a.CompletedAt = fromNullMillis(completedAt)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	a.DomainEvents = make([]domain.DomainEvent, 0)
	return &a, nil
}
