package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/outbox"
)

const (
	batchesTable      = "batches"
	batchOrdersTable  = "batch_orders"
	countersTable     = "counters"
	batchNumberPrefix = "B-"
	batchCounterName  = "batch_number"
)

var batchColumns = []string{
	"id", "batch_number", "order_ids", "current_stage", "quality_status", "priority",
	"status", "version", "created_by", "created_at", "updated_at", "archived_at",
}

// BatchRepository implements domain.BatchRepository on SQLite
type BatchRepository struct {
	store *Store
}

// NewBatchRepository creates a new BatchRepository
func NewBatchRepository(store *Store) *BatchRepository {
	return &BatchRepository{store: store}
}

// Create inserts the batch at version 1, claims its orders and writes the
// change record
func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	return r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		orderIDs, err := json.Marshal(batch.OrderIDs)
		if err != nil {
			return fmt.Errorf("marshal order ids: %w", err)
		}

		batch.Version = 1
		query, args, err := psql.Insert(batchesTable).
			Columns(batchColumns...).
			Values(
				batch.ID, batch.BatchNumber, string(orderIDs), string(batch.CurrentStage), string(batch.QualityStatus),
				string(batch.Priority), string(batch.Status), batch.Version, batch.CreatedBy,
				toMillis(batch.CreatedAt), toMillis(batch.UpdatedAt), toNullMillis(batch.ArchivedAt),
			).
			ToSql()
		if err != nil {
			return err
		}
		err = r.store.observe(ctx, batchesTable, "insert", func(ctx context.Context) error {
			_, err := r.store.conn(ctx).ExecContext(ctx, query, args...)
			return err
		})
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("insert batch: %w", err)
		}

		claim := psql.Insert(batchOrdersTable).Columns("batch_id", "order_id", "active")
		for _, orderID := range batch.OrderIDs {
			claim = claim.Values(batch.ID, orderID, 1)
		}
		query, args, err = claim.ToSql()
		if err != nil {
			return err
		}
		err = r.store.observe(ctx, batchOrdersTable, "insert", func(ctx context.Context) error {
			_, err := r.store.conn(ctx).ExecContext(ctx, query, args...)
			return err
		})
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("claim orders: %w", err)
		}

		return r.writeChange(ctx, batch)
	})
}

// Update saves the batch if the stored version still matches, then bumps it
func (r *BatchRepository) Update(ctx context.Context, batch *domain.Batch) error {
	return r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		query, args, err := psql.Update(batchesTable).
			Set("current_stage", string(batch.CurrentStage)).
			Set("quality_status", string(batch.QualityStatus)).
			Set("priority", string(batch.Priority)).
			Set("status", string(batch.Status)).
			Set("version", sq.Expr("version + 1")).
			Set("updated_at", toMillis(batch.UpdatedAt)).
			Set("archived_at", toNullMillis(batch.ArchivedAt)).
			Where(sq.Eq{"id": batch.ID, "version": batch.Version}).
			ToSql()
		if err != nil {
			return err
		}

		var affected int64
		err = r.store.observe(ctx, batchesTable, "update", func(ctx context.Context) error {
			res, err := r.store.conn(ctx).ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			affected, err = res.RowsAffected()
			return err
		})
		if err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
		if affected == 0 {
			return domain.ErrConflict
		}
		batch.Version++

		if !batch.IsActive() {
			query, args, err := psql.Update(batchOrdersTable).
				Set("active", 0).
				Where(sq.Eq{"batch_id": batch.ID}).
				ToSql()
			if err != nil {
				return err
			}
			err = r.store.observe(ctx, batchOrdersTable, "update", func(ctx context.Context) error {
				_, err := r.store.conn(ctx).ExecContext(ctx, query, args...)
				return err
			})
			if err != nil {
				return fmt.Errorf("release orders: %w", err)
			}
		}

		return r.writeChange(ctx, batch)
	})
}

func (r *BatchRepository) writeChange(ctx context.Context, batch *domain.Batch) error {
	record, err := r.store.builder.ForBatch(ctx, batch)
	if err != nil {
		return err
	}
	if record != nil {
		if err := NewOutboxRepository(r.store).SaveAll(ctx, []*outbox.OutboxEvent{record}); err != nil {
			return err
		}
	}
	batch.ClearDomainEvents()
	return nil
}

// FindByID returns nil, nil when the batch does not exist
func (r *BatchRepository) FindByID(ctx context.Context, batchID string) (*domain.Batch, error) {
	query, args, err := psql.Select(batchColumns...).From(batchesTable).Where(sq.Eq{"id": batchID}).ToSql()
	if err != nil {
		return nil, err
	}

	var batch *domain.Batch
	err = r.store.observe(ctx, batchesTable, "findOne", func(ctx context.Context) error {
		var err error
		batch, err = scanBatch(r.store.conn(ctx).QueryRowContext(ctx, query, args...))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find batch: %w", err)
	}
	return batch, nil
}

// FindActive returns every active batch, oldest first
func (r *BatchRepository) FindActive(ctx context.Context) ([]*domain.Batch, error) {
	query, args, err := psql.Select(batchColumns...).
		From(batchesTable).
		Where(sq.Eq{"status": string(domain.BatchStatusActive)}).
		OrderBy("created_at ASC", "batch_number ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var batches []*domain.Batch
	err = r.store.observe(ctx, batchesTable, "find", func(ctx context.Context) error {
		rows, err := r.store.conn(ctx).QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			batch, err := scanBatch(rows)
			if err != nil {
				return err
			}
			batches = append(batches, batch)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("find active batches: %w", err)
	}
	return batches, nil
}

// NextBatchNumber allocates B-<n> from a monotonically increasing counter
func (r *BatchRepository) NextBatchNumber(ctx context.Context) (string, error) {
	query, args, err := psql.Insert(countersTable).
		Columns("name", "value").
		Values(batchCounterName, 1).
		Suffix("ON CONFLICT(name) DO UPDATE SET value = value + 1 RETURNING value").
		ToSql()
	if err != nil {
		return "", err
	}

	var value int64
	err = r.store.observe(ctx, countersTable, "increment", func(ctx context.Context) error {
		return r.store.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&value)
	})
	if err != nil {
		return "", fmt.Errorf("allocate batch number: %w", err)
	}
	return fmt.Sprintf("%s%d", batchNumberPrefix, value), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*domain.Batch, error) {
	var (
		b          domain.Batch
		orderIDs   string
		stage      string
		quality    string
		priority   string
		status     string
		createdAt  int64
		updatedAt  int64
		archivedAt sql.NullInt64
	)
	if err := row.Scan(
		&b.ID, &b.BatchNumber, &orderIDs, &stage, &quality, &priority,
		&status, &b.Version, &b.CreatedBy, &createdAt, &updatedAt, &archivedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(orderIDs), &b.OrderIDs); err != nil {
		return nil, fmt.Errorf("decode order ids of %s: %w", b.ID, err)
	}

	b.CurrentStage = domain.Stage(stage)
	b.QualityStatus = domain.QualityStatus(quality)
	b.Priority = domain.Priority(priority)
	b.Status = domain.BatchStatus(status)
	b.CreatedAt = fromMillis(createdAt)
	b.UpdatedAt = fromMillis(updatedAt)
	b.ArchivedAt = fromNullMillis(archivedAt)
	b.DomainEvents = make([]domain.DomainEvent, 0)
	return &b, nil
}
