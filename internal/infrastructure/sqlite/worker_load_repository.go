package sqlite

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
)

const workerLoadsTable = "worker_loads"

// WorkerLoadRepository implements domain.WorkerLoadRepository on SQLite
type WorkerLoadRepository struct {
	store *Store
}

// NewWorkerLoadRepository creates a new WorkerLoadRepository
func NewWorkerLoadRepository(store *Store) *WorkerLoadRepository {
	return &WorkerLoadRepository{store: store}
}

// Reserve takes one unit of the worker's capacity in a single conditional
// upsert. No affected row means the worker is already at limit.
func (r *WorkerLoadRepository) Reserve(ctx context.Context, workerID string, limit int) error {
	if limit <= 0 {
		return domain.ErrCapacityExceeded
	}
	query, args, err := psql.Insert(workerLoadsTable).
		Columns("worker_id", "open_count").
		Values(workerID, 1).
		Suffix("ON CONFLICT(worker_id) DO UPDATE SET open_count = open_count + 1 WHERE open_count < ?", limit).
		ToSql()
	if err != nil {
		return err
	}

	var affected int64
	err = r.store.observe(ctx, workerLoadsTable, "reserve", func(ctx context.Context) error {
		res, err := r.store.conn(ctx).ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("reserve worker load: %w", err)
	}
	if affected == 0 {
		return domain.ErrCapacityExceeded
	}
	return nil
}

// Release returns one unit of capacity; the count never drops below zero
func (r *WorkerLoadRepository) Release(ctx context.Context, workerID string) error {
	query, args, err := psql.Update(workerLoadsTable).
		Set("open_count", sq.Expr("open_count - 1")).
		Where(sq.Eq{"worker_id": workerID}).
		Where(sq.Gt{"open_count": 0}).
		ToSql()
	if err != nil {
		return err
	}

	err = r.store.observe(ctx, workerLoadsTable, "release", func(ctx context.Context) error {
		_, err := r.store.conn(ctx).ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("release worker load: %w", err)
	}
	return nil
}

// OpenCounts returns the stored count of each known worker. Workers without a
// row are omitted.
func (r *WorkerLoadRepository) OpenCounts(ctx context.Context, workerIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(workerIDs))
	if len(workerIDs) == 0 {
		return counts, nil
	}

	query, args, err := psql.Select("worker_id", "open_count").
		From(workerLoadsTable).
		Where(sq.Eq{"worker_id": workerIDs}).
		ToSql()
	if err != nil {
		return nil, err
	}

	err = r.store.observe(ctx, workerLoadsTable, "find", func(ctx context.Context) error {
		rows, err := r.store.conn(ctx).QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				workerID string
				count    int
			)
			if err := rows.Scan(&workerID, &count); err != nil {
				return err
			}
			counts[workerID] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load worker counts: %w", err)
	}
	return counts, nil
}
