package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/idempotency"
)

const idempotencyTable = "idempotency_keys"

var idempotencyColumns = []string{
	"id", "service_id", "key", "actor_id", "request_path", "request_method", "request_fingerprint",
	"locked_at", "response_code", "response_body", "created_at", "completed_at", "expires_at",
}

// IdempotencyRepository implements idempotency.KeyRepository on SQLite
type IdempotencyRepository struct {
	store *Store
	now   func() time.Time
}

// NewIdempotencyRepository creates a new IdempotencyRepository
func NewIdempotencyRepository(store *Store) *IdempotencyRepository {
	return &IdempotencyRepository{store: store, now: time.Now}
}

// AcquireLock drops an expired record for the same key, inserts key unless a
// live record exists and returns whatever is stored afterwards
func (r *IdempotencyRepository) AcquireLock(ctx context.Context, key *idempotency.IdempotencyKey) (*idempotency.IdempotencyKey, bool, error) {
	var stored *idempotency.IdempotencyKey
	err := r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		scope := sq.Eq{"service_id": key.ServiceID, "key": key.Key}

		query, args, err := psql.Delete(idempotencyTable).
			Where(scope).
			Where(sq.Lt{"expires_at": toMillis(r.now())}).
			ToSql()
		if err != nil {
			return err
		}
		if err := r.exec(ctx, "expire", query, args); err != nil {
			return err
		}

		query, args, err = psql.Insert(idempotencyTable).
			Columns(idempotencyColumns...).
			Values(
				key.ID, key.ServiceID, key.Key, key.ActorID, key.RequestPath, key.RequestMethod, key.RequestFingerprint,
				toNullMillis(key.LockedAt), key.ResponseCode, key.ResponseBody, toMillis(key.CreatedAt),
				toNullMillis(key.CompletedAt), toMillis(key.ExpiresAt),
			).
			Suffix("ON CONFLICT(service_id, key) DO NOTHING").
			ToSql()
		if err != nil {
			return err
		}
		if err := r.exec(ctx, "insert", query, args); err != nil {
			return err
		}

		query, args, err = psql.Select(idempotencyColumns...).From(idempotencyTable).Where(scope).ToSql()
		if err != nil {
			return err
		}
		return r.store.observe(ctx, idempotencyTable, "findOne", func(ctx context.Context) error {
			var err error
			stored, err = scanIdempotencyKey(r.store.conn(ctx).QueryRowContext(ctx, query, args...))
			return err
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("acquire idempotency lock: %w", err)
	}
	return stored, stored.ID == key.ID, nil
}

// ReleaseLock clears the lock so the key can be retried
func (r *IdempotencyRepository) ReleaseLock(ctx context.Context, keyID string) error {
	query, args, err := psql.Update(idempotencyTable).
		Set("locked_at", nil).
		Where(sq.Eq{"id": keyID}).
		ToSql()
	if err != nil {
		return err
	}
	return r.exec(ctx, "releaseLock", query, args)
}

// StoreResponse caches the final response and marks the key completed
func (r *IdempotencyRepository) StoreResponse(ctx context.Context, keyID string, responseCode int, responseBody []byte) error {
	query, args, err := psql.Update(idempotencyTable).
		Set("response_code", responseCode).
		Set("response_body", responseBody).
		Set("completed_at", toMillis(r.now())).
		Set("locked_at", nil).
		Where(sq.Eq{"id": keyID}).
		ToSql()
	if err != nil {
		return err
	}
	return r.exec(ctx, "storeResponse", query, args)
}

func (r *IdempotencyRepository) exec(ctx context.Context, operation, query string, args []any) error {
	return r.store.observe(ctx, idempotencyTable, operation, func(ctx context.Context) error {
		_, err := r.store.execWithRetry(ctx, query, args...)
		return err
	})
}

func scanIdempotencyKey(row rowScanner) (*idempotency.IdempotencyKey, error) {
	var (
		k           idempotency.IdempotencyKey
		lockedAt    sql.NullInt64
		completedAt sql.NullInt64
		createdAt   int64
		expiresAt   int64
	)
	if err := row.Scan(
		&k.ID, &k.ServiceID, &k.Key, &k.ActorID, &k.RequestPath, &k.RequestMethod, &k.RequestFingerprint,
		&lockedAt, &k.ResponseCode, &k.ResponseBody, &createdAt, &completedAt, &expiresAt,
	); err != nil {
		return nil, err
	}
	k.LockedAt = fromNullMillis(lockedAt)
	k.CompletedAt = fromNullMillis(completedAt)
	k.CreatedAt = fromMillis(createdAt)
	k.ExpiresAt = fromMillis(expiresAt)
	return &k, nil
}
