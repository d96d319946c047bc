package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/outbox"
)

const outboxTable = "outbox_events"

var outboxColumns = []string{
	"id", "aggregate_id", "aggregate_type", "event_type", "topic", "payload",
	"created_at", "published_at", "retry_count", "last_error", "max_retries",
}

// OutboxRepository implements outbox.Repository on SQLite
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// SaveAll inserts events, joining the caller's transaction when ctx carries one
func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	insert := psql.Insert(outboxTable).Columns(outboxColumns...)
	for _, e := range events {
		maxRetries := e.MaxRetries
		if maxRetries == 0 {
			maxRetries = outbox.DefaultMaxRetries
		}
		insert = insert.Values(
			e.ID, e.AggregateID, e.AggregateType, e.EventType, e.Topic, []byte(e.Payload),
			toMillis(e.CreatedAt), toNullMillis(e.PublishedAt), e.RetryCount, e.LastError, maxRetries,
		)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return err
	}

	err = r.store.observe(ctx, outboxTable, "insert", func(ctx context.Context) error {
		_, err := r.store.conn(ctx).ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("save outbox events: %w", err)
	}
	return nil
}

// FindUnpublished returns unpublished events still under their retry budget
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	builder := psql.Select(outboxColumns...).
		From(outboxTable).
		Where(sq.Eq{"published_at": nil}).
		Where(sq.Expr("retry_count < max_retries")).
		OrderBy("created_at ASC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return r.find(ctx, builder)
}

// FindByAggregateID returns every event of one aggregate, oldest first
func (r *OutboxRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	return r.find(ctx, psql.Select(outboxColumns...).
		From(outboxTable).
		Where(sq.Eq{"aggregate_id": aggregateID}).
		OrderBy("created_at ASC", "id ASC"))
}

// MarkPublished stamps the event as delivered
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	query, args, err := psql.Update(outboxTable).
		Set("published_at", toMillis(time.Now())).
		Where(sq.Eq{"id": eventID}).
		ToSql()
	if err != nil {
		return err
	}
	return r.store.observe(ctx, outboxTable, "markPublished", func(ctx context.Context) error {
		_, err := r.store.execWithRetry(ctx, query, args...)
		return err
	})
}

// IncrementRetry records a failed delivery attempt
func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	query, args, err := psql.Update(outboxTable).
		Set("retry_count", sq.Expr("retry_count + 1")).
		Set("last_error", errorMsg).
		Where(sq.Eq{"id": eventID}).
		ToSql()
	if err != nil {
		return err
	}
	return r.store.observe(ctx, outboxTable, "incrementRetry", func(ctx context.Context) error {
		_, err := r.store.execWithRetry(ctx, query, args...)
		return err
	})
}

func (r *OutboxRepository) find(ctx context.Context, builder sq.SelectBuilder) ([]*outbox.OutboxEvent, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var events []*outbox.OutboxEvent
	err = r.store.observe(ctx, outboxTable, "find", func(ctx context.Context) error {
		rows, err := r.store.conn(ctx).QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e           outbox.OutboxEvent
				payload     []byte
				createdAt   int64
				publishedAt sql.NullInt64
			)
			if err := rows.Scan(
				&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Topic, &payload,
				&createdAt, &publishedAt, &e.RetryCount, &e.LastError, &e.MaxRetries,
			); err != nil {
				return err
			}
			e.Payload = payload
			e.CreatedAt = fromMillis(createdAt)
			e.PublishedAt = fromNullMillis(publishedAt)
			events = append(events, &e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("find outbox events: %w", err)
	}
	return events, nil
}
