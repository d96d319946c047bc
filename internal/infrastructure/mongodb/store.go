package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/changes"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/metrics"
	sharedmongo "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/mongodb"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/outbox"
	outboxMongo "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/outbox/mongodb"
)

const (
	batchesCollection     = "batches"
	assignmentsCollection = "stage_assignments"
	workerLoadsCollection = "worker_loads"
	countersCollection    = "counters"
)

// Store is the MongoDB-backed production store. Multi-document writes need a
// replica set.
type Store struct {
	client      *sharedmongo.Client
	batches     *sharedmongo.InstrumentedCollection
	assignments *sharedmongo.InstrumentedCollection
	loads       *sharedmongo.InstrumentedCollection
	counters    *sharedmongo.InstrumentedCollection
	outbox      *outboxMongo.OutboxRepository
	builder     *changes.Builder
}

// NewStore wires the production collections of client
func NewStore(client *sharedmongo.Client, builder *changes.Builder, m *metrics.Metrics, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	if builder == nil {
		builder = changes.NewBuilder(nil)
	}
	logger = logger.WithComponent("mongodb")

	return &Store{
		client:      client,
		batches:     sharedmongo.NewInstrumentedCollection(client, batchesCollection, m, logger),
		assignments: sharedmongo.NewInstrumentedCollection(client, assignmentsCollection, m, logger),
		loads:       sharedmongo.NewInstrumentedCollection(client, workerLoadsCollection, m, logger),
		counters:    sharedmongo.NewInstrumentedCollection(client, countersCollection, m, logger),
		outbox:      outboxMongo.NewOutboxRepository(client.Database()),
		builder:     builder,
	}
}

// WithinTransaction implements domain.Transactor
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.client.WithinTransaction(ctx, fn)
}

// Outbox returns the outbox repository sharing this store's database
func (s *Store) Outbox() *outboxMongo.OutboxRepository {
	return s.outbox
}

// HealthCheck pings the primary
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

// EnsureIndexes creates the unique indexes the repositories rely on for
// order membership and slot occupancy
func (s *Store) EnsureIndexes(ctx context.Context) error {
	activeOnly := bson.M{"status": string(domain.BatchStatusActive)}
	openOnly := bson.M{"status": string(domain.AssignmentStatusOpen)}

	batchIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "batchNumber", Value: 1}}, Options: options.Index().SetUnique(true).SetName("idx_batch_number")},
		{
			Keys:    bson.D{{Key: "orderIds", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(activeOnly).SetName("idx_active_order"),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}, Options: options.Index().SetName("idx_status_created")},
	}
	if _, err := s.batches.Indexes().CreateMany(ctx, batchIndexes); err != nil {
		return fmt.Errorf("create batch indexes: %w", err)
	}

	assignmentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "batchId", Value: 1}, {Key: "stage", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(openOnly).SetName("idx_open_slot"),
		},
		{Keys: bson.D{{Key: "batchId", Value: 1}, {Key: "createdAt", Value: 1}}, Options: options.Index().SetName("idx_batch_created")},
	}
	if _, err := s.assignments.Indexes().CreateMany(ctx, assignmentIndexes); err != nil {
		return fmt.Errorf("create assignment indexes: %w", err)
	}

	if err := s.outbox.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("create outbox indexes: %w", err)
	}
	return nil
}

// saveChange writes the change record for the aggregate's pending events in
// the caller's transaction
func (s *Store) saveChange(ctx context.Context, record *outbox.OutboxEvent) error {
	if record == nil {
		return nil
	}
	return s.outbox.SaveAll(ctx, []*outbox.OutboxEvent{record})
}
