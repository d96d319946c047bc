package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	sharedmongo "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/mongodb"
	testhelpers "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/testing"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type StoreIntegrationTestSuite struct {
	suite.Suite
	container   *testhelpers.MongoDBContainer
	client      *sharedmongo.Client
	store       *Store
	batches     *BatchRepository
	assignments *AssignmentRepository
	loads       *WorkerLoadRepository
	ctx         context.Context
}

func TestStoreIntegration(t *testing.T) {
	testhelpers.SkipIfShort(t)
	suite.Run(t, new(StoreIntegrationTestSuite))
}

func (s *StoreIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testhelpers.NewMongoDBContainer(s.ctx)
	s.Require().NoError(err)
	s.container = container

	client, err := container.NewClient(s.ctx, "production_test")
	s.Require().NoError(err)
	s.client = client

	s.store = NewStore(client, nil, nil, nil)
	s.batches = NewBatchRepository(s.store)
	s.assignments = NewAssignmentRepository(s.store)
	s.loads = NewWorkerLoadRepository(s.store)
}

func (s *StoreIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close(s.ctx)
	}
	if s.container != nil {
		s.Require().NoError(s.container.Close(s.ctx))
	}
}

func (s *StoreIntegrationTestSuite) SetupTest() {
	s.Require().NoError(s.client.Database().Drop(s.ctx))
	s.Require().NoError(s.store.EnsureIndexes(s.ctx))
}

func (s *StoreIntegrationTestSuite) newBatch(id, number string, orderIDs ...string) *domain.Batch {
	orders := make([]domain.Order, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		orders = append(orders, domain.Order{OrderID: orderID, Priority: domain.PriorityRush})
	}
	batch, err := domain.NewBatch(id, number, orders, "SUP-1", testNow)
	s.Require().NoError(err)
	return batch
}

func (s *StoreIntegrationTestSuite) TestBatchLifecycle() {
	batch := s.newBatch("batch-1", "B-1", "ORD-1", "ORD-2")
	s.Require().NoError(s.batches.Create(s.ctx, batch))
	s.Equal(int64(1), batch.Version)

	found, err := s.batches.FindByID(s.ctx, "batch-1")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal([]string{"ORD-1", "ORD-2"}, found.OrderIDs)
	s.Equal(domain.PriorityRush, found.Priority)
	s.True(testNow.Equal(found.CreatedAt))

	stale, err := s.batches.FindByID(s.ctx, "batch-1")
	s.Require().NoError(err)

	s.Require().NoError(found.Transition(domain.StageShipping, domain.QualityGood, "SUP-1", testNow.Add(time.Minute)))
	s.Require().NoError(s.batches.Update(s.ctx, found))
	s.Equal(int64(2), found.Version)

	s.Require().NoError(stale.Transition(domain.StageSanding, domain.QualityGood, "SUP-2", testNow.Add(time.Minute)))
	s.ErrorIs(s.batches.Update(s.ctx, stale), domain.ErrConflict)

	s.Require().NoError(found.Archive("SUP-1", testNow.Add(2*time.Minute)))
	s.Require().NoError(s.batches.Update(s.ctx, found))

	active, err := s.batches.FindActive(s.ctx)
	s.Require().NoError(err)
	s.Empty(active)

	events, err := s.store.Outbox().FindByAggregateID(s.ctx, "batch-1")
	s.Require().NoError(err)
	s.Len(events, 3)
}

func (s *StoreIntegrationTestSuite) TestOrderHeldByOneActiveBatch() {
	s.Require().NoError(s.batches.Create(s.ctx, s.newBatch("batch-1", "B-1", "ORD-1")))
	s.ErrorIs(s.batches.Create(s.ctx, s.newBatch("batch-2", "B-2", "ORD-1")), domain.ErrConflict)

	missing, err := s.batches.FindByID(s.ctx, "batch-2")
	s.Require().NoError(err)
	s.Nil(missing)
}

func (s *StoreIntegrationTestSuite) TestNextBatchNumber() {
	for _, want := range []string{"B-1", "B-2"} {
		got, err := s.batches.NextBatchNumber(s.ctx)
		s.Require().NoError(err)
		s.Equal(want, got)
	}
}

func (s *StoreIntegrationTestSuite) TestOneOpenAssignmentPerSlot() {
	s.Require().NoError(s.batches.Create(s.ctx, s.newBatch("batch-1", "B-1", "ORD-1")))

	first := domain.NewStageAssignment("asg-1", "batch-1", domain.StageSanding, "W-1", "SUP-1", testNow)
	s.Require().NoError(s.assignments.Create(s.ctx, first))

	second := domain.NewStageAssignment("asg-2", "batch-1", domain.StageSanding, "W-2", "SUP-1", testNow)
	s.ErrorIs(s.assignments.Create(s.ctx, second), domain.ErrConflict)

	s.Require().NoError(first.Close("transition", testNow.Add(time.Minute)))
	s.Require().NoError(s.assignments.Update(s.ctx, first))
	s.Require().NoError(s.assignments.Create(s.ctx, second))

	open, err := s.assignments.FindOpen(s.ctx, "batch-1", domain.StageSanding)
	s.Require().NoError(err)
	s.Require().NotNil(open)
	s.Equal("W-2", open.WorkerID)

	all, err := s.assignments.FindByBatch(s.ctx, "batch-1")
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *StoreIntegrationTestSuite) TestWorkerLoadCapacity() {
	s.Require().NoError(s.loads.Reserve(s.ctx, "W-1", 1))
	s.ErrorIs(s.loads.Reserve(s.ctx, "W-1", 1), domain.ErrCapacityExceeded)

	s.Require().NoError(s.loads.Release(s.ctx, "W-1"))
	s.Require().NoError(s.loads.Release(s.ctx, "W-1"))

	counts, err := s.loads.OpenCounts(s.ctx, []string{"W-1", "W-2"})
	s.Require().NoError(err)
	s.Equal(map[string]int{"W-1": 0}, counts)
}

func (s *StoreIntegrationTestSuite) TestTransactionRollsBack() {
	boom := errors.New("boom")
	err := s.store.WithinTransaction(s.ctx, func(ctx context.Context) error {
		if err := s.batches.Create(ctx, s.newBatch("batch-1", "B-1", "ORD-1")); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	found, err := s.batches.FindByID(s.ctx, "batch-1")
	s.Require().NoError(err)
	s.Nil(found)
}
