package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
)

// memStore is an in-memory store with the same conflict rules as the real
// ones. Transactions are serialized and rolled back on error.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	batches     map[string]domain.Batch
	assignments map[string]domain.StageAssignment
	loads       map[string]int
	counter     int
	changes     []string

	batchUpdateErr error
}

func newMemStore() *memStore {
	return &memStore{
		batches:     make(map[string]domain.Batch),
		assignments: make(map[string]domain.StageAssignment),
		loads:       make(map[string]int),
	}
}

func (m *memStore) store() Store {
	return Store{
		Batches:     memBatches{m},
		Assignments: memAssignments{m},
		WorkerLoads: memLoads{m},
		Transactor:  m,
	}
}

func (m *memStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	batches := make(map[string]domain.Batch, len(m.batches))
	for k, v := range m.batches {
		batches[k] = v
	}
	assignments := make(map[string]domain.StageAssignment, len(m.assignments))
	for k, v := range m.assignments {
		assignments[k] = v
	}
	loads := make(map[string]int, len(m.loads))
	for k, v := range m.loads {
		loads[k] = v
	}
	counter, changes := m.counter, len(m.changes)
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.batches, m.assignments, m.loads, m.counter = batches, assignments, loads, counter
		m.changes = m.changes[:changes]
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) recordChanges(events []domain.DomainEvent) {
	for _, e := range events {
		m.changes = append(m.changes, e.EventType())
	}
}

func (m *memStore) changeLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.changes...)
}

func (m *memStore) load(workerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads[workerID]
}

func cloneBatch(b domain.Batch) *domain.Batch {
	b.OrderIDs = append([]string(nil), b.OrderIDs...)
	b.DomainEvents = nil
	return &b
}

type memBatches struct{ m *memStore }

func (r memBatches) Create(ctx context.Context, b *domain.Batch) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.batches[b.ID]; ok {
		return domain.ErrConflict
	}
	claimed := make(map[string]bool)
	for _, existing := range r.m.batches {
		if existing.IsActive() {
			for _, id := range existing.OrderIDs {
				claimed[id] = true
			}
		}
	}
	for _, id := range b.OrderIDs {
		if claimed[id] {
			return domain.ErrConflict
		}
	}

	b.Version = 1
	r.m.recordChanges(b.GetDomainEvents())
	b.ClearDomainEvents()
	r.m.batches[b.ID] = *cloneBatch(*b)
	return nil
}

func (r memBatches) Update(ctx context.Context, b *domain.Batch) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if r.m.batchUpdateErr != nil {
		return r.m.batchUpdateErr
	}
	stored, ok := r.m.batches[b.ID]
	if !ok || stored.Version != b.Version {
		return domain.ErrConflict
	}

	b.Version++
	r.m.recordChanges(b.GetDomainEvents())
	b.ClearDomainEvents()
	r.m.batches[b.ID] = *cloneBatch(*b)
	return nil
}

func (r memBatches) FindByID(ctx context.Context, id string) (*domain.Batch, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	b, ok := r.m.batches[id]
	if !ok {
		return nil, nil
	}
	return cloneBatch(b), nil
}

func (r memBatches) FindActive(ctx context.Context) ([]*domain.Batch, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var out []*domain.Batch
	for _, b := range r.m.batches {
		if b.IsActive() {
			out = append(out, cloneBatch(b))
		}
	}
	return out, nil
}

func (r memBatches) NextBatchNumber(ctx context.Context) (string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.counter++
	return fmt.Sprintf("B-%d", r.m.counter), nil
}

type memAssignments struct{ m *memStore }

func (r memAssignments) Create(ctx context.Context, a *domain.StageAssignment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, existing := range r.m.assignments {
		if existing.IsOpen() && existing.BatchID == a.BatchID && existing.Stage == a.Stage {
			return domain.ErrConflict
		}
	}

	a.Version = 1
	r.m.recordChanges(a.GetDomainEvents())
	a.ClearDomainEvents()
	stored := *a
	stored.DomainEvents = nil
	r.m.assignments[a.ID] = stored
	return nil
}

func (r memAssignments) Update(ctx context.Context, a *domain.StageAssignment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	stored, ok := r.m.assignments[a.ID]
	if !ok || stored.Version != a.Version {
		return domain.ErrConflict
	}

	a.Version++
	r.m.recordChanges(a.GetDomainEvents())
	a.ClearDomainEvents()
	next := *a
	next.DomainEvents = nil
	r.m.assignments[a.ID] = next
	return nil
}

func (r memAssignments) FindByID(ctx context.Context, id string) (*domain.StageAssignment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	a, ok := r.m.assignments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r memAssignments) FindOpen(ctx context.Context, batchID string, stage domain.Stage) (*domain.StageAssignment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, a := range r.m.assignments {
		if a.IsOpen() && a.BatchID == batchID && a.Stage == stage {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (r memAssignments) FindOpenByBatch(ctx context.Context, batchID string) ([]*domain.StageAssignment, error) {
	all, _ := r.FindByBatch(ctx, batchID)
	var open []*domain.StageAssignment
	for _, a := range all {
		if a.IsOpen() {
			open = append(open, a)
		}
	}
	return open, nil
}

func (r memAssignments) FindByBatch(ctx context.Context, batchID string) ([]*domain.StageAssignment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var out []*domain.StageAssignment
	for _, a := range r.m.assignments {
		if a.BatchID == batchID {
			found := a
			out = append(out, &found)
		}
	}
	return out, nil
}

type memLoads struct{ m *memStore }

func (r memLoads) Reserve(ctx context.Context, workerID string, limit int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if r.m.loads[workerID] >= limit {
		return domain.ErrCapacityExceeded
	}
	r.m.loads[workerID]++
	return nil
}

func (r memLoads) Release(ctx context.Context, workerID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if r.m.loads[workerID] > 0 {
		r.m.loads[workerID]--
	}
	return nil
}

func (r memLoads) OpenCounts(ctx context.Context, workerIDs []string) (map[string]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	counts := make(map[string]int, len(workerIDs))
	for _, id := range workerIDs {
		counts[id] = r.m.loads[id]
	}
	return counts, nil
}

// Collaborator stubs

type mockOrders struct {
	getPendingFn func(context.Context) ([]domain.Order, error)
	orders       []domain.Order
}

func (m *mockOrders) GetPendingOrders(ctx context.Context) ([]domain.Order, error) {
	if m.getPendingFn != nil {
		return m.getPendingFn(ctx)
	}
	return m.orders, nil
}

type mockQuality struct {
	statusFn func(context.Context, string, domain.Stage) (domain.QualityStatus, error)
	calls    int
}

func (m *mockQuality) GetOpenQualityStatus(ctx context.Context, batchID string, stage domain.Stage) (domain.QualityStatus, error) {
	m.calls++
	if m.statusFn != nil {
		return m.statusFn(ctx, batchID, stage)
	}
	return domain.QualityGood, nil
}

type mockDirectory struct {
	workers      []domain.Worker
	getActiveErr error
}

func (m *mockDirectory) GetActiveWorkers(ctx context.Context, filter domain.WorkerFilter) ([]domain.Worker, error) {
	if m.getActiveErr != nil {
		return nil, m.getActiveErr
	}
	var out []domain.Worker
	for _, w := range m.workers {
		if w.Active && (filter.Specialization == "" || w.IsSpecializedIn(filter.Specialization)) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockDirectory) GetWorker(ctx context.Context, workerID string, _ time.Time) (*domain.Worker, error) {
	for _, w := range m.workers {
		if w.WorkerID == workerID {
			found := w
			return &found, nil
		}
	}
	return nil, nil
}

type notification struct {
	workerID string
	message  string
	payload  map[string]any
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (m *mockNotifier) NotifyWorker(ctx context.Context, workerID, message string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, notification{workerID: workerID, message: message, payload: payload})
	return nil
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("production-service-test")
	cfg.Level = logging.LevelError
	return logging.New(cfg)
}

var (
	supervisor = domain.Actor{ID: "sup-1", Role: domain.RoleSupervisor}
	floorHand  = domain.Actor{ID: "w-floor", Role: domain.RoleWorker}
)

func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func worker(id string, passRate float64, specializations ...domain.Stage) domain.Worker {
	return domain.Worker{
		WorkerID:        id,
		Name:            id,
		Role:            domain.RoleWorker,
		Specializations: specializations,
		Active:          true,
		Available:       true,
		Performance: domain.PerformanceMetrics{
			QualityPassRate:   passRate,
			AvgMinutesPerUnit: 45,
			SampleSize:        20,
		},
	}
}

func pendingOrders(ids ...string) []domain.Order {
	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, domain.Order{OrderID: id, ModelRef: "Atticus", Priority: domain.PriorityStandard, Status: domain.OrderStatusPending})
	}
	return orders
}
