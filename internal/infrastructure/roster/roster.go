// Package roster loads a static TOML description of the shop floor: workers,
// pending orders and open quality findings. It stands in for the labor,
// order and quality services on a single node and feeds the offline ranking
// command.
package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
)

// Order is a pending order entry
type Order struct {
	OrderID  string            `toml:"order_id"`
	ModelRef string            `toml:"model_ref"`
	Priority string            `toml:"priority"`
	Status   string            `toml:"status"`
	Options  map[string]string `toml:"options"`
}

// Finding is an open quality result. An empty BatchID applies to every batch.
type Finding struct {
	BatchID string `toml:"batch_id"`
	Stage   string `toml:"stage"`
	Status  string `toml:"status"`
}

// File is the on-disk roster layout
type File struct {
	Workers  []domain.Worker `toml:"workers"`
	Orders   []Order         `toml:"orders"`
	Findings []Finding       `toml:"quality"`
}

// Roster is an immutable, validated roster. It implements domain.OrderSource,
// domain.WorkerDirectory and domain.QualityGate.
type Roster struct {
	workers  []domain.Worker
	byID     map[string]int
	orders   []domain.Order
	findings []finding
}

type finding struct {
	batchID string
	stage   domain.Stage
	status  domain.QualityStatus
}

// Load reads and validates the roster at path
func Load(path string) (*Roster, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse decodes and validates a roster
func Parse(r io.Reader) (*Roster, error) {
	var f File
	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&f); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("parse roster at %d:%d: %w", row, col, err)
		}
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	return New(f)
}

// New validates f and normalizes stage names
func New(f File) (*Roster, error) {
	r := &Roster{byID: make(map[string]int, len(f.Workers))}

	for i, w := range f.Workers {
		if w.WorkerID == "" {
			return nil, fmt.Errorf("worker %d: id is required", i+1)
		}
		if _, dup := r.byID[w.WorkerID]; dup {
			return nil, fmt.Errorf("worker %s: duplicate id", w.WorkerID)
		}
		if w.Role == "" {
			w.Role = domain.RoleWorker
		}
		if !w.Role.IsValid() {
			return nil, fmt.Errorf("worker %s: unknown role %q", w.WorkerID, w.Role)
		}
		specs := make([]domain.Stage, 0, len(w.Specializations))
		for _, s := range w.Specializations {
			stage, err := domain.ParseStage(string(s))
			if err != nil {
				return nil, fmt.Errorf("worker %s: specialization %q: %w", w.WorkerID, s, err)
			}
			specs = append(specs, stage)
		}
		w.Specializations = specs
		r.byID[w.WorkerID] = len(r.workers)
		r.workers = append(r.workers, w)
	}

	for _, o := range f.Orders {
		if o.OrderID == "" {
			return nil, errors.New("order: order_id is required")
		}
		priority := domain.PriorityStandard
		if o.Priority != "" {
			p, err := domain.ParsePriority(o.Priority)
			if err != nil {
				return nil, fmt.Errorf("order %s: %w", o.OrderID, err)
			}
			priority = p
		}
		status := domain.OrderStatus(o.Status)
		if status == "" {
			status = domain.OrderStatusPending
		}
		r.orders = append(r.orders, domain.Order{
			OrderID:  o.OrderID,
			ModelRef: o.ModelRef,
			Options:  o.Options,
			Priority: priority,
			Status:   status,
		})
	}

	for _, q := range f.Findings {
		stage, err := domain.ParseStage(q.Stage)
		if err != nil {
			return nil, fmt.Errorf("quality finding: stage %q: %w", q.Stage, err)
		}
		status, err := domain.ParseQualityStatus(q.Status)
		if err != nil {
			return nil, fmt.Errorf("quality finding at %s: %w", stage, err)
		}
		r.findings = append(r.findings, finding{batchID: q.BatchID, stage: stage, status: status})
	}

	return r, nil
}

// Workers returns every worker sorted by id
func (r *Roster) Workers() []domain.Worker {
	out := append([]domain.Worker(nil), r.workers...)
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}

// GetActiveWorkers implements domain.WorkerDirectory. Availability is static.
func (r *Roster) GetActiveWorkers(_ context.Context, filter domain.WorkerFilter) ([]domain.Worker, error) {
	var out []domain.Worker
	for _, w := range r.workers {
		if !w.Active {
			continue
		}
		if filter.Specialization != "" && !w.IsSpecializedIn(filter.Specialization) {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// GetWorker implements domain.WorkerDirectory
func (r *Roster) GetWorker(_ context.Context, workerID string, _ time.Time) (*domain.Worker, error) {
	i, ok := r.byID[workerID]
	if !ok {
		return nil, nil
	}
	w := r.workers[i]
	return &w, nil
}

// GetPendingOrders implements domain.OrderSource
func (r *Roster) GetPendingOrders(context.Context) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range r.orders {
		if o.IsPending() {
			out = append(out, o)
		}
	}
	return out, nil
}

// GetOpenQualityStatus implements domain.QualityGate: the worst finding for
// the stage, or good
func (r *Roster) GetOpenQualityStatus(_ context.Context, batchID string, stage domain.Stage) (domain.QualityStatus, error) {
	status := domain.QualityGood
	for _, f := range r.findings {
		if f.stage != stage || (f.batchID != "" && f.batchID != batchID) {
			continue
		}
		status = domain.WorseQuality(status, f.status)
	}
	return status, nil
}
