package changefeed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
)

// PipelineProjection keeps a live stage grouping of active batches from the
// batch change channel. Events at or below the last applied version of a
// batch are ignored, so replays and reordering do not move a batch backwards.
type PipelineProjection struct {
	mu       sync.RWMutex
	buckets  map[domain.Stage]map[string]*domain.Batch
	versions map[string]int64
	logger   *logging.Logger
}

// NewPipelineProjection creates an empty projection
func NewPipelineProjection(logger *logging.Logger) *PipelineProjection {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &PipelineProjection{
		buckets:  make(map[domain.Stage]map[string]*domain.Batch, len(domain.Catalog)),
		versions: make(map[string]int64),
		logger:   logger.WithComponent("pipeline-projection"),
	}
	for _, stage := range domain.Catalog {
		p.buckets[stage] = make(map[string]*domain.Batch)
	}
	return p
}

// Apply folds one change event into the projection. Returns false when the
// event was ignored.
func (p *PipelineProjection) Apply(event ChangeEvent) (bool, error) {
	if event.Entity != EntityBatches {
		return false, nil
	}

	var batch domain.Batch
	if event.EventType != EventDelete || len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &batch); err != nil {
			return false, err
		}
	}
	id := event.EntityID
	if id == "" {
		id = batch.ID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if last, seen := p.versions[id]; seen && event.Version <= last {
		return false, nil
	}
	p.versions[id] = event.Version

	for _, bucket := range p.buckets {
		delete(bucket, id)
	}

	if event.EventType == EventDelete || !batch.IsActive() {
		return true, nil
	}
	if bucket, ok := p.buckets[batch.CurrentStage]; ok {
		batch.ID = id
		batch.Version = event.Version
		bucket[id] = &batch
	}
	return true, nil
}

// Snapshot returns the current grouping in pipeline order
func (p *PipelineProjection) Snapshot() map[domain.Stage][]*domain.Batch {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[domain.Stage][]*domain.Batch, len(p.buckets))
	for stage, bucket := range p.buckets {
		group := make([]*domain.Batch, 0, len(bucket))
		for _, b := range bucket {
			copied := *b
			group = append(group, &copied)
		}
		domain.SortForPipeline(group)
		out[stage] = group
	}
	return out
}

// Version returns the last applied version of a batch
func (p *PipelineProjection) Version(batchID string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.versions[batchID]
}

// Seed loads the projection from a full read of the store
func (p *PipelineProjection) Seed(batches []*domain.Batch) {
	for _, b := range batches {
		payload, err := json.Marshal(b)
		if err != nil {
			p.logger.WithError(err).Warn("Skipping unencodable batch while seeding", "batchId", b.ID)
			continue
		}
		p.apply(ChangeEvent{
			Entity:    EntityBatches,
			EventType: EventUpdate,
			EntityID:  b.ID,
			Payload:   payload,
			Version:   b.Version,
		})
	}
}

// Reseed discards the current grouping and loads batches. Used after a
// subscriber was dropped and may have missed deletes.
func (p *PipelineProjection) Reseed(batches []*domain.Batch) {
	p.mu.Lock()
	for stage := range p.buckets {
		p.buckets[stage] = make(map[string]*domain.Batch)
	}
	p.versions = make(map[string]int64)
	p.mu.Unlock()

	p.Seed(batches)
}

// Run applies events from the subscription until it ends or ctx is done
func (p *PipelineProjection) Run(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			p.apply(event)
		}
	}
}

// apply is Apply for the follower paths, which log instead of returning
func (p *PipelineProjection) apply(event ChangeEvent) {
	if _, err := p.Apply(event); err != nil {
		p.logger.WithError(err).Warn("Skipping undecodable batch change",
			"batchId", event.EntityID,
			"eventType", string(event.EventType),
			"version", event.Version,
		)
	}
}
