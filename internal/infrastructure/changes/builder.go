package changes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/changefeed"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/cloudevents"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/kafka"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/outbox"
)

// Builder turns the pending domain events of a saved aggregate into one
// outbox record carrying a change event. Repositories call it inside the
// store transaction, after the version bump.
type Builder struct {
	factory *cloudevents.EventFactory
}

// NewBuilder creates a builder
func NewBuilder(factory *cloudevents.EventFactory) *Builder {
	if factory == nil {
		factory = cloudevents.NewEventFactory(cloudevents.SourceProduction)
	}
	return &Builder{factory: factory}
}

// ForBatch returns nil when the batch has no pending events
func (b *Builder) ForBatch(ctx context.Context, batch *domain.Batch) (*outbox.OutboxEvent, error) {
	return b.build(ctx, buildInput{
		entity:        changefeed.EntityBatches,
		aggregateType: "Batch",
		subject:       "batch/" + batch.ID,
		topic:         kafka.Topics.Batches,
		id:            batch.ID,
		version:       batch.Version,
		events:        batch.GetDomainEvents(),
		snapshot:      batch,
	})
}

// ForAssignment returns nil when the assignment has no pending events
func (b *Builder) ForAssignment(ctx context.Context, a *domain.StageAssignment) (*outbox.OutboxEvent, error) {
	return b.build(ctx, buildInput{
		entity:        changefeed.EntityAssignments,
		aggregateType: "StageAssignment",
		subject:       "assignment/" + a.ID,
		topic:         kafka.Topics.Assignments,
		id:            a.ID,
		version:       a.Version,
		events:        a.GetDomainEvents(),
		snapshot:      a,
	})
}

type buildInput struct {
	entity        changefeed.Entity
	aggregateType string
	subject       string
	topic         string
	id            string
	version       int64
	events        []domain.DomainEvent
	snapshot      any
}

func (b *Builder) build(ctx context.Context, in buildInput) (*outbox.OutboxEvent, error) {
	if len(in.events) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(in.snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal %s snapshot: %w", in.aggregateType, err)
	}

	last := in.events[len(in.events)-1]
	change := changefeed.ChangeEvent{
		Entity:     in.entity,
		EventType:  ChangeType(in.events),
		EntityID:   in.id,
		Payload:    payload,
		Version:    in.version,
		Cause:      last.EventType(),
		OccurredAt: last.OccurredAt(),
	}

	ce := b.factory.CreateVersionedEvent(ctx, last.EventType(), in.subject, in.version, change)
	return outbox.NewOutboxEventFromCloudEvent(in.id, in.aggregateType, in.topic, ce)
}

// ChangeType classifies a save by the domain events it carries
func ChangeType(events []domain.DomainEvent) changefeed.EventType {
	kind := changefeed.EventUpdate
	for _, e := range events {
		switch e.(type) {
		case *domain.BatchCreatedEvent, *domain.AssignmentCreatedEvent:
			kind = changefeed.EventInsert
		case *domain.BatchArchivedEvent:
			return changefeed.EventDelete
		}
	}
	return kind
}
