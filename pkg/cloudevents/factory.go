package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
)

// EventFactory creates CloudEvents for production domain events
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// WithClock replaces the time source. Tests use it to pin event timestamps.
func (f *EventFactory) WithClock(now func() time.Time) *EventFactory {
	f.now = now
	return f
}

// CreateEvent creates a new CloudEvent, picking up the correlation and actor
// IDs from the context when present
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *CloudEvent {
	event := &CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}

	if ctx != nil {
		if v, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
			event.CorrelationID = v
		}
		if v, ok := ctx.Value(logging.ActorIDKey).(string); ok {
			event.ActorID = v
		}
	}

	return event
}

// CreateVersionedEvent creates an event stamped with the entity version it describes
func (f *EventFactory) CreateVersionedEvent(
	ctx context.Context,
	eventType string,
	subject string,
	version int64,
	data interface{},
) *CloudEvent {
	event := f.CreateEvent(ctx, eventType, subject, data)
	event.Version = version
	return event
}
