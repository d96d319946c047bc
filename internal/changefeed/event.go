package changefeed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/cloudevents"
)

// Entity names one change channel
type Entity string

const (
	EntityBatches     Entity = "batches"
	EntityAssignments Entity = "assignments"
)

// ParseEntity validates a channel name
func ParseEntity(s string) (Entity, error) {
	switch Entity(s) {
	case EntityBatches, EntityAssignments:
		return Entity(s), nil
	default:
		return "", fmt.Errorf("unknown change entity %q", s)
	}
}

// EventType is the kind of change
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent is one change record delivered to observers. Payload is a full
// snapshot of the entity after the change.
type ChangeEvent struct {
	Entity     Entity          `json:"entity"`
	EventType  EventType       `json:"eventType"`
	EntityID   string          `json:"entityId"`
	Payload    json.RawMessage `json:"payload"`
	Version    int64           `json:"version"`
	Cause      string          `json:"cause"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// FromCloudEvent extracts the change record carried by a CloudEvent
func FromCloudEvent(ce *cloudevents.CloudEvent) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := ce.DecodeData(&ev); err != nil {
		return ChangeEvent{}, err
	}
	if _, err := ParseEntity(string(ev.Entity)); err != nil {
		return ChangeEvent{}, err
	}
	if ev.Cause == "" {
		ev.Cause = ce.Type
	}
	return ev, nil
}
