package cloudevents

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types emitted by the production service
const (
	BatchCreated        = "production.batch.created"
	BatchStageChanged   = "production.batch.stage-changed"
	BatchReworked       = "production.batch.reworked"
	BatchQualityChanged = "production.batch.quality-changed"
	BatchArchived       = "production.batch.archived"

	AssignmentCreated    = "production.assignment.created"
	AssignmentReassigned = "production.assignment.reassigned"
	AssignmentCompleted  = "production.assignment.completed"
	AssignmentClosed     = "production.assignment.closed"

	WorkerNotified = "production.worker.notified"
)

// SourceProduction is the CloudEvents source of every event produced here
const SourceProduction = "/production/production-service"

// Extension attribute names
const (
	ExtCorrelationID = "prodcorrelationid"
	ExtActorID       = "prodactorid"
	ExtVersion       = "prodversion"
)

// CloudEvent represents a CloudEvents v1.0 compliant event
type CloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	CorrelationID string `json:"prodcorrelationid,omitempty"`
	ActorID       string `json:"prodactorid,omitempty"`
	Version       int64  `json:"prodversion,omitempty"`
}

// DecodeData unmarshals the event data into v. Data may still be a typed
// value (freshly created) or a generic map (decoded from the wire).
func (e *CloudEvent) DecodeData(v interface{}) error {
	var raw []byte
	switch data := e.Data.(type) {
	case nil:
		return fmt.Errorf("event %s has no data", e.ID)
	case json.RawMessage:
		raw = data
	case []byte:
		raw = data
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode event data: %w", err)
	}
	return nil
}
