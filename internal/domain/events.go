package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// BatchCreatedEvent is published when orders are grouped into a new batch
type BatchCreatedEvent struct {
	BatchID     string    `json:"batchId"`
	BatchNumber string    `json:"batchNumber"`
	OrderIDs    []string  `json:"orderIds"`
	Priority    string    `json:"priority"`
	ActorID     string    `json:"actorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (e *BatchCreatedEvent) EventType() string     { return "production.batch.created" }
func (e *BatchCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// BatchStageChangedEvent is published when a batch moves forward
type BatchStageChangedEvent struct {
	BatchID       string    `json:"batchId"`
	FromStage     string    `json:"fromStage"`
	ToStage       string    `json:"toStage"`
	QualityStatus string    `json:"qualityStatus"`
	ActorID       string    `json:"actorId"`
	ChangedAt     time.Time `json:"changedAt"`
}

func (e *BatchStageChangedEvent) EventType() string     { return "production.batch.stage-changed" }
func (e *BatchStageChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// BatchReworkedEvent is published when a batch is sent back to an earlier stage
type BatchReworkedEvent struct {
	BatchID       string    `json:"batchId"`
	FromStage     string    `json:"fromStage"`
	ToStage       string    `json:"toStage"`
	Reason        string    `json:"reason"`
	QualityStatus string    `json:"qualityStatus"`
	ActorID       string    `json:"actorId"`
	ReworkedAt    time.Time `json:"reworkedAt"`
}

func (e *BatchReworkedEvent) EventType() string     { return "production.batch.reworked" }
func (e *BatchReworkedEvent) OccurredAt() time.Time { return e.ReworkedAt }

// BatchQualityChangedEvent is published when a quality check changes the batch status
type BatchQualityChangedEvent struct {
	BatchID   string    `json:"batchId"`
	Stage     string    `json:"stage"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   string    `json:"actorId"`
	ChangedAt time.Time `json:"changedAt"`
}

func (e *BatchQualityChangedEvent) EventType() string     { return "production.batch.quality-changed" }
func (e *BatchQualityChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// BatchArchivedEvent is published when a finished batch leaves the pipeline
type BatchArchivedEvent struct {
	BatchID    string    `json:"batchId"`
	ActorID    string    `json:"actorId"`
	ArchivedAt time.Time `json:"archivedAt"`
}

func (e *BatchArchivedEvent) EventType() string     { return "production.batch.archived" }
func (e *BatchArchivedEvent) OccurredAt() time.Time { return e.ArchivedAt }

// AssignmentCreatedEvent is published when a worker is put on a stage slot
type AssignmentCreatedEvent struct {
	AssignmentID string    `json:"assignmentId"`
	BatchID      string    `json:"batchId"`
	Stage        string    `json:"stage"`
	WorkerID     string    `json:"workerId"`
	ActorID      string    `json:"actorId"`
	AssignedAt   time.Time `json:"assignedAt"`
}

func (e *AssignmentCreatedEvent) EventType() string     { return "production.assignment.created" }
func (e *AssignmentCreatedEvent) OccurredAt() time.Time { return e.AssignedAt }

// AssignmentReassignedEvent is published when an open slot changes worker
type AssignmentReassignedEvent struct {
	AssignmentID     string    `json:"assignmentId"`
	BatchID          string    `json:"batchId"`
	Stage            string    `json:"stage"`
	PreviousWorkerID string    `json:"previousWorkerId"`
	WorkerID         string    `json:"workerId"`
	ActorID          string    `json:"actorId"`
	ReassignedAt     time.Time `json:"reassignedAt"`
}

func (e *AssignmentReassignedEvent) EventType() string     { return "production.assignment.reassigned" }
func (e *AssignmentReassignedEvent) OccurredAt() time.Time { return e.ReassignedAt }

// AssignmentCompletedEvent is published when a worker finishes their stage work
type AssignmentCompletedEvent struct {
	AssignmentID string    `json:"assignmentId"`
	BatchID      string    `json:"batchId"`
	Stage        string    `json:"stage"`
	WorkerID     string    `json:"workerId"`
	Outcome      string    `json:"outcome"`
	CompletedAt  time.Time `json:"completedAt"`
}

func (e *AssignmentCompletedEvent) EventType() string     { return "production.assignment.completed" }
func (e *AssignmentCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// AssignmentClosedEvent is published when the pipeline closes an open slot
type AssignmentClosedEvent struct {
	AssignmentID string    `json:"assignmentId"`
	BatchID      string    `json:"batchId"`
	Stage        string    `json:"stage"`
	WorkerID     string    `json:"workerId"`
	ClosedBy     string    `json:"closedBy"`
	ClosedAt     time.Time `json:"closedAt"`
}

func (e *AssignmentClosedEvent) EventType() string     { return "production.assignment.closed" }
func (e *AssignmentClosedEvent) OccurredAt() time.Time { return e.ClosedAt }
