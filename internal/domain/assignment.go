package domain

import "time"

// AssignmentStatus is the lifecycle of a stage assignment
type AssignmentStatus string

const (
	AssignmentStatusOpen      AssignmentStatus = "open"
	AssignmentStatusCompleted AssignmentStatus = "completed"
	AssignmentStatusClosed    AssignmentStatus = "closed"
)

// Reasons the pipeline closes an assignment without an outcome
const (
	ClosedByTransition = "transition"
	ClosedByRework     = "rework"
	ClosedByArchive    = "archive"
)

// StageAssignment records a worker doing one stage of one batch. Assignments
// are never deleted, only completed or closed.
type StageAssignment struct {
	ID           string           `bson:"_id" json:"id"`
	BatchID      string           `bson:"batchId" json:"batchId"`
	Stage        Stage            `bson:"stage" json:"stage"`
	WorkerID     string           `bson:"workerId" json:"workerId"`
	Status       AssignmentStatus `bson:"status" json:"status"`
	AssignedBy   string           `bson:"assignedBy" json:"assignedBy"`
	StartedAt    time.Time        `bson:"startedAt" json:"startedAt"`
	CompletedAt  *time.Time       `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	Outcome      QualityStatus    `bson:"outcome,omitempty" json:"outcome,omitempty"`
	ClosedBy     string           `bson:"closedBy,omitempty" json:"closedBy,omitempty"`
	Version      int64            `bson:"version" json:"version"`
	CreatedAt    time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time        `bson:"updatedAt" json:"updatedAt"`
	DomainEvents []DomainEvent    `bson:"-" json:"-"`
}

// NewStageAssignment opens an assignment for a (batch, stage) slot
func NewStageAssignment(id, batchID string, stage Stage, workerID, actorID string, now time.Time) *StageAssignment {
	a := &StageAssignment{
		ID:           id,
		BatchID:      batchID,
		Stage:        stage,
		WorkerID:     workerID,
		Status:       AssignmentStatusOpen,
		AssignedBy:   actorID,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}

	a.AddDomainEvent(&AssignmentCreatedEvent{
		AssignmentID: id,
		BatchID:      batchID,
		Stage:        string(stage),
		WorkerID:     workerID,
		ActorID:      actorID,
		AssignedAt:   now,
	})

	return a
}

// IsOpen reports whether the assignment has not been completed or closed
func (a *StageAssignment) IsOpen() bool {
	return a.Status == AssignmentStatusOpen
}

// Reassign puts a different worker on the slot and restarts the clock. Giving
// the slot to the worker who already holds it only restarts the clock.
func (a *StageAssignment) Reassign(workerID, actorID string, now time.Time) error {
	if !a.IsOpen() {
		return ErrAlreadyCompleted
	}

	previous := a.WorkerID
	a.WorkerID = workerID
	a.AssignedBy = actorID
	a.StartedAt = now
	a.UpdatedAt = now

	a.AddDomainEvent(&AssignmentReassignedEvent{
		AssignmentID:     a.ID,
		BatchID:          a.BatchID,
		Stage:            string(a.Stage),
		PreviousWorkerID: previous,
		WorkerID:         workerID,
		ActorID:          actorID,
		ReassignedAt:     now,
	})

	return nil
}

// Complete closes the assignment with the worker's quality outcome.
// Completion happens at most once.
func (a *StageAssignment) Complete(outcome QualityStatus, now time.Time) error {
	if !a.IsOpen() {
		return ErrAlreadyCompleted
	}
	if _, err := ParseQualityStatus(string(outcome)); err != nil {
		return err
	}

	a.Status = AssignmentStatusCompleted
	a.Outcome = outcome
	a.CompletedAt = &now
	a.UpdatedAt = now

	a.AddDomainEvent(&AssignmentCompletedEvent{
		AssignmentID: a.ID,
		BatchID:      a.BatchID,
		Stage:        string(a.Stage),
		WorkerID:     a.WorkerID,
		Outcome:      string(outcome),
		CompletedAt:  now,
	})

	return nil
}

// Close ends an open assignment on behalf of the pipeline, without an outcome
func (a *StageAssignment) Close(closedBy string, now time.Time) error {
	if !a.IsOpen() {
		return ErrAlreadyCompleted
	}

	a.Status = AssignmentStatusClosed
	a.ClosedBy = closedBy
	a.CompletedAt = &now
	a.UpdatedAt = now

	a.AddDomainEvent(&AssignmentClosedEvent{
		AssignmentID: a.ID,
		BatchID:      a.BatchID,
		Stage:        string(a.Stage),
		WorkerID:     a.WorkerID,
		ClosedBy:     closedBy,
		ClosedAt:     now,
	})

	return nil
}

// AddDomainEvent adds a domain event
func (a *StageAssignment) AddDomainEvent(event DomainEvent) {
	a.DomainEvents = append(a.DomainEvents, event)
}

// GetDomainEvents returns all domain events
func (a *StageAssignment) GetDomainEvents() []DomainEvent {
	return a.DomainEvents
}

// ClearDomainEvents clears all domain events
func (a *StageAssignment) ClearDomainEvents() {
	a.DomainEvents = make([]DomainEvent, 0)
}
