package domain

import (
	"fmt"
	"time"
)

// BatchStatus is the lifecycle of a batch record
type BatchStatus string

const (
	BatchStatusActive   BatchStatus = "active"
	BatchStatusArchived BatchStatus = "archived"
)

// Batch is the aggregate root for pipeline movement
type Batch struct {
	ID            string        `bson:"_id" json:"id"`
	BatchNumber   string        `bson:"batchNumber" json:"batchNumber"`
	OrderIDs      []string      `bson:"orderIds" json:"orderIds"`
	CurrentStage  Stage         `bson:"currentStage" json:"currentStage"`
	QualityStatus QualityStatus `bson:"qualityStatus" json:"qualityStatus"`
	Priority      Priority      `bson:"priority" json:"priority"`
	Status        BatchStatus   `bson:"status" json:"status"`
	Version       int64         `bson:"version" json:"version"`
	CreatedBy     string        `bson:"createdBy" json:"createdBy"`
	CreatedAt     time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time     `bson:"updatedAt" json:"updatedAt"`
	ArchivedAt    *time.Time    `bson:"archivedAt,omitempty" json:"archivedAt,omitempty"`
	DomainEvents  []DomainEvent `bson:"-" json:"-"`
}

// NewBatch groups orders into a batch at the initial stage with good quality.
// Batch priority is the most urgent member priority.
func NewBatch(id, batchNumber string, orders []Order, actorID string, now time.Time) (*Batch, error) {
	if len(orders) == 0 {
		return nil, ErrEmptyBatch
	}

	seen := make(map[string]bool, len(orders))
	orderIDs := make([]string, 0, len(orders))
	priorities := make([]Priority, 0, len(orders))
	for _, o := range orders {
		if seen[o.OrderID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, o.OrderID)
		}
		if !o.IsPending() {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotPending, o.OrderID)
		}
		seen[o.OrderID] = true
		orderIDs = append(orderIDs, o.OrderID)
		priorities = append(priorities, o.Priority)
	}

	b := &Batch{
		ID:            id,
		BatchNumber:   batchNumber,
		OrderIDs:      orderIDs,
		CurrentStage:  InitialStage(),
		QualityStatus: QualityGood,
		Priority:      MaxPriority(priorities...),
		Status:        BatchStatusActive,
		CreatedBy:     actorID,
		CreatedAt:     now,
		UpdatedAt:     now,
		DomainEvents:  make([]DomainEvent, 0),
	}

	b.AddDomainEvent(&BatchCreatedEvent{
		BatchID:     b.ID,
		BatchNumber: b.BatchNumber,
		OrderIDs:    append([]string(nil), orderIDs...),
		Priority:    string(b.Priority),
		ActorID:     actorID,
		CreatedAt:   now,
	})

	return b, nil
}

// IsActive reports whether the batch is still in the pipeline
func (b *Batch) IsActive() bool {
	return b.Status != BatchStatusArchived
}

// CanTransition runs the transition checks without changing state
func (b *Batch) CanTransition(to Stage) error {
	if !b.IsActive() {
		return ErrBatchArchived
	}
	if !to.IsValid() {
		return ErrInvalidStage
	}
	if !IsLegalTransition(b.CurrentStage, to) {
		return ErrInvalidTransition
	}
	if b.QualityStatus.IsBlocking() {
		return ErrQualityBlocked
	}
	return nil
}

// Transition moves the batch forward and replaces its quality status with the
// status reported for the new stage. A blocking status locks the batch again
// right after the move.
func (b *Batch) Transition(to Stage, quality QualityStatus, actorID string, now time.Time) error {
	if err := b.CanTransition(to); err != nil {
		return err
	}
	if _, err := ParseQualityStatus(string(quality)); err != nil {
		return err
	}

	from := b.CurrentStage
	b.CurrentStage = to
	b.QualityStatus = quality
	b.UpdatedAt = now

	b.AddDomainEvent(&BatchStageChangedEvent{
		BatchID:       b.ID,
		FromStage:     string(from),
		ToStage:       string(to),
		QualityStatus: string(quality),
		ActorID:       actorID,
		ChangedAt:     now,
	})

	return nil
}

// Rework sends the batch back to a strictly earlier stage. Rework is not
// gated on quality.
func (b *Batch) Rework(to Stage, reason string, quality QualityStatus, actorID string, now time.Time) error {
	if !b.IsActive() {
		return ErrBatchArchived
	}
	if !to.IsValid() {
		return ErrInvalidStage
	}
	if !to.IsBefore(b.CurrentStage) {
		return ErrInvalidRework
	}
	if _, err := ParseQualityStatus(string(quality)); err != nil {
		return err
	}

	from := b.CurrentStage
	b.CurrentStage = to
	b.QualityStatus = quality
	b.UpdatedAt = now

	b.AddDomainEvent(&BatchReworkedEvent{
		BatchID:       b.ID,
		FromStage:     string(from),
		ToStage:       string(to),
		Reason:        reason,
		QualityStatus: string(quality),
		ActorID:       actorID,
		ReworkedAt:    now,
	})

	return nil
}

// RecordQuality folds a reported status for the current stage into the batch.
// The worse of the current and reported status wins. Returns whether the
// status changed.
func (b *Batch) RecordQuality(stage Stage, status QualityStatus, actorID string, now time.Time) (bool, error) {
	if !b.IsActive() {
		return false, ErrBatchArchived
	}
	if _, err := ParseQualityStatus(string(status)); err != nil {
		return false, err
	}
	if stage != b.CurrentStage {
		return false, ErrStageNotCurrent
	}

	next := WorseQuality(b.QualityStatus, status)
	if next == b.QualityStatus {
		return false, nil
	}

	prev := b.QualityStatus
	b.QualityStatus = next
	b.UpdatedAt = now

	b.AddDomainEvent(&BatchQualityChangedEvent{
		BatchID:   b.ID,
		Stage:     string(stage),
		From:      string(prev),
		To:        string(next),
		ActorID:   actorID,
		ChangedAt: now,
	})

	return true, nil
}

// Archive removes a batch that has reached the terminal stage from the pipeline
func (b *Batch) Archive(actorID string, now time.Time) error {
	if !b.IsActive() {
		return ErrBatchArchived
	}
	if !b.CurrentStage.IsTerminal() {
		return ErrNotTerminal
	}

	b.Status = BatchStatusArchived
	b.ArchivedAt = &now
	b.UpdatedAt = now

	b.AddDomainEvent(&BatchArchivedEvent{
		BatchID:    b.ID,
		ActorID:    actorID,
		ArchivedAt: now,
	})

	return nil
}

// AddDomainEvent adds a domain event
func (b *Batch) AddDomainEvent(event DomainEvent) {
	b.DomainEvents = append(b.DomainEvents, event)
}

// GetDomainEvents returns all domain events
func (b *Batch) GetDomainEvents() []DomainEvent {
	return b.DomainEvents
}

// ClearDomainEvents clears all domain events
func (b *Batch) ClearDomainEvents() {
	b.DomainEvents = make([]DomainEvent, 0)
}
