package application

import "github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"

// CreateBatchCommand groups pending orders into a new batch
type CreateBatchCommand struct {
	OrderIDs []string
	Actor    domain.Actor
}

// GetBatchQuery retrieves a batch by ID
type GetBatchQuery struct {
	BatchID string
}

// TransitionCommand moves a batch forward
type TransitionCommand struct {
	BatchID string
	ToStage string
	Actor   domain.Actor
}

// ReworkCommand sends a batch back to an earlier stage
type ReworkCommand struct {
	BatchID string
	ToStage string
	Reason  string
	Actor   domain.Actor
}

// RecordQualityCheckCommand folds a quality result into a batch
type RecordQualityCheckCommand struct {
	BatchID string
	Stage   string
	Status  string
	Actor   domain.Actor
}

// ArchiveBatchCommand removes a finished batch from the pipeline
type ArchiveBatchCommand struct {
	BatchID string
	Actor   domain.Actor
}

// AssignCommand puts a worker on a (batch, stage) slot
type AssignCommand struct {
	BatchID  string
	Stage    string
	WorkerID string
	Actor    domain.Actor
}

// AutoAssignCommand staffs every remaining stage of a batch
type AutoAssignCommand struct {
	BatchID        string
	ComplexityHint string
	Actor          domain.Actor
}

// CompleteWorkCommand closes an assignment with its quality outcome
type CompleteWorkCommand struct {
	AssignmentID string
	Outcome      string
	Actor        domain.Actor
}

// ListAssignmentsQuery lists a batch's assignments
type ListAssignmentsQuery struct {
	BatchID string
}

// RankWorkersQuery ranks the live worker pool for a stage
type RankWorkersQuery struct {
	Stage          string
	ComplexityHint string
}
