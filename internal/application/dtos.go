package application

import "time"

// BatchDTO represents a batch in API responses
type BatchDTO struct {
	ID               string     `json:"id"`
	BatchNumber      string     `json:"batchNumber"`
	OrderIDs         []string   `json:"orderIds"`
	CurrentStage     string     `json:"currentStage"`
	CurrentStageName string     `json:"currentStageName"`
	QualityStatus    string     `json:"qualityStatus"`
	Priority         string     `json:"priority"`
	Status           string     `json:"status"`
	Version          int64      `json:"version"`
	CreatedBy        string     `json:"createdBy,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	ArchivedAt       *time.Time `json:"archivedAt,omitempty"`
}

// AssignmentDTO represents a stage assignment in API responses
type AssignmentDTO struct {
	ID          string     `json:"id"`
	BatchID     string     `json:"batchId"`
	Stage       string     `json:"stage"`
	WorkerID    string     `json:"workerId"`
	Status      string     `json:"status"`
	AssignedBy  string     `json:"assignedBy,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Outcome     string     `json:"outcome,omitempty"`
	ClosedBy    string     `json:"closedBy,omitempty"`
	Version     int64      `json:"version"`
}

// AssignmentListDTO lists a batch's assignments
type AssignmentListDTO struct {
	BatchID     string          `json:"batchId"`
	Assignments []AssignmentDTO `json:"assignments"`
}

// AutoAssignResultDTO maps every catalog stage to its assigned worker, or
// null when the stage was left unassigned
type AutoAssignResultDTO struct {
	BatchID     string             `json:"batchId"`
	Assignments map[string]*string `json:"assignments"`
	Unassigned  []string           `json:"unassigned"`
}

// StageGroupDTO is one pipeline column
type StageGroupDTO struct {
	Stage   string     `json:"stage"`
	Name    string     `json:"name"`
	Batches []BatchDTO `json:"batches"`
}

// PipelineDTO is the stage grouping of active batches in catalog order
type PipelineDTO struct {
	Stages      []StageGroupDTO `json:"stages"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// StageInfoDTO describes a catalog stage
type StageInfoDTO struct {
	Stage    string `json:"stage"`
	Name     string `json:"name"`
	Ordinal  int    `json:"ordinal"`
	Terminal bool   `json:"terminal"`
}

// StageListDTO is the stage catalog
type StageListDTO struct {
	Stages []StageInfoDTO `json:"stages"`
}

// ScoreFactorsDTO are the contributions to a worker score
type ScoreFactorsDTO struct {
	Base           float64 `json:"base"`
	Specialization float64 `json:"specialization"`
	Workload       float64 `json:"workload"`
	Quality        float64 `json:"quality"`
	Efficiency     float64 `json:"efficiency"`
	Complexity     float64 `json:"complexity"`
}

// WorkerScoreDTO is one ranked worker
type WorkerScoreDTO struct {
	WorkerID string          `json:"workerId"`
	Stage    string          `json:"stage"`
	Score    float64         `json:"score"`
	Factors  ScoreFactorsDTO `json:"factors"`
}

// RankingsDTO is the ranked pool for a stage
type RankingsDTO struct {
	Stage      string           `json:"stage"`
	Complexity string           `json:"complexity,omitempty"`
	Rankings   []WorkerScoreDTO `json:"rankings"`
}
