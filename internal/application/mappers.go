package application

import (
	"time"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
)

// ToBatchDTO converts a domain Batch to BatchDTO
func ToBatchDTO(b *domain.Batch) *BatchDTO {
	if b == nil {
		return nil
	}
	orderIDs := make([]string, len(b.OrderIDs))
	copy(orderIDs, b.OrderIDs)

	return &BatchDTO{
		ID:               b.ID,
		BatchNumber:      b.BatchNumber,
		OrderIDs:         orderIDs,
		CurrentStage:     string(b.CurrentStage),
		CurrentStageName: b.CurrentStage.DisplayName(),
		QualityStatus:    string(b.QualityStatus),
		Priority:         string(b.Priority),
		Status:           string(b.Status),
		Version:          b.Version,
		CreatedBy:        b.CreatedBy,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
		ArchivedAt:       b.ArchivedAt,
	}
}

// ToAssignmentDTO converts a domain StageAssignment to AssignmentDTO
func ToAssignmentDTO(a *domain.StageAssignment) *AssignmentDTO {
	if a == nil {
		return nil
	}
	return &AssignmentDTO{
		ID:          a.ID,
		BatchID:     a.BatchID,
		Stage:       string(a.Stage),
		WorkerID:    a.WorkerID,
		Status:      string(a.Status),
		AssignedBy:  a.AssignedBy,
		StartedAt:   a.StartedAt,
		CompletedAt: a.CompletedAt,
		Outcome:     string(a.Outcome),
		ClosedBy:    a.ClosedBy,
		Version:     a.Version,
	}
}

// ToPipelineDTO converts a stage grouping into catalog-ordered columns
func ToPipelineDTO(groups map[domain.Stage][]*domain.Batch, generatedAt time.Time) *PipelineDTO {
	dto := &PipelineDTO{
		Stages:      make([]StageGroupDTO, 0, len(domain.Catalog)),
		GeneratedAt: generatedAt,
	}
	for _, stage := range domain.Catalog {
		group := StageGroupDTO{
			Stage:   string(stage),
			Name:    stage.DisplayName(),
			Batches: make([]BatchDTO, 0, len(groups[stage])),
		}
		for _, b := range groups[stage] {
			group.Batches = append(group.Batches, *ToBatchDTO(b))
		}
		dto.Stages = append(dto.Stages, group)
	}
	return dto
}

// ToWorkerScoreDTO converts a domain WorkerScore
func ToWorkerScoreDTO(s domain.WorkerScore) WorkerScoreDTO {
	return WorkerScoreDTO{
		WorkerID: s.WorkerID,
		Stage:    string(s.Stage),
		Score:    s.Score,
		Factors: ScoreFactorsDTO{
			Base:           s.Factors.Base,
			Specialization: s.Factors.Specialization,
			Workload:       s.Factors.Workload,
			Quality:        s.Factors.Quality,
			Efficiency:     s.Factors.Efficiency,
			Complexity:     s.Factors.Complexity,
		},
	}
}

// StageCatalog describes every stage in order
func StageCatalog() *StageListDTO {
	dto := &StageListDTO{Stages: make([]StageInfoDTO, 0, len(domain.Catalog))}
	for i, stage := range domain.Catalog {
		dto.Stages = append(dto.Stages, StageInfoDTO{
			Stage:    string(stage),
			Name:     stage.DisplayName(),
			Ordinal:  i,
			Terminal: stage.IsTerminal(),
		})
	}
	return dto
}
