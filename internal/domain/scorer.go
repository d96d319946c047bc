package domain

import (
	"math"
	"sort"
)

// ComplexityHint describes how demanding a batch is
type ComplexityHint string

const (
	ComplexityNone     ComplexityHint = ""
	ComplexityLow      ComplexityHint = "low"
	ComplexityMedium   ComplexityHint = "medium"
	ComplexityHigh     ComplexityHint = "high"
	ComplexityVeryHigh ComplexityHint = "very_high"
)

// ComplexityValues returns the accepted non-empty hints
func ComplexityValues() []string {
	return []string{string(ComplexityLow), string(ComplexityMedium), string(ComplexityHigh), string(ComplexityVeryHigh)}
}

// ParseComplexityHint validates a hint; empty means no hint
func ParseComplexityHint(s string) (ComplexityHint, error) {
	switch ComplexityHint(s) {
	case ComplexityNone, ComplexityLow, ComplexityMedium, ComplexityHigh, ComplexityVeryHigh:
		return ComplexityHint(s), nil
	default:
		return "", ErrInvalidComplexity
	}
}

// Scoring weights
const (
	ScoreBase                = 100.0
	ScoreSpecializationBonus = 30.0
	ScoreWorkloadPenalty     = 20.0
	ScoreQualityWeight       = 50.0
	ScoreEfficiencyCeiling   = 100.0
	ScoreSupervisorBonus     = 20.0
)

// ScoreFactors are the contributions that make up a score
type ScoreFactors struct {
	Base           float64 `json:"base"`
	Specialization float64 `json:"specialization"`
	Workload       float64 `json:"workload"`
	Quality        float64 `json:"quality"`
	Efficiency     float64 `json:"efficiency"`
	Complexity     float64 `json:"complexity"`
}

// Total sums the factors
func (f ScoreFactors) Total() float64 {
	return f.Base + f.Specialization + f.Workload + f.Quality + f.Efficiency + f.Complexity
}

// WorkerScore is the fitness of one worker for one stage. Never persisted.
type WorkerScore struct {
	WorkerID string       `json:"workerId"`
	Stage    Stage        `json:"stage"`
	Score    float64      `json:"score"`
	Factors  ScoreFactors `json:"factors"`
}

// Score computes a worker's fitness for a stage. Depends only on its inputs.
func Score(w Worker, stage Stage, hint ComplexityHint) WorkerScore {
	passRate, avgMinutes := w.Performance.Effective()

	f := ScoreFactors{
		Base:       ScoreBase,
		Workload:   -ScoreWorkloadPenalty * float64(w.OpenAssignments),
		Quality:    passRate * ScoreQualityWeight,
		Efficiency: math.Max(0, ScoreEfficiencyCeiling-avgMinutes),
	}
	if w.IsSpecializedIn(stage) {
		f.Specialization = ScoreSpecializationBonus
	}
	if hint == ComplexityVeryHigh && w.Role.IsSupervisory() {
		f.Complexity = ScoreSupervisorBonus
	}

	return WorkerScore{
		WorkerID: w.WorkerID,
		Stage:    stage,
		Score:    f.Total(),
		Factors:  f,
	}
}

// RankWorkersForStage scores the eligible candidates and orders them by score
// descending, then worker id ascending. Ineligible workers are dropped
// without being scored.
func RankWorkersForStage(stage Stage, hint ComplexityHint, candidates []Worker) []WorkerScore {
	scores := make([]WorkerScore, 0, len(candidates))
	for _, w := range candidates {
		if !w.IsEligible() {
			continue
		}
		scores = append(scores, Score(w, stage, hint))
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].WorkerID < scores[j].WorkerID
	})

	return scores
}
