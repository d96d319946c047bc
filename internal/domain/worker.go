package domain

// MaxOpenAssignments is the exclusive cap on a worker's open assignments.
// A worker holding this many is not eligible for another.
const MaxOpenAssignments = 3

// Neutral metrics used for workers without recorded history
const (
	DefaultQualityPassRate   = 0.8
	DefaultAvgMinutesPerUnit = 60.0
)

// PerformanceMetrics are a worker's rolling recent results
type PerformanceMetrics struct {
	QualityPassRate   float64 `json:"qualityPassRate" toml:"quality_pass_rate"`
	AvgMinutesPerUnit float64 `json:"avgMinutesPerUnit" toml:"avg_minutes_per_unit"`
	SampleSize        int     `json:"sampleSize" toml:"sample_size"`
}

// HasHistory reports whether the metrics come from recorded work
func (m PerformanceMetrics) HasHistory() bool {
	return m.SampleSize > 0
}

// Effective returns the metrics the scorer should use
func (m PerformanceMetrics) Effective() (passRate, avgMinutes float64) {
	if !m.HasHistory() {
		return DefaultQualityPassRate, DefaultAvgMinutesPerUnit
	}
	return m.QualityPassRate, m.AvgMinutesPerUnit
}

// Worker is production staff as reported by the worker directory. Available
// refers to the scheduling period the directory was queried for.
type Worker struct {
	WorkerID        string             `json:"workerId" toml:"id"`
	Name            string             `json:"name" toml:"name"`
	Role            Role               `json:"role" toml:"role"`
	Specializations []Stage            `json:"specializations" toml:"specializations"`
	Active          bool               `json:"active" toml:"active"`
	Available       bool               `json:"available" toml:"available"`
	Performance     PerformanceMetrics `json:"performance" toml:"performance"`
	OpenAssignments int                `json:"openAssignments" toml:"open_assignments"`
}

// IsSpecializedIn reports whether stage is one of the worker's capabilities
func (w Worker) IsSpecializedIn(stage Stage) bool {
	for _, s := range w.Specializations {
		if s == stage {
			return true
		}
	}
	return false
}

// IneligibilityReason returns why the worker cannot take an assignment, or ""
func (w Worker) IneligibilityReason() string {
	switch {
	case !w.Active:
		return "inactive"
	case !w.Available:
		return "unavailable"
	case w.OpenAssignments >= MaxOpenAssignments:
		return "at_capacity"
	default:
		return ""
	}
}

// IsEligible applies the active, available and under-capacity filter
func (w Worker) IsEligible() bool {
	return w.IneligibilityReason() == ""
}
