package domain

import (
	"strings"
)

// Stage is one step of the fixed production sequence
type Stage string

const (
	StageIntake        Stage = "intake"
	StageSanding       Stage = "sanding"
	StageFinishing     Stage = "finishing"
	StageSubAssembly   Stage = "sub_assembly"
	StageFinalAssembly Stage = "final_assembly"
	StageAcousticQC    Stage = "acoustic_qc"
	StageShipping      Stage = "shipping"
)

// Catalog is the ordered stage sequence. Index is the stage ordinal.
var Catalog = []Stage{
	StageIntake,
	StageSanding,
	StageFinishing,
	StageSubAssembly,
	StageFinalAssembly,
	StageAcousticQC,
	StageShipping,
}

var stageDisplayNames = map[Stage]string{
	StageIntake:        "Intake",
	StageSanding:       "Sanding",
	StageFinishing:     "Finishing",
	StageSubAssembly:   "Sub-Assembly",
	StageFinalAssembly: "Final Assembly",
	StageAcousticQC:    "Acoustic QC",
	StageShipping:      "Shipping",
}

// InitialStage is where every batch starts
func InitialStage() Stage { return Catalog[0] }

// TerminalStage is the last catalog entry
func TerminalStage() Stage { return Catalog[len(Catalog)-1] }

// ParseStage accepts either the stage id ("final_assembly") or its display
// name ("Final Assembly"), case-insensitively
func ParseStage(s string) (Stage, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	for _, stage := range Catalog {
		if string(stage) == key {
			return stage, nil
		}
	}
	return "", ErrInvalidStage
}

// StageValues returns the catalog ids, used for request validation
func StageValues() []string {
	values := make([]string, len(Catalog))
	for i, stage := range Catalog {
		values[i] = string(stage)
	}
	return values
}

// StageNames returns the display names in catalog order
func StageNames() []string {
	names := make([]string, len(Catalog))
	for i, stage := range Catalog {
		names[i] = stage.DisplayName()
	}
	return names
}

// IsValid reports whether s is a catalog stage
func (s Stage) IsValid() bool {
	return s.Ordinal() >= 0
}

// Ordinal returns the catalog position, or -1 for unknown stages
func (s Stage) Ordinal() int {
	for i, stage := range Catalog {
		if stage == s {
			return i
		}
	}
	return -1
}

// DisplayName returns the human-readable stage name
func (s Stage) DisplayName() string {
	if name, ok := stageDisplayNames[s]; ok {
		return name
	}
	return string(s)
}

// IsTerminal is true only for the last catalog stage
func (s Stage) IsTerminal() bool {
	return s == TerminalStage()
}

// IsBefore reports whether s comes strictly earlier in the catalog than other
func (s Stage) IsBefore(other Stage) bool {
	return s.IsValid() && other.IsValid() && s.Ordinal() < other.Ordinal()
}

func (s Stage) String() string {
	return string(s)
}

// LegalNextStages returns every stage with a strictly greater ordinal.
// Skipping forward is allowed; moving to the same or an earlier stage never is.
func LegalNextStages(current Stage) []Stage {
	ord := current.Ordinal()
	if ord < 0 {
		return nil
	}
	next := make([]Stage, 0, len(Catalog)-ord-1)
	next = append(next, Catalog[ord+1:]...)
	return next
}

// IsLegalTransition reports whether to is in LegalNextStages(from)
func IsLegalTransition(from, to Stage) bool {
	return from.IsBefore(to)
}

// StagesBetween returns the stages in [from, to), in catalog order
func StagesBetween(from, to Stage) []Stage {
	start, end := from.Ordinal(), to.Ordinal()
	if start < 0 || end < 0 || start >= end {
		return nil
	}
	out := make([]Stage, 0, end-start)
	out = append(out, Catalog[start:end]...)
	return out
}
