package domain

// Priority is an order or batch urgency
type Priority string

const (
	PriorityStandard Priority = "standard"
	PriorityRush     Priority = "rush"
	PriorityExpedite Priority = "expedite"
)

// ParsePriority validates a priority value
func ParsePriority(p string) (Priority, error) {
	switch Priority(p) {
	case PriorityStandard, PriorityRush, PriorityExpedite:
		return Priority(p), nil
	default:
		return "", ErrInvalidPriority
	}
}

// IsHigherThan returns true if this priority is more urgent than other
func (p Priority) IsHigherThan(other Priority) bool {
	return p.rank() > other.rank()
}

// rank returns the priority rank (higher is more urgent)
func (p Priority) rank() int {
	switch p {
	case PriorityExpedite:
		return 3
	case PriorityRush:
		return 2
	case PriorityStandard:
		return 1
	default:
		return 0
	}
}

func (p Priority) String() string {
	return string(p)
}

// MaxPriority returns the most urgent of the given priorities, standard when empty
func MaxPriority(priorities ...Priority) Priority {
	max := PriorityStandard
	for _, p := range priorities {
		if p.IsHigherThan(max) {
			max = p
		}
	}
	return max
}
