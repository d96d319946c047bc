package domain

import "sort"

// SortForPipeline orders batches by priority (expedite first), then creation
// time ascending, then batch number
func SortForPipeline(batches []*Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if a.Priority != b.Priority {
			return a.Priority.IsHigherThan(b.Priority)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.BatchNumber < b.BatchNumber
	})
}

// GroupByStage buckets the active batches by current stage. Every catalog
// stage has an entry, possibly empty.
func GroupByStage(batches []*Batch) map[Stage][]*Batch {
	groups := make(map[Stage][]*Batch, len(Catalog))
	for _, stage := range Catalog {
		groups[stage] = make([]*Batch, 0)
	}
	for _, b := range batches {
		if b == nil || !b.IsActive() || !b.CurrentStage.IsValid() {
			continue
		}
		groups[b.CurrentStage] = append(groups[b.CurrentStage], b)
	}
	for _, group := range groups {
		SortForPipeline(group)
	}
	return groups
}
