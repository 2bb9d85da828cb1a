package ledger

import "sort"

// MergeOperations folds freshly derived operations into an existing history.
// The merge is idempotent: operations are keyed by ID and an incoming
// operation replaces the stored one with the same ID. The result is ordered
// newest first.
func MergeOperations(existing, incoming []*Operation) []*Operation {
	seen := make(map[string]struct{}, len(incoming))
	merged := make([]*Operation, 0, len(existing)+len(incoming))
	for _, op := range incoming {
		if _, dup := seen[op.ID]; dup {
			continue
		}
		seen[op.ID] = struct{}{}
		merged = append(merged, op)
	}
	for _, op := range existing {
		if _, dup := seen[op.ID]; dup {
			continue
		}
		seen[op.ID] = struct{}{}
		merged = append(merged, op)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].BlockHeight != merged[j].BlockHeight {
			return merged[i].BlockHeight > merged[j].BlockHeight
		}
		if !merged[i].Date.Equal(merged[j].Date) {
			return merged[i].Date.After(merged[j].Date)
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}
