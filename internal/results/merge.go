package results

import (
	"sort"

	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/idhash"
)

// Merge deduplicates existing and incoming rows by observation key. For a
// duplicated key the row that is BetterThan the held one replaces it, so the
// survivor does not depend on insertion order except on exact ties, where
// the earlier row is kept. The result is in key order.
func Merge(existing, incoming []domain.Observation) []domain.Observation {
	held := make(map[domain.ObservationKey]domain.Observation, len(existing)+len(incoming))
	for _, rows := range [][]domain.Observation{existing, incoming} {
		for _, o := range rows {
			k := idhash.KeyOf(o)
			if cur, ok := held[k]; ok && !o.BetterThan(cur) {
				continue
			}
			held[k] = o
		}
	}
	return sortedRows(held)
}

func sortedRows(held map[domain.ObservationKey]domain.Observation) []domain.Observation {
	keys := make([]domain.ObservationKey, 0, len(held))
	for k := range held {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]domain.Observation, len(keys))
	for i, k := range keys {
		out[i] = held[k]
	}
	return out
}

// BestOf returns the non-failed row with the highest net profit.
// Ties keep the first row in the given order.
func BestOf(rows []domain.Observation) (domain.Observation, bool) {
	var best domain.Observation
	found := false
	for _, o := range rows {
		if !o.BestCandidate() {
			continue
		}
		if !found || *o.NetProfit > *best.NetProfit {
			best = o
			found = true
		}
	}
	return best, found
}
