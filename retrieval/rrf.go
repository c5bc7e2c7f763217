package retrieval

import (
	"sort"

	"github.com/brunobiangulo/kgsynth/store"
)

const rrfK = 60

// fuseRRF combines ranked result lists with Reciprocal Rank Fusion:
// score = sum(weight_i / (k + rank_i)). Ties keep first-seen order.
func fuseRRF(vecResults, ftsResults []store.SearchResult, weightVec, weightFTS float64, maxResults int) []store.SearchResult {
	type fusedEntry struct {
		result store.SearchResult
		score  float64
		order  int
	}

	fused := make(map[int64]*fusedEntry)
	add := func(results []store.SearchResult, weight float64) {
		for rank, r := range results {
			entry, ok := fused[r.ChunkID]
			if !ok {
				entry = &fusedEntry{result: r, order: len(fused)}
				fused[r.ChunkID] = entry
			}
			entry.score += weight / float64(rrfK+rank+1)
		}
	}
	add(vecResults, weightVec)
	add(ftsResults, weightFTS)

	entries := make([]*fusedEntry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].order < entries[j].order
	})

	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	results := make([]store.SearchResult, len(entries))
	for i, e := range entries {
		results[i] = e.result
		results[i].Score = e.score
	}
	return results
}
