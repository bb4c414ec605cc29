// Package search runs hybrid (vector + keyword) retrieval with weighted
// fusion and the optional trust-weighted rerank pass.
package search

import (
	"sort"

	"github.com/hyperjump/kioku/internal/models"
)

// Fuse merges vector and keyword candidate lists into one ranking:
//
//	fused = vectorWeight·vectorScore + textWeight·textScore
//
// Candidates are unioned by chunk id; a chunk missing from one list
// contributes 0 for that component. The keyword engine's snippet wins when
// non-empty (it is aligned to the literal match); the vector-path snippet
// is the fallback. Output is sorted by fused score descending, ties broken
// by ascending chunk id so repeated queries are reproducible.
func Fuse(vectorHits, keywordHits []*models.RankedCandidate, vectorWeight, textWeight float64) []*models.RankedCandidate {
	merged := make(map[string]*models.RankedCandidate, len(vectorHits)+len(keywordHits))
	for _, hit := range vectorHits {
		cp := *hit
		merged[hit.ID] = &cp
	}
	for _, hit := range keywordHits {
		if existing, ok := merged[hit.ID]; ok {
			existing.TextScore = hit.TextScore
			if hit.Snippet != "" {
				existing.Snippet = hit.Snippet
			}
			if existing.Text == "" {
				existing.Text = hit.Text
			}
			continue
		}
		cp := *hit
		merged[hit.ID] = &cp
	}

	results := make([]*models.RankedCandidate, 0, len(merged))
	for _, c := range merged {
		c.FusedScore = vectorWeight*c.VectorScore + textWeight*c.TextScore
		results = append(results, c)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].ID < results[j].ID
	})
	return results
}
