package usecase

import (
	"sort"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

const defaultRRFK = 60

type fusedCandidate struct {
	result domain.SearchResult
	score  float64
}

// fuseRRF merges two rankings with weighted reciprocal rank fusion. Each list
// contributes weight/(k+rank) with a 1-based rank; a chunk repeated inside one
// list only counts at its best rank. Ties are broken by chunk id.
func fuseRRF(dense, lexical []domain.SearchResult, rrfK int, denseWeight, lexicalWeight float64) []domain.SearchResult {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate, len(dense)+len(lexical))
	addList := func(results []domain.SearchResult, weight float64) {
		listed := make(map[string]struct{}, len(results))
		for rank, result := range results {
			if _, dup := listed[result.ChunkID]; dup {
				continue
			}
			listed[result.ChunkID] = struct{}{}

			candidate, ok := acc[result.ChunkID]
			if !ok {
				candidate = &fusedCandidate{result: result}
				acc[result.ChunkID] = candidate
			} else {
				candidate.result = preferRicherResult(candidate.result, result)
			}
			candidate.score += weight / float64(rrfK+rank+1)
		}
	}

	addList(dense, denseWeight)
	addList(lexical, lexicalWeight)

	out := make([]domain.SearchResult, 0, len(acc))
	for _, c := range acc {
		out = append(out, c.result.WithSimilarity(c.score))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

func trimResults(results []domain.SearchResult, limit int) []domain.SearchResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

// preferRicherResult fills metadata the first copy lacks. Dense and lexical
// rows for one chunk come from the same record but may project different
// optional columns.
func preferRicherResult(current, candidate domain.SearchResult) domain.SearchResult {
	if current.Content == "" && candidate.Content != "" {
		current.Content = candidate.Content
	}
	if current.DocTitle == "" && candidate.DocTitle != "" {
		current.DocTitle = candidate.DocTitle
	}
	if len(current.CategoryPath) == 0 && len(candidate.CategoryPath) > 0 {
		current.CategoryPath = candidate.CategoryPath
	}
	if current.SourceOrg == nil {
		current.SourceOrg = candidate.SourceOrg
	}
	if current.URL == nil {
		current.URL = candidate.URL
	}
	if current.DecisionDate == nil {
		current.DecisionDate = candidate.DecisionDate
	}
	if current.CollectedAt == nil {
		current.CollectedAt = candidate.CollectedAt
	}
	return current
}
