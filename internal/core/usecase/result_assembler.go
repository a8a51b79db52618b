package usecase

import (
	"math"
	"strings"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

const (
	citationContentRunes = 500
	defaultCitationCount = 5
)

// ResultAssembler normalises and truncates the final result set. It makes
// no ranking decisions.
type ResultAssembler struct{}

func (ResultAssembler) Assemble(results []domain.SearchResult, topK int) []domain.SearchResult {
	deduped := dedupeByChunkID(results)
	deduped = trimResults(deduped, topK)

	out := make([]domain.SearchResult, 0, len(deduped))
	for _, r := range deduped {
		out = append(out, normalizeResult(r))
	}
	return out
}

func normalizeResult(r domain.SearchResult) domain.SearchResult {
	similarity := r.Similarity
	if math.IsNaN(similarity) || math.IsInf(similarity, 0) || similarity < 0 {
		similarity = 0
	}
	out := r.WithSimilarity(similarity)
	out.Content = strings.TrimSpace(out.Content)
	out.DocTitle = strings.TrimSpace(out.DocTitle)
	if out.CategoryPath == nil {
		out.CategoryPath = []string{}
	}
	return out
}

// Citations maps the first limit results to the generator's citation shape.
// A non-positive limit uses the default of five.
func (ResultAssembler) Citations(results []domain.SearchResult, limit int) []domain.Citation {
	if limit <= 0 {
		limit = defaultCitationCount
	}
	results = trimResults(results, limit)

	out := make([]domain.Citation, 0, len(results))
	for i, r := range results {
		c := domain.Citation{
			Index:      i + 1,
			ChunkID:    r.ChunkID,
			DocID:      r.DocID,
			DocTitle:   r.DocTitle,
			DocType:    r.DocType,
			ChunkType:  r.ChunkType,
			SourceOrg:  r.SourceOrgValue(),
			Similarity: r.Similarity,
			Content:    truncateRunes(strings.TrimSpace(r.Content), citationContentRunes),
		}
		if r.URL != nil {
			c.URL = *r.URL
		}
		if r.DecisionDate != nil {
			c.DecisionDate = *r.DecisionDate
		}
		out = append(out, c)
	}
	return out
}
