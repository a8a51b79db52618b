package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/core/ports"
)

const minCandidateMultiplier = 2

// HybridQuery is one corpus call. A nil Embedding disables the dense side and
// empty Terms disable the lexical side.
type HybridQuery struct {
	Embedding           []float32
	Terms               []string
	Filter              domain.SearchFilter
	TopK                int
	CandidateMultiplier int
	RRFK                int
	VectorWeight        float64
	KeywordWeight       float64
}

// HybridSearcher runs dense and lexical search against one corpus and fuses
// the two rankings.
type HybridSearcher struct {
	logger *slog.Logger
}

func NewHybridSearcher(logger *slog.Logger) *HybridSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridSearcher{logger: logger}
}

// Search never returns a nil slice on success. It fails only when every
// attempted sub-search failed or the context ended.
func (s *HybridSearcher) Search(ctx context.Context, corpus ports.CorpusBackend, q HybridQuery) ([]domain.SearchResult, error) {
	if q.TopK <= 0 {
		return []domain.SearchResult{}, nil
	}
	multiplier := q.CandidateMultiplier
	if multiplier < minCandidateMultiplier {
		multiplier = minCandidateMultiplier
	}
	candidates := q.TopK * multiplier

	runDense := len(q.Embedding) > 0
	runLexical := len(q.Terms) > 0
	if !runDense && !runLexical {
		return []domain.SearchResult{}, nil
	}

	var (
		dense, lexical       []domain.SearchResult
		denseErr, lexicalErr error
		g                    errgroup.Group
	)
	if runDense {
		g.Go(func() error {
			dense, denseErr = corpus.DenseSearch(ctx, q.Embedding, candidates, q.Filter)
			return nil
		})
	}
	if runLexical {
		g.Go(func() error {
			lexical, lexicalErr = corpus.LexicalSearch(ctx, q.Terms, candidates, q.Filter)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := corpus.Corpus()
	if denseErr != nil {
		if !runLexical || lexicalErr != nil {
			return nil, errors.Join(
				fmt.Errorf("%s dense search: %w", name, denseErr),
				wrapLexicalErr(name, lexicalErr),
			)
		}
		s.logger.Warn("dense_search_degraded", "corpus", name, "error", denseErr)
		dense = nil
	}
	if lexicalErr != nil {
		if !runDense {
			return nil, fmt.Errorf("%s lexical search: %w", name, lexicalErr)
		}
		s.logger.Warn("lexical_search_degraded", "corpus", name, "error", lexicalErr)
		lexical = nil
	}

	denseWeight, lexicalWeight := q.VectorWeight, q.KeywordWeight
	if denseWeight == 0 && lexicalWeight == 0 {
		denseWeight, lexicalWeight = 1.0, 1.0
	}

	fused := fuseRRF(ownedBy(dense, name), ownedBy(lexical, name), q.RRFK, denseWeight, lexicalWeight)
	return trimResults(fused, q.TopK), nil
}

func wrapLexicalErr(corpus domain.DocType, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s lexical search: %w", corpus, err)
}

// ownedBy drops rows that claim a different corpus than the backend that
// produced them.
func ownedBy(results []domain.SearchResult, corpus domain.DocType) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(results))
	for _, r := range results {
		if r.DocType != corpus {
			continue
		}
		out = append(out, r)
	}
	return out
}
