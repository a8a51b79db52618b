package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/core/ports"
)

const (
	expansionSnippetRunes = 100
	expansionQueryRunes   = 500
	expansionPerCorpus    = 2
)

// MultiStageRetriever drives the cross-corpus pipeline:
//
//	stage 1: statute and criteria, concurrently
//	stage 2: mediation cases
//	stage 3: counsel cases, only when stage 2 yields fewer than
//	         MediationThreshold results
//
// A failing corpus call counts as an empty stage. Only caller cancellation
// aborts a run.
type MultiStageRetriever struct {
	corpora  map[domain.DocType]ports.CorpusBackend
	searcher *HybridSearcher
	embedder ports.Embedder
	observer ports.RetrievalObserver
	logger   *slog.Logger
	options  domain.RetrievalOptions
}

// NewMultiStageRetriever requires exactly one backend per corpus. The
// embedder is optional and only used for mediation query expansion.
func NewMultiStageRetriever(
	backends []ports.CorpusBackend,
	embedder ports.Embedder,
	observer ports.RetrievalObserver,
	logger *slog.Logger,
	options domain.RetrievalOptions,
) (*MultiStageRetriever, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	corpora := make(map[domain.DocType]ports.CorpusBackend, len(backends))
	for _, backend := range backends {
		if backend == nil {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "new multi-stage retriever", fmt.Errorf("nil corpus backend"))
		}
		corpus := backend.Corpus()
		if _, ok := domain.ParseDocType(string(corpus)); !ok {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "new multi-stage retriever", fmt.Errorf("unknown corpus %q", corpus))
		}
		if _, dup := corpora[corpus]; dup {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "new multi-stage retriever", fmt.Errorf("duplicate backend for corpus %q", corpus))
		}
		corpora[corpus] = backend
	}
	for _, corpus := range domain.CorpusOrder {
		if _, ok := corpora[corpus]; !ok {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "new multi-stage retriever", fmt.Errorf("missing backend for corpus %q", corpus))
		}
	}

	if observer == nil {
		observer = ports.NoopObserver()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiStageRetriever{
		corpora:  corpora,
		searcher: NewHybridSearcher(logger),
		embedder: embedder,
		observer: observer,
		logger:   logger,
		options:  options,
	}, nil
}

// Options returns the configured defaults.
func (m *MultiStageRetriever) Options() domain.RetrievalOptions {
	return m.options
}

type corpusOutcome struct {
	results []domain.SearchResult
	stage   domain.StageResult
}

// Retrieve runs all stages. A nil embedding makes every corpus call
// lexical-only.
func (m *MultiStageRetriever) Retrieve(
	ctx context.Context,
	analysis domain.QueryAnalysis,
	embedding []float32,
	opts domain.RetrievalOptions,
) (domain.MultiStageResult, error) {
	if err := opts.Validate(); err != nil {
		return domain.MultiStageResult{}, domain.WrapError(domain.ErrInvalidInput, "multi-stage retrieve", err)
	}
	terms := analysis.Terms()

	var statute, criteria corpusOutcome
	var g errgroup.Group
	g.Go(func() error {
		statute = m.searchCorpus(ctx, 1, domain.DocTypeStatute, embedding, terms, opts)
		return nil
	})
	g.Go(func() error {
		criteria = m.searchCorpus(ctx, 1, domain.DocTypeCriteria, embedding, terms, opts)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return domain.MultiStageResult{}, err
	}

	mediationEmbedding := embedding
	if opts.ExpandMediationQuery {
		mediationEmbedding = m.expandedEmbedding(ctx, analysis.RawQuery, statute.results, criteria.results, embedding, opts.CallTimeout)
	}
	mediation := m.searchCorpus(ctx, 2, domain.DocTypeMediationCase, mediationEmbedding, terms, opts)
	if err := ctx.Err(); err != nil {
		return domain.MultiStageResult{}, err
	}

	stages := []domain.StageResult{statute.stage, criteria.stage, mediation.stage}
	fallback := len(mediation.results) < opts.MediationThreshold
	m.observer.ObserveFallback(fallback)

	var counsel corpusOutcome
	if fallback {
		m.logger.Info("stage_fallback_triggered",
			"mediation_count", len(mediation.results),
			"mediation_threshold", opts.MediationThreshold,
		)
		counsel = m.searchCorpus(ctx, 3, domain.DocTypeCounselCase, embedding, terms, opts)
		if err := ctx.Err(); err != nil {
			return domain.MultiStageResult{}, err
		}
		counsel.stage.FallbackTriggered = true
		stages = append(stages, counsel.stage)
	}

	return domain.MultiStageResult{
		Results: dedupeByChunkID(statute.results, criteria.results, mediation.results, counsel.results),
		Stages:  stages,
		Stats: domain.StageStats{
			LawCount:          len(statute.results),
			CriteriaCount:     len(criteria.results),
			MediationCount:    len(mediation.results),
			CounselCount:      len(counsel.results),
			FallbackTriggered: fallback,
		},
	}, nil
}

func (m *MultiStageRetriever) searchCorpus(
	ctx context.Context,
	stage int,
	corpus domain.DocType,
	embedding []float32,
	terms []string,
	opts domain.RetrievalOptions,
) corpusOutcome {
	vectorWeight, keywordWeight := opts.FusionWeights(corpus)
	callCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()

	start := time.Now()
	results, err := m.searcher.Search(callCtx, m.corpora[corpus], HybridQuery{
		Embedding:           embedding,
		Terms:               terms,
		Filter:              opts.Filter,
		TopK:                opts.TopKFor(corpus),
		CandidateMultiplier: opts.CandidateMultiplier,
		RRFK:                opts.RRFK,
		VectorWeight:        vectorWeight,
		KeywordWeight:       keywordWeight,
	})
	elapsed := time.Since(start)

	outcome := corpusOutcome{
		results: results,
		stage: domain.StageResult{
			Stage:     stage,
			Corpus:    corpus,
			Elapsed:   elapsed,
			ElapsedMS: float64(elapsed.Microseconds()) / 1000.0,
		},
	}
	m.observer.ObserveCorpusCall(corpus, len(results), elapsed, err)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("corpus_search_failed",
				"corpus", corpus,
				"stage", stage,
				"elapsed_ms", outcome.stage.ElapsedMS,
				"error", err,
			)
		}
		outcome.results = []domain.SearchResult{}
		outcome.stage.Error = err.Error()
		return outcome
	}
	outcome.stage.Count = len(results)
	return outcome
}

// expandedEmbedding enriches the mediation query with the leading text of
// the best statute and criteria passages. Any failure keeps the original
// embedding.
func (m *MultiStageRetriever) expandedEmbedding(
	ctx context.Context,
	question string,
	statute, criteria []domain.SearchResult,
	fallback []float32,
	timeout time.Duration,
) []float32 {
	if m.embedder == nil || strings.TrimSpace(question) == "" {
		return fallback
	}
	if len(statute) == 0 && len(criteria) == 0 {
		return fallback
	}

	embedCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	vector, err := m.embedder.EmbedQuery(embedCtx, buildMediationQuery(question, statute, criteria))
	if err != nil || len(vector) == 0 {
		if ctx.Err() == nil {
			m.logger.Warn("mediation_query_expansion_failed", "error", err)
		}
		return fallback
	}
	return vector
}

func buildMediationQuery(question string, statute, criteria []domain.SearchResult) string {
	parts := []string{strings.TrimSpace(question)}
	for _, list := range [][]domain.SearchResult{statute, criteria} {
		for _, r := range trimResults(list, expansionPerCorpus) {
			snippet := strings.TrimSpace(truncateRunes(r.Content, expansionSnippetRunes))
			if snippet != "" {
				parts = append(parts, snippet)
			}
		}
	}
	return truncateRunes(strings.Join(parts, " "), expansionQueryRunes)
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}

// dedupeByChunkID concatenates lists in order; the first copy of a chunk wins.
func dedupeByChunkID(lists ...[]domain.SearchResult) []domain.SearchResult {
	seen := make(map[string]struct{})
	out := make([]domain.SearchResult, 0)
	for _, list := range lists {
		for _, r := range list {
			if _, ok := seen[r.ChunkID]; ok {
				continue
			}
			seen[r.ChunkID] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}
