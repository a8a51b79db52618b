package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/core/ports"
)

const (
	retrievalLogTopChunks = 10
	publishTimeout        = 2 * time.Second
)

// RetrievalUseCase is the full search pipeline: analyze, embed, run the
// stages, recommend agencies, assemble.
type RetrievalUseCase struct {
	analyzer    *QueryAnalyzer
	retriever   *MultiStageRetriever
	recommender *AgencyRecommender
	assembler   ResultAssembler
	embedder    ports.Embedder
	publisher   ports.RetrievalLogPublisher
	observer    ports.RetrievalObserver
	logger      *slog.Logger
}

// NewRetrievalUseCase wires the pipeline. embedder and publisher may be nil:
// without an embedder every search is lexical-only, without a publisher no
// audit events are emitted.
func NewRetrievalUseCase(
	retriever *MultiStageRetriever,
	recommender *AgencyRecommender,
	embedder ports.Embedder,
	publisher ports.RetrievalLogPublisher,
	observer ports.RetrievalObserver,
	logger *slog.Logger,
) (*RetrievalUseCase, error) {
	if retriever == nil || recommender == nil {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new retrieval use case", fmt.Errorf("retriever and recommender are required"))
	}
	if observer == nil {
		observer = ports.NoopObserver()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalUseCase{
		analyzer:    NewQueryAnalyzer(),
		retriever:   retriever,
		recommender: recommender,
		embedder:    embedder,
		publisher:   publisher,
		observer:    observer,
		logger:      logger,
	}, nil
}

func (uc *RetrievalUseCase) Analyze(question string) domain.QueryAnalysis {
	return uc.analyzer.Analyze(question)
}

func (uc *RetrievalUseCase) Search(ctx context.Context, question string, overrides domain.RetrievalOverrides) (*domain.SearchResponse, error) {
	opts, err := uc.retriever.Options().WithOverrides(overrides)
	if err != nil {
		return nil, err
	}
	recommender, err := uc.recommender.WithWeights(opts.RuleWeight, opts.StatWeight)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", err)
	}

	start := time.Now()
	run, err := uc.run(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	resp := &domain.SearchResponse{
		RequestID:            domain.RequestIDFromContext(ctx),
		Query:                run.analysis.RawQuery,
		QueryType:            run.analysis.QueryType,
		Analysis:             run.analysis,
		Results:              uc.assembler.Assemble(run.staged.Results, opts.FinalTopK()),
		StageStats:           run.staged.Stats,
		Stages:               run.staged.Stages,
		AgencyRecommendation: recommender.Recommend(run.analysis.RawQuery, run.staged.Results, opts.AgencyTopN),
		DenseAvailable:       run.denseAvailable,
		Elapsed:              time.Since(start),
	}

	uc.logger.Info("retrieval_completed",
		"request_id", resp.RequestID,
		"query_type", resp.QueryType,
		"results", len(resp.Results),
		"fallback_triggered", resp.StageStats.FallbackTriggered,
		"dense_available", resp.DenseAvailable,
		"duration_ms", float64(resp.Elapsed.Microseconds())/1000.0,
	)
	uc.publishLog(ctx, resp)
	return resp, nil
}

// RecommendAgencies ranks agencies for a question. With evidence the stages
// run first and their results feed the statistical score.
func (uc *RetrievalUseCase) RecommendAgencies(ctx context.Context, question string, topN int, withEvidence bool) ([]domain.AgencyScore, error) {
	results, err := uc.evidence(ctx, question, withEvidence)
	if err != nil {
		return nil, err
	}
	return uc.recommender.Recommend(question, results, topN), nil
}

func (uc *RetrievalUseCase) ExplainAgencies(ctx context.Context, question string, withEvidence bool) (*domain.AgencyExplanation, error) {
	results, err := uc.evidence(ctx, question, withEvidence)
	if err != nil {
		return nil, err
	}
	explanation := uc.recommender.Explain(question, results)
	return &explanation, nil
}

func (uc *RetrievalUseCase) evidence(ctx context.Context, question string, withEvidence bool) ([]domain.SearchResult, error) {
	if !withEvidence {
		return nil, nil
	}
	run, err := uc.run(ctx, question, uc.retriever.Options())
	if err != nil {
		return nil, err
	}
	return run.staged.Results, nil
}

type pipelineRun struct {
	analysis       domain.QueryAnalysis
	staged         domain.MultiStageResult
	denseAvailable bool
}

func (uc *RetrievalUseCase) run(ctx context.Context, question string, opts domain.RetrievalOptions) (pipelineRun, error) {
	analysis := uc.analyzer.Analyze(question)
	embedding := uc.embedQuery(ctx, analysis.RawQuery, opts.CallTimeout)
	if err := ctx.Err(); err != nil {
		return pipelineRun{}, err
	}

	staged, err := uc.retriever.Retrieve(ctx, analysis, embedding, opts)
	if err != nil {
		return pipelineRun{}, err
	}
	return pipelineRun{
		analysis:       analysis,
		staged:         staged,
		denseAvailable: len(embedding) > 0,
	}, nil
}

// embedQuery returns nil when dense search is unavailable for this request.
func (uc *RetrievalUseCase) embedQuery(ctx context.Context, text string, timeout time.Duration) []float32 {
	if uc.embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	embedCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	vector, err := uc.embedder.EmbedQuery(embedCtx, text)
	uc.observer.ObserveEmbedding(time.Since(start), err)
	if err != nil {
		if ctx.Err() == nil {
			uc.logger.Warn("query_embedding_failed", "error", err)
		}
		return nil
	}
	return vector
}

func (uc *RetrievalUseCase) publishLog(ctx context.Context, resp *domain.SearchResponse) {
	if uc.publisher == nil {
		return
	}
	event := buildRetrievalLog(resp)
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := uc.publisher.PublishRetrievalLog(publishCtx, event); err != nil {
		uc.logger.Warn("retrieval_log_publish_failed", "request_id", resp.RequestID, "error", err)
	}
}

func buildRetrievalLog(resp *domain.SearchResponse) domain.RetrievalLog {
	hits := make([]domain.RetrievalLogHit, 0, retrievalLogTopChunks)
	for _, r := range trimResults(resp.Results, retrievalLogTopChunks) {
		hits = append(hits, domain.RetrievalLogHit{
			ChunkID:    r.ChunkID,
			DocType:    r.DocType,
			Similarity: r.Similarity,
		})
	}
	event := domain.RetrievalLog{
		ID:             uuid.NewString(),
		RequestID:      resp.RequestID,
		Query:          resp.Query,
		QueryType:      resp.QueryType,
		DenseAvailable: resp.DenseAvailable,
		Stages:         resp.Stages,
		Stats:          resp.StageStats,
		ResultCount:    len(resp.Results),
		TopChunks:      hits,
		ElapsedMS:      float64(resp.Elapsed.Microseconds()) / 1000.0,
		CreatedAt:      time.Now().UTC(),
	}
	if len(resp.AgencyRecommendation) > 0 {
		event.RecommendedAgency = resp.AgencyRecommendation[0].AgencyCode
	}
	return event
}
