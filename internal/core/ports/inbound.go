package ports

import (
	"context"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

// RetrievalService is the inbound contract for multi-stage search.
type RetrievalService interface {
	Search(ctx context.Context, question string, overrides domain.RetrievalOverrides) (*domain.SearchResponse, error)
	Analyze(question string) domain.QueryAnalysis
}

// ChatService answers a question from retrieved evidence.
type ChatService interface {
	Chat(ctx context.Context, question string, overrides domain.RetrievalOverrides) (*domain.ChatAnswer, error)
	// ChatStream hands answer text to emit as it is generated. The returned
	// answer carries the full text.
	ChatStream(ctx context.Context, question string, overrides domain.RetrievalOverrides, emit func(delta string) error) (*domain.ChatAnswer, error)
}

// AgencyAdvisor ranks handling agencies. With evidence the retrieval pipeline
// runs first and its results feed the statistical score.
type AgencyAdvisor interface {
	RecommendAgencies(ctx context.Context, question string, topN int, withEvidence bool) ([]domain.AgencyScore, error)
	ExplainAgencies(ctx context.Context, question string, withEvidence bool) (*domain.AgencyExplanation, error)
}

// DocumentChunkService is the read model for one source document.
type DocumentChunkService interface {
	ListDocumentChunks(ctx context.Context, docID string) ([]domain.SearchResult, error)
}

// RetrievalLogRecorder handles consumed audit events.
type RetrievalLogRecorder interface {
	Record(ctx context.Context, event domain.RetrievalLog) error
}
