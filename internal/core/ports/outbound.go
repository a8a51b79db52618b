package ports

import (
	"context"
	"time"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

// DenseSearchable ranks corpus passages by cosine similarity to an embedding.
type DenseSearchable interface {
	DenseSearch(ctx context.Context, embedding []float32, limit int, filter domain.SearchFilter) ([]domain.SearchResult, error)
}

// LexicalSearchable ranks corpus passages by full-text relevance.
type LexicalSearchable interface {
	LexicalSearch(ctx context.Context, terms []string, limit int, filter domain.SearchFilter) ([]domain.SearchResult, error)
}

// CorpusBackend is one logical corpus. Every corpus supports both strategies.
type CorpusBackend interface {
	DenseSearchable
	LexicalSearchable
	Corpus() domain.DocType
}

// Embedder builds vectors for query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator creates the final user-facing answer from citations.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, citations []domain.Citation, agencies []domain.AgencyScore) (string, error)
}

// AnswerStreamer is implemented by generators that can emit partial text.
type AnswerStreamer interface {
	StreamAnswer(ctx context.Context, question string, citations []domain.Citation, agencies []domain.AgencyScore, emit func(delta string) error) error
}

// DocumentChunkReader lists all chunks of a source document in order.
type DocumentChunkReader interface {
	ListDocumentChunks(ctx context.Context, docID string) ([]domain.SearchResult, error)
}

// RetrievalLogPublisher emits audit events for completed searches.
type RetrievalLogPublisher interface {
	PublishRetrievalLog(ctx context.Context, event domain.RetrievalLog) error
}

// RetrievalLogSubscriber consumes audit events.
type RetrievalLogSubscriber interface {
	SubscribeRetrievalLogs(ctx context.Context, handler func(context.Context, domain.RetrievalLog) error) error
}

// RetrievalLogStore persists audit events.
type RetrievalLogStore interface {
	SaveRetrievalLog(ctx context.Context, event domain.RetrievalLog) error
}

// RetrievalObserver receives orchestration telemetry.
type RetrievalObserver interface {
	ObserveCorpusCall(corpus domain.DocType, count int, elapsed time.Duration, err error)
	ObserveFallback(triggered bool)
	ObserveEmbedding(elapsed time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveCorpusCall(domain.DocType, int, time.Duration, error) {}
func (noopObserver) ObserveFallback(bool) {}
func (noopObserver) ObserveEmbedding(time.Duration, error) {}

// NoopObserver discards all telemetry.
func NoopObserver() RetrievalObserver {
	return noopObserver{}
}
