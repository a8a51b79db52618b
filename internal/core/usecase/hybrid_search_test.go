package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

func baseHybridQuery() HybridQuery {
	return HybridQuery{
		Embedding: []float32{0.1, 0.2},
		Terms:     []string{"환불"},
		TopK:      3,
		RRFK:      60,
	}
}

func TestHybridSearchFusesBothSides(t *testing.T) {
	corpus := &corpusFake{
		corpus:  domain.DocTypeStatute,
		dense:   searchResults(domain.DocTypeStatute, "a", "b"),
		lexical: searchResults(domain.DocTypeStatute, "b", "c"),
	}

	out, err := NewHybridSearcher(discardLogger()).Search(context.Background(), corpus, baseHybridQuery())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := fusionIDs(out); len(got) != 3 || got[0] != "b" {
		t.Fatalf("unexpected fused order %v", got)
	}
	if corpus.denseLimit != 6 || corpus.lexicalLimit != 6 {
		t.Fatalf("expected candidate pools of 6, got %d/%d", corpus.denseLimit, corpus.lexicalLimit)
	}
}

func TestHybridSearchDegradesToLexical(t *testing.T) {
	corpus := &corpusFake{
		corpus:   domain.DocTypeCriteria,
		denseErr: errors.New("index offline"),
		lexical:  searchResults(domain.DocTypeCriteria, "k1", "k2"),
	}

	out, err := NewHybridSearcher(discardLogger()).Search(context.Background(), corpus, baseHybridQuery())
	if err != nil {
		t.Fatalf("expected lexical-only results, got error %v", err)
	}
	if got := fusionIDs(out); len(got) != 2 || got[0] != "k1" {
		t.Fatalf("expected lexical order preserved, got %v", got)
	}
}

func TestHybridSearchDegradesToDense(t *testing.T) {
	corpus := &corpusFake{
		corpus:     domain.DocTypeCriteria,
		dense:      searchResults(domain.DocTypeCriteria, "k9"),
		lexicalErr: errors.New("tsquery syntax"),
	}

	out, err := NewHybridSearcher(discardLogger()).Search(context.Background(), corpus, baseHybridQuery())
	if err != nil {
		t.Fatalf("expected dense-only results, got error %v", err)
	}
	if len(out) != 1 || out[0].ChunkID != "k9" {
		t.Fatalf("unexpected results %v", fusionIDs(out))
	}
}

func TestHybridSearchFailsWhenBothSidesFail(t *testing.T) {
	denseErr := errors.New("dense down")
	lexicalErr := errors.New("lexical down")
	corpus := &corpusFake{corpus: domain.DocTypeStatute, denseErr: denseErr, lexicalErr: lexicalErr}

	_, err := NewHybridSearcher(discardLogger()).Search(context.Background(), corpus, baseHybridQuery())
	if !errors.Is(err, denseErr) || !errors.Is(err, lexicalErr) {
		t.Fatalf("expected both errors joined, got %v", err)
	}
}

func TestHybridSearchWithoutEmbeddingSkipsDense(t *testing.T) {
	corpus := &corpusFake{
		corpus:  domain.DocTypeStatute,
		dense:   searchResults(domain.DocTypeStatute, "a"),
		lexical: searchResults(domain.DocTypeStatute, "b"),
	}
	q := baseHybridQuery()
	q.Embedding = nil

	out, err := NewHybridSearcher(discardLogger()).Search(context.Background(), corpus, q)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if corpus.denseCalls != 0 {
		t.Fatalf("dense search must not run without an embedding")
	}
	if len(out) != 1 || out[0].ChunkID != "b" {
		t.Fatalf("unexpected results %v", fusionIDs(out))
	}
}

func TestHybridSearchLexicalFailureWithoutEmbeddingIsError(t *testing.T) {
	corpus := &corpusFake{corpus: domain.DocTypeStatute, lexicalErr: errors.New("boom")}
	q := baseHybridQuery()
	q.Embedding = nil

	if _, err := NewHybridSearcher(discardLogger()).Search(context.Background(), corpus, q); err == nil {
		t.Fatalf("expected error when the only attempted search fails")
	}
}

func TestHybridSearchEmptyIsNonNil(t *testing.T) {
	corpus := &corpusFake{corpus: domain.DocTypeCounselCase}

	out, err := NewHybridSearcher(discardLogger()).Search(context.Background(), corpus, baseHybridQuery())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", out)
	}

	q := baseHybridQuery()
	q.Embedding = nil
	q.Terms = nil
	out, err = NewHybridSearcher(discardLogger()).Search(context.Background(), corpus, q)
	if err != nil || out == nil || len(out) != 0 {
		t.Fatalf("expected empty result with nothing to search, got %#v, %v", out, err)
	}
}

func TestHybridSearchTruncatesAndDropsForeignRows(t *testing.T) {
	lexical := searchResults(domain.DocTypeMediationCase, "m1", "m2", "m3", "m4")
	lexical[1].DocType = domain.DocTypeCounselCase
	corpus := &corpusFake{corpus: domain.DocTypeMediationCase, lexical: lexical}
	q := baseHybridQuery()
	q.Embedding = nil
	q.TopK = 2

	out, err := NewHybridSearcher(discardLogger()).Search(context.Background(), corpus, q)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := fusionIDs(out); len(got) != 2 || got[0] != "m1" || got[1] != "m3" {
		t.Fatalf("expected [m1 m3], got %v", got)
	}
	for _, r := range out {
		if r.DocType != domain.DocTypeMediationCase {
			t.Fatalf("foreign row leaked: %+v", r)
		}
	}
}

func TestHybridSearchReturnsContextError(t *testing.T) {
	corpus := &corpusFake{corpus: domain.DocTypeStatute, lexical: searchResults(domain.DocTypeStatute, "a")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewHybridSearcher(discardLogger()).Search(ctx, corpus, baseHybridQuery()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
