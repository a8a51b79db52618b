package mcpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

type retrievalFake struct {
	err       error
	question  string
	overrides domain.RetrievalOverrides
}

func (f *retrievalFake) Search(_ context.Context, question string, overrides domain.RetrievalOverrides) (*domain.SearchResponse, error) {
	f.question = question
	f.overrides = overrides
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SearchResponse{
		Query:     question,
		QueryType: domain.QueryTypeSimilarCase,
		Results: []domain.SearchResult{
			{ChunkID: "m-1", DocID: "case-1", DocType: domain.DocTypeMediationCase, CategoryPath: []string{}},
		},
		AgencyRecommendation: []domain.AgencyScore{{AgencyCode: domain.AgencyKCA, Name: "한국소비자원", FinalScore: 0.8}},
		DenseAvailable:       true,
	}, nil
}

func (f *retrievalFake) Analyze(question string) domain.QueryAnalysis {
	return domain.QueryAnalysis{RawQuery: question}
}

type agencyFake struct {
	topN         int
	withEvidence bool
	err          error
}

func (f *agencyFake) RecommendAgencies(_ context.Context, _ string, topN int, withEvidence bool) ([]domain.AgencyScore, error) {
	f.topN = topN
	f.withEvidence = withEvidence
	if f.err != nil {
		return nil, f.err
	}
	return []domain.AgencyScore{{AgencyCode: domain.AgencyECMC, Name: "전자거래분쟁조정위원회", FinalScore: 0.7}}, nil
}

func (f *agencyFake) ExplainAgencies(context.Context, string, bool) (*domain.AgencyExplanation, error) {
	return &domain.AgencyExplanation{}, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("expected tool content, got %+v", result)
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestSearchDisputesMapsArguments(t *testing.T) {
	retrieval := &retrievalFake{}
	tools := NewTools(retrieval, &agencyFake{}, nil)

	result, err := tools.searchDisputes(context.Background(), callRequest(toolSearchDisputes, map[string]any{
		"query":       "  세탁기 환불 사례  ",
		"top_k":       float64(7),
		"source_orgs": []any{"kca", " "},
	}))
	if err != nil {
		t.Fatalf("searchDisputes() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if retrieval.question != "세탁기 환불 사례" {
		t.Fatalf("expected trimmed query, got %q", retrieval.question)
	}
	if retrieval.overrides.TopK == nil || *retrieval.overrides.TopK != 7 {
		t.Fatalf("unexpected top_k override %+v", retrieval.overrides)
	}
	if len(retrieval.overrides.SourceOrgs) != 1 || retrieval.overrides.SourceOrgs[0] != "KCA" {
		t.Fatalf("unexpected source orgs %v", retrieval.overrides.SourceOrgs)
	}

	var payload searchPayload
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Results) != 1 || payload.Results[0].ChunkID != "m-1" || !payload.DenseAvailable {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if !strings.Contains(payload.Summary, "한국소비자원") {
		t.Fatalf("expected formatted agency summary, got %q", payload.Summary)
	}
}

func TestSearchDisputesRejectsMissingQuery(t *testing.T) {
	retrieval := &retrievalFake{}
	tools := NewTools(retrieval, &agencyFake{}, nil)

	for _, args := range []map[string]any{{}, {"query": "   "}} {
		result, err := tools.searchDisputes(context.Background(), callRequest(toolSearchDisputes, args))
		if err != nil {
			t.Fatalf("searchDisputes() error = %v", err)
		}
		if !result.IsError {
			t.Fatalf("expected tool error for args %v", args)
		}
	}
	if retrieval.question != "" {
		t.Fatalf("retrieval must not run without a query")
	}
}

func TestSearchDisputesHidesInternalErrors(t *testing.T) {
	var buf bytes.Buffer
	retrieval := &retrievalFake{err: domain.WrapError(domain.ErrUnavailable, "embed query", errors.New("dial tcp 10.0.0.5:8000"))}
	tools := NewTools(retrieval, &agencyFake{}, slog.New(slog.NewJSONHandler(&buf, nil)))

	result, err := tools.searchDisputes(context.Background(), callRequest(toolSearchDisputes, map[string]any{"query": "환불"}))
	if err != nil {
		t.Fatalf("searchDisputes() error = %v", err)
	}
	text := resultText(t, result)
	if !result.IsError || strings.Contains(text, "10.0.0.5") {
		t.Fatalf("expected sanitized tool error, got %q", text)
	}
	if !strings.Contains(buf.String(), "mcp_tool_failed") {
		t.Fatalf("expected failure log, got %s", buf.String())
	}
}

func TestRecommendAgencyDefaultsAndEvidence(t *testing.T) {
	agencies := &agencyFake{}
	tools := NewTools(&retrievalFake{}, agencies, nil)

	result, err := tools.recommendAgency(context.Background(), callRequest(toolRecommendAgency, map[string]any{
		"query":         "온라인 쇼핑몰 배송 지연",
		"with_evidence": true,
	}))
	if err != nil {
		t.Fatalf("recommendAgency() error = %v", err)
	}
	if agencies.topN != 3 || !agencies.withEvidence {
		t.Fatalf("unexpected call topN=%d withEvidence=%v", agencies.topN, agencies.withEvidence)
	}
	var payload agencyPayload
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Recommendations) != 1 || payload.Recommendations[0].AgencyCode != domain.AgencyECMC {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestRecommendAgencyPassesInvalidInputThrough(t *testing.T) {
	agencies := &agencyFake{err: domain.WrapError(domain.ErrInvalidInput, "recommend agencies", errors.New("top_n must be between 1 and 3"))}
	tools := NewTools(&retrievalFake{}, agencies, nil)

	result, err := tools.recommendAgency(context.Background(), callRequest(toolRecommendAgency, map[string]any{
		"query": "환불",
		"top_n": float64(9),
	}))
	if err != nil {
		t.Fatalf("recommendAgency() error = %v", err)
	}
	if !result.IsError || !strings.Contains(resultText(t, result), "top_n") {
		t.Fatalf("expected caller-facing validation error, got %+v", result)
	}
}

func TestServerListsTools(t *testing.T) {
	s := NewTools(&retrievalFake{}, &agencyFake{}, nil).NewServer("dispute-retrieval", "test")

	s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`))
	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	for _, name := range []string{toolSearchDisputes, toolRecommendAgency} {
		if !strings.Contains(string(body), `"`+name+`"`) {
			t.Fatalf("expected tool %s in %s", name, body)
		}
	}
}
