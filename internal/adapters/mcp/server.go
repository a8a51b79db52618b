package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/core/ports"
	"github.com/kirillkom/dispute-retrieval/internal/core/usecase"
)

const (
	toolSearchDisputes  = "search_disputes"
	toolRecommendAgency = "recommend_agency"

	maxTopK = 50
)

// Tools exposes retrieval and agency recommendation to MCP clients.
type Tools struct {
	retrieval ports.RetrievalService
	agencies  ports.AgencyAdvisor
	logger    *slog.Logger
}

func NewTools(retrieval ports.RetrievalService, agencies ports.AgencyAdvisor, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{retrieval: retrieval, agencies: agencies, logger: logger}
}

// NewServer builds an MCP server with every tool registered.
func (t *Tools) NewServer(name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(searchDisputesTool(), t.searchDisputes)
	s.AddTool(recommendAgencyTool(), t.recommendAgency)
	return s
}

func searchDisputesTool() mcp.Tool {
	return mcp.NewTool(toolSearchDisputes,
		mcp.WithDescription("Search statutes, dispute resolution criteria, mediation cases and counsel cases for a consumer dispute question."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Consumer dispute question in natural language")),
		mcp.WithNumber("top_k", mcp.Description("Maximum number of passages to return"), mcp.Min(1), mcp.Max(maxTopK)),
		mcp.WithArray("source_orgs", mcp.Description("Restrict case corpora to these agencies (KCA, ECMC, KCDRC)"), mcp.WithStringItems()),
		mcp.WithArray("doc_types", mcp.Description("Restrict to these corpora (statute, criteria, mediation_case, counsel_case) or storage document types"), mcp.WithStringItems()),
	)
}

func recommendAgencyTool() mcp.Tool {
	return mcp.NewTool(toolRecommendAgency,
		mcp.WithDescription("Recommend which dispute agency should handle a consumer complaint."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Consumer dispute question in natural language")),
		mcp.WithNumber("top_n", mcp.Description("Number of agencies to return"), mcp.Min(1), mcp.Max(3)),
		mcp.WithBoolean("with_evidence", mcp.Description("Run retrieval first and use case statistics in the score")),
	)
}

type searchPayload struct {
	RequestID      string                `json:"request_id,omitempty"`
	Query          string                `json:"query"`
	QueryType      domain.QueryType      `json:"query_type"`
	DenseAvailable bool                  `json:"dense_available"`
	Results        []domain.SearchResult `json:"results"`
	StageStats     domain.StageStats     `json:"stage_stats"`
	Agencies       []domain.AgencyScore  `json:"agency_recommendation"`
	Summary        string                `json:"agency_summary"`
}

type agencyPayload struct {
	Query           string               `json:"query"`
	Recommendations []domain.AgencyScore `json:"recommendations"`
	Summary         string               `json:"summary"`
}

func (t *Tools) searchDisputes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return mcp.NewToolResultError("query must not be empty"), nil
	}

	var overrides domain.RetrievalOverrides
	if topK := req.GetInt("top_k", 0); topK > 0 {
		if topK > maxTopK {
			topK = maxTopK
		}
		overrides.TopK = &topK
	}
	overrides.SourceOrgs = upperAll(req.GetStringSlice("source_orgs", nil))
	overrides.DocTypes = req.GetStringSlice("doc_types", nil)

	resp, err := t.retrieval.Search(ctx, query, overrides)
	if err != nil {
		return t.toolError(toolSearchDisputes, err), nil
	}
	return jsonResult(searchPayload{
		RequestID:      resp.RequestID,
		Query:          resp.Query,
		QueryType:      resp.QueryType,
		DenseAvailable: resp.DenseAvailable,
		Results:        resp.Results,
		StageStats:     resp.StageStats,
		Agencies:       resp.AgencyRecommendation,
		Summary:        usecase.FormatRecommendation(resp.AgencyRecommendation),
	})
}

func (t *Tools) recommendAgency(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return mcp.NewToolResultError("query must not be empty"), nil
	}

	topN := req.GetInt("top_n", 3)
	scores, err := t.agencies.RecommendAgencies(ctx, query, topN, req.GetBool("with_evidence", false))
	if err != nil {
		return t.toolError(toolRecommendAgency, err), nil
	}
	return jsonResult(agencyPayload{
		Query:           query,
		Recommendations: scores,
		Summary:         usecase.FormatRecommendation(scores),
	})
}

// toolError reports failures inside the tool result so the client model can
// see them. Internal details stay in the log.
func (t *Tools) toolError(tool string, err error) *mcp.CallToolResult {
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return mcp.NewToolResultError(err.Error())
	}
	t.logger.Error("mcp_tool_failed", "tool", tool, "error", err)
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrUnavailable) {
		return mcp.NewToolResultError("retrieval backend is temporarily unavailable, retry later")
	}
	return mcp.NewToolResultError("internal error")
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

func upperAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
