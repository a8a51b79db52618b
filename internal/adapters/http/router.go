package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/dispute-retrieval/internal/adapters/http/openapi"
	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/core/ports"
	"github.com/kirillkom/dispute-retrieval/internal/core/usecase"
	"github.com/kirillkom/dispute-retrieval/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

type Services struct {
	Retrieval ports.RetrievalService
	Chat      ports.ChatService
	Agencies  ports.AgencyAdvisor
	Documents ports.DocumentChunkService
}

// HealthChecker backs /healthz.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Service          string
	APIKey           string
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	QueueWait        time.Duration
	RequestTimeout   time.Duration
	ValidateRequests bool
}

type Router struct {
	services Services
	health   HealthChecker
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
	opts     Options
	handler  http.Handler
}

func NewRouter(services Services, health HealthChecker, httpMetrics *metrics.HTTPServerMetrics, logger *slog.Logger, opts Options) (*Router, error) {
	if services.Retrieval == nil || services.Agencies == nil {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new router", errors.New("retrieval and agency services are required"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Service == "" {
		opts.Service = "api"
	}
	if opts.QueueWait <= 0 {
		opts.QueueWait = 50 * time.Millisecond
	}
	rt := &Router{
		services: services,
		health:   health,
		metrics:  httpMetrics,
		logger:   logger,
		opts:     opts,
	}
	handler, err := rt.build()
	if err != nil {
		return nil, err
	}
	rt.handler = handler
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	return rt.handler
}

func (rt *Router) build() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/search", rt.search)
	mux.HandleFunc("POST /v1/chat", rt.chat)
	mux.HandleFunc("POST /v1/chat/stream", rt.chatStream)
	mux.HandleFunc("POST /v1/agencies/recommend", rt.recommendAgencies)
	mux.HandleFunc("GET /v1/documents/{doc_id}/chunks", rt.listDocumentChunks)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.opts.ValidateRequests {
		doc, err := openapi.Load(context.Background())
		if err != nil {
			return nil, err
		}
		handler, err = openAPIValidationMiddleware(handler, doc)
		if err != nil {
			return nil, err
		}
	}
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.QueueWait, rt.recordRejected)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst, rt.recordRejected)
	handler = bearerAuthMiddleware(handler, rt.opts.APIKey)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler), nil
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(rt.opts.Service, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if rt.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.health.Ping(ctx); err != nil {
			rt.logger.Warn("healthz_failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query   string                    `json:"query"`
	Options domain.RetrievalOverrides `json:"options"`
}

type agencyRequest struct {
	Query        string `json:"query"`
	TopN         int    `json:"top_n"`
	WithEvidence bool   `json:"with_evidence"`
	Explain      bool   `json:"explain"`
}

type agencyResponse struct {
	Query           string                    `json:"query"`
	Recommendations []domain.AgencyScore      `json:"recommendations"`
	Summary         string                    `json:"summary"`
	Explanation     *domain.AgencyExplanation `json:"explanation,omitempty"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !rt.decodeQuery(w, r, &req, &req.Query) {
		return
	}

	ctx, cancel := rt.requestContext(r)
	defer cancel()

	start := time.Now()
	resp, err := rt.services.Retrieval.Search(ctx, req.Query, req.Options)
	if err != nil {
		rt.writeDomainError(w, r, "search", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(rt.opts.Service, "search", string(resp.QueryType), len(resp.Results), time.Since(start))
		if len(resp.AgencyRecommendation) > 0 {
			rt.metrics.RecordTopAgency(rt.opts.Service, string(resp.AgencyRecommendation[0].AgencyCode))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	if rt.services.Chat == nil {
		writeError(w, r, http.StatusServiceUnavailable, "answer generation is not configured")
		return
	}
	var req searchRequest
	if !rt.decodeQuery(w, r, &req, &req.Query) {
		return
	}

	ctx, cancel := rt.requestContext(r)
	defer cancel()

	start := time.Now()
	answer, err := rt.services.Chat.Chat(ctx, req.Query, req.Options)
	if err != nil {
		rt.writeDomainError(w, r, "chat", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(rt.opts.Service, "chat", "", len(answer.Citations), time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

// chatStream emits "delta" events with answer text, then a "done" event with
// the full answer and citations, or an "error" event if generation fails
// after streaming began.
func (rt *Router) chatStream(w http.ResponseWriter, r *http.Request) {
	if rt.services.Chat == nil {
		writeError(w, r, http.StatusServiceUnavailable, "answer generation is not configured")
		return
	}
	stream, ok := newSSEWriter(w)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming is not supported")
		return
	}
	var req searchRequest
	if !rt.decodeQuery(w, r, &req, &req.Query) {
		return
	}

	ctx, cancel := rt.requestContext(r)
	defer cancel()

	start := time.Now()
	answer, err := rt.services.Chat.ChatStream(ctx, req.Query, req.Options, func(delta string) error {
		return stream.event("delta", map[string]string{"text": delta})
	})
	if err != nil {
		if !stream.started {
			rt.writeDomainError(w, r, "chat_stream", err)
			return
		}
		status := mapErrorToHTTPStatus(err)
		rt.logger.Error("chat_stream_failed",
			"request_id", domain.RequestIDFromContext(r.Context()),
			"status", status,
			"error", err,
		)
		_ = stream.event("error", map[string]string{
			"error":      publicMessage(status, err),
			"request_id": domain.RequestIDFromContext(r.Context()),
		})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(rt.opts.Service, "chat_stream", "", len(answer.Citations), time.Since(start))
	}
	if err := stream.event("done", answer); err != nil {
		rt.logger.Warn("chat_stream_write_failed", "request_id", answer.RequestID, "error", err)
	}
}

func (rt *Router) recommendAgencies(w http.ResponseWriter, r *http.Request) {
	var req agencyRequest
	if !rt.decodeQuery(w, r, &req, &req.Query) {
		return
	}

	ctx, cancel := rt.requestContext(r)
	defer cancel()

	out := agencyResponse{Query: req.Query}
	if req.Explain {
		explanation, err := rt.services.Agencies.ExplainAgencies(ctx, req.Query, req.WithEvidence)
		if err != nil {
			rt.writeDomainError(w, r, "explain agencies", err)
			return
		}
		out.Explanation = explanation
		out.Recommendations = explanation.Recommendations
		if req.TopN > 0 && req.TopN < len(out.Recommendations) {
			out.Recommendations = out.Recommendations[:req.TopN]
		}
	} else {
		scores, err := rt.services.Agencies.RecommendAgencies(ctx, req.Query, req.TopN, req.WithEvidence)
		if err != nil {
			rt.writeDomainError(w, r, "recommend agencies", err)
			return
		}
		out.Recommendations = scores
	}
	out.Summary = usecase.FormatRecommendation(out.Recommendations)
	if rt.metrics != nil && len(out.Recommendations) > 0 {
		rt.metrics.RecordTopAgency(rt.opts.Service, string(out.Recommendations[0].AgencyCode))
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) listDocumentChunks(w http.ResponseWriter, r *http.Request) {
	if rt.services.Documents == nil {
		writeError(w, r, http.StatusServiceUnavailable, "document lookup is not configured")
		return
	}
	docID := strings.TrimSpace(r.PathValue("doc_id"))
	if docID == "" {
		writeError(w, r, http.StatusBadRequest, "doc_id is required")
		return
	}

	ctx, cancel := rt.requestContext(r)
	defer cancel()

	chunks, err := rt.services.Documents.ListDocumentChunks(ctx, docID)
	if err != nil {
		rt.writeDomainError(w, r, "list document chunks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id": docID,
		"chunks": chunks,
	})
}

// decodeQuery reads a JSON body and requires a non-blank query field.
func (rt *Router) decodeQuery(w http.ResponseWriter, r *http.Request, dst any, query *string) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		message := "invalid json"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			message = "request body too large"
		} else if !errors.Is(err, io.EOF) {
			message = fmt.Sprintf("invalid json: %v", err)
		}
		writeError(w, r, http.StatusBadRequest, message)
		return false
	}
	*query = strings.TrimSpace(*query)
	if *query == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return false
	}
	return true
}

func (rt *Router) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if rt.opts.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), rt.opts.RequestTimeout)
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"operation", operation,
			"request_id", domain.RequestIDFromContext(r.Context()),
			"status", status,
			"error", err,
		)
	}
	writeError(w, r, status, publicMessage(status, err))
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": domain.RequestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
