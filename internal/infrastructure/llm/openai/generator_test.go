package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/infrastructure/llm/prompt"
)

func TestGeneratorStubModeWithoutKey(t *testing.T) {
	g := NewGenerator(Config{})
	if !g.StubMode() {
		t.Fatalf("expected stub mode without api key")
	}
	answer, err := g.GenerateAnswer(context.Background(), "환불", []domain.Citation{{Index: 1, DocType: domain.DocTypeStatute, DocTitle: "민법"}}, nil)
	if err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	if !strings.Contains(answer, "[근거 1] 민법") || !strings.HasSuffix(answer, prompt.Disclaimer) {
		t.Fatalf("unexpected stub answer %q", answer)
	}
}

func TestGeneratorSendsSystemAndUserMessages(t *testing.T) {
	var payload struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"## 요약\n환불 가능"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	g := NewGenerator(Config{APIKey: "test", BaseURL: server.URL + "/v1"})
	answer, err := g.GenerateAnswer(context.Background(), "세탁기 환불", []domain.Citation{{Index: 1, Content: "환급 기준"}}, nil)
	if err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	if payload.Model != defaultModel || len(payload.Messages) != 2 {
		t.Fatalf("unexpected request %+v", payload)
	}
	if payload.Messages[0].Role != "system" || !strings.Contains(payload.Messages[1].Content, "환급 기준") {
		t.Fatalf("unexpected messages %+v", payload.Messages)
	}
	if !strings.HasPrefix(answer, "## 요약") || !strings.HasSuffix(answer, prompt.Disclaimer) {
		t.Fatalf("unexpected answer %q", answer)
	}
}

func TestGeneratorRateLimitIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	g := NewGenerator(Config{APIKey: "test", BaseURL: server.URL + "/v1"})
	_, err := g.GenerateAnswer(context.Background(), "q", []domain.Citation{{Index: 1}}, nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestGeneratorStreamsDeltasAndDisclaimer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Stream bool `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || !payload.Stream {
			t.Errorf("expected stream request, got %+v, %v", payload, err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"## 요약", "\\n환불 가능"} {
			_, _ = w.Write([]byte(`data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"` + delta + `"}}]}` + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	g := NewGenerator(Config{APIKey: "test", BaseURL: server.URL + "/v1"})
	var deltas []string
	err := g.StreamAnswer(context.Background(), "세탁기 환불", []domain.Citation{{Index: 1}}, nil, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamAnswer() error = %v", err)
	}
	if len(deltas) != 3 || deltas[0] != "## 요약" || deltas[1] != "\n환불 가능" {
		t.Fatalf("unexpected deltas %q", deltas)
	}
	if got := strings.Join(deltas, ""); got != prompt.WithDisclaimer("## 요약\n환불 가능") {
		t.Fatalf("unexpected streamed answer %q", got)
	}
}

func TestGeneratorStreamStubMode(t *testing.T) {
	g := NewGenerator(Config{})
	var deltas []string
	err := g.StreamAnswer(context.Background(), "환불", []domain.Citation{{Index: 1, DocTitle: "민법"}}, nil, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil || len(deltas) != 1 || !strings.HasSuffix(deltas[0], prompt.Disclaimer) {
		t.Fatalf("unexpected stub stream %q, %v", deltas, err)
	}
}
