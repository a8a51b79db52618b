package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/dispute-retrieval/internal/infrastructure/resilience"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.3
	defaultMaxTokens   = 1000
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Executor    *resilience.Executor
}

// Generator answers from citations with a chat completion. Without an API
// key it runs in stub mode and renders the evidence deterministically.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	executor    *resilience.Executor
}

func NewGenerator(cfg Config) *Generator {
	g := &Generator{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		executor:    cfg.Executor,
	}
	if g.model == "" {
		g.model = defaultModel
	}
	if g.temperature <= 0 {
		g.temperature = defaultTemperature
	}
	if g.maxTokens <= 0 {
		g.maxTokens = defaultMaxTokens
	}
	if strings.TrimSpace(cfg.APIKey) != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		g.client = openai.NewClientWithConfig(clientCfg)
	}
	return g
}

func (g *Generator) StubMode() bool {
	return g.client == nil
}

func (g *Generator) request(question string, citations []domain.Citation, agencies []domain.AgencyScore) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User(question, citations, agencies)},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, citations []domain.Citation, agencies []domain.AgencyScore) (string, error) {
	if g.StubMode() {
		return prompt.Stub(question, citations, agencies), nil
	}

	req := g.request(question, citations, agencies)
	resp, err := resilience.Call(ctx, g.executor, "openai.chat", func(callCtx context.Context) (openai.ChatCompletionResponse, error) {
		return g.client.CreateChatCompletion(callCtx, req)
	}, classifyOpenAIError)
	if err != nil {
		return "", resilience.WrapTemporary("openai chat completion", fmt.Errorf("create chat completion: %w", err), classifyOpenAIError)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return prompt.WithDisclaimer(resp.Choices[0].Message.Content), nil
}

// StreamAnswer emits completion deltas, then the disclaimer. Only opening the
// stream is retried; a stream that fails midway is reported as is.
func (g *Generator) StreamAnswer(ctx context.Context, question string, citations []domain.Citation, agencies []domain.AgencyScore, emit func(delta string) error) error {
	if g.StubMode() {
		return emit(prompt.Stub(question, citations, agencies))
	}

	req := g.request(question, citations, agencies)
	req.Stream = true
	stream, err := resilience.Call(ctx, g.executor, "openai.chat_stream", func(callCtx context.Context) (*openai.ChatCompletionStream, error) {
		return g.client.CreateChatCompletionStream(callCtx, req)
	}, classifyOpenAIError)
	if err != nil {
		return resilience.WrapTemporary("openai chat stream", fmt.Errorf("create chat completion stream: %w", err), classifyOpenAIError)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return resilience.WrapTemporary("openai chat stream", fmt.Errorf("receive chat completion chunk: %w", err), classifyOpenAIError)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		text.WriteString(delta)
		if err := emit(delta); err != nil {
			return err
		}
	}

	full := strings.TrimSpace(text.String())
	if tail := strings.TrimPrefix(prompt.WithDisclaimer(full), full); tail != "" {
		return emit(tail)
	}
	return nil
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return resilience.ClassifyHTTPError(&resilience.HTTPStatusError{StatusCode: reqErr.HTTPStatusCode})
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyHTTPError(&resilience.HTTPStatusError{StatusCode: apiErr.HTTPStatusCode})
	}
	return resilience.ClassifyHTTPError(err)
}
