package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/core/ports"
)

// NoResultsAnswer is returned without calling the generator when nothing
// relevant was retrieved.
const NoResultsAnswer = "관련된 법령, 기준 또는 사례를 찾지 못했습니다. 질문을 구체적으로 다시 작성하시거나 한국소비자원(국번 없이 1372)에 상담을 요청해 주세요."

// ChatUseCase answers a question from the assembled citations.
type ChatUseCase struct {
	retrieval *RetrievalUseCase
	generator ports.AnswerGenerator
	assembler ResultAssembler
	citations int
	logger    *slog.Logger
}

func NewChatUseCase(retrieval *RetrievalUseCase, generator ports.AnswerGenerator, citations int, logger *slog.Logger) *ChatUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatUseCase{
		retrieval: retrieval,
		generator: generator,
		citations: citations,
		logger:    logger,
	}
}

func (uc *ChatUseCase) Chat(ctx context.Context, question string, overrides domain.RetrievalOverrides) (*domain.ChatAnswer, error) {
	answer, err := uc.retrieve(ctx, question, overrides)
	if err != nil || answer.Answer != "" {
		return answer, err
	}

	text, err := uc.generator.GenerateAnswer(ctx, answer.Query, answer.Citations, answer.Agencies)
	if err != nil {
		return nil, uc.generationError(answer.RequestID, err)
	}
	answer.Answer = text
	return answer, nil
}

// ChatStream is Chat with incremental delivery. Generators without streaming
// support produce a single delta.
func (uc *ChatUseCase) ChatStream(ctx context.Context, question string, overrides domain.RetrievalOverrides, emit func(delta string) error) (*domain.ChatAnswer, error) {
	if emit == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat stream", fmt.Errorf("emit callback is required"))
	}
	answer, err := uc.retrieve(ctx, question, overrides)
	if err != nil {
		return nil, err
	}
	if answer.Answer != "" {
		if err := emit(answer.Answer); err != nil {
			return nil, err
		}
		return answer, nil
	}

	streamer, ok := uc.generator.(ports.AnswerStreamer)
	if !ok {
		text, err := uc.generator.GenerateAnswer(ctx, answer.Query, answer.Citations, answer.Agencies)
		if err != nil {
			return nil, uc.generationError(answer.RequestID, err)
		}
		if err := emit(text); err != nil {
			return nil, err
		}
		answer.Answer = text
		return answer, nil
	}

	var (
		text    strings.Builder
		emitErr error
	)
	err = streamer.StreamAnswer(ctx, answer.Query, answer.Citations, answer.Agencies, func(delta string) error {
		text.WriteString(delta)
		emitErr = emit(delta)
		return emitErr
	})
	if emitErr != nil {
		return nil, emitErr
	}
	if err != nil {
		return nil, uc.generationError(answer.RequestID, err)
	}
	answer.Answer = text.String()
	return answer, nil
}

// retrieve runs the pipeline and builds the answer envelope. Answer is set
// only when the generator must not be called.
func (uc *ChatUseCase) retrieve(ctx context.Context, question string, overrides domain.RetrievalOverrides) (*domain.ChatAnswer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", fmt.Errorf("question is required"))
	}

	resp, err := uc.retrieval.Search(ctx, question, overrides)
	if err != nil {
		return nil, err
	}

	citations := uc.assembler.Citations(resp.Results, uc.citations)
	answer := &domain.ChatAnswer{
		RequestID:  resp.RequestID,
		Query:      resp.Query,
		Citations:  citations,
		Agencies:   resp.AgencyRecommendation,
		StageStats: resp.StageStats,
	}
	if len(citations) == 0 {
		answer.Answer = NoResultsAnswer
		return answer, nil
	}
	if uc.generator == nil {
		return nil, domain.WrapError(domain.ErrUnavailable, "chat", fmt.Errorf("answer generator is not configured"))
	}
	return answer, nil
}

func (uc *ChatUseCase) generationError(requestID string, err error) error {
	uc.logger.Error("answer_generation_failed", "request_id", requestID, "error", err)
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	return domain.WrapError(domain.ErrUnavailable, "generate answer", err)
}
