package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/core/ports"
)

// RetrievalLogUseCase persists consumed audit events.
type RetrievalLogUseCase struct {
	store ports.RetrievalLogStore
}

func NewRetrievalLogUseCase(store ports.RetrievalLogStore) *RetrievalLogUseCase {
	return &RetrievalLogUseCase{store: store}
}

func (uc *RetrievalLogUseCase) Record(ctx context.Context, event domain.RetrievalLog) error {
	if strings.TrimSpace(event.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record retrieval log", fmt.Errorf("event id is required"))
	}
	if event.CreatedAt.IsZero() {
		return domain.WrapError(domain.ErrInvalidInput, "record retrieval log", fmt.Errorf("event %s has no timestamp", event.ID))
	}
	if err := uc.store.SaveRetrievalLog(ctx, event); err != nil {
		return fmt.Errorf("save retrieval log %s: %w", event.ID, err)
	}
	return nil
}
