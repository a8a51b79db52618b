package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/core/ports"
)

type DocumentChunksUseCase struct {
	reader ports.DocumentChunkReader
}

func NewDocumentChunksUseCase(reader ports.DocumentChunkReader) *DocumentChunksUseCase {
	return &DocumentChunksUseCase{reader: reader}
}

func (uc *DocumentChunksUseCase) ListDocumentChunks(ctx context.Context, docID string) ([]domain.SearchResult, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list document chunks", fmt.Errorf("doc_id is required"))
	}
	chunks, err := uc.reader.ListDocumentChunks(ctx, docID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "list document chunks", fmt.Errorf("document %s has no chunks", docID))
	}
	return chunks, nil
}
