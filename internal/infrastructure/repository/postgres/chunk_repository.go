package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ListDocumentChunks returns the live chunks of one document by chunk_index.
func (r *ChunkRepository) ListDocumentChunks(ctx context.Context, docID string) ([]domain.SearchResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT`+resultColumns+`,
	0::float8 AS similarity,
	d.doc_type
FROM chunks c
JOIN documents d ON c.doc_id = d.doc_id
WHERE c.doc_id = $1 AND c.drop = FALSE
ORDER BY c.chunk_index, c.chunk_id
`, docID)
	if err != nil {
		return nil, fmt.Errorf("list document chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SearchResult, 0)
	for rows.Next() {
		var storageType string
		result, err := scanResult(rows, &storageType)
		if err != nil {
			return nil, fmt.Errorf("list document chunks: %w", err)
		}
		result.DocType = corpusForStorageType(storageType)
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list document chunks rows: %w", err)
	}
	return out, nil
}

// Ping backs the readiness probe.
func (r *ChunkRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
