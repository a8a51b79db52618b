package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

type RetrievalLogRepository struct {
	db *sql.DB
}

func NewRetrievalLogRepository(db *sql.DB) *RetrievalLogRepository {
	return &RetrievalLogRepository{db: db}
}

// SaveRetrievalLog is idempotent on the event ID so redelivered messages are
// harmless.
func (r *RetrievalLogRepository) SaveRetrievalLog(ctx context.Context, event domain.RetrievalLog) error {
	stagesJSON, err := json.Marshal(event.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	statsJSON, err := json.Marshal(event.Stats)
	if err != nil {
		return fmt.Errorf("marshal stage stats: %w", err)
	}
	topJSON, err := json.Marshal(event.TopChunks)
	if err != nil {
		return fmt.Errorf("marshal top chunks: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO retrieval_logs (
	id, request_id, query, query_type, dense_available, stages, stage_stats, result_count, top_chunks, recommended_agency, elapsed_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO NOTHING
`,
		event.ID, nullString(event.RequestID), event.Query, string(event.QueryType), event.DenseAvailable,
		stagesJSON, statsJSON, event.ResultCount, topJSON, nullString(string(event.RecommendedAgency)),
		event.ElapsedMS, event.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert retrieval log: %w", err)
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
