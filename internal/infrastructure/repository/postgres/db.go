package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2026101501

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func OpenDB(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 10
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = pool.MaxOpenConns
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 30 * time.Minute
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the corpus tables when missing and the audit table.
// Corpus rows are loaded by the ingestion pipeline.
func EnsureSchema(ctx context.Context, db *sql.DB, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("ensure schema: embedding dimension must be positive, got %d", dimension)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	query := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	doc_id TEXT PRIMARY KEY,
	doc_type TEXT NOT NULL,
	title TEXT,
	source_org TEXT,
	category_path TEXT[],
	url TEXT,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	collected_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id TEXT PRIMARY KEY,
	doc_id TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	chunk_type TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding vector(%d),
	drop BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_documents_doc_type ON documents(doc_type);
CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id, chunk_index);
CREATE INDEX IF NOT EXISTS idx_chunks_content_fts ON chunks USING GIN (to_tsvector('simple', content));

CREATE TABLE IF NOT EXISTS retrieval_logs (
	id TEXT PRIMARY KEY,
	request_id TEXT,
	query TEXT NOT NULL,
	query_type TEXT NOT NULL,
	dense_available BOOLEAN NOT NULL,
	stages JSONB NOT NULL DEFAULT '[]'::jsonb,
	stage_stats JSONB NOT NULL DEFAULT '{}'::jsonb,
	result_count INTEGER NOT NULL,
	top_chunks JSONB NOT NULL DEFAULT '[]'::jsonb,
	recommended_agency TEXT,
	elapsed_ms DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_retrieval_logs_created_at ON retrieval_logs(created_at DESC);
`, dimension)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
