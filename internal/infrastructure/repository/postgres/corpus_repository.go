package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

// CorpusDefinition maps a logical corpus onto storage document and chunk
// types of the shared chunks/documents tables.
type CorpusDefinition struct {
	Corpus     domain.DocType
	DocTypes   []string
	ChunkTypes []string
	// SourceOrgFilter enables the agency filter. Statutes and criteria have
	// no issuing dispute body.
	SourceOrgFilter bool
}

var corpusDefinitions = []CorpusDefinition{
	{
		Corpus:     domain.DocTypeStatute,
		DocTypes:   []string{"law"},
		ChunkTypes: []string{"article", "paragraph"},
	},
	{
		Corpus:     domain.DocTypeCriteria,
		DocTypes:   []string{"criteria_item", "criteria_resolution", "criteria_warranty", "criteria_lifespan"},
		ChunkTypes: []string{"item_classification", "resolution_row"},
	},
	{
		Corpus:          domain.DocTypeMediationCase,
		DocTypes:        []string{"mediation_case"},
		ChunkTypes:      []string{"decision", "parties_claim", "judgment"},
		SourceOrgFilter: true,
	},
	{
		Corpus:          domain.DocTypeCounselCase,
		DocTypes:        []string{"counsel_case"},
		ChunkTypes:      []string{"qa_combined"},
		SourceOrgFilter: true,
	},
}

func DefinitionFor(corpus domain.DocType) (CorpusDefinition, bool) {
	for _, def := range corpusDefinitions {
		if def.Corpus == corpus {
			return def, true
		}
	}
	return CorpusDefinition{}, false
}

// corpusForStorageType resolves a documents.doc_type value to its corpus.
func corpusForStorageType(docType string) domain.DocType {
	for _, def := range corpusDefinitions {
		if slices.Contains(def.DocTypes, docType) {
			return def.Corpus
		}
	}
	return domain.DocType(docType)
}

// CorpusRepository serves dense and full-text search for one corpus.
type CorpusRepository struct {
	db  *sql.DB
	def CorpusDefinition
}

func NewCorpusRepository(db *sql.DB, corpus domain.DocType) (*CorpusRepository, error) {
	def, ok := DefinitionFor(corpus)
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new corpus repository", fmt.Errorf("unknown corpus %q", corpus))
	}
	return &CorpusRepository{db: db, def: def}, nil
}

// NewCorpusRepositories returns one repository per corpus in stage order.
func NewCorpusRepositories(db *sql.DB) []*CorpusRepository {
	out := make([]*CorpusRepository, 0, len(corpusDefinitions))
	for _, def := range corpusDefinitions {
		out = append(out, &CorpusRepository{db: db, def: def})
	}
	return out
}

func (r *CorpusRepository) Corpus() domain.DocType {
	return r.def.Corpus
}

const resultColumns = `
	c.chunk_id,
	c.doc_id,
	c.chunk_type,
	c.content,
	COALESCE(d.title, ''),
	COALESCE(to_jsonb(d.category_path), '[]'::jsonb),
	d.source_org,
	d.url,
	d.metadata->>'decision_date',
	d.collected_at`

func (r *CorpusRepository) DenseSearch(ctx context.Context, embedding []float32, limit int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	if len(embedding) == 0 || limit <= 0 {
		return []domain.SearchResult{}, nil
	}

	b := &queryBuilder{}
	vectorArg := b.arg(pgvector.NewVector(embedding))
	if !r.scope(b, filter) {
		return []domain.SearchResult{}, nil
	}
	b.where = append(b.where, "c.embedding IS NOT NULL")

	query := `
SELECT` + resultColumns + `,
	1 - (c.embedding <=> ` + vectorArg + `::vector) AS similarity
FROM chunks c
JOIN documents d ON c.doc_id = d.doc_id
WHERE ` + strings.Join(b.where, " AND ") + `
ORDER BY c.embedding <=> ` + vectorArg + `::vector, c.chunk_id
LIMIT ` + b.arg(limit)

	return r.query(ctx, "dense search", query, b.args)
}

func (r *CorpusRepository) LexicalSearch(ctx context.Context, terms []string, limit int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	tsquery := buildTSQuery(terms)
	if tsquery == "" || limit <= 0 {
		return []domain.SearchResult{}, nil
	}

	b := &queryBuilder{}
	queryArg := b.arg(tsquery)
	if !r.scope(b, filter) {
		return []domain.SearchResult{}, nil
	}
	b.where = append(b.where, "to_tsvector('simple', c.content) @@ to_tsquery('simple', "+queryArg+")")

	query := `
SELECT` + resultColumns + `,
	ts_rank_cd(to_tsvector('simple', c.content), to_tsquery('simple', ` + queryArg + `)) AS similarity
FROM chunks c
JOIN documents d ON c.doc_id = d.doc_id
WHERE ` + strings.Join(b.where, " AND ") + `
ORDER BY similarity DESC, c.chunk_id
LIMIT ` + b.arg(limit)

	return r.query(ctx, "lexical search", query, b.args)
}

// scope adds corpus and filter predicates. It reports false when the filter
// excludes the whole corpus.
func (r *CorpusRepository) scope(b *queryBuilder, filter domain.SearchFilter) bool {
	b.where = append(b.where, "c.drop = FALSE")

	docTypes := narrow(r.def.DocTypes, storageDocTypes(filter.DocTypes))
	if len(docTypes) == 0 {
		return false
	}
	b.in("d.doc_type", docTypes)

	chunkTypes := narrow(r.def.ChunkTypes, filter.ChunkTypes)
	if len(chunkTypes) == 0 {
		return false
	}
	b.in("c.chunk_type", chunkTypes)

	if r.def.SourceOrgFilter && len(filter.SourceOrgs) > 0 {
		b.in("d.source_org", filter.SourceOrgs)
	}
	return true
}

// query holds one pooled connection for the lifetime of the row scan.
func (r *CorpusRepository) query(ctx context.Context, operation, query string, args []any) ([]domain.SearchResult, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s %s: acquire connection: %w", r.def.Corpus, operation, err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.def.Corpus, operation, err)
	}
	defer rows.Close()

	out := make([]domain.SearchResult, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", r.def.Corpus, operation, err)
		}
		result.DocType = r.def.Corpus
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s %s rows: %w", r.def.Corpus, operation, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner, extra ...any) (domain.SearchResult, error) {
	var (
		result       domain.SearchResult
		categoryRaw  []byte
		sourceOrg    sql.NullString
		url          sql.NullString
		decisionDate sql.NullString
		collectedAt  sql.NullTime
	)
	dest := []any{
		&result.ChunkID, &result.DocID, &result.ChunkType, &result.Content, &result.DocTitle,
		&categoryRaw, &sourceOrg, &url, &decisionDate, &collectedAt, &result.Similarity,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.SearchResult{}, fmt.Errorf("scan chunk: %w", err)
	}

	result.CategoryPath = []string{}
	if len(categoryRaw) > 0 {
		if err := json.Unmarshal(categoryRaw, &result.CategoryPath); err != nil {
			return domain.SearchResult{}, fmt.Errorf("unmarshal category_path of %s: %w", result.ChunkID, err)
		}
	}
	result.SourceOrg = nullStringPtr(sourceOrg)
	result.URL = nullStringPtr(url)
	result.DecisionDate = nullStringPtr(decisionDate)
	if collectedAt.Valid {
		ts := collectedAt.Time.UTC()
		result.CollectedAt = &ts
	}
	return result, nil
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return domain.StringPtr(v.String)
}

// narrow intersects a corpus's storage types with a requested subset. An
// empty request keeps every allowed type.
// storageDocTypes expands corpus names (statute, criteria, ...) into their
// storage document types. Storage-level values pass through unchanged.
func storageDocTypes(requested []string) []string {
	if len(requested) == 0 {
		return nil
	}
	out := make([]string, 0, len(requested))
	for _, v := range requested {
		if corpus, ok := domain.ParseDocType(v); ok {
			def, _ := DefinitionFor(corpus)
			out = append(out, def.DocTypes...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func narrow(allowed, requested []string) []string {
	if len(requested) == 0 {
		return allowed
	}
	out := make([]string, 0, len(requested))
	for _, v := range requested {
		v = strings.TrimSpace(v)
		if slices.Contains(allowed, v) && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// buildTSQuery ORs prefix matches of the terms. Korean tokens carry attached
// particles in the index, so "제750조" must match "제750조는".
func buildTSQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, term)
		if clean == "" {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		parts = append(parts, clean+":*")
	}
	return strings.Join(parts, " | ")
}

type queryBuilder struct {
	args  []any
	where []string
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *queryBuilder) in(column string, values []string) {
	placeholders := make([]string, 0, len(values))
	for _, v := range values {
		placeholders = append(placeholders, b.arg(v))
	}
	b.where = append(b.where, column+" IN ("+strings.Join(placeholders, ", ")+")")
}
