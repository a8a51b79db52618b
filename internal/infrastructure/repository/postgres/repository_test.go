package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

var chunkColumns = []string{
	"chunk_id", "doc_id", "chunk_type", "content", "title", "category_path",
	"source_org", "url", "decision_date", "collected_at", "similarity",
}

func newDBWithMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return db, mock, func() { _ = db.Close() }
}

func mustCorpusRepo(t *testing.T, db *sql.DB, corpus domain.DocType) *CorpusRepository {
	t.Helper()
	repo, err := NewCorpusRepository(db, corpus)
	if err != nil {
		t.Fatalf("NewCorpusRepository() error = %v", err)
	}
	return repo
}

func TestDenseSearchScopesCaseCorpusBySourceOrg(t *testing.T) {
	db, mock, done := newDBWithMock(t)
	defer done()
	repo := mustCorpusRepo(t, db, domain.DocTypeMediationCase)

	collected := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("d.source_org IN ($6)")).
		WithArgs(sqlmock.AnyArg(), "mediation_case", "decision", "parties_claim", "judgment", "KCA", 5).
		WillReturnRows(sqlmock.NewRows(chunkColumns).
			AddRow("m-1", "case-1", "decision", "환불 결정", "세탁기 환불", []byte(`["가전","세탁기"]`), "KCA", nil, "2023-05-01", collected, 0.82))

	results, err := repo.DenseSearch(context.Background(), []float32{0.1, 0.2}, 5, domain.SearchFilter{SourceOrgs: []string{"KCA"}})
	if err != nil {
		t.Fatalf("DenseSearch() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.DocType != domain.DocTypeMediationCase || got.SourceOrgValue() != "KCA" || got.URL != nil {
		t.Fatalf("unexpected result %+v", got)
	}
	if len(got.CategoryPath) != 2 || got.CategoryPath[1] != "세탁기" {
		t.Fatalf("unexpected category path %v", got.CategoryPath)
	}
	if got.DecisionDate == nil || *got.DecisionDate != "2023-05-01" || got.CollectedAt == nil || !got.CollectedAt.Equal(collected) {
		t.Fatalf("unexpected dates %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDenseSearchIgnoresSourceOrgForStatutes(t *testing.T) {
	db, mock, done := newDBWithMock(t)
	defer done()
	repo := mustCorpusRepo(t, db, domain.DocTypeStatute)

	mock.ExpectQuery(regexp.QuoteMeta("c.chunk_type IN ($3, $4)")).
		WithArgs(sqlmock.AnyArg(), "law", "article", "paragraph", 3).
		WillReturnRows(sqlmock.NewRows(chunkColumns).
			AddRow("law-750", "civil", "article", "제750조", "민법", nil, nil, nil, nil, nil, 0.9))

	results, err := repo.DenseSearch(context.Background(), []float32{1}, 3, domain.SearchFilter{SourceOrgs: []string{"KCA"}})
	if err != nil {
		t.Fatalf("DenseSearch() error = %v", err)
	}
	if len(results) != 1 || results[0].CategoryPath == nil || len(results[0].CategoryPath) != 0 {
		t.Fatalf("unexpected results %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchSkipsQueryWhenFilterExcludesCorpus(t *testing.T) {
	db, mock, done := newDBWithMock(t)
	defer done()
	repo := mustCorpusRepo(t, db, domain.DocTypeCriteria)

	results, err := repo.DenseSearch(context.Background(), []float32{1}, 3, domain.SearchFilter{DocTypes: []string{"law"}})
	if err != nil || results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil result, got %v, %v", results, err)
	}
	results, err = repo.LexicalSearch(context.Background(), []string{"환불"}, 3, domain.SearchFilter{ChunkTypes: []string{"qa_combined"}})
	if err != nil || results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil result, got %v, %v", results, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchAcceptsCorpusNameAsDocTypeFilter(t *testing.T) {
	db, mock, done := newDBWithMock(t)
	defer done()
	statutes := mustCorpusRepo(t, db, domain.DocTypeStatute)
	criteria := mustCorpusRepo(t, db, domain.DocTypeCriteria)

	mock.ExpectQuery(regexp.QuoteMeta("d.doc_type IN ($2)")).
		WithArgs("민법:*", "law", "article", "paragraph", 5).
		WillReturnRows(sqlmock.NewRows(chunkColumns).
			AddRow("law-750", "civil", "article", "제750조", "민법", nil, nil, nil, nil, nil, 0.3))
	mock.ExpectQuery(regexp.QuoteMeta("d.doc_type IN ($2, $3, $4, $5)")).
		WithArgs("민법:*", "criteria_item", "criteria_resolution", "criteria_warranty", "criteria_lifespan",
			"item_classification", "resolution_row", 5).
		WillReturnRows(sqlmock.NewRows(chunkColumns))

	results, err := statutes.LexicalSearch(context.Background(), []string{"민법"}, 5, domain.SearchFilter{DocTypes: []string{"statute"}})
	if err != nil {
		t.Fatalf("LexicalSearch() error = %v", err)
	}
	if len(results) != 1 || results[0].DocType != domain.DocTypeStatute {
		t.Fatalf("unexpected statute results %+v", results)
	}
	if _, err := criteria.LexicalSearch(context.Background(), []string{"민법"}, 5, domain.SearchFilter{DocTypes: []string{"Criteria"}}); err != nil {
		t.Fatalf("LexicalSearch() error = %v", err)
	}
	results, err = criteria.DenseSearch(context.Background(), []float32{1}, 5, domain.SearchFilter{DocTypes: []string{"statute"}})
	if err != nil || len(results) != 0 {
		t.Fatalf("expected statute filter to exclude criteria, got %v, %v", results, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLexicalSearchBuildsPrefixQuery(t *testing.T) {
	db, mock, done := newDBWithMock(t)
	defer done()
	repo := mustCorpusRepo(t, db, domain.DocTypeCounselCase)

	mock.ExpectQuery(regexp.QuoteMeta("ts_rank_cd(to_tsvector('simple', c.content), to_tsquery('simple', $1))")).
		WithArgs("헬스장:* | 환불:*", "counsel_case", "qa_combined", 4).
		WillReturnRows(sqlmock.NewRows(chunkColumns).
			AddRow("c-1", "counsel-1", "qa_combined", "헬스장 환불 문의", "상담", []byte(`[]`), "KCA", "https://example.org/c-1", nil, nil, 0.4))

	results, err := repo.LexicalSearch(context.Background(), []string{"헬스장", "환불", "환불!"}, 4, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("LexicalSearch() error = %v", err)
	}
	if len(results) != 1 || results[0].DocType != domain.DocTypeCounselCase || results[0].URL == nil {
		t.Fatalf("unexpected results %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLexicalSearchWithoutUsableTermsIsEmpty(t *testing.T) {
	db, mock, done := newDBWithMock(t)
	defer done()
	repo := mustCorpusRepo(t, db, domain.DocTypeStatute)

	results, err := repo.LexicalSearch(context.Background(), []string{"?!", " "}, 4, domain.SearchFilter{})
	if err != nil || len(results) != 0 {
		t.Fatalf("expected no results, got %v, %v", results, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchWrapsQueryErrors(t *testing.T) {
	db, mock, done := newDBWithMock(t)
	defer done()
	repo := mustCorpusRepo(t, db, domain.DocTypeStatute)

	boom := errors.New("connection reset")
	mock.ExpectQuery("FROM chunks c").WillReturnError(boom)

	_, err := repo.LexicalSearch(context.Background(), []string{"민법"}, 2, domain.SearchFilter{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestBuildTSQuery(t *testing.T) {
	got := buildTSQuery([]string{"제750조", "ABC", "abc", "환-불", ""})
	if got != "제750조:* | abc:* | 환불:*" {
		t.Fatalf("unexpected tsquery %q", got)
	}
}

func TestNewCorpusRepositoryRejectsUnknownCorpus(t *testing.T) {
	if _, err := NewCorpusRepository(nil, domain.DocType("news")); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	repos := NewCorpusRepositories(nil)
	if len(repos) != len(domain.CorpusOrder) {
		t.Fatalf("expected one repository per corpus, got %d", len(repos))
	}
	for i, repo := range repos {
		if repo.Corpus() != domain.CorpusOrder[i] {
			t.Fatalf("repository %d serves %s", i, repo.Corpus())
		}
	}
}

func TestListDocumentChunksMapsStorageType(t *testing.T) {
	db, mock, done := newDBWithMock(t)
	defer done()
	repo := NewChunkRepository(db)

	columns := append(append([]string{}, chunkColumns...), "doc_type")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY c.chunk_index")).
		WithArgs("crit-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("crit-1-0", "crit-1", "resolution_row", "구입가 환급", "분쟁해결기준", nil, nil, nil, nil, nil, 0.0, "criteria_resolution").
			AddRow("crit-1-1", "crit-1", "resolution_row", "교환", "분쟁해결기준", nil, nil, nil, nil, nil, 0.0, "criteria_resolution"))

	chunks, err := repo.ListDocumentChunks(context.Background(), "crit-1")
	if err != nil {
		t.Fatalf("ListDocumentChunks() error = %v", err)
	}
	if len(chunks) != 2 || chunks[0].ChunkID != "crit-1-0" || chunks[1].DocType != domain.DocTypeCriteria {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveRetrievalLogIsIdempotentInsert(t *testing.T) {
	db, mock, done := newDBWithMock(t)
	defer done()
	repo := NewRetrievalLogRepository(db)

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).
		WithArgs("log-1", sql.NullString{}, "세탁기 환불", "similar_case", true,
			sqlmock.AnyArg(), sqlmock.AnyArg(), 3, sqlmock.AnyArg(), sql.NullString{String: "KCA", Valid: true}, 12.5, created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveRetrievalLog(context.Background(), domain.RetrievalLog{
		ID:                "log-1",
		Query:             "세탁기 환불",
		QueryType:         domain.QueryType("similar_case"),
		DenseAvailable:    true,
		ResultCount:       3,
		RecommendedAgency: domain.AgencyCode("KCA"),
		ElapsedMS:         12.5,
		CreatedAt:         created,
	})
	if err != nil {
		t.Fatalf("SaveRetrievalLog() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, done := newDBWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(schemaLockID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("embedding vector(1024)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db, 1024); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
	if err := EnsureSchema(context.Background(), db, 0); err == nil {
		t.Fatalf("expected error for zero dimension")
	}
}
