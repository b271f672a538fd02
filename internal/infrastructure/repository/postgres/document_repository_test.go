package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/property-docs/internal/core/domain"
	"github.com/kirillkom/property-docs/internal/infrastructure/resilience"
)

var documentRowColumns = []string{
	"id", "filename", "mime_type", "storage_path", "url", "byte_size", "page_count", "checksum",
	"ocr_text", "ocr_quality", "type_candidates", "assigned_type", "period_from", "period_to", "link_context",
	"status", "error_message", "replaced_by", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestEnsureSchemaRunsUnderAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(int64(2024010501)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDMapsNullableColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	created := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(documentRowColumns).
		AddRow("doc-1", "quittance.pdf", "application/pdf", "doc-1_quittance.pdf", "/files/doc-1_quittance.pdf",
			int64(2048), int64(1), "abc", "loyer janvier", 0.87,
			[]byte(`[{"label":"quittance","confidence":1}]`), "quittance",
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			[]byte(`{"property_id":"P1"}`), "ready", "", "", created, created).
		AddRow("doc-2", "scan.jpg", "image/jpeg", "doc-2_scan.jpg", "", int64(10), int64(0), "def", "",
			nil, []byte(`[]`), "", nil, nil, []byte(`{}`), "uploaded", "", "", created, created)

	mock.ExpectQuery("SELECT id, filename").WithArgs("doc-1").WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.OCRQuality == nil || *doc.OCRQuality != 0.87 {
		t.Fatalf("unexpected quality %v", doc.OCRQuality)
	}
	if doc.Period == nil || doc.Period.To.Day() != 31 {
		t.Fatalf("unexpected period %+v", doc.Period)
	}
	if doc.LinkContext["property_id"] != "P1" || doc.AssignedType != "quittance" || len(doc.TypeCandidates) != 1 {
		t.Fatalf("unexpected mapping %+v", doc)
	}
	if doc.Status != domain.StatusReady {
		t.Fatalf("unexpected status %s", doc.Status)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", string(domain.StatusProcessing), "", sqlmock.AnyArg(), string(domain.StatusReplaced)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM documents").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusProcessing, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusLeavesReplacedDocumentAlone(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec(`WHERE id = \$1 AND status <> \$5`).
		WithArgs("doc-old", string(domain.StatusReady), "", sqlmock.AnyArg(), string(domain.StatusReplaced)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM documents").
		WithArgs("doc-old").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(domain.StatusReplaced)))

	err := repo.UpdateStatus(context.Background(), "doc-old", domain.StatusReady, "")
	if !domain.IsKind(err, domain.ErrDocumentReplaced) {
		t.Fatalf("expected ErrDocumentReplaced, got %v", err)
	}
	if domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("replaced row must not read as missing, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusSuccess(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", string(domain.StatusReady), "", sqlmock.AnyArg(), string(domain.StatusReplaced)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "doc-1", domain.StatusReady, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveAnalysisReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	quality := 0.9
	jan := domain.MonthPeriod(2024, time.January)

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", "loyer janvier", 0.9, 2, sqlmock.AnyArg(), "quittance",
			jan.From, jan.To, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveAnalysis(context.Background(), "missing", domain.Analysis{
		Text:           "loyer janvier",
		Quality:        &quality,
		PageCount:      2,
		Period:         &jan,
		TypeCandidates: []domain.TypeCandidate{{Label: "quittance", Confidence: 1}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func replacementDoc() *domain.Document {
	created := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Document{
		ID:          "doc-new",
		Filename:    "quittance.pdf",
		MimeType:    "application/pdf",
		StoragePath: "doc-new_quittance.pdf",
		Checksum:    "abc",
		Status:      domain.StatusUploaded,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestReplaceCommitsInsertAndRetirement(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-old", string(domain.StatusReplaced), "doc-new", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Replace(context.Background(), replacementDoc(), "doc-old"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceRollsBackWhenOldDocumentIsGone(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-gone", string(domain.StatusReplaced), "doc-new", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Replace(context.Background(), replacementDoc(), "doc-gone")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceRollsBackWhenRetirementFails(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").WillReturnError(&pgconn.PgError{Code: "57P01"})
	mock.ExpectRollback()

	if err := repo.Replace(context.Background(), replacementDoc(), "doc-old"); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindCandidatesMapsPreview(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	created := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	since := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(documentRowColumns).
		AddRow("doc-1", "quittance.pdf", "application/pdf", "k", "/files/k", int64(2048), int64(1), "abc",
			"loyer janvier", nil, []byte(`[]`), "quittance", nil, nil, []byte(`{"property_id":"P1"}`),
			"ready", "", "", created, created)

	mock.ExpectQuery("jsonb_each_text").
		WithArgs(since, "abc", []byte(`{"property_id":"P1"}`), "quittance", 25, candidateTextRunes).
		WillReturnRows(rows)

	candidates, err := repo.FindCandidates(context.Background(), domain.CandidateQuery{
		Checksum:    "abc",
		LinkContext: domain.LinkContext{"property_id": "P1"},
		TypeLabel:   "quittance",
		Since:       since,
		Limit:       25,
	})
	if err != nil {
		t.Fatalf("FindCandidates() error = %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.OCRText != "" || c.OCRTextPreview != "loyer janvier" || c.ComparableText() != "loyer janvier" {
		t.Fatalf("expected truncated text to land in preview, got %+v", c)
	}
	if !c.UploadedAt.Equal(created) || c.URL != "/files/k" || c.AssignedType != "quittance" {
		t.Fatalf("unexpected candidate snapshot %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindCandidatesDefaultsWindowAndLimit(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`status <> 'replaced' AND replaced_by = ''`).
		WithArgs(nil, "abc", []byte(`{}`), "", defaultCandidateLimit, candidateTextRunes).
		WillReturnRows(sqlmock.NewRows(documentRowColumns))

	candidates, err := repo.FindCandidates(context.Background(), domain.CandidateQuery{Checksum: "abc"})
	if err != nil {
		t.Fatalf("FindCandidates() error = %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindCandidatesMarksConnectionErrorsTemporary(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("jsonb_each_text").WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	_, err := repo.FindCandidates(context.Background(), domain.CandidateQuery{Checksum: "abc"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestFindCandidatesRetriesThroughExecutor(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	executor := resilience.NewExecutor(resilience.Config{
		Retry: resilience.Retry{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	repo := NewDocumentRepositoryWithOptions(db, Options{ResilienceExecutor: executor})

	mock.ExpectQuery("jsonb_each_text").WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectQuery("jsonb_each_text").WillReturnRows(sqlmock.NewRows(documentRowColumns))

	if _, err := repo.FindCandidates(context.Background(), domain.CandidateQuery{Checksum: "abc"}); err != nil {
		t.Fatalf("FindCandidates() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindCandidatesDoesNotRetrySyntaxErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	executor := resilience.NewExecutor(resilience.Config{Retry: resilience.Retry{MaxAttempts: 3, InitialBackoff: time.Millisecond}})
	repo := NewDocumentRepositoryWithOptions(db, Options{ResilienceExecutor: executor})

	mock.ExpectQuery("jsonb_each_text").WillReturnError(&pgconn.PgError{Code: "42601"})

	_, err = repo.FindCandidates(context.Background(), domain.CandidateQuery{Checksum: "abc"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("syntax errors are permanent, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
