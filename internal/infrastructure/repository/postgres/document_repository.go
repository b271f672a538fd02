package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/property-docs/internal/core/domain"
	"github.com/kirillkom/property-docs/internal/infrastructure/resilience"
)

const (
	defaultCandidateLimit = 100
	// candidateTextRunes matches the comparison cap of the duplicate engine.
	candidateTextRunes = 20000
)

const documentColumns = `id, filename, mime_type, storage_path, url, byte_size, page_count, checksum,
	%s, ocr_quality, type_candidates, assigned_type, period_from, period_to, link_context,
	status, error_message, replaced_by, created_at, updated_at`

type DocumentRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

type Options struct {
	// ResilienceExecutor wraps candidate lookups, which sit on the upload path.
	ResilienceExecutor *resilience.Executor
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return NewDocumentRepositoryWithOptions(db, Options{})
}

func NewDocumentRepositoryWithOptions(db *sql.DB, options Options) *DocumentRepository {
	return &DocumentRepository{db: db, executor: options.ResilienceExecutor}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2024010501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	storage_path TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	byte_size BIGINT NOT NULL DEFAULT 0,
	page_count INTEGER NOT NULL DEFAULT 0,
	checksum TEXT NOT NULL,
	ocr_text TEXT NOT NULL DEFAULT '',
	ocr_quality DOUBLE PRECISION,
	type_candidates JSONB NOT NULL DEFAULT '[]'::jsonb,
	assigned_type TEXT NOT NULL DEFAULT '',
	period_from DATE,
	period_to DATE,
	link_context JSONB NOT NULL DEFAULT '{}'::jsonb,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	replaced_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_checksum ON documents(checksum);
CREATE INDEX IF NOT EXISTS idx_documents_assigned_type ON documents(assigned_type);
CREATE INDEX IF NOT EXISTS idx_documents_link_context ON documents USING GIN (link_context);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	return insertDocument(ctx, r.db, doc)
}

// Replace inserts doc and retires oldID in one transaction, so a failed replacement leaves
// neither a half-registered upload nor a still-active old row.
func (r *DocumentRepository) Replace(ctx context.Context, doc *domain.Document, oldID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := insertDocument(ctx, tx, doc); err != nil {
		return err
	}
	if err := markReplaced(ctx, tx, oldID, doc.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

func insertDocument(ctx context.Context, db execer, doc *domain.Document) error {
	typesJSON, err := marshalTypeCandidates(doc.TypeCandidates)
	if err != nil {
		return err
	}
	contextJSON, err := marshalLinkContext(doc.LinkContext)
	if err != nil {
		return err
	}
	from, to := periodColumns(doc.Period)

	_, err = db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, mime_type, storage_path, url, byte_size, page_count, checksum, ocr_text, ocr_quality,
	type_candidates, assigned_type, period_from, period_to, link_context, status, error_message, replaced_by,
	created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, doc.URL, doc.ByteSize, doc.PageCount, doc.Checksum,
		doc.OCRText, nullFloat(doc.OCRQuality), typesJSON, doc.AssignedType, from, to, contextJSON,
		string(doc.Status), doc.Error, doc.ReplacedBy, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+fmt.Sprintf(documentColumns, "ocr_text")+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

// UpdateStatus never touches a replaced row: replacement is terminal.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1 AND status <> $5
`, id, string(status), errMessage, time.Now().UTC(), string(domain.StatusReplaced))
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status rows affected: %w", err)
	}
	if rows == 0 {
		return r.explainMissedUpdate(ctx, "update document status", id)
	}
	return nil
}

// explainMissedUpdate tells a missing row apart from one that was replaced in the meantime.
func (r *DocumentRepository) explainMissedUpdate(ctx context.Context, operation, id string) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	case err != nil:
		return fmt.Errorf("%s lookup: %w", operation, err)
	case status == string(domain.StatusReplaced):
		return domain.WrapError(domain.ErrDocumentReplaced, operation, fmt.Errorf("id=%s", id))
	default:
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s status=%s", id, status))
	}
}

func (r *DocumentRepository) SaveAnalysis(ctx context.Context, id string, analysis domain.Analysis) error {
	typesJSON, err := marshalTypeCandidates(analysis.TypeCandidates)
	if err != nil {
		return err
	}
	from, to := periodColumns(analysis.Period)

	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ocr_text = $2, ocr_quality = $3, page_count = $4, type_candidates = $5, assigned_type = $6,
	period_from = $7, period_to = $8, updated_at = $9
WHERE id = $1
`, id, analysis.Text, nullFloat(analysis.Quality), analysis.PageCount, typesJSON, analysis.AssignedType(),
		from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return expectRow(result, "save analysis", id)
}

// markReplaced retires oldID in favor of newID. Replaced rows are never offered as candidates again.
func markReplaced(ctx context.Context, db execer, oldID, newID string) error {
	result, err := db.ExecContext(ctx, `
UPDATE documents
SET status = $2, replaced_by = $3, updated_at = $4
WHERE id = $1 AND status <> $2
`, oldID, string(domain.StatusReplaced), newID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document replaced: %w", err)
	}
	return expectRow(result, "mark document replaced", oldID)
}

// FindCandidates returns active documents that share the checksum, any link context entry or the
// assigned type with the upload, newest first.
func (r *DocumentRepository) FindCandidates(ctx context.Context, query domain.CandidateQuery) ([]domain.CandidateDocument, error) {
	var out []domain.CandidateDocument
	call := func(callCtx context.Context) error {
		found, err := r.findCandidates(callCtx, query)
		if err != nil {
			return err
		}
		out = found
		return nil
	}

	var err error
	if r.executor != nil {
		err = r.executor.Execute(ctx, "postgres.find_candidates", call, classifyPostgresError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded(err)
	}
	return out, nil
}

func (r *DocumentRepository) findCandidates(ctx context.Context, query domain.CandidateQuery) ([]domain.CandidateDocument, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	contextJSON, err := marshalLinkContext(query.LinkContext)
	if err != nil {
		return nil, err
	}
	var since sql.NullTime
	if !query.Since.IsZero() {
		since = sql.NullTime{Time: query.Since, Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+fmt.Sprintf(documentColumns, "LEFT(ocr_text, $6)")+`
FROM documents
WHERE status <> 'replaced'
	AND replaced_by = ''
	AND ($1::timestamptz IS NULL OR created_at >= $1)
	AND (
		checksum = $2
		OR EXISTS (
			SELECT 1
			FROM jsonb_each_text(link_context) AS stored
			JOIN jsonb_each_text($3::jsonb) AS wanted
				ON stored.key = wanted.key AND stored.value = wanted.value
		)
		OR ($4 <> '' AND assigned_type = $4)
	)
ORDER BY created_at DESC, id ASC
LIMIT $5
`, since, query.Checksum, contextJSON, query.TypeLabel, limit, candidateTextRunes)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CandidateDocument, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidate := doc.Candidate()
		candidate.OCRTextPreview = candidate.OCRText
		candidate.OCRText = ""
		out = append(out, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

type documentScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row documentScanner) (domain.Document, error) {
	var doc domain.Document
	var (
		quality    sql.NullFloat64
		typesRaw   []byte
		periodFrom sql.NullTime
		periodTo   sql.NullTime
		contextRaw []byte
		status     string
	)
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.URL, &doc.ByteSize, &doc.PageCount,
		&doc.Checksum, &doc.OCRText, &quality, &typesRaw, &doc.AssignedType, &periodFrom, &periodTo,
		&contextRaw, &status, &doc.Error, &doc.ReplacedBy, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}

	if quality.Valid {
		v := quality.Float64
		doc.OCRQuality = &v
	}
	if len(typesRaw) > 0 {
		if err := json.Unmarshal(typesRaw, &doc.TypeCandidates); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal type candidates: %w", err)
		}
	}
	if len(contextRaw) > 0 {
		if err := json.Unmarshal(contextRaw, &doc.LinkContext); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal link context: %w", err)
		}
		if len(doc.LinkContext) == 0 {
			doc.LinkContext = nil
		}
	}
	if periodFrom.Valid {
		p := domain.Period{From: periodFrom.Time.UTC(), To: periodFrom.Time.UTC()}
		if periodTo.Valid {
			p.To = periodTo.Time.UTC()
		}
		doc.Period = &p
	}
	doc.Status = domain.DocumentStatus(status)
	return doc, nil
}

func expectRow(result sql.Result, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func marshalTypeCandidates(in []domain.TypeCandidate) ([]byte, error) {
	if in == nil {
		in = []domain.TypeCandidate{}
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal type candidates: %w", err)
	}
	return raw, nil
}

func marshalLinkContext(in domain.LinkContext) ([]byte, error) {
	if in == nil {
		in = domain.LinkContext{}
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal link context: %w", err)
	}
	return raw, nil
}

func periodColumns(p *domain.Period) (sql.NullTime, sql.NullTime) {
	if p == nil || p.From.IsZero() {
		return sql.NullTime{}, sql.NullTime{}
	}
	from := sql.NullTime{Time: p.From, Valid: true}
	to := sql.NullTime{Time: p.To, Valid: !p.To.IsZero()}
	return from, to
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
