package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/property-docs/internal/core/domain"
	"github.com/kirillkom/property-docs/internal/core/ports"
)

const defaultMaxUploadBytes = 25 << 20

type IngestOptions struct {
	MaxUploadBytes int64
	// CandidateWindow limits the candidate search to recent uploads. Zero searches everything.
	CandidateWindow time.Duration
	MaxCandidates   int
}

type IngestDocumentUseCase struct {
	repo       ports.DocumentRepository
	candidates ports.CandidateFinder
	storage    ports.ObjectStorage
	queue      ports.MessageQueue
	extractor  ports.TextExtractor
	analyzer   ports.MetadataAnalyzer
	classifier ports.DuplicateClassifier
	opts       IngestOptions
	now        func() time.Time
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	candidates ports.CandidateFinder,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	extractor ports.TextExtractor,
	analyzer ports.MetadataAnalyzer,
	classifier ports.DuplicateClassifier,
	opts IngestOptions,
) *IngestDocumentUseCase {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &IngestDocumentUseCase{
		repo:       repo,
		candidates: candidates,
		storage:    storage,
		queue:      queue,
		extractor:  extractor,
		analyzer:   analyzer,
		classifier: classifier,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type preparedUpload struct {
	data     []byte
	incoming domain.IncomingFile
	analysis domain.Analysis
	decision domain.ClassificationResult
}

// Check classifies an upload against stored documents without storing anything.
func (uc *IngestDocumentUseCase) Check(ctx context.Context, req domain.UploadRequest) (*domain.ClassificationResult, error) {
	prepared, err := uc.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	uc.logDecision(prepared, prepared.decision.SuggestedAction, true)
	decision := prepared.decision
	return &decision, nil
}

// Upload classifies the file, then applies either the user's resolution or the suggested action.
// cancel and ask_user store nothing; the caller gets the decision back to render the dialog.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req domain.UploadRequest) (*domain.UploadResult, error) {
	prepared, err := uc.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	action, err := resolveAction(prepared.decision, req.Resolution)
	if err != nil {
		return nil, err
	}
	uc.logDecision(prepared, action, false)

	result := &domain.UploadResult{
		Decision: prepared.decision,
		Applied:  action,
	}
	if action == domain.ActionCancel || action == domain.ActionAskUser {
		uc.publishDecision(ctx, prepared, result)
		return result, nil
	}

	var replacedID string
	if action == domain.ActionReplace {
		replacedID = prepared.decision.MatchedDocumentID
	}
	doc, err := uc.store(ctx, prepared, replacedID)
	if err != nil {
		return nil, err
	}
	result.Document = doc
	result.Stored = true
	result.ReplacedID = replacedID

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	uc.publishDecision(ctx, prepared, result)

	return result, nil
}

func (uc *IngestDocumentUseCase) prepare(ctx context.Context, req domain.UploadRequest) (*preparedUpload, error) {
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	}
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file body is required"))
	}

	data, err := readBounded(req.Body, uc.opts.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file is empty"))
	}

	sum := sha256.Sum256(data)
	analysis := uc.analyze(ctx, domain.Source{Filename: filename, MimeType: req.MimeType, Data: data})
	incoming := domain.IncomingFile{
		ID:             uuid.NewString(),
		Filename:       filename,
		MimeType:       req.MimeType,
		ByteSize:       int64(len(data)),
		PageCount:      analysis.PageCount,
		Checksum:       hex.EncodeToString(sum[:]),
		OCRText:        analysis.Text,
		OCRQuality:     analysis.Quality,
		TypeCandidates: analysis.TypeCandidates,
		Period:         analysis.Period,
		LinkContext:    cleanLinkContext(req.LinkContext),
	}

	query := domain.CandidateQuery{
		Checksum:    incoming.Checksum,
		LinkContext: incoming.LinkContext,
		TypeLabel:   analysis.AssignedType(),
		Limit:       uc.opts.MaxCandidates,
	}
	if uc.opts.CandidateWindow > 0 {
		query.Since = uc.now().Add(-uc.opts.CandidateWindow)
	}
	candidates, err := uc.candidates.FindCandidates(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find duplicate candidates: %w", err)
	}

	decision, err := uc.classifier.Classify(incoming, candidates)
	if err != nil {
		return nil, fmt.Errorf("classify upload: %w", err)
	}

	return &preparedUpload{
		data:     data,
		incoming: incoming,
		analysis: analysis,
		decision: decision,
	}, nil
}

// analyze never fails: an unreadable file only weakens the duplicate signals.
func (uc *IngestDocumentUseCase) analyze(ctx context.Context, src domain.Source) domain.Analysis {
	extraction, err := uc.extractor.Extract(ctx, src)
	if err != nil {
		slog.Warn("upload_extraction_failed",
			"filename", src.Filename,
			"mime_type", src.MimeType,
			"error", err.Error(),
		)
		extraction = domain.Extraction{}
	}
	return uc.analyzer.Analyze(src.Filename, extraction)
}

// store saves the object and registers the row. With a non-empty replacedID the row insert and the
// retirement of the old document commit together. The object is removed again when registration fails.
func (uc *IngestDocumentUseCase) store(ctx context.Context, p *preparedUpload, replacedID string) (*domain.Document, error) {
	id := p.incoming.ID
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(p.incoming.Filename))
	now := uc.now()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(p.data)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:             id,
		Filename:       p.incoming.Filename,
		MimeType:       p.incoming.MimeType,
		StoragePath:    storageKey,
		URL:            uc.storage.URL(storageKey),
		ByteSize:       p.incoming.ByteSize,
		PageCount:      p.analysis.PageCount,
		Checksum:       p.incoming.Checksum,
		OCRText:        p.analysis.Text,
		OCRQuality:     p.analysis.Quality,
		TypeCandidates: p.analysis.TypeCandidates,
		AssignedType:   p.analysis.AssignedType(),
		Period:         p.analysis.Period,
		LinkContext:    p.incoming.LinkContext,
		Status:         domain.StatusUploaded,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var err error
	op := "create document metadata"
	if replacedID == "" {
		err = uc.repo.Create(ctx, doc)
	} else {
		op = "replace document"
		err = uc.repo.Replace(ctx, doc, replacedID)
	}
	if err != nil {
		if delErr := uc.storage.Delete(ctx, storageKey); delErr != nil {
			slog.Warn("orphaned_object", "storage_key", storageKey, "error", delErr.Error())
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc, nil
}

// publishDecision emits an audit event for every upload that was not a plain proceed.
// Publishing is best-effort: the upload outcome is already settled.
func (uc *IngestDocumentUseCase) publishDecision(ctx context.Context, p *preparedUpload, result *domain.UploadResult) {
	if result.Applied == domain.ActionProceed && !p.decision.IsDuplicate() {
		return
	}
	event := domain.DecisionEvent{
		Filename:          p.incoming.Filename,
		Checksum:          p.incoming.Checksum,
		Status:            p.decision.Status,
		SuggestedAction:   p.decision.SuggestedAction,
		AppliedAction:     result.Applied,
		MatchedDocumentID: p.decision.MatchedDocumentID,
		MatchRule:         p.decision.MatchRule,
		TextSimilarity:    p.decision.Signals.TextSimilarity,
		PolicyVersion:     p.decision.PolicyVersion,
		LinkContext:       p.incoming.LinkContext,
		DecidedAt:         uc.now(),
	}
	if result.Document != nil {
		event.DocumentID = result.Document.ID
	}
	if err := uc.queue.PublishDuplicateDecision(ctx, event); err != nil {
		slog.Warn("duplicate_decision_publish_failed",
			"filename", event.Filename,
			"status", string(event.Status),
			"error", err.Error(),
		)
	}
}

func (uc *IngestDocumentUseCase) logDecision(p *preparedUpload, applied domain.SuggestedAction, dryRun bool) {
	slog.Info("duplicate_decision",
		"filename", p.incoming.Filename,
		"checksum", p.incoming.Checksum,
		"status", string(p.decision.Status),
		"suggested_action", string(p.decision.SuggestedAction),
		"applied_action", string(applied),
		"match_rule", p.decision.MatchRule,
		"matched_document_id", p.decision.MatchedDocumentID,
		"text_similarity", p.decision.Signals.TextSimilarity,
		"candidates", p.decision.CandidatesEvaluated,
		"dry_run", dryRun,
	)
}

// resolveAction applies the user's choice from the dialog, if any, over the suggestion.
func resolveAction(decision domain.ClassificationResult, resolution domain.SuggestedAction) (domain.SuggestedAction, error) {
	if resolution == "" {
		return decision.SuggestedAction, nil
	}
	action, ok := domain.ParseResolution(string(resolution))
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve upload", fmt.Errorf("unsupported resolution %q", resolution))
	}
	if action == domain.ActionReplace && decision.MatchedDocumentID == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve upload", errors.New("no stored document to replace"))
	}
	return action, nil
}

func readBounded(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file exceeds %d bytes", limit))
	}
	return data, nil
}

func cleanLinkContext(in domain.LinkContext) domain.LinkContext {
	out := make(domain.LinkContext, len(in))
	for key, value := range in {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
