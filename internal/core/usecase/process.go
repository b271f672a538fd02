package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/property-docs/internal/core/domain"
	"github.com/kirillkom/property-docs/internal/core/ports"
)

// ProcessDocumentUseCase re-extracts a stored file and refreshes the snapshot later uploads are compared with.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	analyzer  ports.MetadataAnalyzer
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	analyzer ports.MetadataAnalyzer,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		analyzer:  analyzer,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status == domain.StatusReplaced {
		slog.Info("skip_replaced_document", "document_id", documentID, "replaced_by", doc.ReplacedBy)
		return nil
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return skipIfReplaced(documentID, fmt.Errorf("set status=processing: %w", err))
	}

	analysis, err := uc.processPipeline(ctx, doc)
	if err != nil {
		return uc.fail(ctx, documentID, err)
	}

	if err := uc.persistAnalysis(ctx, documentID, analysis); err != nil {
		return uc.fail(ctx, documentID, err)
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return skipIfReplaced(documentID, fmt.Errorf("set status=ready: %w", err))
	}

	return nil
}

func (uc *ProcessDocumentUseCase) fail(ctx context.Context, documentID string, processErr error) error {
	failErr := uc.markFailed(ctx, documentID, processErr)
	switch {
	case failErr == nil:
		return processErr
	case domain.IsKind(failErr, domain.ErrDocumentReplaced):
		return skipIfReplaced(documentID, failErr)
	default:
		return fmt.Errorf("%w; mark failed status: %v", processErr, failErr)
	}
}

// skipIfReplaced swallows err when an upload replaced the document while it was being processed.
func skipIfReplaced(documentID string, err error) error {
	if !domain.IsKind(err, domain.ErrDocumentReplaced) {
		return err
	}
	slog.Info("skip_replaced_document", "document_id", documentID, "stage", "status_update")
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, doc *domain.Document) (domain.Analysis, error) {
	data, err := uc.readSource(ctx, doc)
	if err != nil {
		return domain.Analysis{}, err
	}

	extraction, err := uc.extractor.Extract(ctx, domain.Source{
		Filename: doc.Filename,
		MimeType: doc.MimeType,
		Data:     data,
	})
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("extract text: %w", err)
	}

	return uc.analyzer.Analyze(doc.Filename, extraction), nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) readSource(ctx context.Context, doc *domain.Document) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored document: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored document: %w", err)
	}
	return data, nil
}

func (uc *ProcessDocumentUseCase) persistAnalysis(ctx context.Context, documentID string, analysis domain.Analysis) error {
	if err := uc.repo.SaveAnalysis(ctx, documentID, analysis); err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
