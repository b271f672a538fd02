package ports

import (
	"context"
	"io"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveAnalysis(ctx context.Context, id string, analysis domain.Analysis) error
	// Replace stores doc and retires oldID atomically.
	Replace(ctx context.Context, doc *domain.Document, oldID string) error
}

// CandidateFinder returns stored documents an upload may duplicate.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, query domain.CandidateQuery) ([]domain.CandidateDocument, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// MessageQueue publishes/consumes ingestion events and duplicate decisions.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
	PublishDuplicateDecision(ctx context.Context, event domain.DecisionEvent) error
}

// TextExtractor extracts plain text from file bytes.
type TextExtractor interface {
	Extract(ctx context.Context, src domain.Source) (domain.Extraction, error)
}

// MetadataAnalyzer derives OCR quality, covered period and type candidates from extracted text.
type MetadataAnalyzer interface {
	Analyze(filename string, extraction domain.Extraction) domain.Analysis
}
