package ports

import (
	"context"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, req domain.UploadRequest) (*domain.UploadResult, error)
	Check(ctx context.Context, req domain.UploadRequest) (*domain.ClassificationResult, error)
}

// DuplicateClassifier decides whether an upload duplicates one of the supplied candidates.
type DuplicateClassifier interface {
	Classify(incoming domain.IncomingFile, candidates []domain.CandidateDocument) (domain.ClassificationResult, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
