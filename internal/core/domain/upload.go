package domain

import (
	"io"
	"time"
)

// Source is a file handed to the extraction pipeline.
type Source struct {
	Filename string
	MimeType string
	Data     []byte
}

// Extraction is the raw output of a text extractor, before metadata analysis.
type Extraction struct {
	Text      string
	PageCount int
}

// UploadRequest carries one multipart upload. Resolution is empty on the first attempt and
// holds the button the user picked when the upload is retried from the decision dialog.
type UploadRequest struct {
	Filename    string
	MimeType    string
	Body        io.Reader
	LinkContext LinkContext
	Resolution  SuggestedAction
}

// UploadResult reports what happened to an upload. Document is nil when nothing was stored.
type UploadResult struct {
	Document   *Document            `json:"document,omitempty"`
	Decision   ClassificationResult `json:"decision"`
	Applied    SuggestedAction      `json:"applied_action"`
	Stored     bool                 `json:"stored"`
	ReplacedID string               `json:"replaced_id,omitempty"`
}

// Rejection returns the error kind explaining why nothing was stored, or nil.
func (r UploadResult) Rejection() error {
	if r.Stored {
		return nil
	}
	if r.Applied == ActionAskUser {
		return ErrDecisionRequired
	}
	return ErrDuplicateRejected
}

// DecisionEvent is published for every upload that was not a plain proceed.
type DecisionEvent struct {
	DocumentID        string          `json:"document_id,omitempty"`
	Filename          string          `json:"filename"`
	Checksum          string          `json:"checksum"`
	Status            DuplicateStatus `json:"status"`
	SuggestedAction   SuggestedAction `json:"suggested_action"`
	AppliedAction     SuggestedAction `json:"applied_action"`
	MatchedDocumentID string          `json:"matched_document_id,omitempty"`
	MatchRule         string          `json:"match_rule"`
	TextSimilarity    float64         `json:"text_similarity"`
	PolicyVersion     string          `json:"policy_version"`
	LinkContext       LinkContext     `json:"link_context,omitempty"`
	DecidedAt         time.Time       `json:"decided_at"`
}
