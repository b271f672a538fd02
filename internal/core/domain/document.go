package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
	StatusReplaced   DocumentStatus = "replaced"
)

// Document is the persisted row of a stored file and its extracted metadata.
type Document struct {
	ID             string          `json:"id"`
	Filename       string          `json:"filename"`
	MimeType       string          `json:"mime_type"`
	StoragePath    string          `json:"storage_path"`
	URL            string          `json:"url,omitempty"`
	ByteSize       int64           `json:"byte_size"`
	PageCount      int             `json:"page_count,omitempty"`
	Checksum       string          `json:"checksum"`
	OCRText        string          `json:"-"`
	OCRQuality     *float64        `json:"ocr_quality,omitempty"`
	TypeCandidates []TypeCandidate `json:"type_candidates,omitempty"`
	AssignedType   string          `json:"assigned_type,omitempty"`
	Period         *Period         `json:"period,omitempty"`
	LinkContext    LinkContext     `json:"link_context,omitempty"`
	Status         DocumentStatus  `json:"status"`
	Error          string          `json:"error,omitempty"`
	ReplacedBy     string          `json:"replaced_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Analysis is the output of the extraction pipeline for one file.
type Analysis struct {
	Text           string          `json:"text"`
	Quality        *float64        `json:"quality,omitempty"`
	PageCount      int             `json:"page_count"`
	Period         *Period         `json:"period,omitempty"`
	TypeCandidates []TypeCandidate `json:"type_candidates,omitempty"`
}

// AssignedType returns the best type label, or "" when nothing was detected.
func (a Analysis) AssignedType() string {
	if len(a.TypeCandidates) == 0 {
		return ""
	}
	return a.TypeCandidates[0].Label
}

// CandidateQuery scopes the search for documents an upload may duplicate.
type CandidateQuery struct {
	Checksum    string
	LinkContext LinkContext
	TypeLabel   string
	Since       time.Time
	Limit       int
}

// Candidate converts a stored row into the read-only snapshot compared by the engine.
func (d Document) Candidate() CandidateDocument {
	return CandidateDocument{
		IncomingFile: IncomingFile{
			ID:             d.ID,
			Filename:       d.Filename,
			MimeType:       d.MimeType,
			ByteSize:       d.ByteSize,
			PageCount:      d.PageCount,
			Checksum:       d.Checksum,
			OCRText:        d.OCRText,
			OCRQuality:     d.OCRQuality,
			TypeCandidates: d.TypeCandidates,
			Period:         d.Period,
			LinkContext:    d.LinkContext,
		},
		UploadedAt:   d.CreatedAt,
		AssignedType: d.AssignedType,
		URL:          d.URL,
	}
}
