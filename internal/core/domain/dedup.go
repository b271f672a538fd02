package domain

import "time"

// Link context keys understood by the upload flow. Other keys are allowed and compared the same way.
const (
	ContextProperty = "property_id"
	ContextLease    = "lease_id"
	ContextTenant   = "tenant_id"
)

// LinkContext names the entities a document is attached to, keyed by entity kind.
type LinkContext map[string]string

// Period is an inclusive date range a document covers. A zero To means the single day From;
// a zero From makes the period unusable for matching. Only an inverted range is invalid.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to" validate:"omitempty,gtefield=From"`
}

// MonthPeriod returns the period spanning the whole calendar month.
func MonthPeriod(year int, month time.Month) Period {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{From: from, To: from.AddDate(0, 1, -1)}
}

type TypeCandidate struct {
	Label      string  `json:"label" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// IncomingFile describes the file being uploaded. It is never persisted as is.
type IncomingFile struct {
	ID             string          `json:"id,omitempty"`
	Filename       string          `json:"filename" validate:"required"`
	MimeType       string          `json:"mime_type,omitempty"`
	ByteSize       int64           `json:"byte_size" validate:"gte=0"`
	PageCount      int             `json:"page_count,omitempty" validate:"gte=0"`
	Checksum       string          `json:"checksum" validate:"required"`
	OCRText        string          `json:"ocr_text,omitempty"`
	OCRQuality     *float64        `json:"ocr_quality,omitempty" validate:"omitempty,gte=0,lte=1"`
	TypeCandidates []TypeCandidate `json:"type_candidates,omitempty" validate:"dive"`
	Period         *Period         `json:"period,omitempty"`
	LinkContext    LinkContext     `json:"link_context,omitempty"`
}

// CandidateDocument is a read-only snapshot of a stored document supplied by the caller.
type CandidateDocument struct {
	IncomingFile
	OCRTextPreview string    `json:"ocr_text_preview,omitempty"`
	UploadedAt     time.Time `json:"uploaded_at"`
	AssignedType   string    `json:"assigned_type,omitempty"`
	URL            string    `json:"url,omitempty"`
}

// ComparableText prefers the full OCR text and falls back to the stored preview.
func (c CandidateDocument) ComparableText() string {
	if c.OCRText != "" {
		return c.OCRText
	}
	return c.OCRTextPreview
}

type DuplicateStatus string

const (
	StatusExactDuplicate    DuplicateStatus = "exact_duplicate"
	StatusProbableDuplicate DuplicateStatus = "probable_duplicate"
	StatusNotDuplicate      DuplicateStatus = "not_duplicate"
)

type SuggestedAction string

const (
	ActionCancel   SuggestedAction = "cancel"
	ActionReplace  SuggestedAction = "replace"
	ActionKeepBoth SuggestedAction = "keep_both"
	ActionAskUser  SuggestedAction = "ask_user"
	ActionProceed  SuggestedAction = "proceed"
)

// ParseResolution accepts the actions a user may pick from a decision dialog.
func ParseResolution(raw string) (SuggestedAction, bool) {
	switch action := SuggestedAction(raw); action {
	case ActionCancel, ActionReplace, ActionKeepBoth, ActionProceed:
		return action, true
	default:
		return "", false
	}
}

type QualityComparison string

const (
	QualityNewBetter      QualityComparison = "new_better"
	QualityExistingBetter QualityComparison = "existing_better"
	QualityEqual          QualityComparison = "equal"
)

// SignalSet holds the independent pieces of evidence for one incoming/candidate pair.
type SignalSet struct {
	ChecksumMatch     bool              `json:"checksum_match"`
	TextSimilarity    float64           `json:"text_similarity"`
	SamePeriod        bool              `json:"same_period"`
	SameContext       bool              `json:"same_context"`
	FilenameMatch     bool              `json:"filename_match"`
	QualityComparison QualityComparison `json:"quality_comparison"`
	// FillerOnlyText marks a similarity computed from stopwords and generic nouns alone.
	FillerOnlyText    bool              `json:"filler_only_text,omitempty"`
}

// NeutralSignals is the signal set used when there is nothing to compare against.
func NeutralSignals() SignalSet {
	return SignalSet{QualityComparison: QualityEqual}
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityNone   Severity = "none"
)

type BadgeTone string

const (
	ToneMatch   BadgeTone = "match"
	ToneNeutral BadgeTone = "neutral"
	ToneDiffer  BadgeTone = "differ"
)

type Badge struct {
	Signal string    `json:"signal"`
	Label  string    `json:"label"`
	Tone   BadgeTone `json:"tone"`
}

type ActionChoice struct {
	Action SuggestedAction `json:"action"`
	Label  string          `json:"label"`
}

// DecisionPayload is what the upload dialog renders.
type DecisionPayload struct {
	ShowModal       bool              `json:"show_modal"`
	Title           string            `json:"title"`
	Severity        Severity          `json:"severity"`
	Badges          []Badge           `json:"badges"`
	Recommendation  string            `json:"recommendation"`
	PrimaryAction   ActionChoice      `json:"primary_action"`
	SecondaryAction *ActionChoice     `json:"secondary_action,omitempty"`
	Choices         []SuggestedAction `json:"choices,omitempty"`
}

// MatchedDocument identifies the winning candidate in a result.
type MatchedDocument struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
	URL        string    `json:"url,omitempty"`
}

type ClassificationResult struct {
	Status              DuplicateStatus  `json:"status"`
	MatchedDocumentID   string           `json:"matched_document_id,omitempty"`
	Matched             *MatchedDocument `json:"matched,omitempty"`
	Signals             SignalSet        `json:"signals"`
	SuggestedAction     SuggestedAction  `json:"suggested_action"`
	MatchRule           string           `json:"match_rule"`
	DecisionPayload     DecisionPayload  `json:"decision_payload"`
	CandidatesEvaluated int              `json:"candidates_evaluated"`
	PolicyVersion       string           `json:"policy_version"`
}

// IsDuplicate reports whether the upload matched a stored document.
func (r ClassificationResult) IsDuplicate() bool {
	return r.Status != StatusNotDuplicate
}
