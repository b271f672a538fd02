// Package dedup decides whether an uploaded file duplicates a stored document.
//
// The engine is a pure function of its inputs: it never fetches candidates, never persists,
// and holds no mutable state, so one Engine can serve concurrent uploads.
package dedup

import (
	"fmt"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

type Config struct {
	Thresholds      Thresholds
	PeriodMode      PeriodMatchMode
	QualityEpsilon  float64
	MaxCompareRunes int
	// Lexicon overrides the embedded word lists when set.
	Lexicon *Lexicon
	// Similarity overrides the default token-set scorer when set.
	Similarity SimilarityFunc
}

func DefaultConfig() Config {
	return Config{
		Thresholds:      DefaultThresholds(),
		PeriodMode:      PeriodOverlap,
		QualityEpsilon:  DefaultQualityEpsilon,
		MaxCompareRunes: DefaultMaxCompareRunes,
	}
}

type Engine struct {
	ranker   *Ranker
	policy   Policy
	payloads PayloadBuilder
}

func NewEngine(cfg Config) (*Engine, error) {
	policy, err := NewPolicy(cfg.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("dedup policy: %w", err)
	}
	periodMode, err := ParsePeriodMatchMode(string(cfg.PeriodMode))
	if err != nil {
		return nil, fmt.Errorf("dedup period mode: %w", err)
	}

	lex := DefaultLexicon()
	if cfg.Lexicon != nil {
		lex = *cfg.Lexicon
	}
	normalizer := NewNormalizer(lex, cfg.MaxCompareRunes)
	signals := NewSignalExtractor(normalizer, NewFilenameMatcher(lex), cfg.Similarity, periodMode, cfg.QualityEpsilon)

	return &Engine{
		ranker: NewRanker(signals),
		policy: policy,
	}, nil
}

// Classify compares the upload with the candidates supplied by the caller and recommends an action.
// It fails only on malformed input; missing OCR text, period or context just weakens the signals.
func (e *Engine) Classify(incoming domain.IncomingFile, candidates []domain.CandidateDocument) (domain.ClassificationResult, error) {
	if err := ValidateIncoming(incoming); err != nil {
		return domain.ClassificationResult{}, err
	}
	if err := ValidateCandidates(candidates); err != nil {
		return domain.ClassificationResult{}, err
	}

	best, ok := e.ranker.Best(incoming, candidates)
	if !ok {
		return e.result(NoDuplicate(), domain.NeutralSignals(), incoming, nil, 0), nil
	}

	decision := e.policy.Decide(best.Signals)
	var matched *domain.CandidateDocument
	if decision.Status != domain.StatusNotDuplicate {
		matched = &best.Candidate
	}
	return e.result(decision, best.Signals, incoming, matched, len(candidates)), nil
}

func (e *Engine) result(
	decision Decision,
	signals domain.SignalSet,
	incoming domain.IncomingFile,
	matched *domain.CandidateDocument,
	evaluated int,
) domain.ClassificationResult {
	out := domain.ClassificationResult{
		Status:              decision.Status,
		Signals:             signals,
		SuggestedAction:     decision.Action,
		MatchRule:           string(decision.Rule),
		DecisionPayload:     e.payloads.Build(decision, signals, incoming, matched),
		CandidatesEvaluated: evaluated,
		PolicyVersion:       PolicyVersion,
	}
	if matched != nil {
		out.MatchedDocumentID = matched.ID
		out.Matched = &domain.MatchedDocument{
			ID:         matched.ID,
			Filename:   matched.Filename,
			UploadedAt: matched.UploadedAt,
			URL:        matched.URL,
		}
	}
	return out
}
