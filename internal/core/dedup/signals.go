package dedup

import (
	"strings"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

// DefaultQualityEpsilon is the OCR confidence difference below which two scans count as equal.
const DefaultQualityEpsilon = 0.01

// SignalExtractor derives the SignalSet for one incoming/candidate pair.
type SignalExtractor struct {
	normalizer     *Normalizer
	filenames      *FilenameMatcher
	similarity     SimilarityFunc
	periodMode     PeriodMatchMode
	qualityEpsilon float64
}

func NewSignalExtractor(
	normalizer *Normalizer,
	filenames *FilenameMatcher,
	similarity SimilarityFunc,
	periodMode PeriodMatchMode,
	qualityEpsilon float64,
) *SignalExtractor {
	if similarity == nil {
		similarity = Similarity
	}
	if periodMode == "" {
		periodMode = PeriodOverlap
	}
	if qualityEpsilon < 0 {
		qualityEpsilon = DefaultQualityEpsilon
	}
	return &SignalExtractor{
		normalizer:     normalizer,
		filenames:      filenames,
		similarity:     similarity,
		periodMode:     periodMode,
		qualityEpsilon: qualityEpsilon,
	}
}

// preparedFile caches the normalized incoming text across candidates.
type preparedFile struct {
	file       domain.IncomingFile
	text       string
	fillerOnly bool
}

func (x *SignalExtractor) prepare(in domain.IncomingFile) preparedFile {
	text, fillerOnly := x.normalizer.normalize(in.OCRText)
	return preparedFile{file: in, text: text, fillerOnly: fillerOnly}
}

// Extract computes the signals for a single pair.
func (x *SignalExtractor) Extract(in domain.IncomingFile, candidate domain.CandidateDocument) domain.SignalSet {
	return x.extract(x.prepare(in), candidate)
}

func (x *SignalExtractor) extract(in preparedFile, candidate domain.CandidateDocument) domain.SignalSet {
	signals := domain.SignalSet{
		ChecksumMatch:     checksumsEqual(in.file.Checksum, candidate.Checksum),
		SamePeriod:        periodsMatch(in.file.Period, candidate.Period, x.periodMode),
		SameContext:       contextsAgree(in.file.LinkContext, candidate.LinkContext),
		FilenameMatch:     x.filenames.Match(in.file.Filename, candidate.Filename),
		QualityComparison: compareQuality(in.file, candidate.IncomingFile, x.qualityEpsilon),
	}

	// Identical bytes carry identical text; skip the expensive comparison.
	if signals.ChecksumMatch {
		signals.TextSimilarity = 1
		return signals
	}
	if in.text != "" {
		text, fillerOnly := x.normalizer.normalize(candidate.ComparableText())
		signals.TextSimilarity = clamp01(x.similarity(in.text, text))
		signals.FillerOnlyText = signals.TextSimilarity > 0 && (in.fillerOnly || fillerOnly)
	}
	return signals
}

func checksumsEqual(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// contextsAgree is true when at least one key is set on both sides and every such key agrees.
// Keys present on only one side are ignored.
func contextsAgree(a, b domain.LinkContext) bool {
	shared := 0
	for key, va := range a {
		va = strings.TrimSpace(va)
		if va == "" {
			continue
		}
		vb := strings.TrimSpace(b[key])
		if vb == "" {
			continue
		}
		if !strings.EqualFold(va, vb) {
			return false
		}
		shared++
	}
	return shared > 0
}

// compareQuality prefers the higher OCR confidence, then the lighter file.
func compareQuality(incoming, existing domain.IncomingFile, epsilon float64) domain.QualityComparison {
	if incoming.OCRQuality != nil && existing.OCRQuality != nil {
		diff := *incoming.OCRQuality - *existing.OCRQuality
		switch {
		case diff > epsilon:
			return domain.QualityNewBetter
		case diff < -epsilon:
			return domain.QualityExistingBetter
		}
	}
	if incoming.ByteSize > 0 && existing.ByteSize > 0 && incoming.ByteSize != existing.ByteSize {
		if incoming.ByteSize < existing.ByteSize {
			return domain.QualityNewBetter
		}
		return domain.QualityExistingBetter
	}
	return domain.QualityEqual
}
