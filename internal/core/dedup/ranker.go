package dedup

import (
	"sort"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

// RankedCandidate pairs a stored document with its signals against the upload.
type RankedCandidate struct {
	Candidate domain.CandidateDocument
	Signals   domain.SignalSet
}

// Ranker orders candidates by checksum match, then text similarity, then the
// same-period-and-context bonus. Remaining ties go to the newest upload, then the lowest id.
type Ranker struct {
	signals *SignalExtractor
}

func NewRanker(signals *SignalExtractor) *Ranker {
	return &Ranker{signals: signals}
}

// Best returns the top-ranked candidate, or false when the list is empty.
func (r *Ranker) Best(in domain.IncomingFile, candidates []domain.CandidateDocument) (RankedCandidate, bool) {
	if len(candidates) == 0 {
		return RankedCandidate{}, false
	}
	prepared := r.signals.prepare(in)

	best := RankedCandidate{Candidate: candidates[0], Signals: r.signals.extract(prepared, candidates[0])}
	for _, candidate := range candidates[1:] {
		next := RankedCandidate{Candidate: candidate, Signals: r.signals.extract(prepared, candidate)}
		if outranks(next, best) {
			best = next
		}
	}
	return best, true
}

// Rank scores every candidate and returns them best first.
func (r *Ranker) Rank(in domain.IncomingFile, candidates []domain.CandidateDocument) []RankedCandidate {
	prepared := r.signals.prepare(in)
	out := make([]RankedCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, RankedCandidate{Candidate: candidate, Signals: r.signals.extract(prepared, candidate)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return outranks(out[i], out[j])
	})
	return out
}

func outranks(a, b RankedCandidate) bool {
	if a.Signals.ChecksumMatch != b.Signals.ChecksumMatch {
		return a.Signals.ChecksumMatch
	}
	if a.Signals.TextSimilarity != b.Signals.TextSimilarity {
		return a.Signals.TextSimilarity > b.Signals.TextSimilarity
	}
	aBonus := a.Signals.SamePeriod && a.Signals.SameContext
	bBonus := b.Signals.SamePeriod && b.Signals.SameContext
	if aBonus != bBonus {
		return aBonus
	}
	if !a.Candidate.UploadedAt.Equal(b.Candidate.UploadedAt) {
		return a.Candidate.UploadedAt.After(b.Candidate.UploadedAt)
	}
	return a.Candidate.ID < b.Candidate.ID
}
