package dedup

import (
	"fmt"
	"math"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

const payloadDateLayout = "2006-01-02"

var actionLabels = map[domain.SuggestedAction]string{
	domain.ActionCancel:   "Cancel upload",
	domain.ActionReplace:  "Replace existing document",
	domain.ActionKeepBoth: "Keep both",
	domain.ActionProceed:  "Upload",
}

// PayloadBuilder renders a decision into the upload confirmation dialog.
type PayloadBuilder struct{}

func (PayloadBuilder) Build(
	decision Decision,
	signals domain.SignalSet,
	incoming domain.IncomingFile,
	matched *domain.CandidateDocument,
) domain.DecisionPayload {
	if decision.Status == domain.StatusNotDuplicate || matched == nil {
		return domain.DecisionPayload{
			ShowModal:      false,
			Title:          "No duplicate found",
			Severity:       domain.SeverityNone,
			Badges:         []domain.Badge{},
			Recommendation: "No similar document is stored yet.",
			PrimaryAction:  choice(domain.ActionProceed),
		}
	}

	badges := buildBadges(signals, incoming, *matched)
	ref := fmt.Sprintf("%q (uploaded %s)", matched.Filename, uploadDate(*matched))

	if decision.Status == domain.StatusExactDuplicate {
		text := ref + " has the same content as this file."
		if decision.Rule == RuleChecksum {
			text = ref + " is byte-for-byte identical to this file."
		}
		return domain.DecisionPayload{
			ShowModal:      true,
			Title:          "Duplicate document",
			Severity:       domain.SeverityHigh,
			Badges:         badges,
			Recommendation: text + " " + exactAdvice(decision.Action),
			PrimaryAction:  choice(decision.Action),
		}
	}

	primary, secondary := probableChoices(decision.Action)
	return domain.DecisionPayload{
		ShowModal:       true,
		Title:           "Possible duplicate",
		Severity:        domain.SeverityMedium,
		Badges:          badges,
		Recommendation:  probableAdvice(decision.Action, ref),
		PrimaryAction:   choice(primary),
		SecondaryAction: &secondary,
		Choices:         []domain.SuggestedAction{domain.ActionReplace, domain.ActionKeepBoth},
	}
}

func exactAdvice(action domain.SuggestedAction) string {
	if action == domain.ActionReplace {
		return "Replacing it keeps the better copy."
	}
	return "Uploading it again adds nothing."
}

func probableAdvice(action domain.SuggestedAction, ref string) string {
	switch action {
	case domain.ActionReplace:
		return "This file looks like a better copy of " + ref + ". Replacing the stored version is recommended."
	case domain.ActionCancel:
		return "This file looks like " + ref + ", and the stored copy has better quality. Keeping the stored version is recommended."
	case domain.ActionKeepBoth:
		return "This file resembles " + ref + " but is attached to a different property, lease or tenant. Keeping both is recommended."
	default:
		return "This file resembles " + ref + ". Compare both before choosing."
	}
}

// probableChoices picks the dialog buttons. ask_user has no button of its own, so the
// non-destructive keep_both takes the primary slot.
func probableChoices(action domain.SuggestedAction) (domain.SuggestedAction, domain.ActionChoice) {
	switch action {
	case domain.ActionReplace:
		return domain.ActionReplace, choice(domain.ActionKeepBoth)
	case domain.ActionCancel:
		return domain.ActionCancel, choice(domain.ActionKeepBoth)
	default:
		return domain.ActionKeepBoth, choice(domain.ActionReplace)
	}
}

func choice(action domain.SuggestedAction) domain.ActionChoice {
	return domain.ActionChoice{Action: action, Label: actionLabels[action]}
}

func buildBadges(s domain.SignalSet, incoming domain.IncomingFile, matched domain.CandidateDocument) []domain.Badge {
	badges := make([]domain.Badge, 0, 6)

	if s.ChecksumMatch {
		badges = append(badges, badge("checksum", "Checksum: identical", domain.ToneMatch))
	} else {
		badges = append(badges, badge("checksum", "Checksum: no match", domain.ToneDiffer))
	}

	percent := int(math.Round(s.TextSimilarity * 100))
	badges = append(badges, badge("text_similarity", fmt.Sprintf("Similarity: %d%%", percent), similarityTone(percent)))

	switch {
	case s.SamePeriod:
		badges = append(badges, badge("period", "Same period: "+periodLabel(matched.Period), domain.ToneMatch))
	case incoming.Period != nil && matched.Period != nil:
		badges = append(badges, badge("period", "Different period: "+periodLabel(matched.Period), domain.ToneDiffer))
	default:
		badges = append(badges, badge("period", "Period: unknown", domain.ToneNeutral))
	}

	if s.SameContext {
		badges = append(badges, badge("context", "Same property, lease or tenant", domain.ToneMatch))
	} else {
		badges = append(badges, badge("context", "Different or unknown attachment", domain.ToneDiffer))
	}

	if s.FilenameMatch {
		badges = append(badges, badge("filename", "Same file name as "+matched.Filename, domain.ToneMatch))
	}

	switch s.QualityComparison {
	case domain.QualityNewBetter:
		badges = append(badges, badge("quality", "New file has better quality", domain.ToneNeutral))
	case domain.QualityExistingBetter:
		badges = append(badges, badge("quality", "Stored file has better quality", domain.ToneNeutral))
	default:
		badges = append(badges, badge("quality", "Same quality", domain.ToneNeutral))
	}
	return badges
}

func badge(signal, label string, tone domain.BadgeTone) domain.Badge {
	return domain.Badge{Signal: signal, Label: label, Tone: tone}
}

func similarityTone(percent int) domain.BadgeTone {
	switch {
	case percent >= 70:
		return domain.ToneMatch
	case percent >= 30:
		return domain.ToneNeutral
	default:
		return domain.ToneDiffer
	}
}

func periodLabel(p *domain.Period) string {
	if p == nil || p.From.IsZero() {
		return "unknown"
	}
	from := p.From.Format(payloadDateLayout)
	if p.To.IsZero() || p.To.Equal(p.From) {
		return from
	}
	return from + " to " + p.To.Format(payloadDateLayout)
}

func uploadDate(c domain.CandidateDocument) string {
	if c.UploadedAt.IsZero() {
		return "on an unknown date"
	}
	return "on " + c.UploadedAt.Format(payloadDateLayout)
}
