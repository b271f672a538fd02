package dedup

import (
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

func matchedLease() *domain.CandidateDocument {
	jan := domain.MonthPeriod(2024, time.January)
	return &domain.CandidateDocument{
		IncomingFile: domain.IncomingFile{ID: "doc-1", Filename: "bail.pdf", Checksum: "abc", Period: &jan},
		UploadedAt:   time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC),
	}
}

func findBadge(badges []domain.Badge, signal string) (domain.Badge, bool) {
	for _, b := range badges {
		if b.Signal == signal {
			return b, true
		}
	}
	return domain.Badge{}, false
}

func TestPayloadNotDuplicate(t *testing.T) {
	payload := PayloadBuilder{}.Build(NoDuplicate(), domain.NeutralSignals(), domain.IncomingFile{}, nil)
	if payload.ShowModal {
		t.Fatalf("expected no modal")
	}
	if payload.Severity != domain.SeverityNone || payload.PrimaryAction.Action != domain.ActionProceed {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Badges == nil || len(payload.Badges) != 0 {
		t.Fatalf("expected empty non-nil badges, got %#v", payload.Badges)
	}
	if payload.SecondaryAction != nil || len(payload.Choices) != 0 {
		t.Fatalf("expected no alternatives, got %+v", payload)
	}
}

func TestPayloadExactDuplicateByChecksum(t *testing.T) {
	signals := domain.SignalSet{ChecksumMatch: true, TextSimilarity: 1, SamePeriod: true, SameContext: true, FilenameMatch: true, QualityComparison: domain.QualityEqual}
	decision := Decision{Status: domain.StatusExactDuplicate, Action: domain.ActionCancel, Rule: RuleChecksum}
	jan := domain.MonthPeriod(2024, time.January)

	payload := PayloadBuilder{}.Build(decision, signals, domain.IncomingFile{Period: &jan}, matchedLease())

	if !payload.ShowModal || payload.Severity != domain.SeverityHigh || payload.Title != "Duplicate document" {
		t.Fatalf("unexpected header: %+v", payload)
	}
	if payload.PrimaryAction.Action != domain.ActionCancel || payload.PrimaryAction.Label != "Cancel upload" {
		t.Fatalf("unexpected primary action: %+v", payload.PrimaryAction)
	}
	if payload.SecondaryAction != nil {
		t.Fatalf("exact duplicates offer a single action, got %+v", payload.SecondaryAction)
	}
	if !strings.Contains(payload.Recommendation, `"bail.pdf" (uploaded on 2024-02-03)`) {
		t.Fatalf("recommendation does not reference the stored document: %q", payload.Recommendation)
	}
	if !strings.Contains(payload.Recommendation, "byte-for-byte") {
		t.Fatalf("expected checksum wording, got %q", payload.Recommendation)
	}

	checks := map[string]domain.BadgeTone{
		"checksum":        domain.ToneMatch,
		"text_similarity": domain.ToneMatch,
		"period":          domain.ToneMatch,
		"context":         domain.ToneMatch,
		"filename":        domain.ToneMatch,
		"quality":         domain.ToneNeutral,
	}
	for signal, tone := range checks {
		b, ok := findBadge(payload.Badges, signal)
		if !ok {
			t.Fatalf("missing %s badge in %+v", signal, payload.Badges)
		}
		if b.Tone != tone {
			t.Fatalf("%s badge tone = %s, want %s", signal, b.Tone, tone)
		}
	}
	if b, _ := findBadge(payload.Badges, "period"); b.Label != "Same period: 2024-01-01 to 2024-01-31" {
		t.Fatalf("unexpected period label %q", b.Label)
	}
	if b, _ := findBadge(payload.Badges, "text_similarity"); b.Label != "Similarity: 100%" {
		t.Fatalf("unexpected similarity label %q", b.Label)
	}
}

func TestPayloadExactTextWording(t *testing.T) {
	decision := Decision{Status: domain.StatusExactDuplicate, Action: domain.ActionCancel, Rule: RuleExactText}
	payload := PayloadBuilder{}.Build(decision, domain.SignalSet{TextSimilarity: 0.998, QualityComparison: domain.QualityEqual}, domain.IncomingFile{}, matchedLease())
	if !strings.Contains(payload.Recommendation, "same content") {
		t.Fatalf("expected content wording, got %q", payload.Recommendation)
	}
	if b, ok := findBadge(payload.Badges, "checksum"); !ok || b.Tone != domain.ToneDiffer {
		t.Fatalf("expected differing checksum badge, got %+v", b)
	}
	if _, ok := findBadge(payload.Badges, "filename"); ok {
		t.Fatalf("filename badge must only appear on a match")
	}
	if b, _ := findBadge(payload.Badges, "period"); b.Label != "Period: unknown" || b.Tone != domain.ToneNeutral {
		t.Fatalf("expected unknown period badge, got %+v", b)
	}
}

func TestPayloadProbableButtons(t *testing.T) {
	tests := []struct {
		action    domain.SuggestedAction
		primary   domain.SuggestedAction
		secondary domain.SuggestedAction
	}{
		{domain.ActionReplace, domain.ActionReplace, domain.ActionKeepBoth},
		{domain.ActionCancel, domain.ActionCancel, domain.ActionKeepBoth},
		{domain.ActionKeepBoth, domain.ActionKeepBoth, domain.ActionReplace},
		{domain.ActionAskUser, domain.ActionKeepBoth, domain.ActionReplace},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			decision := Decision{Status: domain.StatusProbableDuplicate, Action: tt.action, Rule: RuleProbableText}
			signals := domain.SignalSet{TextSimilarity: 0.81, SameContext: true, QualityComparison: domain.QualityEqual}
			payload := PayloadBuilder{}.Build(decision, signals, domain.IncomingFile{}, matchedLease())

			if !payload.ShowModal || payload.Severity != domain.SeverityMedium || payload.Title != "Possible duplicate" {
				t.Fatalf("unexpected header: %+v", payload)
			}
			if payload.PrimaryAction.Action != tt.primary {
				t.Fatalf("primary = %s, want %s", payload.PrimaryAction.Action, tt.primary)
			}
			if payload.SecondaryAction == nil || payload.SecondaryAction.Action != tt.secondary {
				t.Fatalf("secondary = %+v, want %s", payload.SecondaryAction, tt.secondary)
			}
			if payload.PrimaryAction.Label == "" || payload.SecondaryAction.Label == "" {
				t.Fatalf("expected labelled buttons, got %+v / %+v", payload.PrimaryAction, payload.SecondaryAction)
			}
			if len(payload.Choices) != 2 || payload.Choices[0] != domain.ActionReplace || payload.Choices[1] != domain.ActionKeepBoth {
				t.Fatalf("unexpected choices %v", payload.Choices)
			}
			if b, _ := findBadge(payload.Badges, "text_similarity"); b.Label != "Similarity: 81%" {
				t.Fatalf("unexpected similarity label %q", b.Label)
			}
		})
	}
}

func TestPayloadDifferentPeriodBadge(t *testing.T) {
	feb := domain.MonthPeriod(2024, time.February)
	decision := Decision{Status: domain.StatusProbableDuplicate, Action: domain.ActionKeepBoth, Rule: RuleProbableText}
	payload := PayloadBuilder{}.Build(decision, domain.SignalSet{TextSimilarity: 0.75, QualityComparison: domain.QualityNewBetter}, domain.IncomingFile{Period: &feb}, matchedLease())

	b, ok := findBadge(payload.Badges, "period")
	if !ok || b.Tone != domain.ToneDiffer || !strings.HasPrefix(b.Label, "Different period") {
		t.Fatalf("expected differing period badge, got %+v", b)
	}
	if b, _ := findBadge(payload.Badges, "quality"); b.Label != "New file has better quality" {
		t.Fatalf("unexpected quality badge %+v", b)
	}
}
