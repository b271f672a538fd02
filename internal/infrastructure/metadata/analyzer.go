package metadata

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/property-docs/internal/core/dedup"
	"github.com/kirillkom/property-docs/internal/core/domain"
)

// TypeRule maps a document type label to the folded phrases that reveal it.
type TypeRule struct {
	Label    string
	Keywords []string
}

// DefaultTypeRules covers the documents a property manager receives most often.
func DefaultTypeRules() []TypeRule {
	return []TypeRule{
		{Label: "quittance", Keywords: []string{"quittance", "quittance de loyer", "rent receipt"}},
		{Label: "facture", Keywords: []string{"facture", "invoice", "montant ttc"}},
		{Label: "bail", Keywords: []string{"bail", "contrat de location", "lease agreement"}},
		{Label: "avis_echeance", Keywords: []string{"avis d echeance", "appel de loyer"}},
		{Label: "assurance", Keywords: []string{"assurance", "attestation d assurance", "insurance"}},
		{Label: "taxe_fonciere", Keywords: []string{"taxe fonciere", "avis d imposition taxe fonciere"}},
		{Label: "diagnostic", Keywords: []string{"diagnostic", "dpe", "performance energetique"}},
		{Label: "etat_des_lieux", Keywords: []string{"etat des lieux"}},
	}
}

// Analyzer derives quality, period and type candidates from extracted text.
// It is stateless after construction and safe for concurrent use.
type Analyzer struct {
	rules []compiledRule
}

type compiledRule struct {
	label    string
	keywords []string
}

func NewAnalyzer(rules []TypeRule) *Analyzer {
	if len(rules) == 0 {
		rules = DefaultTypeRules()
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		label := strings.TrimSpace(rule.Label)
		if label == "" {
			continue
		}
		keywords := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			if folded := strings.Join(dedup.FoldTokens(kw), " "); folded != "" {
				keywords = append(keywords, folded)
			}
		}
		compiled = append(compiled, compiledRule{label: label, keywords: keywords})
	}
	return &Analyzer{rules: compiled}
}

func (a *Analyzer) Analyze(filename string, extraction domain.Extraction) domain.Analysis {
	analysis := domain.Analysis{
		Text:      extraction.Text,
		PageCount: extraction.PageCount,
		Quality:   EstimateQuality(extraction.Text),
	}

	if period, ok := DetectPeriod(extraction.Text); ok {
		analysis.Period = &period
	} else if period, ok := DetectPeriod(filenameText(filename)); ok {
		analysis.Period = &period
	}

	analysis.TypeCandidates = a.classify(filenameText(filename) + "\n" + extraction.Text)
	return analysis
}

// EstimateQuality returns the share of letters and digits among non-space runes.
// It returns nil for empty text so that quality comparison stays neutral.
func EstimateQuality(text string) *float64 {
	var total, useful int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			useful++
		}
	}
	if total == 0 {
		return nil
	}
	q := math.Round(float64(useful)/float64(total)*1000) / 1000
	return &q
}

func (a *Analyzer) classify(text string) []domain.TypeCandidate {
	tokens := dedup.FoldTokens(text)
	if len(tokens) == 0 {
		return nil
	}
	haystack := " " + strings.Join(tokens, " ") + " "

	hits := make(map[string]int, len(a.rules))
	total := 0
	for _, rule := range a.rules {
		for _, kw := range rule.keywords {
			n := strings.Count(haystack, " "+kw+" ")
			hits[rule.label] += n
			total += n
		}
	}
	if total == 0 {
		return nil
	}

	out := make([]domain.TypeCandidate, 0, len(hits))
	for label, n := range hits {
		if n == 0 {
			continue
		}
		confidence := math.Round(float64(n)/float64(total)*1000) / 1000
		out = append(out, domain.TypeCandidate{Label: label, Confidence: confidence})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// filenameText turns "quittance_2024-01.pdf" into "quittance 2024-01".
func filenameText(filename string) string {
	base := filename
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return strings.NewReplacer("_", " ", "+", " ").Replace(base)
}
