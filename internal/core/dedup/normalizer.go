package dedup

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxCompareRunes caps how much OCR text is compared per document.
const DefaultMaxCompareRunes = 20000

var ligatureReplacer = strings.NewReplacer(
	"œ", "oe",
	"æ", "ae",
	"ß", "ss",
	"ﬁ", "fi",
	"ﬂ", "fl",
)

// Normalizer cleans raw OCR text so that two extracts of the same document compare equal.
// It is safe for concurrent use.
type Normalizer struct {
	dropped  map[string]struct{}
	maxRunes int
}

func NewNormalizer(lex Lexicon, maxRunes int) *Normalizer {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxCompareRunes
	}
	return &Normalizer{
		dropped:  lex.droppedTerms(),
		maxRunes: maxRunes,
	}
}

// Normalize lowercases, folds accents, strips punctuation, drops stopwords and generic
// document-type nouns, and joins the remaining tokens with single spaces.
func (n *Normalizer) Normalize(raw string) string {
	return strings.Join(n.Tokens(raw), " ")
}

// Tokens is Normalize without the final join.
func (n *Normalizer) Tokens(raw string) []string {
	tokens, _ := n.tokens(raw)
	return tokens
}

func (n *Normalizer) normalize(raw string) (string, bool) {
	tokens, fillerOnly := n.tokens(raw)
	return strings.Join(tokens, " "), fillerOnly
}

// tokens also reports fillerOnly: the text had nothing but dropped words, which are kept.
func (n *Normalizer) tokens(raw string) ([]string, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	raw = truncateRunes(raw, n.maxRunes)
	all := splitAlphaNum(foldText(raw))

	tokens := make([]string, 0, len(all))
	for _, token := range all {
		if _, drop := n.dropped[token]; drop {
			continue
		}
		if utf8.RuneCountInString(token) == 1 && !isDigits(token) {
			continue
		}
		tokens = append(tokens, token)
	}
	// A text made only of filler words ("Facture") still has to compare equal to itself.
	if len(tokens) == 0 {
		return all, len(all) > 0
	}
	return tokens, false
}

// foldText lowercases and removes diacritics ("Échéance" -> "echeance").
func foldText(s string) string {
	s = ligatureReplacer.Replace(strings.ToLower(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold exposes the lowercase, accent-free form used for comparison.
func Fold(s string) string {
	return foldText(s)
}

// FoldTokens splits folded text into letter/digit runs without dropping any word.
func FoldTokens(s string) []string {
	return splitAlphaNum(foldText(s))
}

func splitAlphaNum(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 64)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
