package dedup

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Lexicon is the locale-specific word list the normalizer and filename matcher work from.
type Lexicon struct {
	Locale       string   `yaml:"locale"`
	Stopwords    []string `yaml:"stopwords"`
	GenericTerms []string `yaml:"generic_terms"`
	CopySuffixes []string `yaml:"copy_suffixes"`
}

// DefaultLexicon returns the embedded French/English word lists.
func DefaultLexicon() Lexicon {
	lex, err := ParseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(fmt.Sprintf("dedup: embedded lexicon is invalid: %v", err))
	}
	return lex
}

// ParseLexicon decodes a YAML lexicon. Entries are folded the same way OCR text is.
func ParseLexicon(raw []byte) (Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(raw, &lex); err != nil {
		return Lexicon{}, fmt.Errorf("decode lexicon yaml: %w", err)
	}
	lex.Stopwords = foldTerms(lex.Stopwords)
	lex.GenericTerms = foldTerms(lex.GenericTerms)
	lex.CopySuffixes = foldTerms(lex.CopySuffixes)
	return lex, nil
}

// LoadLexicon reads a lexicon file; an empty path yields the embedded default.
func LoadLexicon(path string) (Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultLexicon(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	return ParseLexicon(raw)
}

func (l Lexicon) droppedTerms() map[string]struct{} {
	out := make(map[string]struct{}, len(l.Stopwords)+len(l.GenericTerms))
	for _, term := range l.Stopwords {
		out[term] = struct{}{}
	}
	for _, term := range l.GenericTerms {
		out[term] = struct{}{}
	}
	return out
}

func foldTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		folded := strings.TrimSpace(foldText(term))
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, folded)
	}
	return out
}
