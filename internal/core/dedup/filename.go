package dedup

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

// FilenameMatcher compares filenames ignoring extensions, case, accents and the suffixes
// file managers append to copies ("bail (copie).pdf", "bail (1).pdf", "bail - Copy 2.pdf").
type FilenameMatcher struct {
	patterns []*regexp.Regexp
}

func NewFilenameMatcher(lex Lexicon) *FilenameMatcher {
	words := make([]string, 0, len(lex.CopySuffixes))
	for _, w := range lex.CopySuffixes {
		words = append(words, regexp.QuoteMeta(w))
	}

	patterns := []*regexp.Regexp{
		regexp.MustCompile(`[\s_.-]*[\(\[]\s*\d{1,3}\s*[\)\]]$`),
	}
	if len(words) > 0 {
		alt := strings.Join(words, "|")
		patterns = append(patterns,
			regexp.MustCompile(`[\s_.-]*[\(\[]\s*(?:`+alt+`)(?:[\s_-]*\d+)?\s*[\)\]]$`),
			regexp.MustCompile(`[\s_.-]+(?:`+alt+`)(?:[\s_-]*\d+)?$`),
			regexp.MustCompile(`^(?:`+alt+`)\s+(?:de|of|du)\s+`),
		)
	}
	return &FilenameMatcher{patterns: patterns}
}

// Match reports whether both names reduce to the same non-empty stem.
func (m *FilenameMatcher) Match(a, b string) bool {
	stemA := m.Stem(a)
	if stemA == "" {
		return false
	}
	return stemA == m.Stem(b)
}

// Stem reduces a filename to its comparable core.
func (m *FilenameMatcher) Stem(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	if ext := path.Ext(base); ext != "" && len(ext) <= 6 && len(ext) < len(base) {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.TrimSpace(foldText(base))

	for changed := true; changed; {
		changed = false
		for _, re := range m.patterns {
			if stripped := strings.TrimSpace(re.ReplaceAllString(base, "")); stripped != base && stripped != "" {
				base = stripped
				changed = true
			}
		}
	}

	var b strings.Builder
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
