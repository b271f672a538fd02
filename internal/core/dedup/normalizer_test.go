package dedup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeDropsPunctuationStopwordsAndTypeNouns(t *testing.T) {
	n := NewNormalizer(DefaultLexicon(), 0)

	got := n.Normalize("Quittance de loyer – Janvier 2024 : 1 200,00 €")
	want := "loyer janvier 2024 1 200 00"
	if got != want {
		t.Fatalf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalizeFoldsDiacriticsAndLigatures(t *testing.T) {
	n := NewNormalizer(DefaultLexicon(), 0)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"accents", "Échéance RÉGLÉE", "echeance reglee"},
		{"ligature", "Cœur de ville", "coeur ville"},
		{"apostrophe", "l'état des lieux", "etat lieux"},
		{"whitespace", "  loyer \n\t  charges  ", "loyer charges"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	n := NewNormalizer(DefaultLexicon(), 0)
	for _, in := range []string{"", "   ", "\n\t"} {
		if got := n.Normalize(in); got != "" {
			t.Fatalf("Normalize(%q) = %q, want empty", in, got)
		}
	}
}

func TestNormalizeKeepsFillerOnlyText(t *testing.T) {
	n := NewNormalizer(DefaultLexicon(), 0)
	if got := n.Normalize("Facture"); got != "facture" {
		t.Fatalf("expected filler-only text to survive normalization, got %q", got)
	}
}

func TestNormalizeCapsComparedLength(t *testing.T) {
	n := NewNormalizer(DefaultLexicon(), 10)
	if got := n.Normalize("abcdefghij klmnop"); got != "abcdefghij" {
		t.Fatalf("expected truncated text, got %q", got)
	}
}

func TestParseLexiconFoldsEntries(t *testing.T) {
	lex, err := ParseLexicon([]byte("locale: fr\nstopwords: [\"Été\"]\ngeneric_terms: [\"Relevé\", \"relevé\"]\ncopy_suffixes: [\"Copie\"]\n"))
	if err != nil {
		t.Fatalf("ParseLexicon() error = %v", err)
	}
	if len(lex.Stopwords) != 1 || lex.Stopwords[0] != "ete" {
		t.Fatalf("unexpected stopwords: %v", lex.Stopwords)
	}
	if len(lex.GenericTerms) != 1 || lex.GenericTerms[0] != "releve" {
		t.Fatalf("expected deduplicated folded generic terms, got %v", lex.GenericTerms)
	}
	if len(lex.CopySuffixes) != 1 || lex.CopySuffixes[0] != "copie" {
		t.Fatalf("unexpected copy suffixes: %v", lex.CopySuffixes)
	}
}

func TestCustomLexiconChangesNormalization(t *testing.T) {
	lex, err := ParseLexicon([]byte("stopwords: [de]\ngeneric_terms: []\n"))
	if err != nil {
		t.Fatalf("ParseLexicon() error = %v", err)
	}
	n := NewNormalizer(lex, 0)
	if got := n.Normalize("Facture de gaz"); got != "facture gaz" {
		t.Fatalf("expected generic noun to be kept with custom lexicon, got %q", got)
	}
}

func TestLoadLexicon(t *testing.T) {
	def, err := LoadLexicon("")
	if err != nil {
		t.Fatalf("LoadLexicon(\"\") error = %v", err)
	}
	if len(def.GenericTerms) == 0 || len(def.Stopwords) == 0 {
		t.Fatalf("expected embedded lexicon, got %+v", def)
	}

	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	if err := os.WriteFile(path, []byte("locale: en\nstopwords: [the]\n"), 0o600); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}
	custom, err := LoadLexicon(path)
	if err != nil {
		t.Fatalf("LoadLexicon(file) error = %v", err)
	}
	if custom.Locale != "en" || len(custom.Stopwords) != 1 {
		t.Fatalf("unexpected custom lexicon: %+v", custom)
	}

	if _, err := LoadLexicon(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing lexicon file")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("stopwords: {nope"), 0o600); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}
	if _, err := LoadLexicon(bad); err == nil {
		t.Fatalf("expected decode error for malformed yaml")
	}
}
