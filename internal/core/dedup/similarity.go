package dedup

import (
	"strings"
	"unicode/utf8"
)

// lengthRatioWeight is the share of the score driven by the character-length ratio.
// It pulls down truncated OCR extracts whose vocabulary happens to be a subset of the full text.
const lengthRatioWeight = 0.1

// SimilarityFunc scores two normalized texts in [0,1]. Implementations must be symmetric.
type SimilarityFunc func(a, b string) float64

// Similarity is the Jaccard index of the two token sets, scaled by the length ratio:
//
//	jaccard * ((1 - w) + w * min(len)/max(len))
//
// Identical non-empty inputs score 1, disjoint vocabularies and empty inputs score 0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	small, large := setA, setB
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for token := range small {
		if _, ok := large[token]; ok {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}

	union := len(setA) + len(setB) - shared
	jaccard := float64(shared) / float64(union)
	score := jaccard * ((1 - lengthRatioWeight) + lengthRatioWeight*lengthRatio(a, b))
	return clamp01(score)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

func lengthRatio(a, b string) float64 {
	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	if la > lb {
		la, lb = lb, la
	}
	return float64(la) / float64(lb)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
