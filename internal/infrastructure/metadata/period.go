package metadata

import (
	"regexp"
	"strconv"
	"time"

	"github.com/kirillkom/property-docs/internal/core/dedup"
	"github.com/kirillkom/property-docs/internal/core/domain"
)

var monthNames = map[string]time.Month{
	"janvier": time.January, "january": time.January,
	"fevrier": time.February, "february": time.February,
	"mars": time.March, "march": time.March,
	"avril": time.April, "april": time.April,
	"mai": time.May, "may": time.May,
	"juin": time.June, "june": time.June,
	"juillet": time.July, "july": time.July,
	"aout": time.August, "august": time.August,
	"septembre": time.September, "september": time.September,
	"octobre": time.October, "october": time.October,
	"novembre": time.November, "november": time.November,
	"decembre": time.December, "december": time.December,
}

var (
	monthNameRe = regexp.MustCompile(`\b(janvier|fevrier|mars|avril|mai|juin|juillet|aout|septembre|octobre|novembre|decembre|january|february|march|april|may|june|july|august|september|october|november|december)\s+(?:de\s+|of\s+)?(\d{4})\b`)
	monthYearRe = regexp.MustCompile(`(?:^|[^\d/.-])(\d{1,2})[/.-](\d{4})\b`)
	yearMonthRe = regexp.MustCompile(`\b(\d{4})-(\d{1,2})\b`)
	dayFirstRe  = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})\b`)
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
)

type periodMatch struct {
	year  int
	month time.Month
	pos   int
}

// DetectPeriod finds the calendar month a document is about.
// Month names beat numeric month/year forms, which beat full dates; within one form the most
// frequent month wins, then the earliest.
func DetectPeriod(text string) (domain.Period, bool) {
	if text == "" {
		return domain.Period{}, false
	}
	folded := dedup.Fold(text)

	for _, scan := range []func(string) []periodMatch{scanMonthNames, scanNumericMonths, scanFullDates} {
		if best, ok := pickMonth(scan(folded)); ok {
			return domain.MonthPeriod(best.year, best.month), true
		}
	}
	return domain.Period{}, false
}

func scanMonthNames(s string) []periodMatch {
	var out []periodMatch
	for _, m := range monthNameRe.FindAllStringSubmatchIndex(s, -1) {
		year, _ := strconv.Atoi(s[m[4]:m[5]])
		out = appendMatch(out, year, int(monthNames[s[m[2]:m[3]]]), m[0])
	}
	return out
}

func scanNumericMonths(s string) []periodMatch {
	var out []periodMatch
	for _, m := range yearMonthRe.FindAllStringSubmatchIndex(s, -1) {
		// "2024-01-15" is a full date, left to scanFullDates.
		if m[1] < len(s) && s[m[1]] == '-' {
			continue
		}
		year, _ := strconv.Atoi(s[m[2]:m[3]])
		month, _ := strconv.Atoi(s[m[4]:m[5]])
		out = appendMatch(out, year, month, m[0])
	}
	for _, m := range monthYearRe.FindAllStringSubmatchIndex(s, -1) {
		month, _ := strconv.Atoi(s[m[2]:m[3]])
		year, _ := strconv.Atoi(s[m[4]:m[5]])
		out = appendMatch(out, year, month, m[2])
	}
	return out
}

func scanFullDates(s string) []periodMatch {
	var out []periodMatch
	for _, m := range dayFirstRe.FindAllStringSubmatchIndex(s, -1) {
		month, _ := strconv.Atoi(s[m[4]:m[5]])
		year, _ := strconv.Atoi(s[m[6]:m[7]])
		out = appendMatch(out, year, month, m[0])
	}
	for _, m := range isoDateRe.FindAllStringSubmatchIndex(s, -1) {
		year, _ := strconv.Atoi(s[m[2]:m[3]])
		month, _ := strconv.Atoi(s[m[4]:m[5]])
		out = appendMatch(out, year, month, m[0])
	}
	return out
}

func appendMatch(out []periodMatch, year, month, pos int) []periodMatch {
	if year < 1990 || year > 2100 || month < 1 || month > 12 {
		return out
	}
	return append(out, periodMatch{year: year, month: time.Month(month), pos: pos})
}

func pickMonth(matches []periodMatch) (periodMatch, bool) {
	if len(matches) == 0 {
		return periodMatch{}, false
	}
	type key struct {
		year  int
		month time.Month
	}
	counts := make(map[key]int, len(matches))
	first := make(map[key]int, len(matches))
	for _, m := range matches {
		k := key{m.year, m.month}
		counts[k]++
		if pos, ok := first[k]; !ok || m.pos < pos {
			first[k] = m.pos
		}
	}

	var best key
	bestCount, bestPos := 0, 0
	for k, n := range counts {
		if n > bestCount || (n == bestCount && first[k] < bestPos) {
			best, bestCount, bestPos = k, n, first[k]
		}
	}
	return periodMatch{year: best.year, month: best.month, pos: bestPos}, true
}
