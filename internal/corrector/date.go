package corrector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Months is the canonical month abbreviation table used on the printed
// documents. The fuzzy budget of 2 edits absorbs the usual OCR confusions
// (FE8, JVN, 0KT).
var Months = []string{
	"JAN", "FEB", "MAR", "APR", "MEI", "JUN",
	"JUL", "AGU", "SEP", "OKT", "NOV", "DES",
}

// englishMonths maps the English abbreviations printed on passports onto the
// same table positions.
var englishMonths = []string{
	"JAN", "FEB", "MAR", "APR", "MAY", "JUN",
	"JUL", "AUG", "SEP", "OCT", "NOV", "DEC",
}

const (
	minYear = 1900
	maxYear = 2200
)

// Digit groups tolerate the letter shapes the engine habitually reads in
// place of digits.
var dateRe = regexp.MustCompile(`([0-9OIlSB]{1,2})[\s.\-/]*([A-Z0-9]{2,3})[\s.\-/]*([0-9OIlSB]{4})`)

var digitConfusions = strings.NewReplacer(
	"O", "0", "o", "0",
	"I", "1", "l", "1",
	"S", "5",
	"B", "8",
)

// letterConfusions is the inverse repair for alphabetic tokens.
var letterConfusions = strings.NewReplacer(
	"0", "O",
	"1", "I",
	"5", "S",
	"8", "B",
)

// digitsOf repairs confused glyphs and parses the group as an integer.
func digitsOf(group string) (int, bool) {
	repaired := digitConfusions.Replace(group)
	n, err := strconv.Atoi(repaired)
	if err != nil {
		return 0, false
	}
	return n, true
}

// monthIndex fuzzy-matches a 2-3 character token against both abbreviation
// tables with a budget of 2 edits.
func monthIndex(token string) (int, bool) {
	if strings.IndexFunc(token, func(r rune) bool { return r >= 'A' && r <= 'Z' }) < 0 {
		// An all-digit token is a number, not a month word.
		return -1, false
	}
	token = letterConfusions.Replace(token)
	bestIdx := -1
	bestDist := -1
	for i := range Months {
		for _, table := range [][]string{Months, englishMonths} {
			d := Levenshtein(token, table[i])
			if bestDist < 0 || d < bestDist {
				bestIdx, bestDist = i, d
			}
		}
	}
	if bestDist >= 0 && bestDist <= 2 {
		return bestIdx, true
	}
	return -1, false
}

// Date extracts a day / month-token / year triple and formats it as the
// canonical "DD MON YYYY". Day must lie in [1,31] and year in [1900,2200];
// anything else rejects.
func Date() Corrector {
	return func(raw string, _ []string) (string, bool) {
		norm := Normalize(raw)
		m := dateRe.FindStringSubmatch(norm)
		if m == nil {
			return "", false
		}
		day, ok := digitsOf(m[1])
		if !ok || day < 1 || day > 31 {
			return "", false
		}
		idx, ok := monthIndex(m[2])
		if !ok {
			return "", false
		}
		year, ok := digitsOf(m[3])
		if !ok || year < minYear || year > maxYear {
			return "", false
		}
		return fmt.Sprintf("%02d %s %d", day, Months[idx], year), true
	}
}

// NumericDate parses the all-digit DD-MM-YYYY layout printed on ID cards.
func NumericDate() Corrector {
	re := regexp.MustCompile(`([0-9OIlSB]{1,2})[\s.\-/]+([0-9OIlSB]{1,2})[\s.\-/]+([0-9OIlSB]{4})`)
	return func(raw string, _ []string) (string, bool) {
		m := re.FindStringSubmatch(Normalize(raw))
		if m == nil {
			return "", false
		}
		day, ok := digitsOf(m[1])
		if !ok || day < 1 || day > 31 {
			return "", false
		}
		month, ok := digitsOf(m[2])
		if !ok || month < 1 || month > 12 {
			return "", false
		}
		year, ok := digitsOf(m[3])
		if !ok || year < minYear || year > maxYear {
			return "", false
		}
		return fmt.Sprintf("%02d-%02d-%d", day, month, year), true
	}
}
