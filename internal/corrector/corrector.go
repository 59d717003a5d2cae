// Package corrector turns noisy OCR strings into validated canonical field
// values. Correctors are composable: each takes the raw text plus the field's
// confirmed-value history and either returns a canonical value or rejects.
package corrector

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Corrector maps raw recognized text to a canonical value. ok=false signals
// "cannot be validated, discard" and the field's value becomes null.
type Corrector func(raw string, history []string) (string, bool)

// stripDiacritics removes combining marks so accented OCR output compares
// equal to the plain-ASCII canonical forms.
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize uppercases, strips diacritics and trims surrounding whitespace.
func Normalize(raw string) string {
	out, _, err := transform.String(stripDiacritics, raw)
	if err != nil {
		out = raw
	}
	return strings.ToUpper(strings.TrimSpace(out))
}

// Merge pipes the output of each corrector into the next, stopping at the
// first rejection.
func Merge(correctors ...Corrector) Corrector {
	return func(raw string, history []string) (string, bool) {
		value := raw
		for _, c := range correctors {
			var ok bool
			value, ok = c(value, history)
			if !ok {
				return "", false
			}
		}
		return value, true
	}
}

// Any tries each corrector in turn and returns the first success.
func Any(correctors ...Corrector) Corrector {
	return func(raw string, history []string) (string, bool) {
		for _, c := range correctors {
			if value, ok := c(raw, history); ok {
				return value, true
			}
		}
		return "", false
	}
}

// Tolerance is the length-proportional edit-distance budget used by the fuzzy
// matchers: ceil(len/3).
func Tolerance(length int) int {
	return (length + 2) / 3
}

// Levenshtein computes the edit distance between two strings by rune.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// closest returns the candidate with the smallest edit distance to s.
func closest(s string, candidates []string) (string, int) {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d := Levenshtein(s, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
