package corrector

import "strings"

// AlphabetOptions tunes the character-class filters.
type AlphabetOptions struct {
	// Extra lists punctuation and space characters retained besides letters.
	Extra string
	// MaxLen truncates the filtered result; zero means no truncation.
	MaxLen int
}

// Alphabet uppercases, retains only letters plus the explicit extra
// whitelist, collapses runs of spaces and trims. Rejects if nothing remains.
func Alphabet(opts AlphabetOptions) Corrector {
	return charClassFilter(opts, false)
}

// Alphanumeric behaves like Alphabet but also retains digits.
func Alphanumeric(opts AlphabetOptions) Corrector {
	return charClassFilter(opts, true)
}

func charClassFilter(opts AlphabetOptions, digits bool) Corrector {
	return func(raw string, _ []string) (string, bool) {
		var b strings.Builder
		lastSpace := false
		for _, r := range Normalize(raw) {
			keep := (r >= 'A' && r <= 'Z') ||
				(digits && r >= '0' && r <= '9') ||
				strings.ContainsRune(opts.Extra, r)
			if !keep {
				continue
			}
			if r == ' ' {
				if lastSpace || b.Len() == 0 {
					continue
				}
				lastSpace = true
			} else {
				lastSpace = false
			}
			b.WriteRune(r)
		}
		out := strings.TrimSpace(b.String())
		if out == "" {
			return "", false
		}
		if opts.MaxLen > 0 && len(out) > opts.MaxLen {
			out = strings.TrimSpace(out[:opts.MaxLen])
		}
		return out, true
	}
}

// StartsWith strips a leading tag word if it fuzzy-matches the expected label
// token within the usual tolerance, returning the remainder. Rejects when the
// first token is not the label.
func StartsWith(label string) Corrector {
	want := Normalize(label)
	return func(raw string, _ []string) (string, bool) {
		norm := Normalize(raw)
		first, rest, _ := strings.Cut(norm, " ")
		if first == "" {
			return "", false
		}
		if Levenshtein(first, want) > Tolerance(len(want)) {
			return "", false
		}
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return "", false
		}
		return rest, true
	}
}

// ByHistory substitutes the closest previously confirmed value when its edit
// distance is within the length-proportional tolerance; otherwise the trimmed
// input passes through unchanged. A value confirmed once is more likely a
// repeat than a brand-new string.
func ByHistory() Corrector {
	return func(raw string, history []string) (string, bool) {
		norm := Normalize(raw)
		if norm == "" {
			return "", false
		}
		if len(history) == 0 {
			return norm, true
		}
		best, dist := closest(norm, history)
		if dist >= 0 && dist <= Tolerance(len(norm)) {
			return best, true
		}
		return norm, true
	}
}

// EnumOptions tunes Enum matching.
type EnumOptions struct {
	// IgnoreSpaces strips all spaces before comparing, for OCR output that
	// splits or merges tokens arbitrarily.
	IgnoreSpaces bool
	// Exact rejects any input that does not land on a candidate; the output
	// is then always a member of the candidate set.
	Exact bool
}

// Enum fuzzy-matches the normalized input against a fixed candidate list,
// unioned with the field's history unless Exact is set.
func Enum(candidates []string, opts EnumOptions) Corrector {
	canonical := make([]string, len(candidates))
	for i, c := range candidates {
		canonical[i] = Normalize(c)
	}
	return func(raw string, history []string) (string, bool) {
		norm := Normalize(raw)
		if norm == "" {
			return "", false
		}
		key := norm
		if opts.IgnoreSpaces {
			key = strings.ReplaceAll(norm, " ", "")
		}

		// Exact promises the output lands on a candidate, so history values
		// outside the set must not join the pool.
		pool := canonical
		if len(history) > 0 && !opts.Exact {
			pool = append(append([]string(nil), canonical...), history...)
		}

		best := ""
		bestDist := -1
		for _, cand := range pool {
			target := cand
			if opts.IgnoreSpaces {
				target = strings.ReplaceAll(cand, " ", "")
			}
			d := Levenshtein(key, target)
			if bestDist < 0 || d < bestDist {
				best, bestDist = cand, d
			}
		}
		if bestDist >= 0 && bestDist <= Tolerance(len(key)) {
			return best, true
		}
		if opts.Exact {
			return "", false
		}
		return norm, true
	}
}
