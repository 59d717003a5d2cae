package corrector

import (
	"regexp"
	"strings"
)

// sexCanonical lists the two printed sex designations: L/M (laki-laki/male)
// and P/F (perempuan/female).
var sexCanonical = []string{"L/M", "P/F"}

var sexPairRe = regexp.MustCompile(`^([LP1I])[\s./\\|-]*([MF])$`)

// Sex canonicalizes the paired sex designation. Besides the structural match
// it falls back to a distance-1 fuzzy hit against the canonical pair and the
// field history.
func Sex() Corrector {
	return func(raw string, history []string) (string, bool) {
		norm := Normalize(raw)
		if norm == "" {
			return "", false
		}
		if m := sexPairRe.FindStringSubmatch(norm); m != nil {
			first := m[1]
			if first == "1" || first == "I" {
				first = "L"
			}
			if (first == "L" && m[2] == "M") || (first == "P" && m[2] == "F") {
				return first + "/" + m[2], true
			}
		}
		pool := sexCanonical
		if len(history) > 0 {
			pool = append(append([]string(nil), sexCanonical...), history...)
		}
		compact := strings.ReplaceAll(norm, " ", "")
		if best, dist := closest(compact, pool); dist >= 0 && dist <= 1 {
			return best, true
		}
		return "", false
	}
}

var bloodTypeRe = regexp.MustCompile(`^(AB|A|B|O|0)[+-]?$`)

// BloodType validates the enumerated blood group, accepting the zero-for-O
// misread.
func BloodType() Corrector {
	return func(raw string, _ []string) (string, bool) {
		compact := strings.ReplaceAll(Normalize(raw), " ", "")
		m := bloodTypeRe.FindStringSubmatch(compact)
		if m == nil {
			return "", false
		}
		group := m[1]
		if group == "0" {
			group = "O"
		}
		suffix := strings.TrimPrefix(compact, m[1])
		return group + suffix, true
	}
}

const nikLength = 16

// NIK validates the 16-digit national identity number, repairing the usual
// letter-for-digit confusions first.
func NIK() Corrector {
	return func(raw string, _ []string) (string, bool) {
		repaired := digitConfusions.Replace(Normalize(raw))
		var b strings.Builder
		for _, r := range repaired {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		digits := b.String()
		if len(digits) != nikLength {
			return "", false
		}
		return digits, true
	}
}

// PassportNumber validates the letter-prefixed passport number (one letter
// followed by seven digits).
func PassportNumber() Corrector {
	re := regexp.MustCompile(`([A-Z])\s*([0-9OIlSB]{7})`)
	return func(raw string, _ []string) (string, bool) {
		m := re.FindStringSubmatch(Normalize(raw))
		if m == nil {
			return "", false
		}
		return m[1] + digitConfusions.Replace(m[2]), true
	}
}
