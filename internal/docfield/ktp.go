package docfield

import (
	"strings"

	"github.com/dokuscan/dokuscan/internal/corrector"
	"github.com/dokuscan/dokuscan/internal/ocr"
)

// Religion and marital status are closed vocabularies on the card, so exact
// enum matching is safe: an unreadable value is better reported missing than
// guessed.
var (
	ktpReligions = []string{
		"ISLAM", "KRISTEN", "KATOLIK", "HINDU", "BUDHA", "KHONGHUCU",
	}
	ktpMaritalStatuses = []string{
		"BELUM KAWIN", "KAWIN", "CERAI HIDUP", "CERAI MATI",
	}
	ktpNationalities = []string{"WNI", "WNA"}
)

// KTP returns the field registry for the national ID card. KTP fields are
// addressed by line index within a single full-view recognition pass: the
// card prints one field per row in a fixed order, and row order survives OCR
// far more reliably than absolute positions do across re-issues.
func KTP() *Registry {
	targets := []Target{
		{
			Key:       "province",
			LineIndex: 0,
			History:   true,
			Mode:      CorrectCustom,
			Correct: corrector.Merge(
				corrector.Alphabet(corrector.AlphabetOptions{Extra: " "}),
				corrector.StartsWith("PROVINSI"),
				corrector.ByHistory(),
			),
		},
		{
			Key:       "city",
			LineIndex: 1,
			History:   true,
			Mode:      CorrectCustom,
			Correct: corrector.Merge(
				corrector.Alphabet(corrector.AlphabetOptions{Extra: " "}),
				corrector.Any(
					corrector.StartsWith("KABUPATEN"),
					corrector.StartsWith("KOTA"),
					corrector.StartsWith("JAKARTA"),
				),
				corrector.ByHistory(),
			),
		},
		{
			Key:       "nik",
			LineIndex: 2,
			Variant:   ocr.VariantNumber,
			Mode:      CorrectCustom,
			Correct:   corrector.NIK(),
		},
		{
			Key:       "name",
			LineIndex: 3,
			History:   true,
			Mode:      CorrectCustom,
			Correct: corrector.Merge(
				corrector.Alphabet(corrector.AlphabetOptions{Extra: " .'-"}),
				corrector.ByHistory(),
			),
		},
		{
			Key:       "birth_place",
			LineIndex: 4,
			History:   true,
			Mode:      CorrectCustom,
			Correct: corrector.Merge(
				beforeComma(),
				corrector.Alphabet(corrector.AlphabetOptions{Extra: " .-"}),
				corrector.ByHistory(),
			),
		},
		{
			Key:       "birth_date",
			LineIndex: 4,
			Mode:      CorrectCustom,
			Correct:   corrector.NumericDate(),
		},
		{
			// The sex row also carries the blood group ("LAKI-LAKI
			// Gol. Darah : O"), so both targets cut around the label
			// token first.
			Key:       "sex",
			LineIndex: 5,
			History:   true,
			Mode:      CorrectCustom,
			Correct: corrector.Merge(
				beforeToken("GOL"),
				corrector.Enum(
					[]string{"LAKI-LAKI", "PEREMPUAN"},
					corrector.EnumOptions{IgnoreSpaces: true, Exact: true},
				),
			),
		},
		{
			Key:       "blood_type",
			LineIndex: 5,
			Mode:      CorrectCustom,
			Correct: corrector.Merge(
				afterToken("DARAH"),
				corrector.BloodType(),
			),
		},
		{
			Key:       "address",
			LineIndex: 6,
			History:   true,
			Mode:      CorrectCustom,
			Correct:   corrector.Alphanumeric(corrector.AlphabetOptions{Extra: " ./-"}),
		},
		{
			Key:       "rt_rw",
			LineIndex: 7,
			Variant:   ocr.VariantNumber,
			Mode:      CorrectCustom,
			Correct:   corrector.Alphanumeric(corrector.AlphabetOptions{Extra: "/", MaxLen: 8}),
		},
		{
			Key:       "village",
			LineIndex: 8,
			History:   true,
			Mode:      CorrectCustom,
			Correct: corrector.Merge(
				corrector.Alphabet(corrector.AlphabetOptions{Extra: " ."}),
				corrector.ByHistory(),
			),
		},
		{
			Key:       "district",
			LineIndex: 9,
			History:   true,
			Mode:      CorrectCustom,
			Correct: corrector.Merge(
				corrector.Alphabet(corrector.AlphabetOptions{Extra: " "}),
				corrector.ByHistory(),
			),
		},
		{
			Key:       "religion",
			LineIndex: 10,
			Mode:      CorrectCustom,
			Correct:   corrector.Enum(ktpReligions, corrector.EnumOptions{Exact: true}),
		},
		{
			Key:       "marital_status",
			LineIndex: 11,
			Mode:      CorrectCustom,
			Correct: corrector.Enum(ktpMaritalStatuses, corrector.EnumOptions{
				IgnoreSpaces: true,
				Exact:        true,
			}),
		},
		{
			Key:       "occupation",
			LineIndex: 12,
			History:   true,
			Mode:      CorrectCustom,
			Correct: corrector.Merge(
				corrector.Alphabet(corrector.AlphabetOptions{Extra: " /"}),
				corrector.ByHistory(),
			),
		},
		{
			Key:       "nationality",
			LineIndex: 13,
			Mode:      CorrectCustom,
			Correct:   corrector.Enum(ktpNationalities, corrector.EnumOptions{IgnoreSpaces: true}),
		},
		{
			Key:       "valid_until",
			LineIndex: 14,
			Mode:      CorrectCustom,
			Correct: corrector.Any(
				corrector.NumericDate(),
				corrector.Enum(
					[]string{"SEUMUR HIDUP"},
					corrector.EnumOptions{IgnoreSpaces: true, Exact: true},
				),
			),
		},
	}
	return newRegistry(DocIDCard, 1200, 600, targets)
}

// beforeComma keeps only the text before the first comma, for the combined
// birthplace/birthdate row.
func beforeComma() corrector.Corrector {
	return func(raw string, _ []string) (string, bool) {
		head, _, _ := strings.Cut(raw, ",")
		head = strings.TrimSpace(head)
		if head == "" {
			return "", false
		}
		return head, true
	}
}

// tokenIndex finds the word fuzzy-matching token, with a one-edit budget for
// misread glyphs.
func tokenIndex(words []string, token string) int {
	for i, w := range words {
		if corrector.Levenshtein(strings.Trim(w, ".:"), token) <= 1 {
			return i
		}
	}
	return -1
}

// beforeToken keeps the words preceding the first fuzzy occurrence of token.
func beforeToken(token string) corrector.Corrector {
	return func(raw string, _ []string) (string, bool) {
		words := strings.Fields(corrector.Normalize(raw))
		if i := tokenIndex(words, token); i >= 0 {
			words = words[:i]
		}
		if len(words) == 0 {
			return "", false
		}
		return strings.Join(words, " "), true
	}
}

// afterToken keeps the words following the first fuzzy occurrence of token,
// dropping a leading colon. Rejects when the token is absent, since the rest
// of the row belongs to a different field.
func afterToken(token string) corrector.Corrector {
	return func(raw string, _ []string) (string, bool) {
		words := strings.Fields(corrector.Normalize(raw))
		i := tokenIndex(words, token)
		if i < 0 || i+1 >= len(words) {
			return "", false
		}
		rest := strings.TrimLeft(strings.Join(words[i+1:], " "), ": ")
		if rest == "" {
			return "", false
		}
		return rest, true
	}
}
