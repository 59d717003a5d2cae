package docfield

import (
	"github.com/dokuscan/dokuscan/internal/corrector"
	"github.com/dokuscan/dokuscan/internal/utils"
)

// Passport returns the field registry for the Indonesian passport biodata
// page. Boxes are relative to the canonical view produced by the locator,
// which spans from the header line down to the machine-readable zone.
func Passport() *Registry {
	name := corrector.Merge(
		corrector.Alphabet(corrector.AlphabetOptions{Extra: " .'-"}),
		corrector.ByHistory(),
	)
	place := corrector.Merge(
		corrector.Alphabet(corrector.AlphabetOptions{Extra: " .-"}),
		corrector.ByHistory(),
	)
	targets := []Target{
		{
			Key:       "passport_number",
			Box:       utils.RelBox{X0: 0.68, Y0: 0.04, X1: 0.99, Y1: 0.17},
			LineIndex: NoLine,
			Mode:      CorrectCustom,
			Correct:   corrector.PassportNumber(),
		},
		{
			Key:       "full_name",
			Box:       utils.RelBox{X0: 0.20, Y0: 0.17, X1: 0.68, Y1: 0.30},
			LineIndex: NoLine,
			History:   true,
			Mode:      CorrectCustom,
			Correct:   name,
		},
		{
			Key:       "nationality",
			Box:       utils.RelBox{X0: 0.20, Y0: 0.30, X1: 0.55, Y1: 0.41},
			LineIndex: NoLine,
			Mode:      CorrectCustom,
			Correct: corrector.Enum(
				[]string{"INDONESIA", "WNI"},
				corrector.EnumOptions{IgnoreSpaces: true},
			),
		},
		{
			Key:       "sex",
			Box:       utils.RelBox{X0: 0.70, Y0: 0.30, X1: 0.88, Y1: 0.41},
			LineIndex: NoLine,
			History:   true,
			Mode:      CorrectCustom,
			Correct:   corrector.Sex(),
		},
		{
			// The layout repeats sex next to the birth fields on newer
			// booklets; whichever read is more confident wins.
			Key:       "sex_alt",
			Box:       utils.RelBox{X0: 0.42, Y0: 0.41, X1: 0.55, Y1: 0.52},
			LineIndex: NoLine,
			History:   true,
			Mode:      CorrectCustom,
			Correct:   corrector.Sex(),
			AltOf:     "sex",
		},
		{
			Key:       "birth_date",
			Box:       utils.RelBox{X0: 0.20, Y0: 0.41, X1: 0.42, Y1: 0.52},
			LineIndex: NoLine,
			IsDate:    true,
			Mode:      CorrectCustom,
			Correct:   corrector.Date(),
		},
		{
			Key:       "birth_place",
			Box:       utils.RelBox{X0: 0.20, Y0: 0.52, X1: 0.55, Y1: 0.63},
			LineIndex: NoLine,
			History:   true,
			Mode:      CorrectCustom,
			Correct:   place,
		},
		{
			Key:       "issuing_office",
			Box:       utils.RelBox{X0: 0.58, Y0: 0.52, X1: 0.96, Y1: 0.63},
			LineIndex: NoLine,
			History:   true,
			Mode:      CorrectCustom,
			Correct:   place,
		},
		{
			Key:       "issue_date",
			Box:       utils.RelBox{X0: 0.20, Y0: 0.63, X1: 0.55, Y1: 0.74},
			LineIndex: NoLine,
			IsDate:    true,
			Mode:      CorrectCustom,
			Correct:   corrector.Date(),
		},
		{
			Key:       "expiry_date",
			Box:       utils.RelBox{X0: 0.58, Y0: 0.63, X1: 0.96, Y1: 0.74},
			LineIndex: NoLine,
			IsDate:    true,
			Mode:      CorrectCustom,
			Correct:   corrector.Date(),
		},
		{
			Key:       "registration_number",
			Box:       utils.RelBox{X0: 0.20, Y0: 0.74, X1: 0.55, Y1: 0.86},
			LineIndex: NoLine,
			Mode:      CorrectCustom,
			Correct:   corrector.Alphanumeric(corrector.AlphabetOptions{MaxLen: 24}),
		},
	}
	return newRegistry(DocPassport, 1400, 700, targets)
}
