package corrector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "JAKARTA", Normalize("  jakarta "))
	assert.Equal(t, "CORDOBA", Normalize("Córdoba"))
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"ABC", "", 3},
		{"", "ABC", 3},
		{"KAWIN", "KAWIN", 0},
		{"KAWIN", "KAVIN", 1},
		{"FEB", "FE8", 1},
		{"JAKARTA", "JAKRATA", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestTolerance(t *testing.T) {
	assert.Equal(t, 1, Tolerance(3))
	assert.Equal(t, 2, Tolerance(4))
	assert.Equal(t, 2, Tolerance(6))
	assert.Equal(t, 3, Tolerance(7))
}

func TestAlphabetFilter(t *testing.T) {
	c := Alphabet(AlphabetOptions{Extra: " "})
	got, ok := c("  s0eharto! ", nil)
	require.True(t, ok)
	assert.Equal(t, "SEHARTO", got)
}

func TestAlphabetRejectsEmptyResult(t *testing.T) {
	c := Alphabet(AlphabetOptions{Extra: " "})
	_, ok := c("12345", nil)
	assert.False(t, ok)
}

func TestAlphabetMaxLen(t *testing.T) {
	c := Alphabet(AlphabetOptions{Extra: " ", MaxLen: 5})
	got, ok := c("ABCDEFGH", nil)
	require.True(t, ok)
	assert.Equal(t, "ABCDE", got)
}

func TestAlphabetCollapsesSpaces(t *testing.T) {
	c := Alphabet(AlphabetOptions{Extra: " "})
	got, ok := c("JAWA   BARAT", nil)
	require.True(t, ok)
	assert.Equal(t, "JAWA BARAT", got)
}

func TestAlphanumericKeepsDigits(t *testing.T) {
	c := Alphanumeric(AlphabetOptions{Extra: " /"})
	got, ok := c("RT 003 / RW 004", nil)
	require.True(t, ok)
	assert.Equal(t, "RT 003 / RW 004", got)
}

func TestAlphabetIdempotent(t *testing.T) {
	c := Alphabet(AlphabetOptions{Extra: " .-"})
	inputs := []string{"Jl. Merdeka Barat No.2", "  a  b  c ", "SOEKARNO-HATTA"}
	for _, in := range inputs {
		once, ok := c(in, nil)
		require.True(t, ok)
		twice, ok := c(once, nil)
		require.True(t, ok)
		assert.Equal(t, once, twice, "correct(correct(x)) == correct(x) for %q", in)
	}
}

func TestStartsWithStripsLabel(t *testing.T) {
	c := StartsWith("PROVINSI")
	got, ok := c("PROVINSI JAWA TENGAH", nil)
	require.True(t, ok)
	assert.Equal(t, "JAWA TENGAH", got)
}

func TestStartsWithFuzzyLabel(t *testing.T) {
	c := StartsWith("KABUPATEN")
	got, ok := c("KABUPATFN BANDUNG", nil)
	require.True(t, ok)
	assert.Equal(t, "BANDUNG", got)
}

func TestStartsWithRejectsWrongLabel(t *testing.T) {
	c := StartsWith("PROVINSI")
	_, ok := c("KECAMATAN CICENDO", nil)
	assert.False(t, ok)
}

func TestByHistoryFixedPointForExactRepeat(t *testing.T) {
	c := ByHistory()
	history := []string{"SURABAYA", "BANDUNG"}
	got, ok := c("SURABAYA", history)
	require.True(t, ok)
	assert.Equal(t, "SURABAYA", got)
}

func TestByHistorySubstitutesCloseValue(t *testing.T) {
	c := ByHistory()
	got, ok := c("SURA8AYA", []string{"SURABAYA"})
	require.True(t, ok)
	assert.Equal(t, "SURABAYA", got)
}

func TestByHistoryPassesThroughDistantValue(t *testing.T) {
	c := ByHistory()
	got, ok := c("YOGYAKARTA", []string{"MEDAN"})
	require.True(t, ok)
	assert.Equal(t, "YOGYAKARTA", got)
}

func TestEnumExactClosedWorld(t *testing.T) {
	candidates := []string{"BELUM KAWIN", "KAWIN", "CERAI HIDUP", "CERAI MATI"}
	c := Enum(candidates, EnumOptions{IgnoreSpaces: true, Exact: true})

	inputs := []string{"BELUM  KAWIN", "KAW1N", "kawin", "CERAI H1DUP", "garbage input", "XYZQWERTY"}
	for _, in := range inputs {
		got, ok := c(in, nil)
		if !ok {
			continue
		}
		assert.Contains(t, candidates, got, "exact enum must stay inside the candidate set (input %q)", in)
	}
}

func TestEnumExactIgnoresHistoryOutsideCandidates(t *testing.T) {
	candidates := []string{"LAKI-LAKI", "PEREMPUAN"}
	c := Enum(candidates, EnumOptions{IgnoreSpaces: true, Exact: true})

	// A confirmed value from another field must not leak into the output.
	got, ok := c("JANDA", []string{"JANDA"})
	require.False(t, ok, "got %q", got)

	got, ok = c("PEREMPUAM", []string{"JANDA"})
	require.True(t, ok)
	assert.Equal(t, "PEREMPUAN", got)
}

func TestEnumMaritalStatusDoubleSpace(t *testing.T) {
	c := Enum([]string{"BELUM KAWIN", "KAWIN", "CERAI HIDUP", "CERAI MATI"},
		EnumOptions{IgnoreSpaces: true, Exact: true})
	got, ok := c("BELUM  KAWIN", nil)
	require.True(t, ok)
	assert.Equal(t, "BELUM KAWIN", got)
}

func TestEnumNonExactPassthrough(t *testing.T) {
	c := Enum([]string{"ISLAM", "KRISTEN", "KATOLIK", "HINDU", "BUDDHA", "KONGHUCU"},
		EnumOptions{})
	got, ok := c("SOMETHING ELSE ENTIRELY", nil)
	require.True(t, ok)
	assert.Equal(t, "SOMETHING ELSE ENTIRELY", got)
}

func TestEnumUsesHistory(t *testing.T) {
	c := Enum([]string{"WNI"}, EnumOptions{})
	got, ok := c("WNA", []string{"WNA"})
	require.True(t, ok)
	assert.Equal(t, "WNA", got)
}

func TestMergeStopsAtFirstReject(t *testing.T) {
	calls := 0
	reject := Corrector(func(string, []string) (string, bool) { calls++; return "", false })
	after := Corrector(func(string, []string) (string, bool) { t.Fatal("must not run"); return "", false })
	_, ok := Merge(reject, after)("X", nil)
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestMergePipesValues(t *testing.T) {
	c := Merge(
		Alphabet(AlphabetOptions{Extra: " "}),
		StartsWith("PROVINSI"),
		ByHistory(),
	)
	got, ok := c("provinsi sumatera utara", []string{"SUMATERA UTARA"})
	require.True(t, ok)
	assert.Equal(t, "SUMATERA UTARA", got)
}

func TestAnyReturnsFirstSuccess(t *testing.T) {
	c := Any(Date(), NumericDate())
	got, ok := c("17-08-1995", nil)
	require.True(t, ok)
	assert.Equal(t, "17-08-1995", got)
}

func TestAnyRejectsWhenAllFail(t *testing.T) {
	_, ok := Any(Date(), NIK())("no structure here", nil)
	assert.False(t, ok)
}
