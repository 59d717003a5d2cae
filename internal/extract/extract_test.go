package extract

import (
	"context"
	"encoding/json"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokuscan/dokuscan/internal/docfield"
	"github.com/dokuscan/dokuscan/internal/filter"
	"github.com/dokuscan/dokuscan/internal/locate"
	"github.com/dokuscan/dokuscan/internal/ocr"
	"github.com/dokuscan/dokuscan/internal/raster"
)

// fakeRecognizer scripts recognition results per variant and rectangle.
type fakeRecognizer struct {
	mu     sync.Mutex
	handle func(variant string, opts ocr.JobOptions) *ocr.Result
}

type variantRunner struct {
	variant string
	rec     *fakeRecognizer
}

func (r *variantRunner) AddJob(_ context.Context, _ image.Image, opts ocr.JobOptions) (*ocr.Result, error) {
	r.rec.mu.Lock()
	defer r.rec.mu.Unlock()
	if r.rec.handle == nil {
		return &ocr.Result{}, nil
	}
	return r.rec.handle(r.variant, opts), nil
}

func (f *fakeRecognizer) Get(variant string) (ocr.JobRunner, error) {
	return &variantRunner{variant: variant, rec: f}, nil
}

func (f *fakeRecognizer) PoolSize(string) int { return 2 }

func singleLine(text string, confidence float64) *ocr.Result {
	return &ocr.Result{Lines: []ocr.Line{{Text: text, Confidence: confidence}}}
}

func newWorker(t *testing.T) *filter.Worker {
	t.Helper()
	w := filter.NewWorker()
	t.Cleanup(w.Close)
	return w
}

func TestPassportExtraction(t *testing.T) {
	reg := docfield.Passport()
	surf := raster.New(reg.WorkingWidth, 1000)
	w, h := reg.WorkingWidth, 1000

	rectOf := func(key string) string {
		target, ok := reg.Lookup(key)
		require.True(t, ok)
		return target.Box.Abs(w, h).String()
	}
	birthDate, _ := reg.Lookup("birth_date")
	splits := dateSplits(birthDate.Box, w, h)

	byRect := map[string]*ocr.Result{
		rectOf("full_name"):   singleLine("BUDI SANTOSO", 88),
		rectOf("nationality"): singleLine("INDONES1A", 80),
		// Scenario: duplicate sex candidates at confidences 61 and 74.
		rectOf("sex"):         singleLine("L M", 61),
		rectOf("sex_alt"):     singleLine("P / F", 74),
		rectOf("birth_date"):  singleLine("15 FEB 2OZ4", 70),
		splits[0].String():    singleLine("15", 90),
		splits[1].String():    singleLine("FEB", 85),
		splits[2].String():    singleLine("2024", 95),
		rectOf("birth_place"): singleLine("JAKARTA", 83),
	}
	rec := &fakeRecognizer{handle: func(_ string, opts ocr.JobOptions) *ocr.Result {
		if opts.Rect == nil {
			return &ocr.Result{}
		}
		if res, ok := byRect[opts.Rect.String()]; ok {
			return res
		}
		return &ocr.Result{}
	}}

	anchors := &locate.Anchors{BottomText: "P IDN A 1234567 8IDN9408157M"}
	ex := New(reg, rec, newWorker(t), nil, Config{}, nil)
	payload, err := ex.Run(context.Background(), surf, anchors)
	require.NoError(t, err)

	assert.Equal(t, "BUDI SANTOSO", payload["full_name"].Text)
	assert.Equal(t, "INDONESIA", payload["nationality"].Text)

	// The higher-confidence duplicate wins and its key is transient.
	require.True(t, payload["sex"].Valid)
	assert.Equal(t, "P/F", payload["sex"].Text)
	assert.InDelta(t, 74, payload["sex"].Confidence, 1e-9)
	_, present := payload["sex_alt"]
	assert.False(t, present)

	// The triple-split date read out-scores the garbled single pass.
	require.True(t, payload["birth_date"].Valid)
	assert.Equal(t, "15 FEB 2024", payload["birth_date"].Text)
	assert.InDelta(t, 90, payload["birth_date"].Confidence, 1e-9)

	// Unreadable passport number is salvaged from the bottom anchor text.
	require.True(t, payload["passport_number"].Valid)
	assert.Equal(t, "A1234567", payload["passport_number"].Text)

	// Unread regions stay present as nulls.
	value, present := payload["registration_number"]
	require.True(t, present)
	assert.False(t, value.Valid)
}

// delayedRecognizer answers from a rect-keyed script, stalling the configured
// region so its read finishes after every other in-flight job.
type delayedRecognizer struct {
	byRect map[string]*ocr.Result
	slow   string
}

func (d *delayedRecognizer) Get(string) (ocr.JobRunner, error) { return d, nil }

func (d *delayedRecognizer) PoolSize(string) int { return 2 }

func (d *delayedRecognizer) AddJob(_ context.Context, _ image.Image, opts ocr.JobOptions) (*ocr.Result, error) {
	if opts.Rect == nil {
		return &ocr.Result{}, nil
	}
	key := opts.Rect.String()
	if key == d.slow {
		time.Sleep(100 * time.Millisecond)
	}
	if res, ok := d.byRect[key]; ok {
		return res, nil
	}
	return &ocr.Result{}, nil
}

func TestPassportDateTripleWinsDespiteSlowPrimary(t *testing.T) {
	reg := docfield.Passport()
	surf := raster.New(reg.WorkingWidth, 1000)
	birthDate, _ := reg.Lookup("birth_date")
	primaryRect := birthDate.Box.Abs(reg.WorkingWidth, 1000).String()
	splits := dateSplits(birthDate.Box, reg.WorkingWidth, 1000)

	rec := &delayedRecognizer{
		slow: primaryRect,
		byRect: map[string]*ocr.Result{
			primaryRect:        singleLine("15 FEB 1999", 70),
			splits[0].String(): singleLine("15", 90),
			splits[1].String(): singleLine("FEB", 85),
			splits[2].String(): singleLine("2024", 95),
		},
	}

	ex := New(reg, rec, newWorker(t), nil, Config{}, nil)
	payload, err := ex.Run(context.Background(), surf, &locate.Anchors{})
	require.NoError(t, err)

	// The low-confidence single pass lands last but must not displace the
	// higher-confidence triple.
	require.True(t, payload["birth_date"].Valid)
	assert.Equal(t, "15 FEB 2024", payload["birth_date"].Text)
	assert.InDelta(t, 90, payload["birth_date"].Confidence, 1e-9)
}

func TestPassportNumberSalvageFromBackupStrip(t *testing.T) {
	reg := docfield.Passport()
	surf := raster.New(reg.WorkingWidth, 1000)

	var stripReads int
	rec := &fakeRecognizer{handle: func(variant string, opts ocr.JobOptions) *ocr.Result {
		// Every region read fails; only the full-frame digit pass over the
		// backup strip produces the machine-readable line.
		if variant == ocr.VariantNumber && opts.Rect == nil {
			stripReads++
			return singleLine("P IDN A 1234567 8IDN9408157M", 80)
		}
		return &ocr.Result{}
	}}

	anchors := &locate.Anchors{
		ViewRect: image.Rect(100, 120, 1100, 1070),
		Backup:   raster.New(1200, 1600),
		BottomY:  900,
	}

	ex := New(reg, rec, newWorker(t), nil, Config{}, nil)
	payload, err := ex.Run(context.Background(), surf, anchors)
	require.NoError(t, err)

	assert.Equal(t, 1, stripReads)
	require.True(t, payload["passport_number"].Valid)
	assert.Equal(t, "A1234567", payload["passport_number"].Text)
}

func TestPassportNumberSalvageSkipsBackupWhenAnchorTextPresent(t *testing.T) {
	reg := docfield.Passport()
	surf := raster.New(reg.WorkingWidth, 1000)

	var stripReads int
	rec := &fakeRecognizer{handle: func(variant string, opts ocr.JobOptions) *ocr.Result {
		if variant == ocr.VariantNumber && opts.Rect == nil {
			stripReads++
		}
		return &ocr.Result{}
	}}

	anchors := &locate.Anchors{
		ViewRect:   image.Rect(100, 120, 1100, 1070),
		Backup:     raster.New(1200, 1600),
		BottomY:    900,
		BottomText: "P IDN B 7654321 0IDN9408157M",
	}

	ex := New(reg, rec, newWorker(t), nil, Config{}, nil)
	payload, err := ex.Run(context.Background(), surf, anchors)
	require.NoError(t, err)

	assert.Zero(t, stripReads)
	require.True(t, payload["passport_number"].Valid)
	assert.Equal(t, "B7654321", payload["passport_number"].Text)
}

func TestPassportDateTripleLosesOnTie(t *testing.T) {
	reg := docfield.Passport()
	surf := raster.New(reg.WorkingWidth, 1000)
	birthDate, _ := reg.Lookup("birth_date")
	splits := dateSplits(birthDate.Box, reg.WorkingWidth, 1000)

	byRect := map[string]*ocr.Result{
		birthDate.Box.Abs(reg.WorkingWidth, 1000).String(): singleLine("15 FEB 2024", 90),
		splits[0].String(): singleLine("15", 90),
		splits[1].String(): singleLine("FEB", 90),
		splits[2].String(): singleLine("2025", 90),
	}
	rec := &fakeRecognizer{handle: func(_ string, opts ocr.JobOptions) *ocr.Result {
		if opts.Rect != nil {
			if res, ok := byRect[opts.Rect.String()]; ok {
				return res
			}
		}
		return &ocr.Result{}
	}}

	ex := New(reg, rec, newWorker(t), nil, Config{}, nil)
	payload, err := ex.Run(context.Background(), surf, &locate.Anchors{})
	require.NoError(t, err)

	// Equal mean confidence keeps the single-pass reading.
	assert.Equal(t, "15 FEB 2024", payload["birth_date"].Text)
}

func TestPassportDebugOverlay(t *testing.T) {
	reg := docfield.Passport()
	surf := raster.New(reg.WorkingWidth, 1000)

	var stages []string
	cfg := Config{MarkBoxes: true, Debug: func(stage string, _ image.Image) {
		stages = append(stages, stage)
	}}
	ex := New(reg, &fakeRecognizer{}, newWorker(t), nil, cfg, nil)
	_, err := ex.Run(context.Background(), surf, &locate.Anchors{})
	require.NoError(t, err)
	assert.Equal(t, []string{"passport_fields"}, stages)
}

var ktpRows = []string{
	"PROVINSI DKI JAKARTA",
	"KOTA JAKARTA BARAT",
	"NIK : 3171234567890123",
	"NAMA : BUDI SANTOSO",
	"TEMPAT/TGL LAHIR : JAKARTA, 17-08-1995",
	"JENIS KELAMIN : LAKI-LAKI GOL. DARAH : O",
	"ALAMAT : JL. MERDEKA NO. 17",
	"RT/RW : 007/008",
	"KEL/DESA : PETOJO",
	"KECAMATAN : GAMBIR",
	"AGAMA : ISLAM",
	"STATUS PERKAWINAN : BELUM  KAWIN",
	"PEKERJAAN : KARYAWAN SWASTA",
	"KEWARGANEGARAAN : WNI",
	"BERLAKU HINGGA : 22-10-2027",
}

func ktpResult(rows []string, confidence float64) *ocr.Result {
	lines := make([]ocr.Line, len(rows))
	for i, text := range rows {
		lines[i] = ocr.Line{
			Text:       text,
			Confidence: confidence,
			Box:        image.Rect(0, i*40, 900, i*40+36),
		}
	}
	return &ocr.Result{Lines: lines}
}

func TestKTPExtraction(t *testing.T) {
	reg := docfield.KTP()
	surf := raster.New(reg.WorkingWidth, 760)

	nikTarget, _ := reg.Lookup("nik")
	nikBox := image.Rect(0, nikTarget.LineIndex*40, 900, nikTarget.LineIndex*40+36)

	rec := &fakeRecognizer{handle: func(variant string, opts ocr.JobOptions) *ocr.Result {
		if opts.Rect == nil {
			return ktpResult(ktpRows, 70)
		}
		if variant == ocr.VariantNumber && opts.Rect.String() == nikBox.String() {
			return singleLine("3171234567890123", 92)
		}
		return &ocr.Result{}
	}}

	ex := New(reg, rec, newWorker(t), nil, Config{}, nil)
	payload, err := ex.Run(context.Background(), surf, nil)
	require.NoError(t, err)

	want := map[string]string{
		"province":       "DKI JAKARTA",
		"city":           "JAKARTA BARAT",
		"nik":            "3171234567890123",
		"name":           "BUDI SANTOSO",
		"birth_place":    "JAKARTA",
		"birth_date":     "17-08-1995",
		"sex":            "LAKI-LAKI",
		"blood_type":     "O",
		"address":        "JL. MERDEKA NO. 17",
		"rt_rw":          "007/008",
		"village":        "PETOJO",
		"district":       "GAMBIR",
		"religion":       "ISLAM",
		"marital_status": "BELUM KAWIN",
		"occupation":     "KARYAWAN SWASTA",
		"nationality":    "WNI",
		"valid_until":    "22-10-2027",
	}
	for key, text := range want {
		value, present := payload[key]
		require.True(t, present, "field %s missing", key)
		require.True(t, value.Valid, "field %s invalid", key)
		assert.Equal(t, text, value.Text, "field %s", key)
	}

	// The digits-only re-read out-scored the full-view row.
	assert.InDelta(t, 92, payload["nik"].Confidence, 1e-9)
}

func TestKTPShortReadLeavesTrailingFieldsNull(t *testing.T) {
	reg := docfield.KTP()
	surf := raster.New(reg.WorkingWidth, 760)

	rec := &fakeRecognizer{handle: func(_ string, opts ocr.JobOptions) *ocr.Result {
		if opts.Rect == nil {
			return ktpResult(ktpRows[:3], 70)
		}
		return &ocr.Result{}
	}}

	ex := New(reg, rec, newWorker(t), nil, Config{}, nil)
	payload, err := ex.Run(context.Background(), surf, nil)
	require.NoError(t, err)

	assert.True(t, payload["province"].Valid)
	value, present := payload["religion"]
	require.True(t, present)
	assert.False(t, value.Valid)
}

func TestUpdateHistoryOnlyTracksEnabledFields(t *testing.T) {
	reg := docfield.KTP()
	ex := New(reg, &fakeRecognizer{}, newWorker(t), nil, Config{}, nil)

	snap := ex.UpdateHistory(map[string]string{
		"province": "DKI JAKARTA",
		"nik":      "3171234567890123",
		"religion": "ISLAM",
		"unknown":  "VALUE",
	})
	assert.Equal(t, []string{"DKI JAKARTA"}, snap["province"])
	assert.Empty(t, snap["nik"])
	assert.Empty(t, snap["religion"])
	assert.Empty(t, snap["unknown"])
}

func TestDuplicateCandidateUsesPrimaryHistory(t *testing.T) {
	reg := docfield.Passport()
	history := NewHistory(4)
	history.Add("sex", "L/M")
	ex := New(reg, &fakeRecognizer{}, newWorker(t), history, Config{}, nil)

	alt, ok := reg.Lookup("sex_alt")
	require.True(t, ok)
	got, accepted := ex.correct(alt, "L M")
	require.True(t, accepted)
	assert.Equal(t, "L/M", got)
}

func TestCandidateBetter(t *testing.T) {
	missing := candidate{}
	low := candidate{raw: "A", confidence: 61, ok: true}
	high := candidate{raw: "B", confidence: 74, ok: true}

	assert.True(t, high.better(low))
	assert.True(t, high.better(missing))
	assert.False(t, missing.better(low))
	assert.False(t, low.better(high))
	// Never replace on a tie.
	assert.False(t, low.better(candidate{raw: "C", confidence: 61, ok: true}))
}

func TestPayloadJSON(t *testing.T) {
	p := Payload{
		"name": {Text: "BUDI", Valid: true, Confidence: 80},
		"nik":  {},
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"BUDI","nik":null}`, string(raw))

	var back Payload
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back["name"].Valid)
	assert.False(t, back["nik"].Valid)
	assert.Equal(t, map[string]string{"name": "BUDI"}, p.Confirmed())
}
