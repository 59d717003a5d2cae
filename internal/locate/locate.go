// Package locate finds the document inside an arbitrary photo and reduces the
// raster surface to a canonical upright view. Each document type walks the
// same stages: preprocess, find the top anchor text, crop and de-rotate to a
// predicted view rectangle, find the bottom anchor, crop again. The geometry
// of both anchors is returned explicitly so later salvage reads can re-crop
// from the pre-crop backup.
package locate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"unicode"

	"github.com/dokuscan/dokuscan/internal/corrector"
	"github.com/dokuscan/dokuscan/internal/filter"
	"github.com/dokuscan/dokuscan/internal/ocr"
	"github.com/dokuscan/dokuscan/internal/raster"
	"github.com/dokuscan/dokuscan/internal/utils"
)

// ErrDocumentNotFound indicates an anchor search failed. Fatal for the
// current input; resubmitting the same image would fail the same way.
var ErrDocumentNotFound = errors.New("locate: document not found")

// Recognizer is the slice of the scheduler the locators need.
type Recognizer interface {
	Get(variant string) (ocr.JobRunner, error)
	PoolSize(variant string) int
}

// DebugSink receives intermediate surfaces after each destructive mutation.
type DebugSink func(stage string, img image.Image)

// Config carries the locator calibration. The numeric values are empirical,
// tuned against sample scans; treat them as calibration parameters rather
// than guarantees.
type Config struct {
	// SearchWidth is the width anchor-search clones are scaled to. Smaller
	// is faster, larger finds smaller print.
	SearchWidth int
	// Sections is the number of overlapping horizontal strips the top
	// anchor search is partitioned into.
	Sections int
	// SectionOverlap is the fraction of a strip shared with its neighbour
	// so a match spanning a boundary is not missed.
	SectionOverlap float64
	// DigitThreshold is the digit count a line must exceed to qualify as
	// the bottom numeric anchor.
	DigitThreshold int
	// LineBudget bounds the ID-card line scan.
	LineBudget int
	// Debug, when set, receives the surface after each crop.
	Debug DebugSink
}

// DefaultConfig returns the calibration used in production.
func DefaultConfig() Config {
	return Config{
		SearchWidth:    1000,
		Sections:       4,
		SectionOverlap: 0.2,
		DigitThreshold: 8,
		LineBudget:     24,
	}
}

// Anchors is the locator's output: the geometry needed to interpret the
// canonical view and to rebuild it from the backup surface.
type Anchors struct {
	// TopBox is the top anchor's bounding box in raw-image pixel
	// coordinates, before any crop.
	TopBox utils.Box
	// Angle is the estimated document rotation in radians.
	Angle float64
	// ViewRect is the predicted document rectangle in raw coordinates.
	ViewRect image.Rectangle
	// Pivot is the rotation pivot, the view rectangle's top-left corner.
	Pivot utils.Point
	// Backup is a full-resolution copy of the surface taken before the
	// destructive crop, kept for alternate reads below the canonical view.
	Backup *raster.Surface
	// BottomY is the bottom anchor's lower edge in canonical-view
	// coordinates.
	BottomY int
	// BottomText is the raw text of the bottom numeric anchor line.
	BottomText string
}

// searchView is a downscaled preprocessed clone plus the factor mapping its
// coordinates back onto the source surface.
type searchView struct {
	surf  *raster.Surface
	scale float64
}

func newSearchView(ctx context.Context, src *raster.Surface, width int, worker *filter.Worker, ops ...filter.Op) (*searchView, error) {
	clone := src.Clone()
	clone.ToWidth(width, true)
	for _, op := range ops {
		if _, err := worker.Apply(ctx, op, clone.Pix()); err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}
	}
	return &searchView{
		surf:  clone,
		scale: float64(src.Width()) / float64(clone.Width()),
	}, nil
}

// scaleBox maps a box from search-view coordinates to source coordinates.
func (v *searchView) scaleBox(b utils.Box) utils.Box {
	return utils.Box{
		MinX: b.MinX * v.scale,
		MinY: b.MinY * v.scale,
		MaxX: b.MaxX * v.scale,
		MaxY: b.MaxY * v.scale,
	}
}

// sections partitions the view into overlapping horizontal strips.
func (v *searchView) sections(count int, overlap float64) []image.Rectangle {
	if count < 1 {
		count = 1
	}
	h := v.surf.Height()
	step := float64(h) / float64(count)
	pad := step * overlap
	out := make([]image.Rectangle, 0, count)
	for i := range count {
		top := int(float64(i)*step - pad)
		bottom := int(float64(i+1)*step + pad)
		out = append(out, image.Rect(
			0, utils.ClampInt(top, 0, h),
			v.surf.Width(), utils.ClampInt(bottom, 0, h),
		))
	}
	return out
}

// digitCount counts decimal digits in s.
func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// wordMatches reports whether the recognized token fuzzy-matches target
// within the usual length-proportional tolerance.
func wordMatches(word, target string) bool {
	norm := corrector.Normalize(word)
	if norm == "" {
		return false
	}
	return corrector.Levenshtein(norm, target) <= corrector.Tolerance(len(target))
}

// findWord returns the first word in the line matching target.
func findWord(line ocr.Line, target string) (ocr.Word, bool) {
	for _, w := range line.Words {
		if wordMatches(w.Text, target) {
			return w, true
		}
	}
	return ocr.Word{}, false
}

// lastDigitLine scans lines for the final one whose digit count exceeds the
// threshold. The first qualifying line can be a false positive (a long
// registration number), so the last match wins.
func lastDigitLine(lines []ocr.Line, threshold int) (ocr.Line, bool) {
	var best ocr.Line
	found := false
	for _, l := range lines {
		if digitCount(l.Text) > threshold {
			best = l
			found = true
		}
	}
	return best, found
}

// cropToBottomAnchor runs the shared third stage: preprocess the cropped
// view, find the last digit-dense line, and cut the surface off at its lower
// edge.
func cropToBottomAnchor(ctx context.Context, surf *raster.Surface, cfg Config, rec Recognizer, worker *filter.Worker, grayOp filter.Op, log *slog.Logger) (int, string, error) {
	view, err := newSearchView(ctx, surf, cfg.SearchWidth, worker, grayOp, filter.OpBinarize)
	if err != nil {
		return 0, "", err
	}
	runner, err := rec.Get(ocr.VariantFast)
	if err != nil {
		return 0, "", err
	}
	res, err := runner.AddJob(ctx, view.surf.Image(), ocr.JobOptions{})
	if err != nil {
		return 0, "", fmt.Errorf("bottom anchor recognition: %w", err)
	}
	line, ok := lastDigitLine(res.Lines, cfg.DigitThreshold)
	if !ok {
		return 0, "", fmt.Errorf("bottom anchor: no line with more than %d digits: %w",
			cfg.DigitThreshold, ErrDocumentNotFound)
	}
	bottomY := int(float64(line.Box.Max.Y) * view.scale)
	bottomY = utils.ClampInt(bottomY, 1, surf.Height())
	log.Debug("bottom anchor found",
		slog.Int("bottom_y", bottomY),
		slog.Int("digits", digitCount(line.Text)))

	if err := surf.Crop(image.Rect(0, 0, surf.Width(), bottomY), 0); err != nil {
		return 0, "", fmt.Errorf("crop to bottom anchor: %w", err)
	}
	return bottomY, line.Text, nil
}

func debugEmit(cfg Config, stage string, surf *raster.Surface) {
	if cfg.Debug != nil {
		cfg.Debug(stage, surf.Image())
	}
}
