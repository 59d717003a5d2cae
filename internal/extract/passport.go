package extract

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"

	"github.com/dokuscan/dokuscan/internal/corrector"
	"github.com/dokuscan/dokuscan/internal/docfield"
	"github.com/dokuscan/dokuscan/internal/filter"
	"github.com/dokuscan/dokuscan/internal/locate"
	"github.com/dokuscan/dokuscan/internal/ocr"
	"github.com/dokuscan/dokuscan/internal/raster"
	"github.com/dokuscan/dokuscan/internal/utils"
)

// Date triple-split proportions for day/month/year. Fields in the left half
// of the view are left-aligned, fields in the right half drift right, so the
// year slice grows accordingly.
var (
	dateSplitLeftHalf  = []float64{0.30, 0.38, 0.32}
	dateSplitRightHalf = []float64{0.26, 0.34, 0.40}
)

// runPassport reads every geometric target concurrently. Each date field
// additionally gets a redundant three-way sub-read with the digit variant on
// day and year; the triple wins only on strictly higher mean confidence.
func (e *Extractor) runPassport(ctx context.Context, surf *raster.Surface, anchors *locate.Anchors) (Payload, error) {
	surf.ToWidth(e.reg.WorkingWidth, false)
	for _, op := range []filter.Op{filter.OpGrayscalePassport, filter.OpBinarize} {
		if _, err := e.worker.Apply(ctx, op, surf.Pix()); err != nil {
			return nil, fmt.Errorf("preprocess view: %w", err)
		}
	}

	defaultRunner, err := e.rec.Get(ocr.VariantDefault)
	if err != nil {
		return nil, err
	}
	numberRunner, err := e.rec.Get(ocr.VariantNumber)
	if err != nil {
		return nil, err
	}

	img := surf.Image()
	col := newCollector()
	var wg sync.WaitGroup
	for _, target := range e.reg.Targets {
		runner := defaultRunner
		if target.Variant == ocr.VariantNumber {
			runner = numberRunner
		}
		rect := target.Box.Abs(surf.Width(), surf.Height())
		col.mark(rect)

		wg.Add(1)
		go func(target docfield.Target, runner ocr.JobRunner, rect image.Rectangle) {
			defer wg.Done()
			col.put(target.Key, recognizeRegion(ctx, runner, img, rect))
		}(target, runner, rect)

		if !target.IsDate {
			continue
		}
		splits := dateSplits(target.Box, surf.Width(), surf.Height())
		col.mark(splits...)
		wg.Add(1)
		go func(target docfield.Target, splits []image.Rectangle) {
			defer wg.Done()
			col.putAlt(target.Key, readDateTriple(ctx, defaultRunner, numberRunner, img, splits))
		}(target, splits)
	}
	wg.Wait()
	col.reconcile()

	payload := e.finalize(col.candidates)
	e.salvagePassportNumber(ctx, numberRunner, payload, anchors)
	e.emitDebug("passport_fields", surf, col.boxes)
	return payload, nil
}

// dateSplits derives the day/month/year sub-rectangles from a date field's
// box, with ratios chosen by which half of the view the field sits in.
func dateSplits(box utils.RelBox, width, height int) []image.Rectangle {
	ratios := dateSplitLeftHalf
	if (box.X0+box.X1)/2 > 0.5 {
		ratios = dateSplitRightHalf
	}
	parts := box.SplitX(ratios...)
	out := make([]image.Rectangle, len(parts))
	for i, p := range parts {
		out[i] = p.Abs(width, height)
	}
	return out
}

// readDateTriple reads the three date sub-regions concurrently, digits-only
// for day and year, and recombines them. Any missing part voids the triple.
func readDateTriple(ctx context.Context, defaultRunner, numberRunner ocr.JobRunner, img image.Image, splits []image.Rectangle) candidate {
	runners := []ocr.JobRunner{numberRunner, defaultRunner, numberRunner}
	parts := make([]candidate, len(splits))
	var wg sync.WaitGroup
	for i := range splits {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			parts[i] = recognizeRegion(ctx, runners[i], img, splits[i])
		}(i)
	}
	wg.Wait()

	texts := make([]string, 0, len(parts))
	var sum float64
	for _, p := range parts {
		if !p.ok {
			return candidate{}
		}
		texts = append(texts, p.raw)
		sum += p.confidence
	}
	return candidate{
		raw:        strings.Join(texts, " "),
		confidence: sum / float64(len(parts)),
		ok:         true,
	}
}

// Fraction of the view height scanned above the bottom anchor edge when the
// machine-readable zone has to be re-read from the backup surface.
const salvageBandRatio = 0.12

// salvagePassportNumber retries a failed passport-number read against the
// bottom anchor line. The machine-readable zone repeats the number, so a
// region misread is often recoverable from text the locator already has;
// failing that, the zone is re-read from the pre-crop backup.
func (e *Extractor) salvagePassportNumber(ctx context.Context, runner ocr.JobRunner, payload Payload, anchors *locate.Anchors) {
	const key = "passport_number"
	value, present := payload[key]
	if !present || value.Valid || anchors == nil {
		return
	}
	source := anchors.BottomText
	if source == "" {
		source = e.rereadBottomStrip(ctx, runner, anchors)
	}
	if source == "" {
		return
	}
	text, ok := corrector.PassportNumber()(source, nil)
	if !ok {
		return
	}
	e.log.Debug("passport number salvaged from bottom anchor", slog.String("value", text))
	payload[key] = FieldValue{Text: text, Valid: true, Confidence: value.Confidence}
}

// rereadBottomStrip crops the machine-readable zone out of the backup surface
// and recognizes it with the digit variant. The strip spans from just above
// the bottom anchor edge to the view rectangle's lower bound, both in raw
// coordinates.
func (e *Extractor) rereadBottomStrip(ctx context.Context, runner ocr.JobRunner, anchors *locate.Anchors) string {
	if anchors.Backup == nil || anchors.BottomY <= 0 {
		return ""
	}
	band := int(salvageBandRatio * float64(anchors.ViewRect.Dy()))
	strip := image.Rect(
		anchors.ViewRect.Min.X,
		anchors.ViewRect.Min.Y+anchors.BottomY-band,
		anchors.ViewRect.Max.X,
		anchors.ViewRect.Max.Y,
	).Intersect(anchors.Backup.Bounds())
	if strip.Empty() {
		return ""
	}
	crop := anchors.Backup.Clone()
	if err := crop.Crop(strip, 0); err != nil {
		e.log.Debug("bottom strip crop failed", slog.String("error", err.Error()))
		return ""
	}
	for _, op := range []filter.Op{filter.OpGrayscalePassport, filter.OpBinarize} {
		if _, err := e.worker.Apply(ctx, op, crop.Pix()); err != nil {
			return ""
		}
	}
	res, err := runner.AddJob(ctx, crop.Image(), ocr.JobOptions{})
	if err != nil {
		e.log.Debug("bottom strip recognition failed", slog.String("error", err.Error()))
		return ""
	}
	return res.Text()
}
