package extract

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/dokuscan/dokuscan/internal/docfield"
	"github.com/dokuscan/dokuscan/internal/filter"
	"github.com/dokuscan/dokuscan/internal/ocr"
	"github.com/dokuscan/dokuscan/internal/raster"
)

// runKTP extracts ID-card fields positionally: one full-view recognition
// pass, then each target indexes into the returned lines. Digit-heavy rows
// get a redundant digits-only re-read of their line box.
func (e *Extractor) runKTP(ctx context.Context, surf *raster.Surface) (Payload, error) {
	surf.ToWidth(e.reg.WorkingWidth, false)
	for _, op := range []filter.Op{filter.OpGrayscaleIDCard, filter.OpBinarize} {
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
	res, err := defaultRunner.AddJob(ctx, img, ocr.JobOptions{})
	if err != nil {
		return nil, fmt.Errorf("full view recognition: %w", err)
	}

	col := newCollector()
	var wg sync.WaitGroup
	for _, target := range e.reg.Targets {
		if target.LineIndex >= len(res.Lines) {
			// Short reads leave trailing fields null rather than
			// aborting the run.
			col.put(target.Key, candidate{})
			continue
		}
		line := res.Lines[target.LineIndex]
		col.mark(line.Box)
		col.put(target.Key, lineCandidate(line))

		if target.Variant != ocr.VariantNumber {
			continue
		}
		wg.Add(1)
		go func(target docfield.Target, rect image.Rectangle) {
			defer wg.Done()
			col.putAlt(target.Key, recognizeRegion(ctx, numberRunner, img, rect))
		}(target, line.Box)
	}
	wg.Wait()
	col.reconcile()

	payload := e.finalize(col.candidates)
	e.emitDebug("ktp_fields", surf, col.boxes)
	return payload, nil
}

// lineCandidate turns a recognized row into a raw candidate, stripping the
// printed label up to its colon. Rows without a colon, like the header, pass
// through whole.
func lineCandidate(line ocr.Line) candidate {
	raw := line.Text
	if _, after, found := strings.Cut(raw, ":"); found {
		raw = after
	}
	raw = strings.Join(strings.Fields(raw), " ")
	if raw == "" {
		return candidate{}
	}
	return candidate{raw: raw, confidence: line.Confidence, ok: true}
}
