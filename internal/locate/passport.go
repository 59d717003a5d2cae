package locate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/dokuscan/dokuscan/internal/filter"
	"github.com/dokuscan/dokuscan/internal/ocr"
	"github.com/dokuscan/dokuscan/internal/raster"
	"github.com/dokuscan/dokuscan/internal/taskpool"
	"github.com/dokuscan/dokuscan/internal/utils"
)

// Title words searched for on the passport biodata header line. Both present
// in one line is a strong signal; their boxes are co-linear in an upright
// document, which yields the rotation estimate.
const (
	passportTitleLeft  = "PASPOR"
	passportTitleRight = "REPUBLIK"
	passportFallback   = "INDONESIA"
)

// View-rectangle derivation, in multiples of the measured anchor width. The
// header spans most of the page, so small side pads suffice; the height
// factor is generous enough to always include the machine-readable zone.
const (
	passportSidePad      = 0.10
	passportTopPad       = 0.14
	passportHeightFactor = 0.95

	// Fallback anchor synthesis from the single word's own box.
	passportFallbackLeft  = 1.15
	passportFallbackRight = 0.12
)

// Passport locates the biodata page of an Indonesian passport.
type Passport struct {
	cfg    Config
	rec    Recognizer
	worker *filter.Worker
	log    *slog.Logger
}

// NewPassport constructs the passport locator.
func NewPassport(cfg Config, rec Recognizer, worker *filter.Worker, log *slog.Logger) *Passport {
	if log == nil {
		log = slog.Default()
	}
	return &Passport{cfg: cfg, rec: rec, worker: worker, log: log}
}

// topAnchor is an internal search result in search-view coordinates.
type topAnchor struct {
	box   utils.Box
	angle float64
}

// Locate walks the surface through the anchor state machine, mutating it into
// the canonical view, and returns the anchor geometry.
func (l *Passport) Locate(ctx context.Context, surf *raster.Surface) (*Anchors, error) {
	view, err := newSearchView(ctx, surf, l.cfg.SearchWidth, l.worker,
		filter.OpGrayscalePassport, filter.OpBinarize)
	if err != nil {
		return nil, err
	}

	anchor, err := l.findTopAnchor(ctx, view)
	if err != nil {
		return nil, err
	}
	topBox := view.scaleBox(anchor.box)
	l.log.Debug("top anchor found",
		slog.Float64("angle", anchor.angle),
		slog.Float64("width", topBox.Width()))

	viewRect := l.viewRect(topBox, surf.Bounds())
	backup := surf.Clone()
	if err := surf.Crop(viewRect, anchor.angle); err != nil {
		return nil, fmt.Errorf("crop to top anchor: %w", err)
	}
	debugEmit(l.cfg, "passport_top_crop", surf)

	bottomY, bottomText, err := cropToBottomAnchor(ctx, surf, l.cfg, l.rec, l.worker,
		filter.OpGrayscalePassport, l.log)
	if err != nil {
		return nil, err
	}
	debugEmit(l.cfg, "passport_canonical", surf)

	return &Anchors{
		TopBox:     topBox,
		Angle:      anchor.angle,
		ViewRect:   viewRect,
		Pivot:      utils.Point{X: float64(viewRect.Min.X), Y: float64(viewRect.Min.Y)},
		Backup:     backup,
		BottomY:    bottomY,
		BottomText: bottomText,
	}, nil
}

// findTopAnchor searches overlapping sections concurrently for the title
// pair, short-circuiting on the first conclusive hit, then falls back to a
// full-image single-word search.
func (l *Passport) findTopAnchor(ctx context.Context, view *searchView) (topAnchor, error) {
	runner, err := l.rec.Get(ocr.VariantFast)
	if err != nil {
		return topAnchor{}, err
	}
	img := view.surf.Image()
	strips := view.sections(l.cfg.Sections, l.cfg.SectionOverlap)

	search := taskpool.New(len(strips), l.rec.PoolSize(ocr.VariantFast),
		func(ctx context.Context, idx int) (taskpool.Result[topAnchor], error) {
			rect := strips[idx]
			res, err := runner.AddJob(ctx, img, ocr.JobOptions{Rect: &rect})
			if err != nil {
				return taskpool.Ignore[topAnchor](), fmt.Errorf("section %d: %w", idx, err)
			}
			for _, line := range res.Lines {
				left, ok := findWord(line, passportTitleLeft)
				if !ok {
					continue
				}
				right, ok := findWord(line, passportTitleRight)
				if !ok {
					continue
				}
				lb := utils.BoxFromRect(left.Box)
				rb := utils.BoxFromRect(right.Box)
				if rb.Center().X < lb.Center().X {
					lb, rb = rb, lb
				}
				return taskpool.ShortCircuit(topAnchor{
					box:   utils.BoxFromRect(line.Box),
					angle: utils.AngleBetween(lb, rb),
				}), nil
			}
			return taskpool.Ignore[topAnchor](), nil
		})

	found, err := search.Latest(ctx)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, taskpool.ErrNoValue) {
		return topAnchor{}, err
	}
	return l.fallbackAnchor(ctx, runner, img)
}

// fallbackAnchor handles an obscured title: a lone secondary word still
// pins the header position, with zero assumed rotation and degraded
// accuracy.
func (l *Passport) fallbackAnchor(ctx context.Context, runner ocr.JobRunner, img image.Image) (topAnchor, error) {
	res, err := runner.AddJob(ctx, img, ocr.JobOptions{})
	if err != nil {
		return topAnchor{}, fmt.Errorf("fallback anchor recognition: %w", err)
	}
	for _, line := range res.Lines {
		word, ok := findWord(line, passportFallback)
		if !ok {
			continue
		}
		wb := utils.BoxFromRect(word.Box)
		w := wb.Width()
		l.log.Debug("title obscured, using fallback anchor")
		return topAnchor{
			box: utils.NewBox(
				wb.MinX-passportFallbackLeft*w,
				wb.MinY,
				wb.MaxX+passportFallbackRight*w,
				wb.MaxY,
			),
			angle: 0,
		}, nil
	}
	return topAnchor{}, fmt.Errorf("top anchor: %w", ErrDocumentNotFound)
}

// viewRect predicts the document rectangle from the anchor box. The offsets
// are fixed multiples of the anchor's own measured width, chosen so the
// rectangle comfortably contains the page even though its true extent is
// unknown here.
func (l *Passport) viewRect(anchor utils.Box, bounds image.Rectangle) image.Rectangle {
	w := anchor.Width()
	return utils.NewBox(
		anchor.MinX-passportSidePad*w,
		anchor.MinY-passportTopPad*w,
		anchor.MaxX+passportSidePad*w,
		anchor.MinY+passportHeightFactor*w,
	).ToRect(bounds)
}
