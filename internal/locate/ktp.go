package locate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dokuscan/dokuscan/internal/filter"
	"github.com/dokuscan/dokuscan/internal/ocr"
	"github.com/dokuscan/dokuscan/internal/raster"
	"github.com/dokuscan/dokuscan/internal/utils"
)

const ktpHeaderWord = "PROVINSI"

// ktpNIKDigits is the digit count a line must reach to qualify as the NIK
// row. The NIK prints 16 digits; a couple may be misread as letters.
const ktpNIKDigits = 14

// View derivation multiples. The header line is centered and spans roughly
// half the card, the NIK row starts at the left edge and runs wider; each
// anchor gets its own set of pads.
const (
	ktpHeaderSidePad      = 0.42
	ktpHeaderTopPad       = 0.22
	ktpHeaderHeightFactor = 1.18

	ktpNIKSidePad      = 0.18
	ktpNIKTopPad       = 0.34
	ktpNIKHeightFactor = 0.92
)

// KTP locates an Indonesian national ID card.
type KTP struct {
	cfg    Config
	rec    Recognizer
	worker *filter.Worker
	log    *slog.Logger
}

// NewKTP constructs the ID-card locator.
func NewKTP(cfg Config, rec Recognizer, worker *filter.Worker, log *slog.Logger) *KTP {
	if log == nil {
		log = slog.Default()
	}
	return &KTP{cfg: cfg, rec: rec, worker: worker, log: log}
}

// Locate finds the card and mutates the surface into the canonical view. The
// line scan looks for the header label and the digit-dense NIK row
// independently; the header wins as the anchor when present, the NIK row is
// the degraded fallback when the header is cut off or obscured.
func (l *KTP) Locate(ctx context.Context, surf *raster.Surface) (*Anchors, error) {
	view, err := newSearchView(ctx, surf, l.cfg.SearchWidth, l.worker,
		filter.OpBlueGreen, filter.OpBinarize)
	if err != nil {
		return nil, err
	}
	runner, err := l.rec.Get(ocr.VariantFast)
	if err != nil {
		return nil, err
	}
	res, err := runner.AddJob(ctx, view.surf.Image(), ocr.JobOptions{})
	if err != nil {
		return nil, fmt.Errorf("anchor recognition: %w", err)
	}

	header, nik, ok := l.scanLines(res.Lines)
	if !ok {
		return nil, fmt.Errorf("header and NIK row both missing: %w", ErrDocumentNotFound)
	}

	anchor := l.anchorFrom(header, nik)
	topBox := view.scaleBox(anchor.box)
	l.log.Debug("card anchor found",
		slog.Bool("header", header != nil),
		slog.Bool("nik_row", nik != nil),
		slog.Float64("angle", anchor.angle))

	viewRect := view.scaleBox(anchor.view).ToRect(surf.Bounds())

	backup := surf.Clone()
	if err := surf.Crop(viewRect, anchor.angle); err != nil {
		return nil, fmt.Errorf("crop to card view: %w", err)
	}
	debugEmit(l.cfg, "ktp_canonical", surf)

	bottomText := ""
	if nik != nil {
		bottomText = nik.Text
	}
	return &Anchors{
		TopBox:     topBox,
		Angle:      anchor.angle,
		ViewRect:   viewRect,
		Pivot:      utils.Point{X: float64(viewRect.Min.X), Y: float64(viewRect.Min.Y)},
		Backup:     backup,
		BottomY:    surf.Height(),
		BottomText: bottomText,
	}, nil
}

// scanLines walks recognized lines within the budget, recording the first
// header-label line and the first digit-dense row. Both searches run to
// completion; either alone is enough to proceed.
func (l *KTP) scanLines(lines []ocr.Line) (header, nik *ocr.Line, ok bool) {
	budget := l.cfg.LineBudget
	if budget <= 0 || budget > len(lines) {
		budget = len(lines)
	}
	for i := range budget {
		line := lines[i]
		if header == nil {
			if _, found := findWord(line, ktpHeaderWord); found {
				header = &lines[i]
			}
		}
		if nik == nil && digitCount(line.Text) >= ktpNIKDigits {
			nik = &lines[i]
		}
		if header != nil && nik != nil {
			break
		}
	}
	return header, nik, header != nil || nik != nil
}

type cardAnchor struct {
	box   utils.Box
	view  utils.Box
	angle float64
}

// anchorFrom derives the anchor box, rotation and predicted card rectangle,
// in search-view coordinates. Multiples of the anchor line's own width
// predict the card extent.
func (l *KTP) anchorFrom(header, nik *ocr.Line) cardAnchor {
	if header != nil {
		hb := utils.BoxFromRect(header.Box)
		w := hb.Width()
		return cardAnchor{
			box: hb,
			view: utils.NewBox(
				hb.MinX-ktpHeaderSidePad*w,
				hb.MinY-ktpHeaderTopPad*w,
				hb.MaxX+ktpHeaderSidePad*w,
				hb.MinY+ktpHeaderHeightFactor*w,
			),
			angle: lineAngle(*header),
		}
	}
	nb := utils.BoxFromRect(nik.Box)
	w := nb.Width()
	return cardAnchor{
		box: nb,
		view: utils.NewBox(
			nb.MinX-ktpNIKSidePad*w,
			nb.MinY-ktpNIKTopPad*w,
			nb.MaxX+ktpNIKSidePad*w,
			nb.MinY+ktpNIKHeightFactor*w,
		),
		angle: 0,
	}
}

// lineAngle estimates rotation from the first and last word of a line known
// to be horizontal on an upright card. Lines with a single word give no
// signal.
func lineAngle(line ocr.Line) float64 {
	if len(line.Words) < 2 {
		return 0
	}
	first := utils.BoxFromRect(line.Words[0].Box)
	last := utils.BoxFromRect(line.Words[len(line.Words)-1].Box)
	if last.Center().X < first.Center().X {
		first, last = last, first
	}
	return utils.AngleBetween(first, last)
}
