// Package extract drives per-field recognition over the canonical view and
// assembles the corrected field-value payload. Redundancy is structural:
// alternate reads are dispatched up front and reconciled by confidence,
// never retried after the fact.
package extract

import (
	"context"
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
)

// Config carries the extractor knobs.
type Config struct {
	// MarkBoxes draws every field region onto the surface after the run,
	// for the debug sink.
	MarkBoxes bool
	// Debug receives the annotated surface when MarkBoxes is on.
	Debug locate.DebugSink
}

// Extractor reads fields from a located document view.
type Extractor struct {
	reg     *docfield.Registry
	rec     locate.Recognizer
	worker  *filter.Worker
	history *History
	cfg     Config
	log     *slog.Logger
}

// New constructs an extractor bound to one field registry.
func New(reg *docfield.Registry, rec locate.Recognizer, worker *filter.Worker, history *History, cfg Config, log *slog.Logger) *Extractor {
	if history == nil {
		history = NewHistory(reg.HistoryLimit)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{reg: reg, rec: rec, worker: worker, history: history, cfg: cfg, log: log}
}

// History exposes the extractor's history store.
func (e *Extractor) History() *History { return e.history }

// Run dispatches the document type's extraction strategy and returns the
// payload. The surface must already be the canonical view.
func (e *Extractor) Run(ctx context.Context, surf *raster.Surface, anchors *locate.Anchors) (Payload, error) {
	switch e.reg.Doc {
	case docfield.DocPassport:
		return e.runPassport(ctx, surf, anchors)
	default:
		return e.runKTP(ctx, surf)
	}
}

// UpdateHistory appends confirmed values for history-enabled fields. The
// caller invokes this explicitly after a human verified the payload; it is
// never part of Run.
func (e *Extractor) UpdateHistory(confirmed map[string]string) map[string][]string {
	for key, value := range confirmed {
		target, ok := e.reg.Lookup(key)
		if !ok || !target.History || value == "" {
			continue
		}
		e.history.Add(key, value)
	}
	return e.history.Snapshot()
}

// candidate is one raw read of a field region before correction.
type candidate struct {
	raw        string
	confidence float64
	ok         bool
}

// better implements the reconciliation order: a missing candidate loses
// automatically, and the challenger must win strictly, never on a tie.
func (c candidate) better(than candidate) bool {
	if !c.ok {
		return false
	}
	if !than.ok {
		return true
	}
	return c.confidence > than.confidence
}

// correct applies the target's correction strategy.
func (e *Extractor) correct(target docfield.Target, raw string) (string, bool) {
	history := e.history.Values(historyKey(target))
	switch target.Mode {
	case docfield.CorrectHistory:
		return corrector.ByHistory()(raw, history)
	case docfield.CorrectCustom:
		return target.Correct(raw, history)
	default:
		out := strings.TrimSpace(raw)
		return out, out != ""
	}
}

// historyKey resolves duplicate candidates onto their primary field's
// history.
func historyKey(target docfield.Target) string {
	if target.AltOf != "" {
		return target.AltOf
	}
	return target.Key
}

// finalize corrects every candidate, reconciles duplicate-candidate pairs
// under the primary key and drops the transient keys.
func (e *Extractor) finalize(candidates map[string]candidate) Payload {
	// Duplicate reconciliation happens on the raw reads: the more
	// confident region wins before any grammar is applied.
	for _, target := range e.reg.Targets {
		if target.AltOf == "" {
			continue
		}
		alt, primary := candidates[target.Key], candidates[target.AltOf]
		if alt.better(primary) {
			candidates[target.AltOf] = alt
		}
		delete(candidates, target.Key)
	}

	payload := make(Payload, len(candidates))
	for key, cand := range candidates {
		target, ok := e.reg.Lookup(key)
		if !ok {
			continue
		}
		value := FieldValue{Confidence: cand.confidence}
		if cand.ok {
			if text, accepted := e.correct(target, cand.raw); accepted {
				value.Text = text
				value.Valid = true
			} else {
				e.log.Debug("corrector rejected field",
					slog.String("field", key), slog.String("raw", cand.raw))
			}
		}
		payload[key] = value
	}
	return payload
}

// recognizeRegion runs one job against a sub-rectangle of the view and
// collapses the result to a single raw string. Zero lines is a soft miss.
func recognizeRegion(ctx context.Context, runner ocr.JobRunner, img image.Image, rect image.Rectangle) candidate {
	res, err := runner.AddJob(ctx, img, ocr.JobOptions{Rect: &rect})
	if err != nil || len(res.Lines) == 0 {
		return candidate{}
	}
	return candidate{
		raw:        strings.Join(strings.Fields(res.Text()), " "),
		confidence: res.MeanConfidence(),
		ok:         true,
	}
}

// collector gathers concurrent field reads. Primary and alternate reads of
// the same key land in separate slots so completion order never decides a
// field; reconcile folds them together once every read is in.
type collector struct {
	mu         sync.Mutex
	candidates map[string]candidate
	alternates map[string]candidate
	boxes      []image.Rectangle
}

func newCollector() *collector {
	return &collector{
		candidates: make(map[string]candidate),
		alternates: make(map[string]candidate),
	}
}

func (c *collector) put(key string, cand candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates[key] = cand
}

// putAlt records a redundant read for later reconciliation.
func (c *collector) putAlt(key string, cand candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alternates[key] = cand
}

// reconcile replaces each primary with its alternate only on a strict
// confidence win. Called after all reads have completed.
func (c *collector) reconcile() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, alt := range c.alternates {
		if alt.better(c.candidates[key]) {
			c.candidates[key] = alt
		}
	}
}

func (c *collector) mark(rects ...image.Rectangle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boxes = append(c.boxes, rects...)
}

// emitDebug draws the collected field regions when the debug sink is wired.
func (e *Extractor) emitDebug(stage string, surf *raster.Surface, boxes []image.Rectangle) {
	if !e.cfg.MarkBoxes || e.cfg.Debug == nil {
		return
	}
	surf.MarkBoxes(boxes)
	e.cfg.Debug(stage, surf.Image())
}
