// Package pipeline wires the locator, extractor, recognition scheduler and
// preprocessing worker into the public per-document-type surface: mount a
// file, run, confirm history, terminate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/dokuscan/dokuscan/internal/docfield"
	"github.com/dokuscan/dokuscan/internal/extract"
	"github.com/dokuscan/dokuscan/internal/filter"
	"github.com/dokuscan/dokuscan/internal/locate"
	"github.com/dokuscan/dokuscan/internal/ocr"
	"github.com/dokuscan/dokuscan/internal/raster"
)

// ErrNotMounted is returned by Run before any input was mounted.
var ErrNotMounted = errors.New("pipeline: no input mounted")

// ErrTerminated is returned once the pipeline released its workers.
var ErrTerminated = errors.New("pipeline: terminated")

// Config collects every knob of one pipeline instance.
type Config struct {
	Doc     docfield.DocType
	Locate  locate.Config
	Extract extract.Config
	OCR     ocr.Config
	// HistoryLimit caps per-field history; zero uses the registry default.
	HistoryLimit int
	// OverridesPath optionally points at a YAML calibration file.
	OverridesPath string
}

// DefaultConfig returns the production configuration for a document type.
func DefaultConfig(doc docfield.DocType) Config {
	return Config{
		Doc:    doc,
		Locate: locate.DefaultConfig(),
		OCR:    ocr.DefaultConfig(),
	}
}

// Builder assembles a Pipeline.
type Builder struct {
	cfg      Config
	registry *docfield.Registry
	history  map[string][]string
	log      *slog.Logger
}

// NewBuilder starts from the default configuration for the document type.
func NewBuilder(doc docfield.DocType) *Builder {
	return &Builder{cfg: DefaultConfig(doc)}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	b.log = log
	return b
}

// WithVariants replaces the recognition variant set.
func (b *Builder) WithVariants(variants map[string]ocr.VariantConfig) *Builder {
	b.cfg.OCR.Variants = variants
	return b
}

// WithEngineFactory swaps the recognition backend, the seam tests use.
func (b *Builder) WithEngineFactory(factory ocr.EngineFactory) *Builder {
	b.cfg.OCR.Factory = factory
	return b
}

// WithRegistry overrides the document type's built-in field registry.
func (b *Builder) WithRegistry(reg *docfield.Registry) *Builder {
	b.registry = reg
	return b
}

// WithOverridesFile points at a YAML calibration file applied on Build.
func (b *Builder) WithOverridesFile(path string) *Builder {
	b.cfg.OverridesPath = path
	return b
}

// WithHistory seeds per-field history from an earlier session's snapshot.
func (b *Builder) WithHistory(snapshot map[string][]string) *Builder {
	b.history = snapshot
	return b
}

// WithHistoryLimit caps per-field history.
func (b *Builder) WithHistoryLimit(limit int) *Builder {
	b.cfg.HistoryLimit = limit
	return b
}

// WithDebugSink receives intermediate surfaces after each raster mutation.
func (b *Builder) WithDebugSink(sink locate.DebugSink) *Builder {
	b.cfg.Locate.Debug = sink
	b.cfg.Extract.Debug = sink
	b.cfg.Extract.MarkBoxes = true
	return b
}

// WithLocateConfig replaces the locator calibration.
func (b *Builder) WithLocateConfig(cfg locate.Config) *Builder {
	b.cfg.Locate = cfg
	return b
}

// locator is satisfied by both document locators.
type locator interface {
	Locate(ctx context.Context, surf *raster.Surface) (*locate.Anchors, error)
}

// Build validates the configuration and assembles the pipeline. The
// recognition pools themselves stay lazy; Build is cheap.
func (b *Builder) Build() (*Pipeline, error) {
	log := b.log
	if log == nil {
		log = slog.Default()
	}

	reg := b.registry
	if reg == nil {
		switch b.cfg.Doc {
		case docfield.DocPassport:
			reg = docfield.Passport()
		case docfield.DocIDCard:
			reg = docfield.KTP()
		default:
			return nil, fmt.Errorf("unsupported document type %q", b.cfg.Doc)
		}
	}
	if b.cfg.OverridesPath != "" {
		overrides, err := docfield.LoadOverridesFile(b.cfg.OverridesPath)
		if err != nil {
			return nil, err
		}
		if reg, err = overrides.Apply(reg); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	limit := b.cfg.HistoryLimit
	if limit <= 0 {
		limit = reg.HistoryLimit
	}
	history := extract.NewHistory(limit)
	if b.history != nil {
		history = extract.Restore(limit, b.history)
	}

	scheduler := ocr.NewScheduler(b.cfg.OCR)
	worker := filter.NewWorker()

	var loc locator
	if reg.Doc == docfield.DocPassport {
		loc = locate.NewPassport(b.cfg.Locate, scheduler, worker, log)
	} else {
		loc = locate.NewKTP(b.cfg.Locate, scheduler, worker, log)
	}

	return &Pipeline{
		cfg:       b.cfg,
		registry:  reg,
		scheduler: scheduler,
		worker:    worker,
		locator:   loc,
		extractor: extract.New(reg, scheduler, worker, history, b.cfg.Extract, log),
		log:       log,
	}, nil
}

// Pipeline is the public extraction surface for one document type. It owns
// exactly one live raster surface; Run consumes it, so each extraction needs
// a fresh mount. Not safe for concurrent use.
type Pipeline struct {
	cfg       Config
	registry  *docfield.Registry
	scheduler *ocr.Scheduler
	worker    *filter.Worker
	locator   locator
	extractor *extract.Extractor
	log       *slog.Logger

	surf       *raster.Surface
	terminated bool
}

// Registry exposes the effective field registry after overrides.
func (p *Pipeline) Registry() *docfield.Registry { return p.registry }

// MountFile loads an image file, or page one of a PDF, into the surface.
func (p *Pipeline) MountFile(path string) error {
	if p.terminated {
		return ErrTerminated
	}
	surf := raster.New(1, 1)
	if err := surf.MountFile(path); err != nil {
		return err
	}
	p.surf = surf
	p.log.Debug("input mounted",
		slog.String("path", path),
		slog.Int("width", surf.Width()),
		slog.Int("height", surf.Height()))
	return nil
}

// Mount adopts an already decoded image.
func (p *Pipeline) Mount(img image.Image) error {
	if p.terminated {
		return ErrTerminated
	}
	p.surf = raster.FromImage(img)
	return nil
}

// Run locates the document and extracts its fields. The mounted surface is
// consumed regardless of outcome.
func (p *Pipeline) Run(ctx context.Context) (extract.Payload, error) {
	if p.terminated {
		return nil, ErrTerminated
	}
	surf := p.surf
	if surf == nil {
		return nil, ErrNotMounted
	}
	p.surf = nil

	anchors, err := p.locator.Locate(ctx, surf)
	if err != nil {
		return nil, err
	}
	payload, err := p.extractor.Run(ctx, surf, anchors)
	if err != nil {
		return nil, err
	}
	p.log.Info("extraction complete",
		slog.String("doc", string(p.registry.Doc)),
		slog.Int("fields", len(payload)),
		slog.Int("valid", len(payload.Confirmed())))
	return payload, nil
}

// UpdateHistory records caller-confirmed values for history-enabled fields
// and returns the updated snapshot. Invoked explicitly after verification,
// never as part of Run.
func (p *Pipeline) UpdateHistory(confirmed map[string]string) map[string][]string {
	return p.extractor.UpdateHistory(confirmed)
}

// Terminate releases the recognition workers and the preprocessing worker.
// Exactly one call is expected; further pipeline use fails.
func (p *Pipeline) Terminate() error {
	if p.terminated {
		return ErrTerminated
	}
	p.terminated = true
	p.worker.Close()
	return p.scheduler.Terminate()
}
