package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
)

// ErrTerminated is returned when recognition is attempted after Terminate.
// This is a programmer error, not a recoverable condition.
var ErrTerminated = errors.New("ocr: scheduler terminated")

// ErrUnknownVariant is returned for variant keys with no configuration.
var ErrUnknownVariant = errors.New("ocr: unknown variant")

// EngineFactory builds one engine worker for a variant.
type EngineFactory func(cfg VariantConfig) (Engine, error)

// Config holds scheduler configuration.
type Config struct {
	Variants map[string]VariantConfig
	// Factory builds engine workers; nil selects the Tesseract backend.
	Factory EngineFactory
}

// DefaultConfig returns a scheduler config with the standard variants and
// the Tesseract backend.
func DefaultConfig() Config {
	return Config{Variants: DefaultVariants()}
}

// Scheduler owns the named variant pools. Pools are constructed lazily on
// first use and memoized; Terminate tears every pool down exactly once.
type Scheduler struct {
	mu         sync.Mutex
	cfg        Config
	pools      map[string]*Pool
	terminated bool
}

// NewScheduler creates a scheduler. No engine workers are started until a
// variant is first requested.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Variants == nil {
		cfg.Variants = DefaultVariants()
	}
	if cfg.Factory == nil {
		cfg.Factory = NewTesseractEngine
	}
	return &Scheduler{cfg: cfg, pools: make(map[string]*Pool)}
}

// Get returns the job runner for the named variant, constructing its worker
// pool on first use.
func (s *Scheduler) Get(variant string) (JobRunner, error) {
	return s.pool(variant)
}

func (s *Scheduler) pool(variant string) (*Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return nil, ErrTerminated
	}
	if p, ok := s.pools[variant]; ok {
		return p, nil
	}
	cfg, ok := s.cfg.Variants[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	p, err := newPool(cfg, s.cfg.Factory)
	if err != nil {
		return nil, fmt.Errorf("init variant %q: %w", variant, err)
	}
	slog.Debug("variant pool initialized", "variant", variant, "size", cfg.PoolSize)
	s.pools[variant] = p
	return p, nil
}

// PoolSize reports the worker budget of a variant without forcing pool
// construction. Used by callers sizing their task concurrency to the pool.
func (s *Scheduler) PoolSize(variant string) int {
	cfg, ok := s.cfg.Variants[variant]
	if !ok || cfg.PoolSize < 1 {
		return 1
	}
	return cfg.PoolSize
}

// Terminate tears down every pool's workers. Must be called exactly once per
// session; recognition calls afterwards fail with ErrTerminated.
func (s *Scheduler) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return ErrTerminated
	}
	s.terminated = true
	var firstErr error
	for name, p := range s.pools {
		if err := p.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("terminate variant %q: %w", name, err)
		}
	}
	s.pools = nil
	return firstErr
}

// Pool is a fixed-size set of engine workers for one variant. AddJob checks a
// worker out for the duration of a job; the engine's own queue serializes
// nothing for us, so the checkout enforces the concurrency ceiling.
type Pool struct {
	cfg     VariantConfig
	workers chan Engine
	all     []Engine
}

func newPool(cfg VariantConfig, factory EngineFactory) (*Pool, error) {
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}
	p := &Pool{cfg: cfg, workers: make(chan Engine, size)}
	for i := 0; i < size; i++ {
		eng, err := factory(cfg)
		if err != nil {
			_ = p.close()
			return nil, err
		}
		p.all = append(p.all, eng)
		p.workers <- eng
	}
	return p, nil
}

// AddJob submits a recognition request, optionally restricted to a
// sub-rectangle, and blocks until a worker is free and the job completes.
func (p *Pool) AddJob(ctx context.Context, img image.Image, opts JobOptions) (*Result, error) {
	var eng Engine
	select {
	case eng = <-p.workers:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.workers <- eng }()
	return eng.Recognize(ctx, img, opts)
}

func (p *Pool) close() error {
	var firstErr error
	for _, eng := range p.all {
		if err := eng.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.all = nil
	return firstErr
}
