package ocr

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	variant  string
	inFlight *atomic.Int64
	peak     *atomic.Int64
	delay    time.Duration
	closed   atomic.Bool
}

func (f *fakeEngine) Recognize(_ context.Context, _ image.Image, _ JobOptions) (*Result, error) {
	if f.inFlight != nil {
		cur := f.inFlight.Add(1)
		for {
			old := f.peak.Load()
			if cur <= old || f.peak.CompareAndSwap(old, cur) {
				break
			}
		}
		defer f.inFlight.Add(-1)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return &Result{Lines: []Line{{Text: f.variant, Confidence: 90}}}, nil
}

func (f *fakeEngine) Close() error {
	f.closed.Store(true)
	return nil
}

func fakeFactory(track *[]*fakeEngine, inFlight, peak *atomic.Int64, delay time.Duration) EngineFactory {
	return func(cfg VariantConfig) (Engine, error) {
		e := &fakeEngine{variant: cfg.Name, inFlight: inFlight, peak: peak, delay: delay}
		if track != nil {
			*track = append(*track, e)
		}
		return e, nil
	}
}

func testConfig(factory EngineFactory) Config {
	return Config{Variants: DefaultVariants(), Factory: factory}
}

func TestGetLazilyInitializesOnce(t *testing.T) {
	var created []*fakeEngine
	s := NewScheduler(testConfig(fakeFactory(&created, nil, nil, 0)))

	assert.Empty(t, created, "no workers before first use")

	first, err := s.Get(VariantNumber)
	require.NoError(t, err)
	second, err := s.Get(VariantNumber)
	require.NoError(t, err)

	assert.Same(t, first, second, "pool is memoized")
	assert.Len(t, created, DefaultVariants()[VariantNumber].PoolSize)
}

func TestGetUnknownVariant(t *testing.T) {
	s := NewScheduler(testConfig(fakeFactory(nil, nil, nil, 0)))
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestAddJobReturnsResult(t *testing.T) {
	s := NewScheduler(testConfig(fakeFactory(nil, nil, nil, 0)))
	runner, err := s.Get(VariantDefault)
	require.NoError(t, err)

	res, err := runner.AddJob(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)), JobOptions{})
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, VariantDefault, res.Lines[0].Text)
}

func TestPoolEnforcesConcurrencyCeiling(t *testing.T) {
	var inFlight, peak atomic.Int64
	s := NewScheduler(testConfig(fakeFactory(nil, &inFlight, &peak, 2*time.Millisecond)))
	runner, err := s.Get(VariantNumber)
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	done := make(chan struct{})
	for i := 0; i < 12; i++ {
		go func() {
			_, _ = runner.AddJob(context.Background(), img, JobOptions{})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 12; i++ {
		<-done
	}

	limit := int64(DefaultVariants()[VariantNumber].PoolSize)
	assert.LessOrEqual(t, peak.Load(), limit)
}

func TestTerminateExactlyOnce(t *testing.T) {
	var created []*fakeEngine
	s := NewScheduler(testConfig(fakeFactory(&created, nil, nil, 0)))
	_, err := s.Get(VariantDefault)
	require.NoError(t, err)

	require.NoError(t, s.Terminate())
	for _, e := range created {
		assert.True(t, e.closed.Load(), "worker must be closed")
	}

	assert.ErrorIs(t, s.Terminate(), ErrTerminated, "second terminate is an error")
	_, err = s.Get(VariantDefault)
	assert.ErrorIs(t, err, ErrTerminated, "use after terminate is an error")
}

func TestAddJobContextCancelled(t *testing.T) {
	s := NewScheduler(testConfig(fakeFactory(nil, nil, nil, 50*time.Millisecond)))
	runner, err := s.Get(VariantFast)
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	// Occupy every worker.
	for range DefaultVariants()[VariantFast].PoolSize {
		go func() { _, _ = runner.AddJob(context.Background(), img, JobOptions{}) }()
	}
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err = runner.AddJob(ctx, img, JobOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolSize(t *testing.T) {
	s := NewScheduler(testConfig(fakeFactory(nil, nil, nil, 0)))
	assert.Equal(t, DefaultVariants()[VariantDefault].PoolSize, s.PoolSize(VariantDefault))
	assert.Equal(t, 1, s.PoolSize("missing"))
}

func TestFactoryErrorPropagates(t *testing.T) {
	boom := errors.New("tessdata missing")
	s := NewScheduler(Config{
		Variants: DefaultVariants(),
		Factory:  func(VariantConfig) (Engine, error) { return nil, boom },
	})
	_, err := s.Get(VariantDefault)
	assert.ErrorIs(t, err, boom)
}

func TestResultHelpers(t *testing.T) {
	r := &Result{Lines: []Line{
		{Text: "REPUBLIK INDONESIA", Confidence: 80},
		{Text: "PASPOR", Confidence: 60},
	}}
	assert.Equal(t, "REPUBLIK INDONESIA\nPASPOR", r.Text())
	assert.InDelta(t, 70.0, r.MeanConfidence(), 1e-9)

	empty := &Result{}
	assert.Zero(t, empty.MeanConfidence())
	assert.Empty(t, empty.Text())
}
