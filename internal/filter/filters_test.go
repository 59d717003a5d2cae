package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flat builds an n-pixel RGBA buffer filled with one color.
func flat(n int, r, g, b byte) []byte {
	pix := make([]byte, n*4)
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 0xff
	}
	return pix
}

func TestGrayscaleInPlace(t *testing.T) {
	pix := flat(16, 200, 40, 40)
	out := Grayscale(pix, PassportGray())

	assert.Equal(t, &pix[0], &out[0], "filter must reuse the input buffer")
	assert.Equal(t, out[0], out[1])
	assert.Equal(t, out[1], out[2])
	assert.Equal(t, byte(0xff), out[3], "alpha untouched")
}

func TestGrayscaleBiasPreservesChromaticPixels(t *testing.T) {
	// Same luminance, different saturation: the chromatic pixel must come out
	// brighter than the desaturated one.
	chromatic := Grayscale(flat(1, 255, 60, 60), PassportGray())
	neutral := Grayscale(flat(1, 118, 118, 118), PassportGray())
	assert.Greater(t, chromatic[0], neutral[0])
}

func TestBinarizeSeparatesInkFromPaper(t *testing.T) {
	// A minority of dark ink pixels on light paper.
	pix := make([]byte, 0, 64*4)
	pix = append(pix, flat(16, 10, 10, 10)...)
	pix = append(pix, flat(48, 220, 220, 220)...)

	out := Binarize(pix, 0.45, 1.35)
	assert.Equal(t, byte(0), out[0], "ink clipped to black")
	last := len(out) - 4
	assert.Equal(t, byte(0xff), out[last], "paper clipped to white")
}

func TestBinarizeLengthContract(t *testing.T) {
	pix := flat(33, 128, 128, 128)
	out := Binarize(pix, 0.45, 1.35)
	assert.Len(t, out, len(pix))
}

func TestBlueGreenEmphasisIsolatesGreenText(t *testing.T) {
	// Mostly neutral background with a run of strongly green pixels.
	pix := make([]byte, 0, 260*4)
	pix = append(pix, flat(256, 150, 150, 150)...)
	pix = append(pix, flat(4, 20, 220, 80)...)

	out := BlueGreenEmphasis(pix)
	assert.Equal(t, byte(0xff), out[0], "background becomes white")
	last := len(out) - 4
	assert.Equal(t, byte(0), out[last], "green print becomes black")
}

func TestBlueGreenEmphasisEmptyBuffer(t *testing.T) {
	assert.Empty(t, BlueGreenEmphasis(nil))
}

func TestWorkerRoundTrip(t *testing.T) {
	w := NewWorker()
	defer w.Close()

	pix := flat(8, 10, 200, 10)
	out, err := w.Apply(context.Background(), OpGrayscaleIDCard, pix)
	require.NoError(t, err)
	assert.Equal(t, &pix[0], &out[0], "worker returns the transferred buffer")
}

func TestWorkerClosed(t *testing.T) {
	w := NewWorker()
	w.Close()
	w.Close() // idempotent

	_, err := w.Apply(context.Background(), OpBinarize, flat(4, 0, 0, 0))
	assert.ErrorIs(t, err, ErrWorkerClosed)
}

func TestWorkerContextCancelled(t *testing.T) {
	w := NewWorker()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Apply(ctx, OpBinarize, flat(4, 0, 0, 0))
	// Either the send or the cancel branch may win; both surface ctx.Err.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
