// Package filter implements the stateless pixel transforms applied before
// recognition. Filters mutate the RGBA buffer in place and return it; no
// second full-size buffer is allocated, which keeps memory pressure bounded
// on large photos.
package filter

import (
	"gonum.org/v1/gonum/stat"
)

// statSampleStride bounds the number of pixels fed into the mean/stddev
// estimate on large images.
const statSampleStride = 4

// GrayCoefficients tunes the saturation-biased grayscale conversion. The
// channel weights form the luminance base; SaturationBias darkens
// low-saturation (printed ink, background) pixels relative to chromatic ones.
type GrayCoefficients struct {
	R    float64
	G    float64
	B    float64
	Bias float64
}

// PassportGray is tuned for the green-tinted passport biodata page.
func PassportGray() GrayCoefficients {
	return GrayCoefficients{R: 0.299, G: 0.587, B: 0.114, Bias: 0.65}
}

// IDCardGray is tuned for the pale blue KTP background.
func IDCardGray() GrayCoefficients {
	return GrayCoefficients{R: 0.35, G: 0.5, B: 0.15, Bias: 0.5}
}

// Grayscale converts the buffer to a saturation-biased grayscale in place and
// returns the same buffer.
func Grayscale(pix []byte, coef GrayCoefficients) []byte {
	for i := 0; i+3 < len(pix); i += 4 {
		r := float64(pix[i])
		g := float64(pix[i+1])
		b := float64(pix[i+2])
		lum := coef.R*r + coef.G*g + coef.B*b
		sat := maxChannel(r, g, b) - minChannel(r, g, b)
		v := clampByte(lum + coef.Bias*sat)
		pix[i], pix[i+1], pix[i+2] = v, v, v
	}
	return pix
}

// Binarize clips every channel to white above mean-k1*sigma and to black
// below mean-k2*sigma (k1 < k2), leaving the band in between untouched. The
// adaptive threshold absorbs per-photo exposure differences that a fixed
// constant cannot.
func Binarize(pix []byte, k1, k2 float64) []byte {
	mean, sigma := brightnessStats(pix)
	hi := mean - k1*sigma
	lo := mean - k2*sigma
	for i := 0; i+3 < len(pix); i += 4 {
		v := luminance(pix[i], pix[i+1], pix[i+2])
		switch {
		case v > hi:
			pix[i], pix[i+1], pix[i+2] = 0xff, 0xff, 0xff
		case v < lo:
			pix[i], pix[i+1], pix[i+2] = 0, 0, 0
		}
	}
	return pix
}

// BlueGreenEmphasis isolates printed label text from handwritten and stamped
// content by thresholding the per-pixel greenness-minus-redness signal at
// mean+3*sigma. Pixels above the threshold become black, the rest white.
func BlueGreenEmphasis(pix []byte) []byte {
	n := len(pix) / 4
	if n == 0 {
		return pix
	}
	samples := make([]float64, 0, n/statSampleStride+1)
	for i := 0; i+3 < len(pix); i += 4 * statSampleStride {
		samples = append(samples, greenness(pix[i], pix[i+1]))
	}
	mean, sigma := stat.MeanStdDev(samples, nil)
	if len(samples) < 2 {
		sigma = 0
	}
	threshold := mean + 3*sigma
	for i := 0; i+3 < len(pix); i += 4 {
		if greenness(pix[i], pix[i+1]) > threshold {
			pix[i], pix[i+1], pix[i+2] = 0, 0, 0
		} else {
			pix[i], pix[i+1], pix[i+2] = 0xff, 0xff, 0xff
		}
	}
	return pix
}

func brightnessStats(pix []byte) (mean, sigma float64) {
	n := len(pix) / 4
	if n == 0 {
		return 0, 0
	}
	samples := make([]float64, 0, n/statSampleStride+1)
	for i := 0; i+3 < len(pix); i += 4 * statSampleStride {
		samples = append(samples, luminance(pix[i], pix[i+1], pix[i+2]))
	}
	mean, sigma = stat.MeanStdDev(samples, nil)
	if len(samples) < 2 {
		sigma = 0
	}
	return mean, sigma
}

func luminance(r, g, b byte) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

func greenness(r, g byte) float64 { return float64(g) - float64(r) }

func maxChannel(r, g, b float64) float64 {
	m := r
	if g > m {
		m = g
	}
	if b > m {
		m = b
	}
	return m
}

func minChannel(r, g, b float64) float64 {
	m := r
	if g < m {
		m = g
	}
	if b < m {
		m = b
	}
	return m
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
