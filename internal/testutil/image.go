package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PhotoConfig describes a synthetic document photograph: a bright card
// carrying dark text rows, placed on a darker backdrop, optionally tilted
// the way handheld shots are.
type PhotoConfig struct {
	Width    int
	Height   int
	Rows     []string
	Card     color.Color
	Backdrop color.Color
	Ink      color.Color
	Angle    float64 // tilt in degrees
}

// DefaultPhotoConfig returns a landscape card photo with no tilt.
func DefaultPhotoConfig(rows ...string) PhotoConfig {
	return PhotoConfig{
		Width:    800,
		Height:   600,
		Rows:     rows,
		Card:     color.White,
		Backdrop: color.RGBA{R: 70, G: 70, B: 80, A: 255},
		Ink:      color.Black,
	}
}

// DocPhoto renders the configured photograph. The card occupies the middle
// three quarters of the frame; rows are typeset top to bottom with the
// basicfont face.
func DocPhoto(t *testing.T, cfg PhotoConfig) *image.RGBA {
	t.Helper()
	require.Positive(t, cfg.Width)
	require.Positive(t, cfg.Height)

	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{cfg.Backdrop}, image.Point{}, draw.Src)

	card := image.Rect(cfg.Width/8, cfg.Height/8, cfg.Width*7/8, cfg.Height*7/8)
	draw.Draw(img, card, &image.Uniform{cfg.Card}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{cfg.Ink},
		Face: basicfont.Face7x13,
	}
	lineHeight := basicfont.Face7x13.Metrics().Height.Ceil() + 6
	y := card.Min.Y + lineHeight
	for _, row := range cfg.Rows {
		drawer.Dot = fixed.P(card.Min.X+10, y)
		drawer.DrawString(row)
		y += lineHeight
		if y > card.Max.Y {
			break
		}
	}

	if cfg.Angle != 0 {
		rotated := imaging.Rotate(img, cfg.Angle, cfg.Backdrop)
		out := image.NewRGBA(rotated.Bounds())
		draw.Draw(out, out.Bounds(), rotated, rotated.Bounds().Min, draw.Src)
		return out
	}
	return img
}

// WritePNG stores the image under dir and returns its path.
func WritePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, png.Encode(f, img))
	return path
}
