// Package raster provides the mutable pixel surface the extraction pipeline
// operates on. Each pipeline invocation owns exactly one live surface;
// destructive operations replace its buffer in place.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"

	"github.com/dokuscan/dokuscan/internal/utils"
)

// ProcessingError wraps failures of a named surface operation.
type ProcessingError struct {
	Operation string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("raster %s: %v", e.Operation, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Surface is an addressable RGBA pixel buffer.
// Invariant: len(pix) == width*height*4.
type Surface struct {
	width  int
	height int
	pix    []byte
}

// New allocates a zeroed surface of the given dimensions.
func New(width, height int) *Surface {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Surface{width: width, height: height, pix: make([]byte, width*height*4)}
}

// FromImage copies an image into a freshly allocated surface.
func FromImage(img image.Image) *Surface {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Surface{width: b.Dx(), height: b.Dy(), pix: rgba.Pix}
}

// Width returns the surface width in pixels.
func (s *Surface) Width() int { return s.width }

// Height returns the surface height in pixels.
func (s *Surface) Height() int { return s.height }

// Bounds returns the surface bounds as an image.Rectangle anchored at origin.
func (s *Surface) Bounds() image.Rectangle { return image.Rect(0, 0, s.width, s.height) }

// Pix exposes the raw RGBA buffer. The buffer is owned by the surface and is
// replaced wholesale by Crop, Rotate and ToWidth.
func (s *Surface) Pix() []byte { return s.pix }

// Image wraps the surface buffer as an *image.RGBA without copying pixels.
func (s *Surface) Image() *image.RGBA {
	return &image.RGBA{Pix: s.pix, Stride: s.width * 4, Rect: s.Bounds()}
}

// Clone returns a deep copy, used as a backup before destructive crops.
func (s *Surface) Clone() *Surface {
	pix := make([]byte, len(s.pix))
	copy(pix, s.pix)
	return &Surface{width: s.width, height: s.height, pix: pix}
}

// SetImage replaces the surface content with the given image.
func (s *Surface) SetImage(img image.Image) {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	s.width = b.Dx()
	s.height = b.Dy()
	s.pix = rgba.Pix
}

// at reads the pixel at x,y without bounds checking.
func (s *Surface) at(x, y int) (r, g, b, a byte) {
	i := (y*s.width + x) * 4
	return s.pix[i], s.pix[i+1], s.pix[i+2], s.pix[i+3]
}

// sample reads the pixel at x,y, returning white for out-of-bounds reads so
// rotated corners blend with typical scan backgrounds.
func (s *Surface) sample(x, y int) (byte, byte, byte, byte) {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return 0xff, 0xff, 0xff, 0xff
	}
	return s.at(x, y)
}

// rotated returns a buffer of identical dimensions with the content rotated
// by angle radians about the pivot, sampled with nearest-neighbour inverse
// mapping. The source buffer is left untouched.
func (s *Surface) rotated(pivot utils.Point, angle float64) []byte {
	out := make([]byte, len(s.pix))
	sin, cos := math.Sincos(-angle)
	for y := 0; y < s.height; y++ {
		fy := float64(y) - pivot.Y
		for x := 0; x < s.width; x++ {
			fx := float64(x) - pivot.X
			sx := int(math.Round(pivot.X + fx*cos - fy*sin))
			sy := int(math.Round(pivot.Y + fx*sin + fy*cos))
			r, g, b, a := s.sample(sx, sy)
			i := (y*s.width + x) * 4
			out[i], out[i+1], out[i+2], out[i+3] = r, g, b, a
		}
	}
	return out
}

// Rotate rotates the whole surface about an arbitrary pivot without resizing.
func (s *Surface) Rotate(pivot utils.Point, angle float64) {
	if angle == 0 {
		return
	}
	s.pix = s.rotated(pivot, angle)
}

// Crop rotates the current content about the rectangle's top-left corner by
// -angle, then extracts the sub-rectangle, replacing the surface's dimensions
// and content. A zero angle degenerates to a plain crop.
func (s *Surface) Crop(rect image.Rectangle, angle float64) error {
	rect = rect.Intersect(s.Bounds())
	if rect.Empty() {
		return &ProcessingError{Operation: "crop", Err: fmt.Errorf("rectangle %v outside surface %dx%d", rect, s.width, s.height)}
	}
	src := s.pix
	if angle != 0 {
		pivot := utils.Point{X: float64(rect.Min.X), Y: float64(rect.Min.Y)}
		src = s.rotated(pivot, -angle)
	}
	w, h := rect.Dx(), rect.Dy()
	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		srcOff := ((rect.Min.Y+y)*s.width + rect.Min.X) * 4
		copy(out[y*w*4:(y+1)*w*4], src[srcOff:srcOff+w*4])
	}
	s.width, s.height, s.pix = w, h, out
	return nil
}

// ToWidth uniformly rescales the surface so its width equals target. When the
// current width already exceeds the target and downscaling is disallowed, the
// surface is left untouched.
func (s *Surface) ToWidth(target int, downscaleAllowed bool) {
	if target <= 0 || s.width == 0 || s.width == target {
		return
	}
	if s.width > target && !downscaleAllowed {
		return
	}
	scale := float64(target) / float64(s.width)
	height := int(math.Round(float64(s.height) * scale))
	if height < 1 {
		height = 1
	}
	resized := imaging.Resize(s.Image(), target, height, imaging.Lanczos)
	s.SetImage(resized)
}

// MarkBoxes draws debug outlines for the given rectangles directly onto the
// surface. Purely a visual aid; no return contract.
func (s *Surface) MarkBoxes(boxes []image.Rectangle) {
	img := s.Image()
	outline := color.RGBA{R: 0xff, A: 0xff}
	for _, r := range boxes {
		r = r.Intersect(s.Bounds())
		if r.Empty() {
			continue
		}
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, r.Min.Y, outline)
			img.SetRGBA(x, r.Max.Y-1, outline)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			img.SetRGBA(r.Min.X, y, outline)
			img.SetRGBA(r.Max.X-1, y, outline)
		}
	}
}
