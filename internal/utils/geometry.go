package utils

import (
	"image"
	"math"
)

// Point represents a 2D coordinate in float space.
type Point struct {
	X float64
	Y float64
}

// Box represents an axis-aligned bounding box in float coordinates.
type Box struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// NewBox constructs a Box from min/max coordinates ensuring ordering.
func NewBox(x1, y1, x2, y2 float64) Box {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Box{MinX: x1, MinY: y1, MaxX: x2, MaxY: y2}
}

// BoxFromRect converts an image.Rectangle to a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{
		MinX: float64(r.Min.X), MinY: float64(r.Min.Y),
		MaxX: float64(r.Max.X), MaxY: float64(r.Max.Y),
	}
}

// Width returns the box width.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height returns the box height.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Center returns the box center point.
func (b Box) Center() Point {
	return Point{X: (b.MinX + b.MaxX) / 2, Y: (b.MinY + b.MaxY) / 2}
}

// ToRect converts a Box to an image.Rectangle, clamped to image bounds.
func (b Box) ToRect(bounds image.Rectangle) image.Rectangle {
	x1 := clampInt(int(math.Floor(b.MinX)), bounds.Min.X, bounds.Max.X)
	y1 := clampInt(int(math.Floor(b.MinY)), bounds.Min.Y, bounds.Max.Y)
	x2 := clampInt(int(math.Ceil(b.MaxX)), bounds.Min.X, bounds.Max.X)
	y2 := clampInt(int(math.Ceil(b.MaxY)), bounds.Min.Y, bounds.Max.Y)
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return image.Rect(x1, y1, x2, y2)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampInt clamps v into [lo, hi].
func ClampInt(v, lo, hi int) int { return clampInt(v, lo, hi) }

// RelBox is a rectangle expressed as fractions of a containing view so that
// targets survive rescaling. Invariant: 0 <= X0 < X1 <= 1, same for Y.
type RelBox struct {
	X0 float64 `yaml:"x0"`
	Y0 float64 `yaml:"y0"`
	X1 float64 `yaml:"x1"`
	Y1 float64 `yaml:"y1"`
}

// Rel constructs a RelBox.
func Rel(x0, y0, x1, y1 float64) RelBox { return RelBox{X0: x0, Y0: y0, X1: x1, Y1: y1} }

// Valid reports whether the fractions are ordered and within [0,1].
func (r RelBox) Valid() bool {
	return r.X0 >= 0 && r.Y0 >= 0 && r.X1 <= 1 && r.Y1 <= 1 && r.X0 < r.X1 && r.Y0 < r.Y1
}

// Abs maps the relative box onto a surface of the given pixel dimensions.
func (r RelBox) Abs(width, height int) image.Rectangle {
	return image.Rect(
		int(math.Round(r.X0*float64(width))),
		int(math.Round(r.Y0*float64(height))),
		int(math.Round(r.X1*float64(width))),
		int(math.Round(r.Y1*float64(height))),
	)
}

// SplitX divides the relative box into len(ratios) horizontal slices whose
// widths are proportional to ratios.
func (r RelBox) SplitX(ratios ...float64) []RelBox {
	var total float64
	for _, f := range ratios {
		total += f
	}
	if total <= 0 {
		return nil
	}
	out := make([]RelBox, 0, len(ratios))
	x := r.X0
	for _, f := range ratios {
		w := (r.X1 - r.X0) * f / total
		out = append(out, RelBox{X0: x, Y0: r.Y0, X1: x + w, Y1: r.Y1})
		x += w
	}
	// Absorb rounding drift into the last slice.
	out[len(out)-1].X1 = r.X1
	return out
}

// RotatePoint rotates p about pivot by angle radians (positive is
// counter-clockwise in image coordinates, y pointing down).
func RotatePoint(p, pivot Point, angle float64) Point {
	sin, cos := math.Sincos(angle)
	dx := p.X - pivot.X
	dy := p.Y - pivot.Y
	return Point{
		X: pivot.X + dx*cos - dy*sin,
		Y: pivot.Y + dx*sin + dy*cos,
	}
}

// AngleBetween returns the rotation implied by two horizontally separated
// boxes that are known to be co-linear in an upright document: the vertical
// offset of their centers over their horizontal separation.
func AngleBetween(left, right Box) float64 {
	lc := left.Center()
	rc := right.Center()
	dx := rc.X - lc.X
	if dx == 0 {
		return 0
	}
	return math.Atan2(rc.Y-lc.Y, dx)
}
