// Package ocr wraps the external recognition engine behind named worker-pool
// variants. The engine is a black box: submit an image region, get back
// lines, words and symbols with bounding boxes and confidences.
package ocr

import (
	"context"
	"image"
	"strings"
)

// Symbol is a single glyph with its bounding box.
type Symbol struct {
	Box image.Rectangle
}

// Word is a recognized token.
type Word struct {
	Text    string
	Box     image.Rectangle
	Symbols []Symbol
}

// Line is a recognized text line. Confidence is in [0,100].
type Line struct {
	Text       string
	Confidence float64
	Box        image.Rectangle
	Words      []Word
}

// Result is the structured output of one recognition job.
type Result struct {
	Lines []Line
}

// Text joins all line texts with newlines.
func (r *Result) Text() string {
	parts := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, "\n")
}

// MeanConfidence averages line confidences; zero when no lines came back.
func (r *Result) MeanConfidence() float64 {
	if len(r.Lines) == 0 {
		return 0
	}
	var sum float64
	for _, l := range r.Lines {
		sum += l.Confidence
	}
	return sum / float64(len(r.Lines))
}

// JobOptions restricts a recognition job.
type JobOptions struct {
	// Rect limits recognition to a sub-rectangle of the submitted image.
	// The crop happens on the engine side of the facade so callers never
	// duplicate pixel buffers.
	Rect *image.Rectangle
}

// Engine is the collaborator interface to one recognition worker instance.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, opts JobOptions) (*Result, error)
	Close() error
}

// JobRunner submits recognition jobs against a variant's worker pool.
type JobRunner interface {
	AddJob(ctx context.Context, img image.Image, opts JobOptions) (*Result, error)
}

// Provider hands out variant job runners.
type Provider interface {
	Get(variant string) (JobRunner, error)
}
