package raster

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrUndecodable indicates the input file could not be decoded into pixels.
var ErrUndecodable = errors.New("input could not be decoded")

// MountFile loads a raster image, or the first page of a PDF, into the
// surface, sizing the surface to the source's natural pixel dimensions.
// Malformed input surfaces as a load failure; the caller aborts the pipeline.
func (s *Surface) MountFile(path string) error {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		img, err := firstPageImage(path)
		if err != nil {
			return &ProcessingError{Operation: "mount", Err: err}
		}
		s.SetImage(img)
		return nil
	}

	f, err := os.Open(path) //nolint:gosec // G304: user-provided document path is expected
	if err != nil {
		return &ProcessingError{Operation: "mount", Err: err}
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return &ProcessingError{Operation: "mount", Err: fmt.Errorf("%w: %v", ErrUndecodable, err)}
	}
	s.SetImage(img)
	return nil
}

// firstPageImage extracts the largest embedded image from page 1 of a PDF.
// Scanned identity documents are single full-page photographs, so the largest
// asset is the scan itself.
func firstPageImage(path string) (image.Image, error) {
	tempDir, err := os.MkdirTemp("", "dokuscan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	if err := api.ExtractImagesFile(path, tempDir, []string{"1"}, nil); err != nil {
		return nil, fmt.Errorf("%w: extract page 1: %v", ErrUndecodable, err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return nil, err
	}
	var best image.Image
	bestArea := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		img, err := decodeFile(filepath.Join(tempDir, entry.Name()))
		if err != nil {
			continue
		}
		area := img.Bounds().Dx() * img.Bounds().Dy()
		if area > bestArea {
			best, bestArea = img, area
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: page 1 contains no raster image", ErrUndecodable)
	}
	return best, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // G304: temp files created above
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	return img, err
}
