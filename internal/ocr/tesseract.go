package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// tesseractEngine implements Engine on a dedicated gosseract client. A client
// is not safe for concurrent use; exclusivity comes from the pool checkout.
type tesseractEngine struct {
	client *gosseract.Client
}

// NewTesseractEngine builds one Tesseract worker configured for the variant.
func NewTesseractEngine(cfg VariantConfig) (Engine, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage("ind", "eng"); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	if !cfg.EnableDictionary {
		// Proper nouns, codes and digit runs: the language model only hurts.
		for _, v := range []struct{ name, value string }{
			{"load_system_dawg", "false"},
			{"load_freq_dawg", "false"},
			{"language_model_penalty_non_dict_word", "0"},
			{"language_model_penalty_non_freq_dict_word", "0"},
		} {
			_ = client.SetVariable(gosseract.SettableVariable(v.name), v.value)
		}
	}
	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set whitelist: %w", err)
		}
	}
	if cfg.Blacklist != "" {
		if err := client.SetBlacklist(cfg.Blacklist); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set blacklist: %w", err)
		}
	}
	if cfg.PageSegMode > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	return &tesseractEngine{client: client}, nil
}

func (e *tesseractEngine) Close() error {
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// Recognize runs one job. The optional rectangle is applied before encoding
// so only the region's pixels cross the cgo boundary; SubImage shares the
// underlying buffer, no client-side pixel copy happens.
func (e *tesseractEngine) Recognize(ctx context.Context, img image.Image, opts JobOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offset := image.Point{}
	if opts.Rect != nil {
		rect := opts.Rect.Intersect(img.Bounds())
		if rect.Empty() {
			return &Result{}, nil
		}
		offset = rect.Min
		img = subImage(img, rect)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode region: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	words, err := e.client.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}
	symbols, err := e.client.GetBoundingBoxes(gosseract.RIL_SYMBOL)
	if err != nil {
		symbols = nil
	}
	return assemble(words, symbols, offset), nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func subImage(img image.Image, rect image.Rectangle) image.Image {
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			rgba.Set(x, y, img.At(rect.Min.X+x, rect.Min.Y+y))
		}
	}
	return rgba
}

// assemble groups word boxes into lines by their block/paragraph/line
// numbers and attaches symbol boxes by containment. Boxes are translated
// back into the submitted image's coordinate space.
func assemble(words []gosseract.BoundingBox, symbols []gosseract.BoundingBox, offset image.Point) *Result {
	type lineKey struct{ block, par, line int }
	order := make([]lineKey, 0, 8)
	grouped := make(map[lineKey][]gosseract.BoundingBox)
	for _, w := range words {
		if strings.TrimSpace(w.Word) == "" {
			continue
		}
		k := lineKey{block: w.BlockNum, par: w.ParNum, line: w.LineNum}
		if _, seen := grouped[k]; !seen {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], w)
	}

	res := &Result{Lines: make([]Line, 0, len(order))}
	for _, k := range order {
		ws := grouped[k]
		line := Line{Words: make([]Word, 0, len(ws))}
		var confSum float64
		texts := make([]string, 0, len(ws))
		box := image.Rectangle{}
		for _, w := range ws {
			wordBox := w.Box.Add(offset)
			word := Word{Text: strings.TrimSpace(w.Word), Box: wordBox}
			for _, s := range symbols {
				if s.Box.Add(offset).In(wordBox) {
					word.Symbols = append(word.Symbols, Symbol{Box: s.Box.Add(offset)})
				}
			}
			line.Words = append(line.Words, word)
			texts = append(texts, word.Text)
			confSum += w.Confidence
			if box.Empty() {
				box = wordBox
			} else {
				box = box.Union(wordBox)
			}
		}
		line.Text = strings.Join(texts, " ")
		line.Confidence = confSum / float64(len(ws))
		line.Box = box
		res.Lines = append(res.Lines, line)
	}
	return res
}
