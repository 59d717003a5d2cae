package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dokuscan/dokuscan/internal/docfield"
	"github.com/dokuscan/dokuscan/internal/extract"
	"github.com/dokuscan/dokuscan/internal/locate"
	"github.com/dokuscan/dokuscan/internal/pipeline"
)

const (
	outputFormatJSON = "json"
	outputFormatText = "text"
)

var passportCmd = newExtractCommand(docfield.DocPassport, "passport",
	"Extract fields from a passport biodata page",
	`Extract structured fields from photographs of Indonesian passport
biodata pages.

Examples:
  dokuscan passport photo.jpg
  dokuscan passport *.jpg --format json
  dokuscan passport photo.jpg --debug-dir ./stages`)

var ktpCmd = newExtractCommand(docfield.DocIDCard, "ktp",
	"Extract fields from a KTP identity card",
	`Extract structured fields from photographs of Indonesian KTP
identity cards.

Examples:
  dokuscan ktp card.jpg
  dokuscan ktp card.jpg --format text
  dokuscan ktp card.jpg --overrides calibration.yaml`)

func newExtractCommand(doc docfield.DocType, use, short, long string) *cobra.Command {
	cmd := &cobra.Command{
		Use:          use + " [files...]",
		Short:        short,
		Long:         long,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("no input files provided")
			}
			return runExtract(cmd, doc, args)
		},
	}

	cmd.Flags().String("format", "", "output format (json, text)")
	cmd.Flags().StringP("output", "o", "", "write results to file instead of stdout")
	cmd.Flags().String("overrides", "", "YAML file with field calibration overrides")
	cmd.Flags().String("debug-dir", "", "directory receiving intermediate surface snapshots")
	cmd.Flags().String("history-file", "", "JSON file seeding the field history")

	return cmd
}

func runExtract(cmd *cobra.Command, doc docfield.DocType, files []string) error {
	cfg := GetConfig()

	format := flagOrConfig(cmd, "format", cfg.Output.Format)
	if format == "" {
		format = outputFormatJSON
	}
	if format != outputFormatJSON && format != outputFormatText {
		return fmt.Errorf("invalid output format: %s (must be json or text)", format)
	}
	debugDir := flagOrConfig(cmd, "debug-dir", cfg.Output.DebugDir)

	pcfg := cfg.ToPipelineConfig(doc)
	if v, _ := cmd.Flags().GetString("overrides"); v != "" {
		pcfg.OverridesPath = v
	}

	b := pipeline.NewBuilder(doc).WithConfig(pcfg)
	if debugDir != "" {
		sink, err := fileDebugSink(debugDir)
		if err != nil {
			return err
		}
		b = b.WithDebugSink(sink)
	}
	if path, _ := cmd.Flags().GetString("history-file"); path != "" {
		snapshot, err := loadHistorySnapshot(path)
		if err != nil {
			return err
		}
		b = b.WithHistory(snapshot)
	}

	p, err := b.Build()
	if err != nil {
		return err
	}
	defer func() { _ = p.Terminate() }()

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var firstErr error
	for _, file := range files {
		if err := p.MountFile(file); err != nil {
			fmt.Fprintf(os.Stderr, "Error mounting %s: %v\n", file, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		payload, err := p.Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", file, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := renderPayload(out, format, file, payload); err != nil {
			return err
		}
	}
	return firstErr
}

func flagOrConfig(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}

type fileResult struct {
	File   string          `json:"file"`
	Fields extract.Payload `json:"fields"`
}

func renderPayload(out io.Writer, format, file string, payload extract.Payload) error {
	if format == outputFormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(fileResult{File: file, Fields: payload})
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(out, "%s:\n", file)
	for _, k := range keys {
		v := payload[k]
		if v.Valid {
			fmt.Fprintf(out, "  %-20s %s (%.0f)\n", k, v.Text, v.Confidence)
		} else {
			fmt.Fprintf(out, "  %-20s -\n", k)
		}
	}
	return nil
}

// fileDebugSink writes every pipeline stage snapshot as a numbered PNG.
func fileDebugSink(dir string) (locate.DebugSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}
	var mu sync.Mutex
	seq := 0
	return func(stage string, img image.Image) {
		mu.Lock()
		seq++
		name := fmt.Sprintf("%02d_%s.png", seq, stage)
		mu.Unlock()

		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing debug snapshot: %v\n", err)
			return
		}
		defer func() { _ = f.Close() }()
		if err := png.Encode(f, img); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding debug snapshot: %v\n", err)
		}
	}, nil
}

func loadHistorySnapshot(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	var snapshot map[string][]string
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parse history file: %w", err)
	}
	return snapshot, nil
}

func init() {
	rootCmd.AddCommand(passportCmd)
	rootCmd.AddCommand(ktpCmd)
}
