package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokuscan/dokuscan/internal/docfield"
	"github.com/dokuscan/dokuscan/internal/ocr"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	return NewLoader()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := newTestLoader(t).Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, 10, cfg.Pipeline.HistoryLimit)
	assert.Equal(t, 1000, cfg.Pipeline.Locate.SearchWidth)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dokuscan.yaml")
	doc := `
log_level: debug
pipeline:
  history_limit: 5
  variants:
    number:
      pool_size: 3
server:
  port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := newTestLoader(t).LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Pipeline.HistoryLimit)
	assert.Equal(t, 3, cfg.Pipeline.Variants["number"].PoolSize)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoadWithMissingFileFails(t *testing.T) {
	_, err := newTestLoader(t).LoadWithFile("/nonexistent/dokuscan.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DOKUSCAN_LOG_LEVEL", "warn")
	cfg, err := newTestLoader(t).Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]Config{
		"log level": {LogLevel: "chatty"},
		"format":    {Output: OutputConfig{Format: "xml"}},
		"history":   {Pipeline: PipelineConfig{HistoryLimit: -1}},
		"overlap":   {Pipeline: PipelineConfig{Locate: LocateConfig{SectionOverlap: 1.5}}},
		"port":      {Server: ServerConfig{Port: 70000}},
		"pool size": {Pipeline: PipelineConfig{Variants: map[string]VariantConfig{
			"number": {PoolSize: -2},
		}}},
	}
	for name, cfg := range cases {
		assert.Error(t, cfg.Validate(), name)
	}
	var ok Config
	assert.NoError(t, ok.Validate())
}

func TestToPipelineConfig(t *testing.T) {
	cfg := Config{
		Pipeline: PipelineConfig{
			HistoryLimit:  5,
			OverridesPath: "calib.yaml",
			Locate:        LocateConfig{SearchWidth: 1200, DigitThreshold: 10},
			Variants: map[string]VariantConfig{
				"number": {PoolSize: 3},
				"mrz":    {PoolSize: 1, Whitelist: "0123456789<ABCDHIJK"},
			},
		},
	}
	pc := cfg.ToPipelineConfig(docfield.DocPassport)

	assert.Equal(t, docfield.DocPassport, pc.Doc)
	assert.Equal(t, 5, pc.HistoryLimit)
	assert.Equal(t, "calib.yaml", pc.OverridesPath)
	assert.Equal(t, 1200, pc.Locate.SearchWidth)
	assert.Equal(t, 10, pc.Locate.DigitThreshold)
	// Unset knobs keep their defaults.
	assert.Equal(t, 4, pc.Locate.Sections)

	assert.Equal(t, 3, pc.OCR.Variants[ocr.VariantNumber].PoolSize)
	// The digit whitelist survives a pool-size-only override.
	assert.Equal(t, "0123456789", pc.OCR.Variants[ocr.VariantNumber].Whitelist)
	// Unknown variants are added whole.
	assert.Equal(t, "0123456789<ABCDHIJK", pc.OCR.Variants["mrz"].Whitelist)
}
