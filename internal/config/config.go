// Package config loads the application configuration from files, environment
// variables and flag bindings, and converts it into per-component configs.
package config

import (
	"fmt"
	"strings"

	"github.com/dokuscan/dokuscan/internal/docfield"
	"github.com/dokuscan/dokuscan/internal/extract"
	"github.com/dokuscan/dokuscan/internal/locate"
	"github.com/dokuscan/dokuscan/internal/ocr"
	"github.com/dokuscan/dokuscan/internal/pipeline"
)

// Config is the complete application configuration, covering the extraction
// pipeline, output handling and the serve command.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose"   yaml:"verbose"   json:"verbose"`

	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Output   OutputConfig   `mapstructure:"output"   yaml:"output"   json:"output"`
	Server   ServerConfig   `mapstructure:"server"   yaml:"server"   json:"server"`
}

// PipelineConfig contains extraction pipeline settings.
type PipelineConfig struct {
	// HistoryLimit caps per-field correction history.
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit" json:"history_limit"`
	// OverridesPath points at an optional YAML field-calibration file.
	OverridesPath string `mapstructure:"overrides_path" yaml:"overrides_path" json:"overrides_path"`

	Locate   LocateConfig             `mapstructure:"locate"   yaml:"locate"   json:"locate"`
	Variants map[string]VariantConfig `mapstructure:"variants" yaml:"variants" json:"variants"`
}

// LocateConfig contains document-localization calibration.
type LocateConfig struct {
	SearchWidth    int     `mapstructure:"search_width"    yaml:"search_width"    json:"search_width"`
	Sections       int     `mapstructure:"sections"        yaml:"sections"        json:"sections"`
	SectionOverlap float64 `mapstructure:"section_overlap" yaml:"section_overlap" json:"section_overlap"`
	DigitThreshold int     `mapstructure:"digit_threshold" yaml:"digit_threshold" json:"digit_threshold"`
	LineBudget     int     `mapstructure:"line_budget"     yaml:"line_budget"     json:"line_budget"`
}

// VariantConfig overrides one recognition worker-pool variant.
type VariantConfig struct {
	PoolSize  int    `mapstructure:"pool_size" yaml:"pool_size" json:"pool_size"`
	Whitelist string `mapstructure:"whitelist" yaml:"whitelist" json:"whitelist"`
	Blacklist string `mapstructure:"blacklist" yaml:"blacklist" json:"blacklist"`
}

// OutputConfig contains result output settings.
type OutputConfig struct {
	// Format selects the payload rendering: json or text.
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	// DebugDir, when set, receives intermediate surface snapshots.
	DebugDir string `mapstructure:"debug_dir" yaml:"debug_dir" json:"debug_dir"`
}

// ServerConfig contains HTTP server settings for the serve command.
type ServerConfig struct {
	Host           string `mapstructure:"host"             yaml:"host"             json:"host"`
	Port           int    `mapstructure:"port"             yaml:"port"             json:"port"`
	MaxUploadMB    int    `mapstructure:"max_upload_mb"    yaml:"max_upload_mb"    json:"max_upload_mb"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"  yaml:"timeout_seconds"  json:"timeout_seconds"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch strings.ToLower(c.Output.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid output format %q", c.Output.Format)
	}
	if c.Pipeline.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must not be negative")
	}
	if c.Pipeline.Locate.SectionOverlap < 0 || c.Pipeline.Locate.SectionOverlap >= 1 {
		return fmt.Errorf("section_overlap must be in [0,1)")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	for name, v := range c.Pipeline.Variants {
		if v.PoolSize < 0 {
			return fmt.Errorf("variant %q: pool_size must not be negative", name)
		}
	}
	return nil
}

// ToPipelineConfig converts the loaded settings into a pipeline configuration
// for one document type. Zero-valued knobs keep the built-in defaults.
func (c *Config) ToPipelineConfig(doc docfield.DocType) pipeline.Config {
	out := pipeline.DefaultConfig(doc)
	out.HistoryLimit = c.Pipeline.HistoryLimit
	out.OverridesPath = c.Pipeline.OverridesPath
	out.Locate = c.locateConfig(out.Locate)
	out.OCR.Variants = c.variantConfigs(out.OCR.Variants)
	out.Extract = c.ExtractConfig()
	return out
}

func (c *Config) locateConfig(base locate.Config) locate.Config {
	lc := c.Pipeline.Locate
	if lc.SearchWidth > 0 {
		base.SearchWidth = lc.SearchWidth
	}
	if lc.Sections > 0 {
		base.Sections = lc.Sections
	}
	if lc.SectionOverlap > 0 {
		base.SectionOverlap = lc.SectionOverlap
	}
	if lc.DigitThreshold > 0 {
		base.DigitThreshold = lc.DigitThreshold
	}
	if lc.LineBudget > 0 {
		base.LineBudget = lc.LineBudget
	}
	return base
}

func (c *Config) variantConfigs(base map[string]ocr.VariantConfig) map[string]ocr.VariantConfig {
	for name, override := range c.Pipeline.Variants {
		cfg, ok := base[name]
		if !ok {
			cfg = ocr.VariantConfig{Name: name}
		}
		if override.PoolSize > 0 {
			cfg.PoolSize = override.PoolSize
		}
		if override.Whitelist != "" {
			cfg.Whitelist = override.Whitelist
		}
		if override.Blacklist != "" {
			cfg.Blacklist = override.Blacklist
		}
		base[name] = cfg
	}
	return base
}

// ExtractConfig returns the extractor knobs implied by the output settings.
func (c *Config) ExtractConfig() extract.Config {
	return extract.Config{MarkBoxes: c.Output.DebugDir != ""}
}
