package ocr

// Variant names used by the pipeline.
const (
	VariantDefault = "default"
	VariantFast    = "fast"
	VariantNumber  = "number"
)

// VariantConfig describes one named worker-pool configuration. Dictionary
// features default to off because the target fields are proper nouns, codes
// and numbers the language model would only "correct" into garbage.
type VariantConfig struct {
	Name string `mapstructure:"name" yaml:"name" json:"name"`
	// Whitelist restricts the recognizable character set; empty means all.
	Whitelist string `mapstructure:"whitelist" yaml:"whitelist" json:"whitelist"`
	// Blacklist forbids characters the engine tends to hallucinate from
	// print noise.
	Blacklist string `mapstructure:"blacklist" yaml:"blacklist" json:"blacklist"`
	// EnableDictionary re-enables the engine's word lists.
	EnableDictionary bool `mapstructure:"enable_dictionary" yaml:"enable_dictionary" json:"enable_dictionary"`
	// PageSegMode selects the engine's layout analysis mode.
	PageSegMode int `mapstructure:"page_seg_mode" yaml:"page_seg_mode" json:"page_seg_mode"`
	// PoolSize is the number of engine worker instances.
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size" json:"pool_size"`
}

// Tesseract page segmentation modes used by the variants.
const (
	psmAutoOSD    = 1
	psmSingleLine = 7
)

// DefaultVariants returns the standard variant set.
func DefaultVariants() map[string]VariantConfig {
	return map[string]VariantConfig{
		VariantDefault: {
			Name:        VariantDefault,
			Blacklist:   `¡¿§«»®©°¢£€¥|`,
			PageSegMode: psmAutoOSD,
			PoolSize:    4,
		},
		VariantFast: {
			Name:        VariantFast,
			Blacklist:   `¡¿§«»®©°¢£€¥|`,
			PageSegMode: psmAutoOSD,
			PoolSize:    2,
		},
		VariantNumber: {
			Name:        VariantNumber,
			Whitelist:   "0123456789",
			PageSegMode: psmSingleLine,
			PoolSize:    2,
		},
	}
}
