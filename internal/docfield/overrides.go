package docfield

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dokuscan/dokuscan/internal/utils"
)

// Overrides carries per-deployment calibration loaded from YAML. Scanner rigs
// differ in framing, so boxes and widths tuned on one rig can be shifted
// without a rebuild. Only the listed knobs are overridable; correctors and
// line positions stay compiled in.
type Overrides struct {
	WorkingWidth int                       `yaml:"working_width"`
	SectionWidth int                       `yaml:"section_width"`
	HistoryLimit int                       `yaml:"history_limit"`
	Targets      map[string]TargetOverride `yaml:"targets"`
}

// TargetOverride adjusts a single field target.
type TargetOverride struct {
	Box     *utils.RelBox `yaml:"box"`
	Variant *string       `yaml:"variant"`
}

// LoadOverrides parses an overrides document.
func LoadOverrides(r io.Reader) (*Overrides, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	return &o, nil
}

// LoadOverridesFile reads an overrides document from disk.
func LoadOverridesFile(path string) (*Overrides, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open overrides: %w", err)
	}
	defer f.Close()
	return LoadOverrides(f)
}

// Apply returns a copy of the registry with the overrides folded in. The
// receiver registry is never mutated. Unknown target keys and invalid boxes
// are errors rather than silent no-ops so a typo in the calibration file
// surfaces at startup.
func (o *Overrides) Apply(r *Registry) (*Registry, error) {
	targets := append([]Target(nil), r.Targets...)
	out := newRegistry(r.Doc, r.WorkingWidth, r.SectionWidth, targets)
	out.HistoryLimit = r.HistoryLimit

	if o.WorkingWidth > 0 {
		out.WorkingWidth = o.WorkingWidth
	}
	if o.SectionWidth > 0 {
		out.SectionWidth = o.SectionWidth
	}
	if o.HistoryLimit > 0 {
		out.HistoryLimit = o.HistoryLimit
	}
	for key, ov := range o.Targets {
		i, ok := out.byKey[key]
		if !ok {
			return nil, fmt.Errorf("override for unknown field %q in %s registry", key, r.Doc)
		}
		if ov.Box != nil {
			if !ov.Box.Valid() {
				return nil, fmt.Errorf("override for field %q: invalid box %+v", key, *ov.Box)
			}
			out.Targets[i].Box = *ov.Box
		}
		if ov.Variant != nil {
			out.Targets[i].Variant = *ov.Variant
		}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
