// Package docfield declares, per document type, where each field sits inside
// the canonical view and how its raw text is corrected. Registries are
// immutable configuration values built once and passed by reference into the
// orchestrator; nothing here mutates after construction.
package docfield

import (
	"fmt"

	"github.com/dokuscan/dokuscan/internal/corrector"
	"github.com/dokuscan/dokuscan/internal/utils"
)

// DocType identifies a supported document layout.
type DocType string

const (
	// DocPassport is the Indonesian passport biodata page.
	DocPassport DocType = "passport"
	// DocIDCard is the Indonesian national ID card (KTP).
	DocIDCard DocType = "ktp"
)

// CorrectMode is the tagged dispatch for a field's correction strategy.
type CorrectMode int

const (
	// CorrectNone passes the raw trimmed text through.
	CorrectNone CorrectMode = iota
	// CorrectHistory applies only the history fuzzy matcher.
	CorrectHistory
	// CorrectCustom applies the target's Correct function.
	CorrectCustom
)

// NoLine marks a target that is addressed geometrically, not by line index.
const NoLine = -1

// Target describes one extractable field.
type Target struct {
	// Key is the field name in the payload.
	Key string
	// Box is the approximate relative bounding box within the canonical
	// view. Ignored for positional targets.
	Box utils.RelBox
	// LineIndex addresses the field by its row within a full-view
	// recognition pass; NoLine for geometric targets.
	LineIndex int
	// Variant selects the recognition worker pool; empty means default.
	Variant string
	// IsDate triggers the redundant three-way day/month/year sub-read.
	IsDate bool
	// History marks the field as participating in per-field history.
	History bool
	// Mode selects the correction strategy.
	Mode CorrectMode
	// Correct is applied when Mode is CorrectCustom.
	Correct corrector.Corrector
	// AltOf names the primary key this target is a duplicate candidate
	// for. Duplicates are reconciled by confidence and the transient key
	// dropped from the payload.
	AltOf string
}

// Positional reports whether the target is addressed by line index.
func (t Target) Positional() bool { return t.LineIndex != NoLine }

// Registry is the immutable per-document-type field table.
type Registry struct {
	Doc DocType
	// WorkingWidth is the recommended surface width for field extraction.
	WorkingWidth int
	// SectionWidth is the recommended width for smaller sub-region reads.
	SectionWidth int
	// HistoryLimit caps each field's confirmed-value history.
	HistoryLimit int
	Targets      []Target

	byKey map[string]int
}

func newRegistry(doc DocType, workingWidth, sectionWidth int, targets []Target) *Registry {
	r := &Registry{
		Doc:          doc,
		WorkingWidth: workingWidth,
		SectionWidth: sectionWidth,
		HistoryLimit: DefaultHistoryLimit,
		Targets:      targets,
		byKey:        make(map[string]int, len(targets)),
	}
	for i, t := range targets {
		r.byKey[t.Key] = i
	}
	return r
}

// DefaultHistoryLimit caps per-field history unless overridden.
const DefaultHistoryLimit = 10

// Lookup returns the target for a field key.
func (r *Registry) Lookup(key string) (Target, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return Target{}, false
	}
	return r.Targets[i], true
}

// Validate checks the registry invariants: unique keys, well-formed boxes for
// geometric targets, resolvable duplicate references.
func (r *Registry) Validate() error {
	seen := make(map[string]bool, len(r.Targets))
	for _, t := range r.Targets {
		if t.Key == "" {
			return fmt.Errorf("registry %s: empty field key", r.Doc)
		}
		if seen[t.Key] {
			return fmt.Errorf("registry %s: duplicate field key %q", r.Doc, t.Key)
		}
		seen[t.Key] = true
		if !t.Positional() && !t.Box.Valid() {
			return fmt.Errorf("registry %s: field %q has invalid box %+v", r.Doc, t.Key, t.Box)
		}
		if t.Mode == CorrectCustom && t.Correct == nil {
			return fmt.Errorf("registry %s: field %q declares a custom corrector but provides none", r.Doc, t.Key)
		}
	}
	for _, t := range r.Targets {
		if t.AltOf != "" && !seen[t.AltOf] {
			return fmt.Errorf("registry %s: field %q duplicates unknown key %q", r.Doc, t.Key, t.AltOf)
		}
	}
	if r.WorkingWidth <= 0 || r.SectionWidth <= 0 {
		return fmt.Errorf("registry %s: working widths must be positive", r.Doc)
	}
	return nil
}
