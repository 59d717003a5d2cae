package extract

import "encoding/json"

// FieldValue is one extracted field. An invalid value means the region could
// not be read or the corrector rejected the text; it serializes as null.
type FieldValue struct {
	Text       string
	Valid      bool
	Confidence float64
}

// MarshalJSON renders the corrected text, or null for an invalid field.
func (f FieldValue) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Text)
}

// UnmarshalJSON accepts the same text-or-null shape.
func (f *FieldValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = FieldValue{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = FieldValue{Text: s, Valid: true}
	return nil
}

// Payload maps field keys to their extracted values. Created fresh per run
// and returned to the caller; the extractor keeps no reference to it.
type Payload map[string]FieldValue

// Confirmed returns the valid field texts, the shape UpdateHistory consumes.
func (p Payload) Confirmed() map[string]string {
	out := make(map[string]string)
	for key, v := range p {
		if v.Valid {
			out[key] = v.Text
		}
	}
	return out
}
