package extract

// History holds previously human-confirmed canonical values per field, used
// to bias the correctors toward known-good strings. Append happens only via
// UpdateHistory after the caller has verified a payload, never automatically.
type History struct {
	limit  int
	values map[string][]string
}

// NewHistory creates an empty history with the given per-field cap. A
// non-positive cap falls back to 1.
func NewHistory(limit int) *History {
	if limit < 1 {
		limit = 1
	}
	return &History{limit: limit, values: make(map[string][]string)}
}

// Restore seeds the history from a previously exported snapshot, applying
// the cap to each field.
func Restore(limit int, snapshot map[string][]string) *History {
	h := NewHistory(limit)
	for key, vals := range snapshot {
		for _, v := range vals {
			h.Add(key, v)
		}
	}
	return h
}

// Values returns the confirmed values for a field, oldest first. The
// returned slice is shared; callers must not mutate it.
func (h *History) Values(key string) []string {
	return h.values[key]
}

// Add appends a confirmed value unless an exact duplicate is already
// present, evicting the oldest entry once the cap is exceeded.
func (h *History) Add(key, value string) {
	if value == "" {
		return
	}
	vals := h.values[key]
	for _, v := range vals {
		if v == value {
			return
		}
	}
	vals = append(vals, value)
	if len(vals) > h.limit {
		vals = vals[len(vals)-h.limit:]
	}
	h.values[key] = vals
}

// Snapshot copies the history for persistence across sessions.
func (h *History) Snapshot() map[string][]string {
	out := make(map[string][]string, len(h.values))
	for key, vals := range h.values {
		out[key] = append([]string(nil), vals...)
	}
	return out
}
