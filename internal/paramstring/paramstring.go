// SPDX-License-Identifier: MIT

// Package paramstring parses the `key=value\n...` parameter strings used
// to construct stages through the registry into an ordered mapping, and
// serializes maps back to canonical form. It is a pure utility shared by
// the registry and the flow engine's scheduling-option parser.
package paramstring

import "strings"

// Map is an ordered key/value mapping parsed from a parameter string.
// Duplicate keys are last-write-wins; order reflects first insertion, so
// ToString round-trips in a stable, declaration-order form.
type Map struct {
	order []string
	values map[string]string
}

// New returns an empty Map.
func New() *Map {
	return &Map{values: make(map[string]string)}
}

// Options configures Parse's delimiter handling.
type Options struct {
	// EntryDelim separates top-level key=value entries. Defaults to "\n".
	EntryDelim string
	// KeyValueDelim separates a key from its value. Defaults to "=".
	KeyValueDelim string
}

func (o Options) withDefaults() Options {
	if o.EntryDelim == "" {
		o.EntryDelim = "\n"
	}
	if o.KeyValueDelim == "" {
		o.KeyValueDelim = "="
	}
	return o
}

// Parse converts a parameter string into an ordered Map. Whitespace is
// significant inside values. Unknown keys are preserved but ignored by
// consumers that don't recognize them. A key with no '=' delimiter (a bare
// line) is skipped rather than treated as a syntax error: Parse never fails,
// malformed input degrades to an empty or partial map rather than raising
// an exception.
func Parse(raw string, opts Options) *Map {
	opts = opts.withDefaults()
	m := New()
	if raw == "" {
		return m
	}

	entries := strings.Split(raw, opts.EntryDelim)
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		idx := strings.Index(entry, opts.KeyValueDelim)
		if idx < 0 {
			continue
		}
		key := entry[:idx]
		value := entry[idx+len(opts.KeyValueDelim):]
		m.Set(key, value)
	}
	return m
}

// Set inserts or overwrites key with value. The first Set of a key fixes
// its position for ToString's insertion-order serialization.
func (m *Map) Set(key, value string) {
	if _, exists := m.values[key]; !exists {
		m.order = append(m.order, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present. An empty value
// is valid and distinct from an absent key.
func (m *Map) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// GetOr returns the value for key, or def if the key is absent.
func (m *Map) GetOr(key, def string) string {
	if v, ok := m.Get(key); ok {
		return v
	}
	return def
}

// Has reports whether key is present (regardless of value).
func (m *Map) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.values[key]
	return ok
}

// Len returns the number of distinct keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// ToString serializes the map back to `key=value\n...` form, in insertion
// order (the order the declaring code first set each key, not sorted by
// key).
func (m *Map) ToString(opts Options) string {
	opts = opts.withDefaults()
	if m == nil || len(m.order) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, k := range m.order {
		if i > 0 {
			sb.WriteString(opts.EntryDelim)
		}
		sb.WriteString(k)
		sb.WriteString(opts.KeyValueDelim)
		sb.WriteString(m.values[k])
	}
	return sb.String()
}

// CSVTokens splits a comma-separated value into trimmed, non-empty tokens,
// used by the registry's capability DSL to read input_data_type /
// output_data_type.
func CSVTokens(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
