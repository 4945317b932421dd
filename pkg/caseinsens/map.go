// Package caseinsens provides an explicit case-insensitive map wrapper.
//
// Lookups normalize keys to lower-case; the original casing supplied on
// first insert is preserved for iteration and emission order, matching the
// re-architecture note against ad-hoc case folding scattered at call sites.
package caseinsens

import (
	"sort"
	"strings"
)

// Map is an insertion-ordered, case-insensitive string-to-string map.
type Map struct {
	order    []string          // original-case keys, insertion order
	original map[string]string // lower(key) -> original-case key
	values   map[string]string // lower(key) -> value
}

// New returns an empty Map.
func New() *Map {
	return &Map{
		original: make(map[string]string),
		values:   make(map[string]string),
	}
}

// Set inserts or overwrites key with value. The first casing seen for a key
// is retained for iteration; later Sets with different casing update only
// the value.
func (m *Map) Set(key, value string) {
	lower := strings.ToLower(key)
	if _, exists := m.values[lower]; !exists {
		m.order = append(m.order, key)
		m.original[lower] = key
	}
	m.values[lower] = value
}

// Get returns the value for key and whether it was present.
func (m *Map) Get(key string) (string, bool) {
	v, ok := m.values[strings.ToLower(key)]
	return v, ok
}

// Delete removes key if present.
func (m *Map) Delete(key string) {
	lower := strings.ToLower(key)
	if _, exists := m.values[lower]; !exists {
		return
	}
	delete(m.values, lower)
	delete(m.original, lower)
	for i, k := range m.order {
		if strings.ToLower(k) == lower {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.values) }

// Keys returns the original-case keys in insertion order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Range calls fn for each entry in insertion order, using the original
// casing of the key.
func (m *Map) Range(fn func(key, value string)) {
	for _, k := range m.order {
		fn(k, m.values[strings.ToLower(k)])
	}
}

// ToMap returns a plain map[string]string snapshot (original casing, last
// value wins for any accidental case collisions, which Set already
// prevents).
func (m *Map) ToMap() map[string]string {
	out := make(map[string]string, len(m.values))
	m.Range(func(k, v string) { out[k] = v })
	return out
}

// FromMap builds a Map from a plain map, iterating keys in sorted order to
// keep construction deterministic regardless of Go's randomized map
// iteration.
func FromMap(src map[string]string) *Map {
	m := New()
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.Set(k, src[k])
	}
	return m
}
