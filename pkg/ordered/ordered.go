// Package ordered provides insertion-ordered, case-sensitive map types used
// to preserve document field order through decode/merge/encode so that
// unknown ("extra") YAML keys round-trip at the same position instead of
// being scattered or dropped.
package ordered

import "github.com/goccy/go-yaml"

// Map is an insertion-ordered string-keyed map of arbitrary values. It backs
// both the generic raw-tree representation the Merge Engine operates on and
// the per-node "extra" bag of unrecognized schema fields.
type Map struct {
	keys   []string
	values map[string]any
}

// New returns an empty Map.
func New() *Map {
	return &Map{values: make(map[string]any)}
}

// Set inserts or overwrites key. The first time a key is seen its position
// in Keys() is fixed; later Sets update the value in place.
func (m *Map) Set(key string, value any) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key if present.
func (m *Map) Delete(key string) {
	if _, exists := m.values[key]; !exists {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.values) }

// Keys returns keys in insertion order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for every entry in insertion order.
func (m *Map) Range(fn func(key string, value any)) {
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

// Clone returns a shallow copy: the key order and top-level entries are
// copied, but nested values are shared with the original.
func (m *Map) Clone() *Map {
	out := New()
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

// TypedMap is an insertion-ordered string-keyed map with a fixed value type,
// used for schema mappings (services, networks, volumes, secrets, configs)
// where both order and type safety matter.
type TypedMap[V any] struct {
	keys   []string
	values map[string]V
}

// NewTypedMap returns an empty TypedMap.
func NewTypedMap[V any]() *TypedMap[V] {
	return &TypedMap[V]{values: make(map[string]V)}
}

func (m *TypedMap[V]) Set(key string, value V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *TypedMap[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *TypedMap[V]) Delete(key string) {
	if _, exists := m.values[key]; !exists {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *TypedMap[V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.values)
}

func (m *TypedMap[V]) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *TypedMap[V]) Range(fn func(key string, value V)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

func (m *TypedMap[V]) Clone() *TypedMap[V] {
	out := NewTypedMap[V]()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

// UnmarshalYAML decodes a mapping node into an insertion-ordered Map whose
// values may themselves be nested *Map/[]any/scalars, using goccy's
// UseOrderedMap decode option so nested key order survives too.
func (m *Map) UnmarshalYAML(data []byte) error {
	var raw any
	if err := yaml.UnmarshalWithOptions(data, &raw, yaml.UseOrderedMap()); err != nil {
		return err
	}
	converted := fromRawOrdered(raw)
	if om, ok := converted.(*Map); ok {
		*m = *om
		return nil
	}
	*m = Map{values: make(map[string]any)}
	return nil
}

// MarshalYAML re-emits the map as a mapping node, preserving insertion order
// at every nesting level.
func (m Map) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(toRawOrdered(&m))
}

func fromRawOrdered(v any) any {
	switch t := v.(type) {
	case yaml.MapSlice:
		out := New()
		for _, item := range t {
			key, _ := item.Key.(string)
			out.Set(key, fromRawOrdered(item.Value))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromRawOrdered(e)
		}
		return out
	default:
		return v
	}
}

func toRawOrdered(v any) any {
	switch t := v.(type) {
	case *Map:
		slice := make(yaml.MapSlice, 0, t.Len())
		t.Range(func(k string, val any) {
			slice = append(slice, yaml.MapItem{Key: k, Value: toRawOrdered(val)})
		})
		return slice
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toRawOrdered(e)
		}
		return out
	default:
		return v
	}
}

// UnmarshalYAML decodes a mapping node into an insertion-ordered TypedMap by
// round-tripping each value's bytes into V, so nested union-type fields on V
// get their own UnmarshalYAML hooks invoked correctly.
func (m *TypedMap[V]) UnmarshalYAML(data []byte) error {
	var raw any
	if err := yaml.UnmarshalWithOptions(data, &raw, yaml.UseOrderedMap()); err != nil {
		return err
	}
	slice, ok := raw.(yaml.MapSlice)
	if !ok {
		*m = TypedMap[V]{values: make(map[string]V)}
		return nil
	}
	out := NewTypedMap[V]()
	for _, item := range slice {
		key, _ := item.Key.(string)
		valueBytes, err := yaml.Marshal(toRawOrdered(fromRawOrdered(item.Value)))
		if err != nil {
			return err
		}
		var v V
		if err := yaml.Unmarshal(valueBytes, &v); err != nil {
			return err
		}
		out.Set(key, v)
	}
	*m = *out
	return nil
}

// MarshalYAML re-emits the TypedMap as a mapping node in insertion order.
func (m TypedMap[V]) MarshalYAML() ([]byte, error) {
	slice := make(yaml.MapSlice, 0, m.Len())
	m.Range(func(k string, v V) {
		slice = append(slice, yaml.MapItem{Key: k, Value: v})
	})
	return yaml.Marshal(slice)
}
