// Package flatten converts nested JSON-decoded values to and from
// double-underscore joined flat keys (e.g. ConnectionStrings__Main).
package flatten

import (
	"sort"
	"strconv"
	"strings"
)

const separator = "__"

// Flatten joins nested keys of a json.Unmarshal-produced value
// (map[string]any / []any / scalars) with "__", in sorted key order at each
// level. Arrays are flattened with numeric indices (A__0, A__1, ...).
func Flatten(v any) map[string]string {
	out := make(map[string]string)
	flattenInto(out, "", v)
	return out
}

func flattenInto(out map[string]string, prefix string, v any) {
	switch value := v.(type) {
	case map[string]any:
		if len(value) == 0 {
			if prefix != "" {
				out[prefix] = ""
			}
			return
		}
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenInto(out, joinKey(prefix, k), value[k])
		}
	case []any:
		if len(value) == 0 {
			if prefix != "" {
				out[prefix] = ""
			}
			return
		}
		for i, item := range value {
			flattenInto(out, joinKey(prefix, strconv.Itoa(i)), item)
		}
	case nil:
		out[prefix] = ""
	case string:
		out[prefix] = value
	case bool:
		if value {
			out[prefix] = "true"
		} else {
			out[prefix] = "false"
		}
	case float64:
		out[prefix] = formatNumber(value)
	default:
		out[prefix] = ""
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + separator + key
}

// formatNumber renders a JSON number losslessly in its shortest text form.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Unflatten reverses Flatten, reconstructing nested maps and, where every
// key segment at a level is a contiguous zero-based numeric index, arrays.
// Mixed numeric/string keys at the same level disable the array
// reconstruction for that level (it stays a map with string keys).
func Unflatten(flat map[string]string) map[string]any {
	root := make(map[string]any)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		segments := strings.Split(k, separator)
		setNested(root, segments, flat[k])
	}
	return arrayify(root).(map[string]any)
}

func setNested(node map[string]any, segments []string, value string) {
	seg := segments[0]
	if len(segments) == 1 {
		node[seg] = value
		return
	}
	child, ok := node[seg].(map[string]any)
	if !ok {
		child = make(map[string]any)
		node[seg] = child
	}
	setNested(child, segments[1:], value)
}

// arrayify walks the reconstructed map tree and converts maps whose keys are
// exactly {"0", "1", ..., "N-1"} into []any in index order.
func arrayify(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = arrayify(child)
	}
	if isContiguousIndexMap(m) {
		arr := make([]any, len(m))
		for k, child := range m {
			idx, _ := strconv.Atoi(k)
			arr[idx] = child
		}
		return arr
	}
	return m
}

func isContiguousIndexMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return false
		}
	}
	seen := make([]bool, len(m))
	for k := range m {
		idx, _ := strconv.Atoi(k)
		if idx >= len(m) {
			return false
		}
		seen[idx] = true
	}
	for _, s := range seen {
		if !s {
			return false
		}
	}
	return true
}
