package dicomdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Map is an ordered mapping node of a generic document tree. Tree nodes
// are *Map, []any, string, int64, float64, bool or nil.
type Map struct {
	keys   []string
	values map[string]any
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: map[string]any{}}
}

// Set stores v under key. A new key goes last; an existing key keeps its
// position.
func (m *Map) Set(key string, v any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in order.
func (m *Map) Keys() []string {
	return m.keys
}

// Len returns the number of keys.
func (m *Map) Len() int {
	return len(m.keys)
}

// MarshalJSON writes the keys in order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(jsonSafe(m.values[k]))
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// jsonSafe replaces the floats JSON cannot hold with the strings
// "NaN", "Infinity" and "-Infinity", which decode back as floats.
func jsonSafe(node any) any {
	switch n := node.(type) {
	case float64:
		switch {
		case math.IsNaN(n):
			return "NaN"
		case math.IsInf(n, 1):
			return "Infinity"
		case math.IsInf(n, -1):
			return "-Infinity"
		}
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			out[i] = jsonSafe(v)
		}
		return out
	}
	return node
}

// plain converts a tree into nested map[string]any and []any, dropping key
// order. Used by encodings that have no ordered maps.
func plain(node any) any {
	switch n := node.(type) {
	case *Map:
		out := make(map[string]any, n.Len())
		for _, k := range n.keys {
			out[k] = plain(n.values[k])
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			out[i] = plain(v)
		}
		return out
	default:
		return n
	}
}

// fromPlain converts decoder output built from Go maps into a tree. Map keys
// are sorted since the source carries no order.
func fromPlain(node any, depth int) (any, error) {
	if depth > maxTreeDepth {
		return nil, fmt.Errorf("document nesting exceeds %d levels", maxTreeDepth)
	}
	switch n := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			v, err := fromPlain(n[k], depth+1)
			if err != nil {
				return nil, err
			}
			m.Set(k, v)
		}
		return m, nil
	case map[any]any:
		conv := make(map[string]any, len(n))
		for k, v := range n {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string map key %v", k)
			}
			conv[ks] = v
		}
		return fromPlain(conv, depth)
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			c, err := fromPlain(v, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case float32:
		return float64(n), nil
	case string, int64, float64, bool, nil:
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported tree value %T", node)
	}
}
