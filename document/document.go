// Package document is the generic configuration tree that the resolver
// consumes and produces: ordered maps, sequences and scalars.
//
// Values stored in a Map are one of:
//
//	string, int, float64, bool, nil   scalars
//	[]any                             sequences
//	*Map                              nested mappings
//
// Map keeps insertion order so a merged document renders in a stable,
// predictable order.
package document

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Map is an insertion-ordered string-keyed mapping.
type Map struct {
	pairs *orderedmap.OrderedMap[string, any]
}

// New returns an empty Map.
func New() *Map {
	return &Map{pairs: orderedmap.New[string, any]()}
}

// FromPairs builds a Map from alternating key/value arguments. It panics on
// an odd argument count or a non-string key; it exists for fixtures.
func FromPairs(keysAndValues ...any) *Map {
	if len(keysAndValues)%2 != 0 {
		panic("document.FromPairs: odd number of arguments")
	}
	m := New()
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			panic(fmt.Sprintf("document.FromPairs: key %v is not a string", keysAndValues[i]))
		}
		m.Set(key, keysAndValues[i+1])
	}
	return m
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return m.pairs.Len()
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	return m.pairs.Get(key)
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores value under key. An existing key keeps its position.
func (m *Map) Set(key string, value any) {
	m.pairs.Set(key, value)
}

// Delete removes key, reporting whether it was present.
func (m *Map) Delete(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.pairs.Delete(key)
	return ok
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, m.pairs.Len())
	for pair := m.pairs.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Each calls fn for every entry in insertion order.
func (m *Map) Each(fn func(key string, value any)) {
	if m == nil {
		return
	}
	for pair := m.pairs.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// GetMap returns the nested Map stored under key, if any.
func (m *Map) GetMap(key string) (*Map, bool) {
	value, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	nested, ok := value.(*Map)
	return nested, ok
}

// GetString returns the string stored under key, if any.
func (m *Map) GetString(key string) (string, bool) {
	value, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// Copy returns a deep copy of m.
func (m *Map) Copy() *Map {
	if m == nil {
		return nil
	}
	out := New()
	m.Each(func(key string, value any) {
		out.Set(key, CopyValue(value))
	})
	return out
}

// CopyValue deep-copies a document value.
func CopyValue(value any) any {
	switch typed := value.(type) {
	case *Map:
		return typed.Copy()
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = CopyValue(item)
		}
		return out
	default:
		return value
	}
}

// Plain converts m into nested map[string]any / []any values. Ordering is
// lost; use it for comparisons and JSON encoding.
func (m *Map) Plain() map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, m.Len())
	m.Each(func(key string, value any) {
		out[key] = PlainValue(value)
	})
	return out
}

// PlainValue converts a document value into plain Go values.
func PlainValue(value any) any {
	switch typed := value.(type) {
	case *Map:
		return typed.Plain()
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = PlainValue(item)
		}
		return out
	default:
		return value
	}
}

// FromPlain converts plain Go maps into a document value. Keys of plain maps
// are sorted because Go maps have no order.
func FromPlain(value any) any {
	switch typed := value.(type) {
	case *Map:
		return typed
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		out := New()
		for _, key := range keys {
			out.Set(key, FromPlain(typed[key]))
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = FromPlain(item)
		}
		return out
	case []string:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = item
		}
		return out
	default:
		return value
	}
}

// Equal reports whether two document values hold the same content. Map key
// order is ignored.
func Equal(a, b any) bool {
	return reflect.DeepEqual(PlainValue(a), PlainValue(b))
}

// Render formats a value the way it should appear in author-facing error
// messages: {local: /a.yml, rules: [{if: $X}]}.
func Render(value any) string {
	var b strings.Builder
	render(&b, value)
	return b.String()
}

func render(b *strings.Builder, value any) {
	switch typed := value.(type) {
	case *Map:
		b.WriteString("{")
		first := true
		typed.Each(func(key string, item any) {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(key)
			b.WriteString(": ")
			render(b, item)
		})
		b.WriteString("}")
	case []any:
		b.WriteString("[")
		for i, item := range typed {
			if i > 0 {
				b.WriteString(", ")
			}
			render(b, item)
		}
		b.WriteString("]")
	case nil:
		b.WriteString("null")
	default:
		fmt.Fprintf(b, "%v", typed)
	}
}
