package interpolation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/teranos/ciconf/document"
)

var (
	blockPattern  = regexp.MustCompile(`\$\[\[\s*(.*?)\s*\]\]`)
	accessPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*(\.[a-zA-Z_][a-zA-Z0-9_-]*)+$`)
)

const (
	maxAccessDepth = 5
	accessRoot     = "inputs"
)

type block struct {
	access    []string
	functions []function
}

func parseBlock(content string) (block, string) {
	parts := strings.Split(content, "|")
	access := strings.TrimSpace(parts[0])
	if !accessPattern.MatchString(access) {
		return block{}, "invalid interpolation access pattern"
	}

	b := block{access: strings.Split(access, ".")}
	if len(b.access) > maxAccessDepth {
		return block{}, "maximum interpolation expression size exceeded"
	}
	if len(parts)-1 > maxFunctions {
		return block{}, "too many functions in interpolation block"
	}
	for _, source := range parts[1:] {
		fn, msg := parseFunction(source)
		if msg != "" {
			return block{}, msg
		}
		b.functions = append(b.functions, fn)
	}
	return b, ""
}

type scope struct {
	inputs map[string]any
	vars   Expander
}

func (b block) evaluate(s *scope) (any, string) {
	if b.access[0] != accessRoot {
		return nil, unknownKey(b.access[0])
	}

	value, ok := s.inputs[b.access[1]]
	if !ok {
		return nil, unknownKey(b.access[1])
	}
	for _, segment := range b.access[2:] {
		m, isMap := value.(*document.Map)
		if !isMap {
			return nil, unknownKey(segment)
		}
		if value, ok = m.Get(segment); !ok {
			return nil, unknownKey(segment)
		}
	}

	for _, fn := range b.functions {
		var msg string
		if value, msg = fn.apply(value, s.vars); msg != "" {
			return nil, msg
		}
	}
	return value, ""
}

func unknownKey(name string) string {
	return fmt.Sprintf("unknown interpolation key: `%s`", name)
}

// template walks a document body replacing $[[ ]] blocks. Errors are
// collected in the order they are met; duplicates are dropped.
type template struct {
	scope     *scope
	maxBlocks int
	blocks    int
	errors    []string
	seen      map[string]bool
}

func newTemplate(s *scope, maxBlocks int) *template {
	return &template{scope: s, maxBlocks: maxBlocks, seen: make(map[string]bool)}
}

func (t *template) fail(msg string) {
	if t.seen[msg] {
		return
	}
	t.seen[msg] = true
	t.errors = append(t.errors, msg)
}

func (t *template) interpolate(value any) any {
	switch typed := value.(type) {
	case *document.Map:
		out := document.New()
		typed.Each(func(key string, item any) {
			out.Set(stringify(t.interpolateString(key)), t.interpolate(item))
		})
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = t.interpolate(item)
		}
		return out
	case string:
		return t.interpolateString(typed)
	default:
		return value
	}
}

func (t *template) interpolateString(s string) any {
	matches := blockPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	t.blocks += len(matches)
	if t.maxBlocks > 0 && t.blocks > t.maxBlocks {
		t.fail(fmt.Sprintf("too many interpolation blocks (maximum is %d)", t.maxBlocks))
		return s
	}

	values := make([]any, len(matches))
	failed := false
	for i, match := range matches {
		b, msg := parseBlock(s[match[2]:match[3]])
		if msg == "" {
			values[i], msg = b.evaluate(t.scope)
		}
		if msg != "" {
			t.fail(msg)
			failed = true
		}
	}
	if failed {
		return s
	}

	// A string that is exactly one block keeps the input's type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return document.CopyValue(values[0])
	}

	var b strings.Builder
	last := 0
	for i, match := range matches {
		b.WriteString(s[last:match[0]])
		b.WriteString(stringify(values[i]))
		last = match[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case []any, *document.Map:
		encoded, err := json.Marshal(document.PlainValue(typed))
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	default:
		return fmt.Sprint(typed)
	}
}
