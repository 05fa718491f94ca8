package document

import (
	"bytes"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/ciconf/errors"
	"gopkg.in/yaml.v3"
)

// ErrSyntax marks every failure to turn raw bytes into a document.
var ErrSyntax = errors.New("invalid YAML syntax")

const mergeKey = "<<"

// SyntaxError reports raw content that is not a valid configuration
// document. Line is zero when the parser gave no position.
type SyntaxError struct {
	Line    int
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return "line " + strconv.Itoa(e.Line) + ": " + e.Message
	}
	return e.Message
}

// Is makes errors.Is(err, ErrSyntax) hold for every SyntaxError.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

// IsSyntaxError reports whether err came from Parse rejecting its input.
func IsSyntaxError(err error) bool {
	var syntax *SyntaxError
	return errors.As(err, &syntax) || errors.Is(err, ErrSyntax)
}

// Parse decodes the first YAML document in raw into a Map. Empty input
// yields an empty Map. The top level must be a mapping.
func Parse(raw []byte) (*Map, error) {
	docs, err := parse(raw, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return New(), nil
	}
	return docs[0], nil
}

// ParseAll decodes every document of a multi-document stream. Empty
// documents decode to empty Maps; a stream with no documents yields nil.
func ParseAll(raw []byte) ([]*Map, error) {
	return parse(raw, -1)
}

func parse(raw []byte, limit int) ([]*Map, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var docs []*Map
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	for limit < 0 || len(docs) < limit {
		var root yaml.Node
		if err := dec.Decode(&root); err != nil {
			if err == io.EOF {
				break
			}
			return nil, syntaxError(err)
		}
		m, err := mapping(&root)
		if err != nil {
			return nil, err
		}
		docs = append(docs, m)
	}
	return docs, nil
}

func mapping(root *yaml.Node) (*Map, error) {
	node := root
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return New(), nil
		}
		node = node.Content[0]
	}
	node = resolveAlias(node)

	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return New(), nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, &SyntaxError{Line: node.Line, Message: "content should be a hash"}
	}

	value, err := (&converter{}).convert(node, 0)
	if err != nil {
		return nil, err
	}
	return value.(*Map), nil
}

// MustParse is Parse for fixtures; it panics on error.
func MustParse(raw string) *Map {
	m, err := Parse([]byte(raw))
	if err != nil {
		panic(err)
	}
	return m
}

// Marshal renders m as YAML, preserving key order.
func Marshal(m *Map) ([]byte, error) {
	node, err := toNode(m)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, errors.Wrap(err, "failed to encode document")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to flush document")
	}
	return buf.Bytes(), nil
}

const (
	maxDepth = 256
	// maxNodes bounds alias expansion ("billion laughs").
	maxNodes = 1_000_000
)

type converter struct {
	nodes int
}

func (c *converter) convert(node *yaml.Node, depth int) (any, error) {
	if depth > maxDepth {
		return nil, &SyntaxError{Line: node.Line, Message: "document is nested too deeply"}
	}
	c.nodes++
	if c.nodes > maxNodes {
		return nil, &SyntaxError{Line: node.Line, Message: "document expands to too many nodes"}
	}

	switch node.Kind {
	case yaml.AliasNode:
		return c.convert(resolveAlias(node), depth+1)

	case yaml.MappingNode:
		out := New()
		var merges []*yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valueNode := node.Content[i], node.Content[i+1]
			if isMergeKey(keyNode) {
				merges = append(merges, valueNode)
				continue
			}
			key, err := mapKey(keyNode)
			if err != nil {
				return nil, err
			}
			value, err := c.convert(valueNode, depth+1)
			if err != nil {
				return nil, err
			}
			out.Set(key, value)
		}
		// Explicit keys win over merged ones.
		for _, merge := range merges {
			if err := c.applyMerge(out, merge, depth+1); err != nil {
				return nil, err
			}
		}
		return out, nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			value, err := c.convert(item, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil

	case yaml.ScalarNode:
		return scalar(node)

	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return c.convert(node.Content[0], depth+1)
	}

	return nil, &SyntaxError{Line: node.Line, Message: "unsupported YAML node"}
}

func (c *converter) applyMerge(out *Map, merge *yaml.Node, depth int) error {
	merge = resolveAlias(merge)
	sources := []*yaml.Node{merge}
	if merge.Kind == yaml.SequenceNode {
		sources = merge.Content
	}
	for _, source := range sources {
		value, err := c.convert(source, depth+1)
		if err != nil {
			return err
		}
		merged, ok := value.(*Map)
		if !ok {
			return &SyntaxError{Line: source.Line, Message: "map merge requires map or sequence of maps as the value"}
		}
		merged.Each(func(key string, item any) {
			if !out.Has(key) {
				out.Set(key, item)
			}
		})
	}
	return nil
}

func isMergeKey(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Value == mergeKey && (node.Tag == "!!merge" || node.Tag == "")
}

func mapKey(node *yaml.Node) (string, error) {
	node = resolveAlias(node)
	if node.Kind != yaml.ScalarNode {
		return "", &SyntaxError{Line: node.Line, Message: "mapping keys must be scalars"}
	}
	return node.Value, nil
}

func scalar(node *yaml.Node) (any, error) {
	// Custom tags such as !reference are kept as their raw text.
	if strings.HasPrefix(node.Tag, "!") && !strings.HasPrefix(node.Tag, "!!") {
		return node.Value, nil
	}

	var value any
	if err := node.Decode(&value); err != nil {
		return nil, syntaxError(err)
	}
	switch typed := value.(type) {
	case uint64:
		if typed <= math.MaxInt64 {
			return int(typed), nil
		}
		return float64(typed), nil
	case int64:
		return int(typed), nil
	case time.Time:
		return node.Value, nil
	}
	return value, nil
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for i := 0; node.Kind == yaml.AliasNode && node.Alias != nil && i < maxDepth; i++ {
		node = node.Alias
	}
	return node
}

func toNode(value any) (*yaml.Node, error) {
	switch typed := value.(type) {
	case *Map:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		var err error
		typed.Each(func(key string, item any) {
			if err != nil {
				return
			}
			var child *yaml.Node
			child, err = toNode(item)
			if err != nil {
				return
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
				child,
			)
		})
		return node, err
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range typed {
			child, err := toNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case map[string]any:
		return toNode(FromPlain(typed))
	default:
		node := &yaml.Node{}
		if err := node.Encode(typed); err != nil {
			return nil, errors.Wrapf(err, "failed to encode value %v", typed)
		}
		return node, nil
	}
}

func syntaxError(err error) error {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		return &SyntaxError{Message: strings.Join(typeErr.Errors, "; ")}
	}

	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	line := 0
	if strings.HasPrefix(msg, "line ") {
		rest := msg[len("line "):]
		if idx := strings.Index(rest, ":"); idx > 0 {
			if n, err := strconv.Atoi(rest[:idx]); err == nil {
				line = n
				msg = strings.TrimSpace(rest[idx+1:])
			}
		}
	}
	return &SyntaxError{Line: line, Message: msg}
}
