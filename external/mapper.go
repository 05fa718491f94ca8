package external

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/teranos/ciconf/document"
	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/rules"
)

// IncludeKey is the document key holding include directives.
const IncludeKey = "include"

// DefaultMapperMaxIncludes bounds the entries one include key may list.
const DefaultMapperMaxIncludes = 150

var entryKeys = map[string]bool{"rules": true, "inputs": true, "file": true, "ref": true}

// Mapper normalizes a document's include key into Specifications.
type Mapper struct {
	// MaxIncludes bounds the specifications a single Map call may produce.
	MaxIncludes int
}

// NewMapper returns a Mapper with the given per-call ceiling.
func NewMapper(maxIncludes int) *Mapper {
	if maxIncludes <= 0 {
		maxIncludes = DefaultMapperMaxIncludes
	}
	return &Mapper{MaxIncludes: maxIncludes}
}

// Map returns the specifications of doc's include key, in declaration
// order. A document without the key yields none.
func (m *Mapper) Map(doc *document.Map, rc *Context) ([]Specification, error) {
	raw, ok := doc.Get(IncludeKey)
	if !ok {
		return nil, nil
	}
	return m.MapValue(raw, rc)
}

// MapValue normalizes a raw include value: a string, a hash or a list of
// either.
func (m *Mapper) MapValue(raw any, rc *Context) ([]Specification, error) {
	var entries []any
	switch typed := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		entries = typed
	default:
		entries = []any{typed}
	}

	var specs []Specification
	for _, entry := range entries {
		mapped, err := m.mapEntry(entry, rc)
		if err != nil {
			return nil, err
		}
		specs = append(specs, mapped...)
	}

	seen := make(map[Identity]bool, len(specs))
	for _, spec := range specs {
		id := spec.Identity()
		if seen[id] {
			return nil, duplicateIncludesError(spec.Render())
		}
		seen[id] = true
	}

	if len(specs) > m.MaxIncludes {
		return nil, tooManyIncludesError(m.MaxIncludes)
	}
	return specs, nil
}

func (m *Mapper) mapEntry(entry any, rc *Context) ([]Specification, error) {
	switch typed := entry.(type) {
	case string:
		spec := classifyLocation(rc.Expand(typed), entry)
		if spec.Kind == SourceLocal {
			spec.Project, spec.Ref = rc.Project, rc.SHA
		}
		return []Specification{spec}, nil
	case *document.Map:
		return m.mapHash(typed, rc)
	}
	return nil, NewIncludeError(ReasonInvalidLocation, document.Render(entry),
		"Include `%s` must be a hash or a string!", document.Render(entry))
}

// classifyLocation decides once, from the scheme, whether a bare string is
// a URL or a repository path.
func classifyLocation(location string, raw any) Specification {
	if u, err := url.Parse(location); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return Specification{Kind: SourceRemote, Location: location, Raw: raw}
	}
	return Specification{Kind: SourceLocal, Location: location, Raw: raw}
}

func (m *Mapper) mapHash(entry *document.Map, rc *Context) ([]Specification, error) {
	rendered := document.Render(entry)

	var kinds []string
	var unknown []string
	entry.Each(func(key string, _ any) {
		switch {
		case isSourceKey(key):
			kinds = append(kinds, key)
		case entryKeys[key]:
		default:
			unknown = append(unknown, key)
		}
	})
	switch len(kinds) {
	case 0:
		return nil, NewIncludeError(ReasonInvalidLocation, rendered,
			"Include `%s` needs to match exactly one accessor!", rendered)
	case 1:
	default:
		return nil, ambiguousSpecificationError(rendered)
	}
	kind := kinds[0]

	if (entry.Has("file") || entry.Has("ref")) && kind != "project" {
		unknown = append(unknown, projectOnlyKeys(entry)...)
	}
	if len(unknown) > 0 {
		return nil, NewIncludeError(ReasonUnknownKeys, rendered,
			"Include `%s` contains unknown keys: %s", rendered, strings.Join(unknown, ", "))
	}

	location, ok := stringValue(entry, kind)
	if !ok {
		return nil, NewIncludeError(ReasonInvalidLocation, rendered,
			"Include `%s` has an invalid %s location!", rendered, kind)
	}
	location = rc.Expand(location)

	parsedRules, err := parseRules(entry, rendered)
	if err != nil {
		return nil, err
	}

	var inputs *document.Map
	if raw, ok := entry.Get("inputs"); ok && raw != nil {
		if inputs, ok = raw.(*document.Map); !ok {
			return nil, NewIncludeError(ReasonInvalidLocation, rendered,
				"Include `%s` inputs should be a hash!", rendered)
		}
	}

	base := Specification{Location: location, Rules: parsedRules, Inputs: inputs, Raw: entry}
	switch kind {
	case "local":
		base.Kind = SourceLocal
		base.Project, base.Ref = rc.Project, rc.SHA
	case "remote":
		base.Kind = SourceRemote
	case "template":
		base.Kind = SourceTemplate
	case "component":
		base.Kind = SourceComponent
	case "project":
		return projectSpecifications(entry, base, rendered, rc)
	}
	return []Specification{base}, nil
}

// projectSpecifications expands `file:` lists into one specification per
// file.
func projectSpecifications(entry *document.Map, base Specification, rendered string, rc *Context) ([]Specification, error) {
	base.Kind = SourceProject
	base.Project = strings.Trim(base.Location, "/")

	if raw, ok := entry.Get("ref"); ok && raw != nil {
		ref, isString := raw.(string)
		if !isString {
			return nil, NewIncludeError(ReasonInvalidLocation, rendered, "Include `%s` ref should be a string!", rendered)
		}
		base.Ref = rc.Expand(ref)
	}

	var files []string
	switch raw, _ := entry.Get("file"); typed := raw.(type) {
	case string:
		files = []string{typed}
	case []any:
		for _, item := range typed {
			file, ok := item.(string)
			if !ok {
				return nil, NewIncludeError(ReasonInvalidLocation, rendered, "Include `%s` file should be a string or an array of strings!", rendered)
			}
			files = append(files, file)
		}
	}
	if len(files) == 0 {
		return nil, NewIncludeError(ReasonInvalidLocation, rendered, "Include `%s` project requires a file!", rendered)
	}

	specs := make([]Specification, 0, len(files))
	for _, file := range files {
		spec := base
		spec.Location = rc.Expand(file)
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseRules(entry *document.Map, rendered string) ([]rules.Rule, error) {
	raw, ok := entry.Get("rules")
	if !ok {
		return nil, nil
	}
	parsed, err := rules.Parse(raw)
	if err == nil {
		return parsed, nil
	}

	var invalid *rules.InvalidRuleError
	if errors.As(err, &invalid) && len(invalid.Unknown) > 0 {
		return nil, NewIncludeError(ReasonUnknownRuleKeys, rendered, "%s", err.Error()).WithCause(err)
	}
	return nil, invalidIncludeRulesError(rendered, err.Error(), err)
}

func isSourceKey(key string) bool {
	for _, k := range sourceKeys {
		if k == key {
			return true
		}
	}
	return false
}

func projectOnlyKeys(entry *document.Map) []string {
	var keys []string
	for _, key := range []string{"file", "ref"} {
		if entry.Has(key) {
			keys = append(keys, key)
		}
	}
	return keys
}

func stringValue(entry *document.Map, key string) (string, bool) {
	raw, _ := entry.Get(key)
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// String renders a specification for logs.
func (s Specification) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.Display())
}
