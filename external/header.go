package external

import (
	"context"
	"strings"

	"github.com/teranos/ciconf/document"
	"github.com/teranos/ciconf/interpolation"
)

const headerIncludeKey = "include"

// HeaderProcessor resolves `include:` inside a fragment's `spec:` header.
// Each header include is an inputs-only file; its inputs are merged ahead
// of the inline ones.
//
//	spec:
//	  include:
//	    - local: /inputs/deploy.yml
//	  inputs:
//	    stage:
type HeaderProcessor struct {
	mapper *Mapper
	loader Loader
}

// NewHeaderProcessor returns a HeaderProcessor fetching through loader.
func NewHeaderProcessor(mapper *Mapper, loader Loader) *HeaderProcessor {
	return &HeaderProcessor{mapper: mapper, loader: loader}
}

// Process returns doc with header includes merged into `spec:inputs`. A
// header include whose rules fail contributes nothing. A document without
// header includes is returned as is. Header include files
// are time-checked but not counted as fragments of the tree.
func (h *HeaderProcessor) Process(ctx context.Context, doc *interpolation.Document, rc *Context) (*interpolation.Document, error) {
	if !doc.HasHeader() {
		return doc, nil
	}
	header, ok := doc.HeaderMap()
	if !ok || !header.Has(headerIncludeKey) {
		return doc, nil
	}

	raw, _ := header.Get(headerIncludeKey)
	specs, err := h.mapper.MapValue(raw, rc)
	if err != nil {
		return nil, err
	}

	merged := document.New()
	var duplicates []string
	add := func(inputs *document.Map) {
		inputs.Each(func(name string, definition any) {
			if merged.Has(name) {
				duplicates = append(duplicates, name)
				return
			}
			merged.Set(name, definition)
		})
	}

	for _, spec := range specs {
		if err := rc.CheckExecutionTime(); err != nil {
			return nil, err
		}
		pass, err := includeRulesPass(ctx, spec, rc)
		if err != nil {
			return nil, err
		}
		if !pass {
			continue
		}
		inputs, err := h.load(ctx, spec, rc)
		if err != nil {
			return nil, err
		}
		add(inputs)
	}
	inline, _ := header.GetMap("inputs")
	add(inline)

	if len(duplicates) > 0 {
		return nil, duplicateInputError(uniqueStrings(duplicates))
	}

	out := header.Copy()
	out.Delete(headerIncludeKey)
	out.Set("inputs", merged)
	return interpolation.WithHeader(out, doc.Content), nil
}

func (h *HeaderProcessor) load(ctx context.Context, spec Specification, rc *Context) (*document.Map, error) {
	fragment, err := h.loader.Load(ctx, spec, rc)
	if err != nil {
		return nil, classify(spec, err)
	}
	location := spec.Display()
	if strings.TrimSpace(string(fragment.Content)) == "" {
		return nil, emptyFragmentError(spec)
	}

	content, err := document.Parse(fragment.Content)
	if err != nil {
		return nil, NewIncludeError(ReasonInvalidYAML, location,
			"Header include file `%s` does not have valid YAML syntax: %s", location, err.Error()).WithCause(err)
	}

	var unknown []string
	content.Each(func(key string, _ any) {
		if key != "inputs" {
			unknown = append(unknown, key)
		}
	})
	if len(unknown) > 0 {
		return nil, NewIncludeError(ReasonUnknownKeys, location,
			"Header include file `%s` contains unknown keys: [%s]", location, strings.Join(unknown, ", "))
	}

	raw, _ := content.Get("inputs")
	switch typed := raw.(type) {
	case nil:
		return document.New(), nil
	case *document.Map:
		return typed, nil
	}
	return nil, NewIncludeError(ReasonInvalidLocation, location,
		"Header include file `%s` inputs should be a hash!", location)
}

func emptyFragmentError(spec Specification) *Error {
	location := spec.Display()
	return NewIncludeError(ReasonEmpty, location, "%s `%s` is empty!", spec.Kind.label(), location)
}
