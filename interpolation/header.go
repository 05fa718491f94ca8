package interpolation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/teranos/ciconf/document"
)

// InputType is the declared type of an input.
type InputType string

const (
	TypeString  InputType = "string"
	TypeNumber  InputType = "number"
	TypeBoolean InputType = "boolean"
	TypeArray   InputType = "array"
)

var (
	allowedHeaderKeys = []string{"inputs"}
	allowedInputKeys  = []string{"default", "description", "options", "regex", "type"}
)

// InputSpec is one entry of `spec:inputs`.
type InputSpec struct {
	Name        string
	Type        InputType
	Description string
	Default     any
	HasDefault  bool
	Options     []any
	Regex       *regexp.Regexp
}

// Required reports whether a caller must supply the input.
func (s InputSpec) Required() bool {
	return !s.HasDefault
}

// parseHeader validates the `spec` value and returns the declared inputs in
// declaration order. Errors are author-facing messages.
func parseHeader(header any) ([]InputSpec, []string) {
	if header == nil {
		return nil, nil
	}
	m, ok := header.(*document.Map)
	if !ok {
		return nil, []string{"header:spec config should be a hash"}
	}
	if unknown := unknownKeys(m, allowedHeaderKeys); len(unknown) > 0 {
		return nil, []string{"header:spec config contains unknown keys: " + strings.Join(unknown, ", ")}
	}

	raw, ok := m.Get("inputs")
	if !ok || raw == nil {
		return nil, nil
	}
	inputs, ok := raw.(*document.Map)
	if !ok {
		return nil, []string{"header:spec:inputs config should be a hash"}
	}

	var specs []InputSpec
	var errs []string
	inputs.Each(func(name string, definition any) {
		spec, specErrs := parseInputSpec(name, definition)
		if len(specErrs) > 0 {
			errs = append(errs, specErrs...)
			return
		}
		specs = append(specs, spec)
	})
	return specs, errs
}

func parseInputSpec(name string, definition any) (InputSpec, []string) {
	spec := InputSpec{Name: name, Type: TypeString}
	prefix := "header:spec:inputs:" + name

	if definition == nil {
		return spec, nil
	}
	m, ok := definition.(*document.Map)
	if !ok {
		return spec, []string{prefix + " config should be a hash"}
	}
	if unknown := unknownKeys(m, allowedInputKeys); len(unknown) > 0 {
		return spec, []string{prefix + " config contains unknown keys: " + strings.Join(unknown, ", ")}
	}

	var errs []string
	if raw, ok := m.Get("type"); ok && raw != nil {
		typ, _ := raw.(string)
		switch InputType(typ) {
		case TypeString, TypeNumber, TypeBoolean, TypeArray:
			spec.Type = InputType(typ)
		default:
			errs = append(errs, fmt.Sprintf("%s input type unknown value: %v", prefix, raw))
		}
	}
	if raw, ok := m.Get("description"); ok && raw != nil {
		description, ok := raw.(string)
		if !ok {
			errs = append(errs, prefix+" description should be a string")
		}
		spec.Description = description
	}
	if raw, ok := m.Get("options"); ok && raw != nil {
		options, ok := raw.([]any)
		if !ok || len(options) == 0 {
			errs = append(errs, prefix+" options should be a non-empty array")
		}
		spec.Options = options
	}
	if raw, ok := m.Get("regex"); ok && raw != nil {
		source, ok := raw.(string)
		if !ok {
			errs = append(errs, prefix+" regex should be a string")
		} else if spec.Type != TypeString {
			errs = append(errs, fmt.Sprintf("`%s` input: RegEx validation can only be used with string inputs", name))
		} else {
			re, err := regexp.Compile(source)
			if err != nil {
				errs = append(errs, fmt.Sprintf("`%s` input: invalid regular expression", name))
			}
			spec.Regex = re
		}
	}
	if raw, ok := m.Get("default"); ok {
		spec.Default = raw
		spec.HasDefault = true
	}
	return spec, errs
}

func unknownKeys(m *document.Map, allowed []string) []string {
	var unknown []string
	for _, key := range m.Keys() {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}
