package interpolation

import (
	"fmt"
	"strings"

	"github.com/teranos/ciconf/document"
)

// resolveInputs binds arguments to the declared inputs, applying defaults
// and validating types, options and patterns.
func resolveInputs(specs []InputSpec, arguments *document.Map) (map[string]any, []string) {
	var errs []string

	declared := make(map[string]bool, len(specs))
	for _, spec := range specs {
		declared[spec.Name] = true
	}
	var unknown []string
	arguments.Each(func(name string, _ any) {
		if !declared[name] {
			unknown = append(unknown, name)
		}
	})
	if len(unknown) > 0 {
		errs = append(errs, "unknown input arguments: "+strings.Join(unknown, ", "))
	}

	resolved := make(map[string]any, len(specs))
	for _, spec := range specs {
		value, provided := arguments.Get(spec.Name)
		if !provided {
			if !spec.HasDefault {
				errs = append(errs, fmt.Sprintf("`%s` input: required value has not been provided", spec.Name))
				continue
			}
			if msg := checkType(spec, spec.Default, "default value"); msg != "" {
				errs = append(errs, msg)
				continue
			}
			resolved[spec.Name] = spec.Default
			continue
		}

		if msg := checkType(spec, value, "provided value"); msg != "" {
			errs = append(errs, msg)
			continue
		}
		if msg := checkOptions(spec, value); msg != "" {
			errs = append(errs, msg)
			continue
		}
		if msg := checkRegex(spec, value); msg != "" {
			errs = append(errs, msg)
			continue
		}
		resolved[spec.Name] = value
	}

	return resolved, errs
}

func checkType(spec InputSpec, value any, what string) string {
	// A null default leaves the input empty.
	if value == nil {
		return ""
	}

	switch spec.Type {
	case TypeString:
		switch value.(type) {
		case string:
			return ""
		case []any, *document.Map:
			if what == "provided value" {
				return fmt.Sprintf("unsupported value in input argument `%s`", spec.Name)
			}
		}
		return fmt.Sprintf("`%s` input: %s is not a string", spec.Name, what)
	case TypeNumber:
		switch value.(type) {
		case int, int64, float64:
			return ""
		}
		return fmt.Sprintf("`%s` input: %s is not a number", spec.Name, what)
	case TypeBoolean:
		if _, ok := value.(bool); ok {
			return ""
		}
		return fmt.Sprintf("`%s` input: %s is not a boolean", spec.Name, what)
	case TypeArray:
		if _, ok := value.([]any); ok {
			return ""
		}
		return fmt.Sprintf("`%s` input: %s is not an array", spec.Name, what)
	}
	return ""
}

func checkOptions(spec InputSpec, value any) string {
	if len(spec.Options) == 0 {
		return ""
	}
	for _, option := range spec.Options {
		if document.Equal(option, value) {
			return ""
		}
	}
	return fmt.Sprintf("`%s` input: `%v` cannot be used because it is not in the list of allowed options", spec.Name, value)
}

func checkRegex(spec InputSpec, value any) string {
	if spec.Regex == nil {
		return ""
	}
	s, ok := value.(string)
	if ok && spec.Regex.MatchString(s) {
		return ""
	}
	return fmt.Sprintf("`%s` input: provided value does not match required RegEx pattern", spec.Name)
}
