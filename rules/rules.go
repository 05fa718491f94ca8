// Package rules decides whether a single include directive applies.
//
// An include's rules list holds hashes with exactly one predicate:
//
//	if: <expression>        evaluated against the resolution's variables
//	exists: <glob or list>  matched against the resolving commit's files
//
// Every entry must pass for the include to apply. An empty list always
// passes.
package rules

import (
	"context"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/teranos/ciconf/document"
	"github.com/teranos/ciconf/errors"
)

const (
	keyIf     = "if"
	keyExists = "exists"
)

// Keys that are valid on job rules but rejected on include rules.
var jobOnlyKeys = map[string]bool{"when": true, "changes": true}

// InvalidRuleError reports a rule hash that cannot be used on an include.
// Rule is the hash rendered verbatim. Unknown lists keys no rule of any
// kind accepts.
type InvalidRuleError struct {
	Rule    string
	Unknown []string
	Err     error
}

func (e *InvalidRuleError) Error() string {
	if len(e.Unknown) > 0 {
		return "include rule " + e.Rule + " contains unknown keys: " + strings.Join(e.Unknown, ", ")
	}
	if e.Err != nil {
		return "invalid include rule: " + e.Rule + ": " + e.Err.Error()
	}
	return "invalid include rule: " + e.Rule
}

func (e *InvalidRuleError) Unwrap() error { return e.Err }

// Rule is one validated entry of a rules list.
type Rule struct {
	If     *Expression
	Exists []string
	raw    any
}

// String renders the rule as written.
func (r Rule) String() string {
	return document.Render(r.raw)
}

// FileLister lists every file path in the resolving commit's tree,
// relative to the repository root.
type FileLister interface {
	ListFiles(ctx context.Context) ([]string, error)
}

// Expander expands $VAR references inside exists paths.
type Expander interface {
	Expand(input string) string
}

// Parse validates a raw rules value. nil means no rules.
func Parse(raw any) ([]Rule, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &InvalidRuleError{Rule: document.Render(raw), Err: errors.New("rules should be an array of hashes")}
	}

	parsed := make([]Rule, 0, len(list))
	for _, entry := range list {
		rule, err := parseRule(entry)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, rule)
	}
	return parsed, nil
}

func parseRule(entry any) (Rule, error) {
	rendered := document.Render(entry)
	m, ok := entry.(*document.Map)
	if !ok {
		return Rule{}, &InvalidRuleError{Rule: rendered, Err: errors.New("rule should be a hash")}
	}

	var unknown, jobOnly []string
	m.Each(func(key string, _ any) {
		switch {
		case key == keyIf || key == keyExists:
		case jobOnlyKeys[key]:
			jobOnly = append(jobOnly, key)
		default:
			unknown = append(unknown, key)
		}
	})
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Rule{}, &InvalidRuleError{Rule: rendered, Unknown: unknown}
	}
	if len(jobOnly) > 0 {
		return Rule{}, &InvalidRuleError{Rule: rendered}
	}

	ifValue, hasIf := m.Get(keyIf)
	existsValue, hasExists := m.Get(keyExists)
	if hasIf == hasExists {
		return Rule{}, &InvalidRuleError{Rule: rendered}
	}

	rule := Rule{raw: entry}
	if hasIf {
		source, ok := ifValue.(string)
		if !ok {
			return Rule{}, &InvalidRuleError{Rule: rendered, Err: errors.New("if should be a string")}
		}
		expr, err := ParseExpression(source)
		if err != nil {
			return Rule{}, &InvalidRuleError{Rule: rendered, Err: err}
		}
		rule.If = expr
		return rule, nil
	}

	paths, err := existsPaths(existsValue)
	if err != nil {
		return Rule{}, &InvalidRuleError{Rule: rendered, Err: err}
	}
	rule.Exists = paths
	return rule, nil
}

func existsPaths(value any) ([]string, error) {
	var paths []string
	switch typed := value.(type) {
	case string:
		paths = []string{typed}
	case []any:
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New("exists should be a string or an array of strings")
			}
			paths = append(paths, s)
		}
	default:
		return nil, errors.New("exists should be a string or an array of strings")
	}
	for _, p := range paths {
		if !doublestar.ValidatePattern(strings.TrimPrefix(p, "/")) {
			return nil, errors.Newf("exists pattern %q is not a valid glob", p)
		}
	}
	return paths, nil
}

// Evaluator evaluates rules for one resolution context.
type Evaluator struct {
	Variables Lookup
	// Files may be nil, in which case exists rules never match.
	Files    FileLister
	Expander Expander
}

// Evaluate validates raw and reports whether every rule passes. Evaluation
// stops at the first failing rule but every rule is validated first.
func (e *Evaluator) Evaluate(ctx context.Context, raw any) (bool, error) {
	parsed, err := Parse(raw)
	if err != nil {
		return false, err
	}
	return e.EvaluateRules(ctx, parsed)
}

// EvaluateRules reports whether every rule in parsed passes.
func (e *Evaluator) EvaluateRules(ctx context.Context, parsed []Rule) (bool, error) {
	var files []string
	var err error
	listed := false

	for _, rule := range parsed {
		if rule.If != nil {
			ok, err := rule.If.Evaluate(e.Variables)
			if err != nil {
				return false, &InvalidRuleError{Rule: rule.String(), Err: err}
			}
			if !ok {
				return false, nil
			}
			continue
		}

		if !listed {
			listed = true
			if e.Files != nil {
				files, err = e.Files.ListFiles(ctx)
				if err != nil {
					return false, errors.Wrap(err, "failed to list files for exists rule")
				}
			}
		}
		if !e.anyExists(rule.Exists, files) {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) anyExists(patterns, files []string) bool {
	for _, pattern := range patterns {
		if e.Expander != nil {
			pattern = e.Expander.Expand(pattern)
		}
		pattern = strings.TrimPrefix(pattern, "/")
		for _, file := range files {
			if matched, _ := doublestar.Match(pattern, file); matched {
				return true
			}
		}
	}
	return false
}
