package interpolation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

const maxFunctions = 3

var functionPattern = regexp.MustCompile(`^([a-z_]+)(?:\(\s*([^()]*)\s*\))?$`)

type function struct {
	name string
	args []int
}

type functionImpl struct {
	arity int
	apply func(value string, args []int, vars Expander) string
}

// Expander expands $VAR references; expand_vars uses it.
type Expander interface {
	Expand(input string) string
}

var functions = map[string]functionImpl{
	"expand_vars": {
		arity: 0,
		apply: func(value string, _ []int, vars Expander) string {
			if vars == nil {
				return value
			}
			return vars.Expand(value)
		},
	},
	"truncate": {
		arity: 2,
		apply: func(value string, args []int, _ Expander) string {
			runes := []rune(value)
			offset, length := args[0], args[1]
			if offset >= len(runes) {
				return ""
			}
			end := len(runes)
			if length < end-offset {
				end = offset + length
			}
			return string(runes[offset:end])
		},
	},
	// posix_escape single-quotes values containing shell metacharacters
	// (it's done -> 'it'\''s done') and leaves plain words untouched.
	"posix_escape": {
		arity: 0,
		apply: func(value string, _ []int, _ Expander) string {
			return shellquote.Join(value)
		},
	},
}

func noFunctionMatching(name string) string {
	return fmt.Sprintf("no function matching `%s`: check that the function name, arguments, and types are correct", name)
}

// parseFunction parses `name` or `name(1, 2)`.
func parseFunction(source string) (function, string) {
	parts := functionPattern.FindStringSubmatch(strings.TrimSpace(source))
	if parts == nil {
		return function{}, noFunctionMatching(strings.TrimSpace(source))
	}
	fn := function{name: parts[1]}
	if args := strings.TrimSpace(parts[2]); args != "" {
		for _, arg := range strings.Split(args, ",") {
			n, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 32)
			if err != nil || n < 0 {
				return function{}, noFunctionMatching(fn.name)
			}
			fn.args = append(fn.args, int(n))
		}
	}

	impl, ok := functions[fn.name]
	if !ok || impl.arity != len(fn.args) {
		return function{}, noFunctionMatching(fn.name)
	}
	return fn, ""
}

func (f function) apply(value any, vars Expander) (any, string) {
	s, ok := value.(string)
	if !ok {
		return nil, noFunctionMatching(f.name)
	}
	return functions[f.name].apply(s, f.args, vars), ""
}
