// Package variables holds the ordered CI variable bindings a resolution runs
// with, and expands $NAME / ${NAME} references against them.
package variables

import (
	"regexp"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// referencePattern matches $NAME and ${NAME}. A doubled "$$" escapes a
// literal dollar sign.
var referencePattern = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// Variable is one binding.
type Variable struct {
	Key   string
	Value string
}

// Collection is an ordered, case-preserving set of variables. Setting an
// existing key replaces its value in place. The zero value is not usable;
// use New.
type Collection struct {
	values *orderedmap.OrderedMap[string, string]
}

// New builds a Collection from vars in order.
func New(vars ...Variable) *Collection {
	c := &Collection{values: orderedmap.New[string, string]()}
	for _, v := range vars {
		c.Set(v.Key, v.Value)
	}
	return c
}

// FromMap builds a Collection from m with keys sorted.
func FromMap(m map[string]string) *Collection {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	c := New()
	for _, key := range keys {
		c.Set(key, m[key])
	}
	return c
}

// Set binds key to value.
func (c *Collection) Set(key, value string) {
	c.values.Set(key, value)
}

// Lookup returns the value bound to key.
func (c *Collection) Lookup(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.values.Get(key)
}

// Len returns the number of variables.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return c.values.Len()
}

// Items returns the variables in declaration order.
func (c *Collection) Items() []Variable {
	if c == nil {
		return nil
	}
	out := make([]Variable, 0, c.values.Len())
	for pair := c.values.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Variable{Key: pair.Key, Value: pair.Value})
	}
	return out
}

// ToMap returns the variables as a key/value dictionary.
func (c *Collection) ToMap() map[string]string {
	out := make(map[string]string, c.Len())
	for _, v := range c.Items() {
		out[v.Key] = v.Value
	}
	return out
}

// Copy returns an independent Collection with the same bindings.
func (c *Collection) Copy() *Collection {
	return New(c.Items()...)
}

// Expand replaces $NAME and ${NAME} references in input. Unknown variables
// expand to the empty string and "$$" becomes "$".
func (c *Collection) Expand(input string) string {
	return referencePattern.ReplaceAllStringFunc(input, func(match string) string {
		if match == "$$" {
			return "$"
		}
		name := match[1:]
		if name[0] == '{' {
			name = name[1 : len(name)-1]
		}
		value, _ := c.Lookup(name)
		return value
	})
}

// References lists the variable names input refers to, in order of first
// appearance.
func References(input string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range referencePattern.FindAllStringSubmatch(input, -1) {
		name := match[1]
		if name == "" {
			name = match[2]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
