package rules

import (
	"regexp"
	"strings"

	"github.com/teranos/ciconf/errors"
)

// Lookup resolves variable names. *variables.Collection implements it.
type Lookup interface {
	Lookup(name string) (string, bool)
}

// Expression is a parsed `if:` condition.
//
// Grammar, lowest precedence first:
//
//	or      := and { "||" and }
//	and     := compare { "&&" compare }
//	compare := operand [ ("==" | "!=" | "=~" | "!~") operand ]
//	operand := $VAR | ${VAR} | "string" | 'string' | /pattern/flags | null | "(" or ")"
type Expression struct {
	source string
	root   node
}

// ParseExpression compiles input. Patterns are compiled eagerly so a bad regexp is a
// parse error rather than an evaluation surprise.
func ParseExpression(input string) (*Expression, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, errors.Newf("unexpected %s at position %d", tok.kind, tok.pos)
	}
	return &Expression{source: input, root: root}, nil
}

// String returns the expression source.
func (e *Expression) String() string {
	return e.source
}

// Evaluate runs the expression against vars. Unknown variables are null.
func (e *Expression) Evaluate(vars Lookup) (bool, error) {
	value, err := e.root.eval(vars)
	if err != nil {
		return false, err
	}
	return truthy(value), nil
}

// EvaluateString parses and evaluates input in one step.
func EvaluateString(input string, vars Lookup) (bool, error) {
	expr, err := ParseExpression(input)
	if err != nil {
		return false, err
	}
	return expr.Evaluate(vars)
}

type node interface {
	eval(vars Lookup) (any, error)
}

type variableNode struct{ name string }

func (n variableNode) eval(vars Lookup) (any, error) {
	if vars == nil {
		return nil, nil
	}
	if value, ok := vars.Lookup(n.name); ok {
		return value, nil
	}
	return nil, nil
}

type literalNode struct{ value any }

func (n literalNode) eval(Lookup) (any, error) { return n.value, nil }

type binaryNode struct {
	op          tokenKind
	left, right node
}

func (n binaryNode) eval(vars Lookup) (any, error) {
	left, err := n.left.eval(vars)
	if err != nil {
		return nil, err
	}

	// Short-circuit boolean operators.
	switch n.op {
	case tokenAnd:
		if !truthy(left) {
			return false, nil
		}
		right, err := n.right.eval(vars)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	case tokenOr:
		if truthy(left) {
			return true, nil
		}
		right, err := n.right.eval(vars)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	right, err := n.right.eval(vars)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case tokenEquals:
		return equal(left, right), nil
	case tokenNotEquals:
		return !equal(left, right), nil
	case tokenMatches, tokenNotMatches:
		matched, err := match(left, right)
		if err != nil {
			return nil, err
		}
		if n.op == tokenNotMatches {
			return !matched, nil
		}
		return matched, nil
	}
	return nil, errors.Newf("unsupported operator %s", n.op)
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tokenOr, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenAnd {
		p.next()
		right, err := p.parseCompare()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tokenAnd, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	switch op := p.peek().kind; op {
	case tokenEquals, tokenNotEquals, tokenMatches, tokenNotMatches:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseOperand() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokenVariable:
		return variableNode{name: tok.value}, nil
	case tokenString:
		return literalNode{value: tok.value}, nil
	case tokenNull:
		return literalNode{value: nil}, nil
	case tokenPattern:
		re, err := compilePattern(tok.value, tok.flags)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pattern at position %d", tok.pos)
		}
		return literalNode{value: re}, nil
	case tokenLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokenRParen {
			return nil, errors.Newf("expected ) at position %d, got %s", closing.pos, closing.kind)
		}
		return inner, nil
	}
	return nil, errors.Newf("unexpected %s at position %d", tok.kind, tok.pos)
}

func compilePattern(source, flags string) (*regexp.Regexp, error) {
	if flags != "" {
		source = "(?" + flags + ")" + source
	}
	return regexp.Compile(source)
}

// patternLiteral matches a variable value written as /pattern/flags.
var patternLiteral = regexp.MustCompile(`^/(.*)/([ims]*)$`)

func match(left, right any) (bool, error) {
	var re *regexp.Regexp
	switch typed := right.(type) {
	case *regexp.Regexp:
		re = typed
	case string:
		parts := patternLiteral.FindStringSubmatch(typed)
		if parts == nil {
			return false, errors.Newf("%q is not a valid pattern", typed)
		}
		compiled, err := compilePattern(strings.ReplaceAll(parts[1], `\/`, "/"), parts[2])
		if err != nil {
			return false, errors.Wrapf(err, "invalid pattern %q", typed)
		}
		re = compiled
	case nil:
		return false, nil
	default:
		return false, errors.Newf("right side of a match must be a pattern")
	}

	text, ok := left.(string)
	if !ok {
		return false, nil
	}
	return re.MatchString(text), nil
}

func equal(left, right any) bool {
	switch l := left.(type) {
	case nil:
		return right == nil
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	case *regexp.Regexp:
		r, ok := right.(*regexp.Regexp)
		return ok && l.String() == r.String()
	}
	return false
}

func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case string:
		return typed != ""
	case bool:
		return typed
	default:
		return true
	}
}
