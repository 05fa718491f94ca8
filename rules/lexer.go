package rules

import (
	"strings"

	"github.com/teranos/ciconf/errors"
)

type tokenKind int

const (
	tokenVariable tokenKind = iota
	tokenString
	tokenPattern
	tokenNull
	tokenEquals
	tokenNotEquals
	tokenMatches
	tokenNotMatches
	tokenAnd
	tokenOr
	tokenLParen
	tokenRParen
	tokenEOF
)

func (k tokenKind) String() string {
	switch k {
	case tokenVariable:
		return "variable"
	case tokenString:
		return "string"
	case tokenPattern:
		return "pattern"
	case tokenNull:
		return "null"
	case tokenEquals:
		return "=="
	case tokenNotEquals:
		return "!="
	case tokenMatches:
		return "=~"
	case tokenNotMatches:
		return "!~"
	case tokenAnd:
		return "&&"
	case tokenOr:
		return "||"
	case tokenLParen:
		return "("
	case tokenRParen:
		return ")"
	default:
		return "end of expression"
	}
}

type token struct {
	kind  tokenKind
	value string
	// flags holds the trailing modifiers of a /pattern/.
	flags string
	pos   int
}

// maxTokens bounds the size of a single expression.
const maxTokens = 200

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		if len(tokens) > maxTokens {
			return nil, errors.Newf("expression is too long (more than %d tokens)", maxTokens)
		}
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '$':
			start := i
			i++
			braced := i < len(input) && input[i] == '{'
			if braced {
				i++
			}
			nameStart := i
			for i < len(input) && isNameByte(input[i], i == nameStart) {
				i++
			}
			name := input[nameStart:i]
			if name == "" {
				return nil, errors.Newf("invalid variable reference at position %d", start)
			}
			if braced {
				if i >= len(input) || input[i] != '}' {
					return nil, errors.Newf("unterminated variable reference at position %d", start)
				}
				i++
			}
			tokens = append(tokens, token{kind: tokenVariable, value: name, pos: start})

		case c == '"' || c == '\'':
			start := i
			end := strings.IndexByte(input[i+1:], c)
			if end < 0 {
				return nil, errors.Newf("unterminated string at position %d", start)
			}
			tokens = append(tokens, token{kind: tokenString, value: input[i+1 : i+1+end], pos: start})
			i += end + 2

		case c == '/':
			start := i
			j := i + 1
			var b strings.Builder
			for j < len(input) && input[j] != '/' {
				if input[j] == '\\' && j+1 < len(input) && input[j+1] == '/' {
					b.WriteByte('/')
					j += 2
					continue
				}
				b.WriteByte(input[j])
				j++
			}
			if j >= len(input) {
				return nil, errors.Newf("unterminated pattern at position %d", start)
			}
			j++
			flagStart := j
			for j < len(input) && strings.IndexByte("ims", input[j]) >= 0 {
				j++
			}
			tokens = append(tokens, token{kind: tokenPattern, value: b.String(), flags: input[flagStart:j], pos: start})
			i = j

		case strings.HasPrefix(input[i:], "=="):
			tokens = append(tokens, token{kind: tokenEquals, pos: i})
			i += 2
		case strings.HasPrefix(input[i:], "!="):
			tokens = append(tokens, token{kind: tokenNotEquals, pos: i})
			i += 2
		case strings.HasPrefix(input[i:], "=~"):
			tokens = append(tokens, token{kind: tokenMatches, pos: i})
			i += 2
		case strings.HasPrefix(input[i:], "!~"):
			tokens = append(tokens, token{kind: tokenNotMatches, pos: i})
			i += 2
		case strings.HasPrefix(input[i:], "&&"):
			tokens = append(tokens, token{kind: tokenAnd, pos: i})
			i += 2
		case strings.HasPrefix(input[i:], "||"):
			tokens = append(tokens, token{kind: tokenOr, pos: i})
			i += 2
		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen, pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen, pos: i})
			i++

		case strings.HasPrefix(input[i:], "null") && (i+4 == len(input) || !isNameByte(input[i+4], false)):
			tokens = append(tokens, token{kind: tokenNull, pos: i})
			i += 4

		default:
			return nil, errors.Newf("unknown token at position %d: %q", i, input[i:])
		}
	}
	return append(tokens, token{kind: tokenEOF, pos: len(input)}), nil
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
