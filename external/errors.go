package external

import (
	"fmt"
	"strings"

	"github.com/teranos/ciconf/errors"
)

// ErrorKind identifies the family of a resolution failure.
type ErrorKind string

const (
	KindAmbiguousSpecification ErrorKind = "ambiguous_specification"
	KindDuplicateIncludes      ErrorKind = "duplicate_includes"
	KindTooManyIncludes        ErrorKind = "too_many_includes"
	KindInclude                ErrorKind = "include"
	KindInvalidIncludeRules    ErrorKind = "invalid_include_rules"
	KindTimeout                ErrorKind = "timeout"
	KindDuplicateInput         ErrorKind = "duplicate_input"
)

// Reason refines KindInclude failures.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNotFound        Reason = "not_found"
	ReasonSocket          Reason = "socket"
	ReasonTLS             Reason = "tls"
	ReasonAccessDenied    Reason = "access_denied"
	ReasonInvalidYAML     Reason = "invalid_yaml"
	ReasonUnknownRuleKeys Reason = "unknown_rule_keys"
	ReasonUnknownKeys     Reason = "unknown_keys"
	ReasonInterpolation   Reason = "interpolation"
	ReasonEmpty           Reason = "empty"
	ReasonInvalidLocation Reason = "invalid_location"
	ReasonNestingTooDeep  Reason = "nesting_too_deep"
	ReasonHTTPStatus      Reason = "http_status"
	ReasonTimeout         Reason = "timeout"
)

// Error is every failure Perform returns. Message is written for the
// pipeline author and names the offending location, key or rule.
type Error struct {
	Kind     ErrorKind
	Reason   Reason
	Location string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ReasonOf returns the Reason of an *Error, or ReasonNone.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

// KindOf returns the ErrorKind of an *Error, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewIncludeError builds a KindInclude failure.
func NewIncludeError(reason Reason, location, format string, args ...interface{}) *Error {
	return &Error{
		Kind:     KindInclude,
		Reason:   reason,
		Location: location,
		Message:  fmt.Sprintf(format, args...),
	}
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

func ambiguousSpecificationError(rendered string) *Error {
	return &Error{
		Kind:     KindAmbiguousSpecification,
		Location: rendered,
		Message:  fmt.Sprintf("Include `%s` needs to match exactly one accessor!", rendered),
	}
}

func duplicateIncludesError(rendered string) *Error {
	return &Error{
		Kind:     KindDuplicateIncludes,
		Location: rendered,
		Message:  fmt.Sprintf("Include `%s` was already included!", rendered),
	}
}

func tooManyIncludesError(max int) *Error {
	return &Error{
		Kind:    KindTooManyIncludes,
		Message: fmt.Sprintf("Maximum of %d nested includes are allowed!", max),
	}
}

func timeoutError() *Error {
	return &Error{
		Kind:    KindTimeout,
		Reason:  ReasonTimeout,
		Message: "Resolving config took longer than expected",
	}
}

func invalidIncludeRulesError(location, message string, cause error) *Error {
	return &Error{
		Kind:     KindInvalidIncludeRules,
		Location: location,
		Message:  message,
		Err:      cause,
	}
}

// duplicateInputError lists every input name declared more than once.
func duplicateInputError(keys []string) *Error {
	return &Error{
		Kind: KindDuplicateInput,
		Message: fmt.Sprintf(
			"Duplicate input keys found: %s. Input keys must be unique across all included files and inline specifications.",
			strings.Join(keys, ", "),
		),
	}
}

// classify turns a backend failure that is not already an *Error into one,
// using the sentinel class it is marked with.
func classify(spec Specification, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	label := spec.Kind.label()
	location := spec.Display()
	switch {
	case errors.Is(err, errors.ErrTimeout):
		return NewIncludeError(ReasonSocket, location, "%s `%s` could not be fetched because of a timeout error!", label, location).WithCause(err)
	case errors.Is(err, errors.ErrTLS):
		return NewIncludeError(ReasonTLS, location, "%s `%s` could not be fetched because of SSL error!", label, location).WithCause(err)
	case errors.Is(err, errors.ErrNetwork):
		return NewIncludeError(ReasonSocket, location, "%s `%s` could not be fetched because of a socket error!", label, location).WithCause(err)
	case errors.Is(err, errors.ErrForbidden):
		return NewIncludeError(ReasonAccessDenied, location, "%s `%s` not found or access denied!", label, location).WithCause(err)
	case errors.Is(err, errors.ErrNotFound):
		return NewIncludeError(ReasonNotFound, location, "%s `%s` does not exist!", label, location).WithCause(err)
	case errors.Is(err, errors.ErrEmpty):
		return NewIncludeError(ReasonEmpty, location, "%s `%s` is empty!", label, location).WithCause(err)
	case errors.Is(err, errors.ErrInvalidRequest):
		return NewIncludeError(ReasonInvalidLocation, location, "%s `%s` is not a valid location!", label, location).WithCause(err)
	}
	return NewIncludeError(ReasonNone, location, "%s `%s` could not be loaded: %s", label, location, err.Error()).WithCause(err)
}

func uniqueStrings(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
