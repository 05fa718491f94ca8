// Package interpolation expands `$[[ inputs.name ]]` blocks in a fragment
// body using the typed inputs its `spec:` header declares.
//
// Interpolation is staged so callers can ask whether it is needed before
// paying for a full pass:
//
//	i := interpolation.New(doc, arguments)
//	if i.ShouldInterpolate(enabled) { ... }
//	if err := i.Interpolate(enabled); err != nil { ... }
//	body := i.Result()
package interpolation

import (
	"github.com/teranos/ciconf/document"
	"github.com/teranos/ciconf/logger"
	"go.uber.org/zap"
)

// DefaultMaxBlocks bounds the number of blocks in one fragment.
const DefaultMaxBlocks = 10000

// UsageTracker receives one event per successful interpolation. It must
// not block.
type UsageTracker interface {
	Track(userID string)
}

// Error carries every distinct interpolation error in the order found.
type Error struct {
	Errors []string
	// Err is the underlying parse failure, if any.
	Err error
}

func (e *Error) Error() string {
	if len(e.Errors) == 0 {
		return "interpolation interrupted by errors"
	}
	return "interpolation interrupted by errors, " + e.Errors[0]
}

func (e *Error) Unwrap() error { return e.Err }

// Interpolator runs one fragment through header validation, input binding
// and block substitution. It is single use.
type Interpolator struct {
	doc       *Document
	arguments *document.Map
	vars      Expander
	maxBlocks int
	usage     UsageTracker
	userID    string
	log       *zap.SugaredLogger

	result       *document.Map
	errors       []string
	interpolated bool
	done         bool
}

// Option configures an Interpolator.
type Option func(*Interpolator)

// WithVariables sets the variables expand_vars reads.
func WithVariables(vars Expander) Option {
	return func(i *Interpolator) { i.vars = vars }
}

// WithMaxBlocks overrides DefaultMaxBlocks. Zero or less disables the limit.
func WithMaxBlocks(n int) Option {
	return func(i *Interpolator) { i.maxBlocks = n }
}

// WithUsage reports successful interpolations for userID to tracker.
func WithUsage(tracker UsageTracker, userID string) Option {
	return func(i *Interpolator) {
		i.usage = tracker
		i.userID = userID
	}
}

// WithLogger sets the logger used for usage tracking failures.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(i *Interpolator) { i.log = log }
}

// New prepares an interpolation of doc with the include's arguments.
func New(doc *Document, arguments *document.Map, opts ...Option) *Interpolator {
	if arguments == nil {
		arguments = document.New()
	}
	i := &Interpolator{
		doc:       doc,
		arguments: arguments,
		maxBlocks: DefaultMaxBlocks,
		log:       logger.ComponentLogger("interpolation"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// HasHeader reports whether the fragment declares a non-empty
// `spec:inputs` block.
func (i *Interpolator) HasHeader() bool {
	return i.doc.HasHeader() && i.doc.Inputs().Len() > 0
}

// ShouldInterpolate is false when the feature is disabled, when there is no
// header, or when the fragment did not parse. A parse failure is still
// reported by Interpolate.
func (i *Interpolator) ShouldInterpolate(enabled bool) bool {
	return enabled && i.doc.Valid() && i.HasHeader()
}

// Interpolate runs the interpolation. Without a header the body passes
// through unchanged. With a header and the feature disabled the result is
// an empty document.
func (i *Interpolator) Interpolate(enabled bool) error {
	if i.done {
		return i.err()
	}
	i.done = true

	if !i.doc.Valid() {
		i.errors = append(i.errors, i.doc.Err.Error())
		return i.err()
	}

	if !i.doc.HasHeader() {
		if i.arguments.Len() > 0 {
			i.errors = append(i.errors, "Given inputs not defined in the `spec` section of the included configuration file")
			return i.err()
		}
		i.result = i.doc.Content
		return nil
	}

	if !enabled {
		i.result = document.New()
		return nil
	}

	specs, headerErrs := parseHeader(i.doc.Header)
	if len(headerErrs) > 0 {
		i.errors = headerErrs
		return i.err()
	}

	inputs, inputErrs := resolveInputs(specs, i.arguments)
	if len(inputErrs) > 0 {
		i.errors = inputErrs
		return i.err()
	}

	t := newTemplate(&scope{inputs: inputs, vars: i.vars}, i.maxBlocks)
	interpolated := t.interpolate(i.doc.Content).(*document.Map)
	if len(t.errors) > 0 {
		i.errors = t.errors
		return i.err()
	}

	i.result = interpolated
	i.interpolated = true
	i.trackUsage()
	return nil
}

func (i *Interpolator) err() error {
	if len(i.errors) == 0 {
		return nil
	}
	return &Error{Errors: i.errors, Err: i.doc.Err}
}

// trackUsage never lets the tracker fail or panic the interpolation.
func (i *Interpolator) trackUsage() {
	if i.usage == nil || i.userID == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			i.log.Warnw("Usage tracking panicked", "panic", r, logger.FieldUserID, i.userID)
		}
	}()
	i.usage.Track(i.userID)
}

// Interpolated reports whether blocks were substituted.
func (i *Interpolator) Interpolated() bool {
	return i.interpolated
}

// Valid reports whether Interpolate finished without errors.
func (i *Interpolator) Valid() bool {
	return len(i.errors) == 0
}

// Errors returns every distinct error found.
func (i *Interpolator) Errors() []string {
	return i.errors
}

// Result returns the interpolated body, or an empty document before a
// successful Interpolate.
func (i *Interpolator) Result() *document.Map {
	if i.result == nil || !i.Valid() {
		return document.New()
	}
	return i.result
}
