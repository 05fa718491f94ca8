// Package errors provides error handling for ciconf.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := fetch(); err != nil {
//	    return errors.Wrap(err, "fetching fragment")
//	}
//
//	// Classify a backend failure so the processor can word it
//	return errors.Mark(errors.Newf("blob %s missing", path), errors.ErrNotFound)
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Failure classes shared by the fragment backends and the include processor.
// Backends mark (errors.Mark) or wrap their failures with one of these so the
// processor can turn them into an author-facing message without knowing the
// backend.
var (
	// ErrNotFound indicates the referenced file, ref, template or project does not exist
	ErrNotFound = New("not found")

	// ErrForbidden indicates the acting user cannot read the referenced project
	ErrForbidden = New("forbidden")

	// ErrInvalidRequest indicates the reference itself is malformed
	ErrInvalidRequest = New("invalid request")

	// ErrTimeout indicates a fetch or the whole resolution ran out of time
	ErrTimeout = New("operation timed out")

	// ErrNetwork indicates a socket-level failure (refused, reset, DNS)
	ErrNetwork = New("network error")

	// ErrTLS indicates a certificate or TLS handshake failure
	ErrTLS = New("tls error")

	// ErrEmpty indicates the fetched content was empty
	ErrEmpty = New("empty content")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsForbiddenError checks if an error is or wraps ErrForbidden
func IsForbiddenError(err error) bool {
	return err != nil && Is(err, ErrForbidden)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewForbiddenError creates a forbidden error with a formatted message
func NewForbiddenError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrForbidden)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}
