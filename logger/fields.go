package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across ciconf.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldResolutionID = "resolution_id"
	FieldUserID       = "user_id"
	FieldProject      = "project"
	FieldSHA          = "sha"

	// Components
	FieldComponent = "component"

	// Fragments
	FieldKind     = "kind"
	FieldLocation = "location"
	FieldRef      = "ref"
	FieldDepth    = "depth"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorKind = "error_kind"
	FieldReason    = "reason"

	// Counts and sizes
	FieldCount = "count"
	FieldSize  = "size"

	// Network
	FieldURL    = "url"
	FieldStatus = "status"
)

// Context keys for propagating logging context
type contextKey string

const (
	resolutionIDKey contextKey = "logger_resolution_id"
	componentKey    contextKey = "logger_component"
)

// WithResolutionID adds a resolution ID to the context for logging
func WithResolutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, resolutionIDKey, id)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if id, ok := ctx.Value(resolutionIDKey).(string); ok && id != "" {
		fields = append(fields, FieldResolutionID, id)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base (or the global logger when base is nil) carrying
// the fields found in ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	func NewProcessor(...) *Processor {
//	    return &Processor{
//	        logger: logger.ComponentLogger("external.processor"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
