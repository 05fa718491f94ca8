package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants, configured through log.verbosity.
const (
	VerbosityQuiet = 0 // errors and warnings only
	VerbosityInfo  = 1 // + resolution summaries
	VerbosityDebug = 2 // + every fragment loaded, rule decisions
	VerbosityTrace = 3 // + remote requests, catalog syncs
)

// VerbosityToLevel maps a verbosity count to a zap log level
//
// Mapping:
//
//	0    -> WarnLevel
//	1    -> InfoLevel
//	2+   -> DebugLevel
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityQuiet:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// ShouldLogTrace returns true for verbosity >= 3
func ShouldLogTrace(verbosity int) bool {
	return verbosity >= VerbosityTrace
}
