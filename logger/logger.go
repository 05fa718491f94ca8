package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. It is a no-op until Initialize or Use
// is called, so library callers never see a nil logger.
var Logger = zap.NewNop().Sugar()

// level is shared by every logger Initialize builds, so SetVerbosity takes
// effect on component loggers created earlier.
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Initialize replaces Logger with a JSON (jsonOutput) or console logger
// writing to stderr at the level verbosity maps to (see VerbosityToLevel).
func Initialize(jsonOutput bool, verbosity int) error {
	level.SetLevel(VerbosityToLevel(verbosity))

	var encoder zapcore.Encoder
	if jsonOutput {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	Logger = zap.New(core, zap.Fields(zap.String("service", "ciconf"))).Sugar()
	return nil
}

// SetVerbosity changes the level of loggers built by Initialize.
func SetVerbosity(verbosity int) {
	level.SetLevel(VerbosityToLevel(verbosity))
}

// Enabled reports whether Initialize-built loggers emit lvl.
func Enabled(lvl zapcore.Level) bool {
	return level.Enabled(lvl)
}

// Use replaces the global logger. Tests use it with zaptest/observer cores.
func Use(l *zap.SugaredLogger) {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	Logger = l
}

// Sync flushes buffered entries.
func Sync() {
	_ = Logger.Sync()
}
