// Package log provides structured JSON logging for the worker runtime.
//
// The non-sugared zap.Logger is used on hot paths (per-frame events);
// callers needing printf-style logging can use Logger.Sugar().
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger tagged with a component name, writing JSON to stderr.
func New(component string) *zap.Logger {
	return NewWithWriter(component, os.Stderr)
}

// NewAtLevel creates a stderr logger with a minimum level of "debug",
// "info", "warn", or "error". Unknown levels fall back to info.
func NewAtLevel(component, level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		lvl = parsed
	}
	return newCore(component, os.Stderr, lvl)
}

// NewWithWriter creates a logger writing to the given writer.
// Used by tests to capture output.
func NewWithWriter(component string, w io.Writer) *zap.Logger {
	return newCore(component, w, zapcore.InfoLevel)
}

func newCore(component string, w io.Writer, lvl zapcore.Level) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		lvl,
	)
	return zap.New(core).With(zap.String("component", component))
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
