// Package logger builds the structured zap.Logger used throughout the
// audit pipeline, wrapping it with a masking core so sensitive fields never
// reach log output regardless of call site.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Development enables human-readable console output instead of JSON.
	Development bool
	// Service is attached to every log line as a static field.
	Service string
	// MaskFields lists additional field names (beyond the built-in
	// defaults) to mask in log output.
	MaskFields []string
}

// Logger is the structured logger passed around the pipeline. It wraps
// zap's sugared API so call sites can log with loosely-typed
// key/value pairs (Info("message", "key", value, ...)) while the
// underlying core still emits structured JSON and masks sensitive fields.
type Logger struct {
	*zap.SugaredLogger
	level zap.AtomicLevel
}

// Named returns a Logger with name appended to the logger's name chain.
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name), level: l.level}
}

// With returns a Logger with the given key/value pairs attached to every
// subsequent log line.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...), level: l.level}
}

// Zap returns the underlying *zap.Logger for callers that need the
// strongly-typed API (e.g. passing into otel's zap bridge).
func (l *Logger) Zap() *zap.Logger {
	return l.SugaredLogger.Desugar()
}

// SetLevel changes the minimum log level emitted by this Logger and every
// Logger derived from it (Named/With share the same underlying atomic
// level), without rebuilding the core. This backs configuration hot-reload:
// an edited log_level takes effect on the next watched config change.
func (l *Logger) SetLevel(level string) error {
	parsed, err := zapcore.ParseLevel(defaultLevel(level))
	if err != nil {
		return fmt.Errorf("logger: invalid level %q: %w", level, err)
	}
	l.level.SetLevel(parsed)
	return nil
}

// New builds a Logger per cfg, wrapping its core with a masking decorator
// so sensitive fields never reach log output regardless of call site.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(defaultLevel(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	atomicLevel := zap.NewAtomicLevelAt(level)
	zapCfg.Level = atomicLevel

	base, err := zapCfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return newMaskingCore(core, mergeFields(cfg.MaskFields))
	}))
	if err != nil {
		return nil, fmt.Errorf("logger: build: %w", err)
	}

	if cfg.Service != "" {
		base = base.With(zap.String("service", cfg.Service))
	}
	return &Logger{SugaredLogger: base.Sugar(), level: atomicLevel}, nil
}

func defaultLevel(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

func mergeFields(extra []string) map[string]bool {
	fields := make(map[string]bool, len(defaultMaskedFields)+len(extra))
	for _, f := range defaultMaskedFields {
		fields[f] = true
	}
	for _, f := range extra {
		fields[f] = true
	}
	return fields
}
