// Package log provides the narrow structured-logging interface used across
// nsauthd. Call sites never import zap directly; they call the package-level
// functions here, which delegate to a swappable global Logger.
package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface every component depends on.
type Logger interface {
	Info(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
	Debug(fields map[string]any, msg string)
	Fatal(fields map[string]any, msg string)
}

var global Logger = newZapLogger(false, zapcore.InfoLevel)

// SetLogger replaces the global logger, for tests or custom wiring.
func SetLogger(l Logger) {
	global = l
}

// GetLogger returns the current global logger.
func GetLogger() Logger {
	return global
}

// Configure rebuilds the global logger for the given environment ("prod" or
// anything else for a development encoder) and level name.
func Configure(env, level string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("log: invalid level %q: %w", level, err)
	}
	global = newZapLogger(env != "prod", lvl)
	return nil
}

func Info(fields map[string]any, msg string)  { global.Info(fields, msg) }
func Warn(fields map[string]any, msg string)  { global.Warn(fields, msg) }
func Error(fields map[string]any, msg string) { global.Error(fields, msg) }
func Debug(fields map[string]any, msg string) { global.Debug(fields, msg) }
func Fatal(fields map[string]any, msg string) { global.Fatal(fields, msg) }

type zapLogger struct {
	base *zap.Logger
}

func newZapLogger(dev bool, level zapcore.Level) Logger {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.LevelKey = "level"

	base, _ := cfg.Build()
	return &zapLogger{base: base}
}

func (l *zapLogger) Info(fields map[string]any, msg string)  { l.base.With(zapFields(fields)...).Info(msg) }
func (l *zapLogger) Warn(fields map[string]any, msg string)  { l.base.With(zapFields(fields)...).Warn(msg) }
func (l *zapLogger) Error(fields map[string]any, msg string) { l.base.With(zapFields(fields)...).Error(msg) }
func (l *zapLogger) Debug(fields map[string]any, msg string) { l.base.With(zapFields(fields)...).Debug(msg) }
func (l *zapLogger) Fatal(fields map[string]any, msg string) { l.base.With(zapFields(fields)...).Fatal(msg) }

func zapFields(m map[string]any) []zap.Field {
	fields := make([]zap.Field, 0, len(m))
	for k, v := range m {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

type noopLogger struct{}

func (noopLogger) Info(map[string]any, string)  {}
func (noopLogger) Warn(map[string]any, string)  {}
func (noopLogger) Error(map[string]any, string) {}
func (noopLogger) Debug(map[string]any, string) {}
func (noopLogger) Fatal(map[string]any, string) {}

// NewNoopLogger returns a Logger that discards everything, for tests.
func NewNoopLogger() Logger {
	return noopLogger{}
}
