package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging surface used across the harvester.
// Every entry carries a message, a short machine-readable event name and
// optional fields.
type Logger interface {
	DebugObj(msg, event string, fields map[string]any)
	InfoObj(msg, event string, fields map[string]any)
	WarnObj(msg, event string, fields map[string]any)
	ErrorObj(msg, event string, fields map[string]any)
	Sync() error
}

// Options configures the zap-backed logger.
type Options struct {
	Level  string
	Format string // "json" or "console"
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a zap-backed Logger.
func New(opts Options) (Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil && strings.TrimSpace(opts.Level) != "" {
		return nil, fmt.Errorf("parse log level %q: %w", opts.Level, err)
	}
	if strings.TrimSpace(opts.Level) == "" {
		level = zapcore.InfoLevel
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "", "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &zapLogger{z: z}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) Logger {
	if z == nil {
		return NopLogger{}
	}
	return &zapLogger{z: z}
}

func (l *zapLogger) DebugObj(msg, event string, fields map[string]any) {
	l.write(zapcore.DebugLevel, msg, event, fields)
}

func (l *zapLogger) InfoObj(msg, event string, fields map[string]any) {
	l.write(zapcore.InfoLevel, msg, event, fields)
}

func (l *zapLogger) WarnObj(msg, event string, fields map[string]any) {
	l.write(zapcore.WarnLevel, msg, event, fields)
}

func (l *zapLogger) ErrorObj(msg, event string, fields map[string]any) {
	l.write(zapcore.ErrorLevel, msg, event, fields)
}

func (l *zapLogger) Sync() error { return l.z.Sync() }

// write skips field conversion entirely when the level is disabled.
func (l *zapLogger) write(level zapcore.Level, msg, event string, fields map[string]any) {
	ce := l.z.Check(level, msg)
	if ce == nil {
		return
	}
	zf := make([]zap.Field, 0, len(fields)+1)
	if event != "" {
		zf = append(zf, zap.String("event", event))
	}
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	ce.Write(zf...)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) DebugObj(string, string, map[string]any) {}
func (NopLogger) InfoObj(string, string, map[string]any)  {}
func (NopLogger) WarnObj(string, string, map[string]any)  {}
func (NopLogger) ErrorObj(string, string, map[string]any) {}
func (NopLogger) Sync() error                             { return nil }

// Ensure returns log, or a NopLogger when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return NopLogger{}
	}
	return log
}
