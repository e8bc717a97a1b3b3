// Package watchlog is the project-wide structured logging facade.
// The default implementation wraps go.uber.org/zap.
package watchlog

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured logging field (zap-style).
type Field struct {
	Key   string
	Value any
}

// ---- Field helpers ----

func String(key, val string) Field    { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field { return Field{Key: key, Value: val} }
func Int(key string, val int) Field   { return Field{Key: key, Value: val} }
func Int64(key string, val int64) Field {
	return Field{Key: key, Value: val}
}
func Uint64(key string, val uint64) Field {
	return Field{Key: key, Value: val}
}
func Float64(key string, val float64) Field {
	return Field{Key: key, Value: val}
}
func Time(key string, v time.Time) Field {
	return Field{Key: key, Value: v}
}
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d}
}
func Any(key string, val any) Field { return Field{Key: key, Value: val} }
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err}
}

// Logger is the project-wide logging interface.
type Logger interface {
	// Named returns a child logger with the given component name appended.
	Named(name string) Logger
	// With returns a child logger that includes the provided fields.
	With(fields ...Field) Logger

	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// ---- Global logger accessors ----

var (
	globalMu     sync.RWMutex
	globalLogger Logger = mustDefault()
)

func mustDefault() Logger {
	l, err := NewZap("info", "console")
	if err != nil {
		return NewNop()
	}
	return l
}

// L returns the current global logger.
func L() Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	return l
}

// ReplaceGlobal swaps the global logger implementation.
func ReplaceGlobal(l Logger) {
	if l == nil {
		return
	}
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// ---- zap-backed logger implementation ----

type zapLogger struct {
	z *zap.Logger
}

// NewZap builds a Logger on top of zap. Level is one of debug/info/warn/error,
// format is "json" or "console". Unknown values fall back to info/console.
func NewZap(level, format string) (Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.Set(level); err != nil {
			lvl = zapcore.InfoLevel
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch format {
	case "json":
		cfg.Encoding = "json"
	default:
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &zapLogger{z: z}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) Logger {
	if z == nil {
		return NewNop()
	}
	return &zapLogger{z: z}
}

func (l *zapLogger) Named(name string) Logger {
	if name == "" {
		return l
	}
	return &zapLogger{z: l.z.Named(name)}
}

func (l *zapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &zapLogger{z: l.z.With(toZap(fields)...)}
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, toZap(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, toZap(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, toZap(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, toZap(fields)...) }

// Sync flushes buffered log entries when the underlying logger supports it.
func Sync(l Logger) {
	if zl, ok := l.(*zapLogger); ok {
		_ = zl.z.Sync()
	}
}

func toZap(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		switch v := f.Value.(type) {
		case nil:
			out = append(out, zap.Any(f.Key, nil))
		case error:
			if f.Key == "error" {
				out = append(out, zap.Error(v))
			} else {
				out = append(out, zap.NamedError(f.Key, v))
			}
		case string:
			out = append(out, zap.String(f.Key, v))
		case bool:
			out = append(out, zap.Bool(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case int64:
			out = append(out, zap.Int64(f.Key, v))
		case uint64:
			out = append(out, zap.Uint64(f.Key, v))
		case float64:
			out = append(out, zap.Float64(f.Key, v))
		case time.Time:
			out = append(out, zap.Time(f.Key, v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

// ---- no-op logger, used in tests ----

type nopLogger struct{}

// NewNop returns a logger that discards everything.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Named(string) Logger    { return nopLogger{} }
func (nopLogger) With(...Field) Logger   { return nopLogger{} }
func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}
