package logger

import (
	"fmt"
	"strings"
	"time"
)

// Level is log severity. The zero value is LevelInfo.
type Level int8

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int8(l))
}

// ParseLevel parses a level name. Unknown input yields LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelInfo
}

// Field is one structured key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

func String(key, val string) Field                 { return Field{key, val} }
func Int(key string, val int) Field                { return Field{key, val} }
func Float64(key string, val float64) Field        { return Field{key, val} }
func Bool(key string, val bool) Field              { return Field{key, val} }
func Duration(key string, val time.Duration) Field { return Field{key, val.String()} }
func Any(key string, val any) Field                { return Field{key, val} }

func Err(err error) Field {
	if err == nil {
		return Field{"error", ""}
	}
	return Field{"error", err.Error()}
}

// Logger is the interface all log backends implement.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
	Close() error
}

// Multi fans every log call out to all given backends.
func Multi(loggers ...Logger) Logger {
	if len(loggers) == 1 {
		return loggers[0]
	}
	return teeLogger(loggers)
}

type teeLogger []Logger

func (t teeLogger) Debug(msg string, fields ...Field) {
	for _, l := range t {
		l.Debug(msg, fields...)
	}
}

func (t teeLogger) Info(msg string, fields ...Field) {
	for _, l := range t {
		l.Info(msg, fields...)
	}
}

func (t teeLogger) Warn(msg string, fields ...Field) {
	for _, l := range t {
		l.Warn(msg, fields...)
	}
}

func (t teeLogger) Error(msg string, fields ...Field) {
	for _, l := range t {
		l.Error(msg, fields...)
	}
}

func (t teeLogger) WithFields(fields ...Field) Logger {
	out := make(teeLogger, len(t))
	for i, l := range t {
		out[i] = l.WithFields(fields...)
	}
	return out
}

func (t teeLogger) Close() error {
	var first error
	for _, l := range t {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field)     {}
func (nopLogger) Info(string, ...Field)      {}
func (nopLogger) Warn(string, ...Field)      {}
func (nopLogger) Error(string, ...Field)     {}
func (nopLogger) WithFields(...Field) Logger { return nopLogger{} }
func (nopLogger) Close() error               { return nil }

// FormatFields renders fields as " key=value" pairs. Values containing
// whitespace are quoted so lines stay grep-friendly.
func FormatFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(formatValue(f.Value))
	}
	return b.String()
}

func formatValue(v any) string {
	s := fmt.Sprint(v)
	if strings.ContainsAny(s, " \t\n\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func mergeFields(base, extra []Field) []Field {
	if len(base) == 0 {
		return extra
	}
	merged := make([]Field, 0, len(base)+len(extra))
	merged = append(merged, base...)
	merged = append(merged, extra...)
	return merged
}
