package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ConsoleLogger writes human-readable lines to stderr, optionally colored.
type ConsoleLogger struct {
	out   io.Writer
	level Level
	color bool
	base  []Field
}

// NewConsole creates a console logger with the given minimum level.
func NewConsole(level Level, color bool) *ConsoleLogger {
	return &ConsoleLogger{out: os.Stderr, level: level, color: color}
}

func (c *ConsoleLogger) Debug(msg string, fields ...Field) { c.write(LevelDebug, msg, fields) }
func (c *ConsoleLogger) Info(msg string, fields ...Field)  { c.write(LevelInfo, msg, fields) }
func (c *ConsoleLogger) Warn(msg string, fields ...Field)  { c.write(LevelWarn, msg, fields) }
func (c *ConsoleLogger) Error(msg string, fields ...Field) { c.write(LevelError, msg, fields) }

func (c *ConsoleLogger) WithFields(fields ...Field) Logger {
	clone := *c
	clone.base = mergeFields(c.base, fields)
	return &clone
}

func (c *ConsoleLogger) Close() error { return nil }

var levelColors = map[Level]string{
	LevelDebug: "\x1b[36m",
	LevelInfo:  "\x1b[32m",
	LevelWarn:  "\x1b[33m",
	LevelError: "\x1b[31m",
}

func (c *ConsoleLogger) write(level Level, msg string, fields []Field) {
	if level < c.level {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	b.WriteByte(' ')

	tag := fmt.Sprintf("%-5s", strings.ToUpper(level.String()))
	if c.color {
		b.WriteString(levelColors[level])
		b.WriteString(tag)
		b.WriteString("\x1b[0m")
	} else {
		b.WriteString(tag)
	}

	b.WriteByte(' ')
	b.WriteString(msg)
	b.WriteString(FormatFields(mergeFields(c.base, fields)))
	b.WriteByte('\n')

	io.WriteString(c.out, b.String())
}
