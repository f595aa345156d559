package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileConfig configures the file logger.
type FileConfig struct {
	Dir        string
	Level      Level
	MaxAgeDays int // delete files older than N days, 0 = never delete
}

// FileLogger writes log lines to daily-rotated files named
// validator-YYYY-MM-DD.log under the configured directory.
type FileLogger struct {
	level Level
	base  []Field
	sink  *fileSink
}

// fileSink is shared by every FileLogger derived via WithFields. The mutex
// guards the handle and the rotation day.
type fileSink struct {
	mu         sync.Mutex
	dir        string
	maxAgeDays int
	file       *os.File
	day        string
}

// NewFile creates a daily-rotating file logger.
func NewFile(cfg FileConfig) (*FileLogger, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	sink := &fileSink{dir: cfg.Dir, maxAgeDays: cfg.MaxAgeDays}
	if err := sink.open(time.Now()); err != nil {
		return nil, err
	}
	return &FileLogger{level: cfg.Level, sink: sink}, nil
}

func (l *FileLogger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l *FileLogger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l *FileLogger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l *FileLogger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

func (l *FileLogger) WithFields(fields ...Field) Logger {
	clone := *l
	clone.base = mergeFields(l.base, fields)
	return &clone
}

func (l *FileLogger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.file == nil {
		return nil
	}
	err := l.sink.file.Close()
	l.sink.file = nil
	return err
}

func (l *FileLogger) write(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	now := time.Now()
	line := fmt.Sprintf("%s %-5s %s%s\n",
		now.Format("2006-01-02 15:04:05.000"),
		strings.ToUpper(level.String()),
		msg,
		FormatFields(mergeFields(l.base, fields)),
	)

	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if day := now.Format("2006-01-02"); day != s.day {
		s.rotate(now)
	}
	if s.file != nil {
		s.file.WriteString(line)
	}
}

func (s *fileSink) open(t time.Time) error {
	day := t.Format("2006-01-02")
	name := filepath.Join(s.dir, "validator-"+day+".log")

	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	s.file = f
	s.day = day
	return nil
}

// rotate closes the current file and opens the one for the given day.
// Must be called with s.mu held.
func (s *fileSink) rotate(t time.Time) {
	if s.file != nil {
		s.file.Close()
	}
	if err := s.open(t); err != nil {
		fmt.Fprintf(os.Stderr, "file logger rotate failed: %v\n", err)
	}
	s.cleanOld()
}

// cleanOld removes rotated files older than maxAgeDays.
// Must be called with s.mu held.
func (s *fileSink) cleanOld() {
	if s.maxAgeDays <= 0 {
		return
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.maxAgeDays)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "validator-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		day, err := time.Parse("2006-01-02", strings.TrimSuffix(strings.TrimPrefix(name, "validator-"), ".log"))
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			os.Remove(filepath.Join(s.dir, name))
		}
	}
}
