package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StructuredLogger writes one JSON object per line (NDJSON), suited to
// ingestion by log collectors.
type StructuredLogger struct {
	level Level
	base  []Field
	sink  *jsonSink
}

// jsonSink is the file handle shared by every StructuredLogger derived via
// WithFields. The mutex serializes encoder writes.
type jsonSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

type jsonEntry struct {
	Time   string         `json:"ts"`
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

// NewStructured creates a structured logger appending to the given path.
func NewStructured(path string, level Level) (*StructuredLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open structured log: %w", err)
	}

	return &StructuredLogger{
		level: level,
		sink:  &jsonSink{file: f, enc: json.NewEncoder(f)},
	}, nil
}

func (s *StructuredLogger) Debug(msg string, fields ...Field) { s.write(LevelDebug, msg, fields) }
func (s *StructuredLogger) Info(msg string, fields ...Field)  { s.write(LevelInfo, msg, fields) }
func (s *StructuredLogger) Warn(msg string, fields ...Field)  { s.write(LevelWarn, msg, fields) }
func (s *StructuredLogger) Error(msg string, fields ...Field) { s.write(LevelError, msg, fields) }

func (s *StructuredLogger) WithFields(fields ...Field) Logger {
	clone := *s
	clone.base = mergeFields(s.base, fields)
	return &clone
}

func (s *StructuredLogger) Close() error {
	s.sink.mu.Lock()
	defer s.sink.mu.Unlock()
	if s.sink.file == nil {
		return nil
	}
	err := s.sink.file.Close()
	s.sink.file = nil
	return err
}

func (s *StructuredLogger) write(level Level, msg string, fields []Field) {
	if level < s.level {
		return
	}

	entry := jsonEntry{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Level: level.String(),
		Msg:   msg,
	}
	all := mergeFields(s.base, fields)
	if len(all) > 0 {
		entry.Fields = make(map[string]any, len(all))
		for _, f := range all {
			entry.Fields[f.Key] = f.Value
		}
	}

	s.sink.mu.Lock()
	defer s.sink.mu.Unlock()
	if s.sink.file != nil {
		s.sink.enc.Encode(entry)
	}
}
