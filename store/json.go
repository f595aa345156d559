package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"swebench-validator/logger"
)

// JSONStore implements Store using an in-memory map backed by a JSON file.
// Suited to one-off local runs where a database is overkill.
type JSONStore struct {
	path      string
	mu        sync.RWMutex
	data      jsonData
	log       logger.Logger
	closeOnce sync.Once
}

type jsonData struct {
	Runs  map[string]*ValidationRun `json:"runs"`
	Files map[string]*FileRecord    `json:"files"`
}

// NewJSONStore creates a JSONStore. If the file at path exists it is loaded.
// Data is flushed to disk on every write (runs are short-lived CLI batches,
// not long-running daemons).
func NewJSONStore(path string, log logger.Logger) (*JSONStore, error) {
	s := &JSONStore{
		path: path,
		log:  log,
		data: jsonData{
			Runs:  make(map[string]*ValidationRun),
			Files: make(map[string]*FileRecord),
		},
	}

	if err := s.loadFromFile(); err != nil {
		return nil, err
	}

	log.Info("store.json.opened", logger.String("path", path))
	return s, nil
}

func (s *JSONStore) loadFromFile() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read json store: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var d jsonData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("unmarshal json store: %w", err)
	}
	if d.Runs == nil {
		d.Runs = make(map[string]*ValidationRun)
	}
	if d.Files == nil {
		d.Files = make(map[string]*FileRecord)
	}
	s.data = d
	return nil
}

// flush writes the current state to disk. Must be called with s.mu held
// at least for reading.
func (s *JSONStore) flush() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write json store: %w", err)
	}
	return nil
}

func (s *JSONStore) CreateRun(_ context.Context, run *ValidationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.Runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	clone := cloneRun(run)
	s.data.Runs[run.ID] = clone
	return s.flush()
}

func (s *JSONStore) UpdateRun(_ context.Context, run *ValidationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.Runs[run.ID]; !exists {
		return fmt.Errorf("run %s not found", run.ID)
	}
	s.data.Runs[run.ID] = cloneRun(run)
	return s.flush()
}

func (s *JSONStore) GetRun(_ context.Context, id string) (*ValidationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.data.Runs[id]
	if !ok {
		return nil, nil
	}
	return cloneRun(run), nil
}

func (s *JSONStore) ListRuns(_ context.Context, filter RunFilter) ([]*ValidationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ValidationRun
	for _, run := range s.data.Runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		result = append(result, cloneRun(run))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return page(result, filter.Limit, filter.Offset), nil
}

func (s *JSONStore) CreateFileRecord(_ context.Context, rec *FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.Files[rec.ID]; exists {
		return fmt.Errorf("file record %s already exists", rec.ID)
	}
	clone := *rec
	s.data.Files[rec.ID] = &clone
	return s.flush()
}

func (s *JSONStore) ListFileRecords(_ context.Context, filter FileFilter) ([]*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*FileRecord
	for _, rec := range s.data.Files {
		if filter.RunID != "" && rec.RunID != filter.RunID {
			continue
		}
		if filter.InstanceID != "" && rec.InstanceID != filter.InstanceID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		clone := *rec
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return page(result, filter.Limit, filter.Offset), nil
}

func (s *JSONStore) GetSummary(_ context.Context) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := time.Now().Truncate(24 * time.Hour)
	summary := &Summary{
		TotalRuns:     len(s.data.Runs),
		RunsByStatus:  make(map[RunStatus]int),
		FilesByStatus: make(map[string]int),
	}

	for _, run := range s.data.Runs {
		summary.RunsByStatus[run.Status]++
		if !run.StartedAt.Before(today) {
			summary.TodayRuns++
		}
	}
	for _, rec := range s.data.Files {
		summary.FilesByStatus[rec.Status]++
		summary.TotalFiles++
		if rec.Status == "success" {
			summary.ValidatedFiles++
		}
	}
	return summary, nil
}

func (s *JSONStore) Close() error {
	var flushErr error
	s.closeOnce.Do(func() {
		s.mu.RLock()
		defer s.mu.RUnlock()
		s.log.Info("store.json.closing")
		flushErr = s.flush()
	})
	return flushErr
}

// ---------- helpers ----------

func cloneRun(run *ValidationRun) *ValidationRun {
	clone := *run
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		clone.FinishedAt = &t
	}
	return &clone
}

func page[T any](items []T, limit, offset int) []T {
	limit = normLimit(limit)
	offset = normOffset(offset)
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
