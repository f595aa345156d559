package store

import (
	"context"
	"time"
)

// RunStatus represents the lifecycle state of a validation run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// ValidationRun is the ledger record for one CLI invocation: which data
// directory was validated and how the batch came out.
type ValidationRun struct {
	ID              string     `json:"id"`
	DataDir         string     `json:"data_dir"`
	ModelName       string     `json:"model_name"`
	Status          RunStatus  `json:"status"`
	TotalFiles      int        `json:"total_files"`
	SuccessfulFiles int        `json:"successful_files"`
	FailedFiles     int        `json:"failed_files"`
	SuccessRate     float64    `json:"success_rate"`
	Error           string     `json:"error"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at"`
}

// FileRecord is the ledger record for one target file within a run.
type FileRecord struct {
	ID              string    `json:"id"`
	RunID           string    `json:"run_id"`
	FileName        string    `json:"file_name"`
	InstanceID      string    `json:"instance_id"`
	HarnessRunID    string    `json:"harness_run_id"`
	Success         bool      `json:"success"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason"`
	Resolved        bool      `json:"resolved"`
	FailToPassMatch bool      `json:"fail_to_pass_match"`
	PassToPassMatch bool      `json:"pass_to_pass_match"`
	CreatedAt       time.Time `json:"created_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

// FileFilter specifies criteria for listing file records.
type FileFilter struct {
	RunID      string `json:"run_id"`
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

// Summary holds aggregated ledger statistics.
type Summary struct {
	TotalRuns       int               `json:"total_runs"`
	TodayRuns       int               `json:"today_runs"`
	RunsByStatus    map[RunStatus]int `json:"runs_by_status"`
	TotalFiles      int               `json:"total_files"`
	ValidatedFiles  int               `json:"validated_files"`
	FilesByStatus   map[string]int    `json:"files_by_status"`
}

// Store defines the persistence interface for the validation run ledger.
// Ledger writes are best-effort from the caller's point of view: a store
// error is logged and never fails a validation batch.
type Store interface {
	CreateRun(ctx context.Context, run *ValidationRun) error
	UpdateRun(ctx context.Context, run *ValidationRun) error
	GetRun(ctx context.Context, id string) (*ValidationRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*ValidationRun, error)

	CreateFileRecord(ctx context.Context, rec *FileRecord) error
	ListFileRecords(ctx context.Context, filter FileFilter) ([]*FileRecord, error)

	GetSummary(ctx context.Context) (*Summary, error)

	Close() error
}
