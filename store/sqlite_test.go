package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"swebench-validator/logger"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath, logger.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeRun(id string, status RunStatus, startedAt time.Time) *ValidationRun {
	return &ValidationRun{
		ID:        id,
		DataDir:   "data_points",
		ModelName: "gpt-4",
		Status:    status,
		StartedAt: startedAt,
	}
}

func makeFileRecord(id, runID, fileName, status string, success bool, createdAt time.Time) *FileRecord {
	return &FileRecord{
		ID:           id,
		RunID:        runID,
		FileName:     fileName,
		InstanceID:   "django__django-" + id,
		HarnessRunID: fileName,
		Success:      success,
		Status:       status,
		Resolved:     success,
		CreatedAt:    createdAt,
	}
}

func TestSQLiteStore_CreateRun_GetRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	run := makeRun("run-1", StatusRunning, now)

	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil")
	}
	if got.ID != run.ID {
		t.Errorf("ID = %q, want %q", got.ID, run.ID)
	}
	if got.DataDir != run.DataDir {
		t.Errorf("DataDir = %q, want %q", got.DataDir, run.DataDir)
	}
	if got.ModelName != run.ModelName {
		t.Errorf("ModelName = %q, want %q", got.ModelName, run.ModelName)
	}
	if got.Status != StatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, StatusRunning)
	}
	if got.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil", *got.FinishedAt)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, run.StartedAt)
	}
}

func TestSQLiteStore_GetRun_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	got, err := s.GetRun(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestSQLiteStore_UpdateRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	run := makeRun("run-u1", StatusRunning, now)
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	finished := now.Add(5 * time.Minute)
	run.Status = StatusCompleted
	run.TotalFiles = 4
	run.SuccessfulFiles = 1
	run.FailedFiles = 3
	run.SuccessRate = 25.0
	run.FinishedAt = &finished

	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-u1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.TotalFiles != 4 {
		t.Errorf("TotalFiles = %d, want 4", got.TotalFiles)
	}
	if got.SuccessRate != 25.0 {
		t.Errorf("SuccessRate = %f, want 25.0", got.SuccessRate)
	}
	if got.FinishedAt == nil {
		t.Fatal("FinishedAt is nil")
	}
	if !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", *got.FinishedAt, finished)
	}
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	runs := []*ValidationRun{
		makeRun("r1", StatusCompleted, base.Add(1*time.Hour)),
		makeRun("r2", StatusFailed, base.Add(2*time.Hour)),
		makeRun("r3", StatusCompleted, base.Add(3*time.Hour)),
	}
	for _, run := range runs {
		if err := s.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun(%s): %v", run.ID, err)
		}
	}

	// Filter by Status
	got, err := s.ListRuns(ctx, RunFilter{Status: StatusCompleted})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	// Verify ORDER BY started_at DESC
	got, err = s.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "r3" || got[1].ID != "r2" || got[2].ID != "r1" {
		t.Errorf("order = [%s, %s, %s], want [r3, r2, r1]", got[0].ID, got[1].ID, got[2].ID)
	}

	// Pagination
	got, err = s.ListRuns(ctx, RunFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "r2" || got[1].ID != "r1" {
		t.Errorf("page = [%s, %s], want [r2, r1]", got[0].ID, got[1].ID)
	}
}

func TestSQLiteStore_FileRecords(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	run := makeRun("run-f1", StatusCompleted, now)
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	recs := []*FileRecord{
		makeFileRecord("f1", "run-f1", "foo", "success", true, now.Add(-3*time.Minute)),
		makeFileRecord("f2", "run-f1", "bar", "test_mismatch", false, now.Add(-2*time.Minute)),
		makeFileRecord("f3", "run-f1", "baz", "report_not_found", false, now.Add(-1*time.Minute)),
	}
	for _, rec := range recs {
		if err := s.CreateFileRecord(ctx, rec); err != nil {
			t.Fatalf("CreateFileRecord(%s): %v", rec.ID, err)
		}
	}

	// Filter by RunID, ordered by created_at DESC
	got, err := s.ListFileRecords(ctx, FileFilter{RunID: "run-f1"})
	if err != nil {
		t.Fatalf("ListFileRecords: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "f3" || got[2].ID != "f1" {
		t.Errorf("order = [%s, %s, %s], want [f3, f2, f1]", got[0].ID, got[1].ID, got[2].ID)
	}

	// Filter by Status
	got, err = s.ListFileRecords(ctx, FileFilter{Status: "success"})
	if err != nil {
		t.Fatalf("ListFileRecords: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].FileName != "foo" {
		t.Errorf("FileName = %q, want %q", got[0].FileName, "foo")
	}
	if !got[0].Success || !got[0].Resolved {
		t.Errorf("Success = %v, Resolved = %v, want both true", got[0].Success, got[0].Resolved)
	}

	// Filter by InstanceID
	got, err = s.ListFileRecords(ctx, FileFilter{InstanceID: "django__django-f2"})
	if err != nil {
		t.Fatalf("ListFileRecords: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Status != "test_mismatch" {
		t.Errorf("Status = %q, want %q", got[0].Status, "test_mismatch")
	}
}

func TestSQLiteStore_GetSummary(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	runs := []*ValidationRun{
		makeRun("run-s1", StatusCompleted, now),
		makeRun("run-s2", StatusFailed, now.Add(-48*time.Hour)),
	}
	for _, run := range runs {
		if err := s.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	recs := []*FileRecord{
		makeFileRecord("s1", "run-s1", "a", "success", true, now),
		makeFileRecord("s2", "run-s1", "b", "success", true, now),
		makeFileRecord("s3", "run-s1", "c", "test_mismatch", false, now),
	}
	for _, rec := range recs {
		if err := s.CreateFileRecord(ctx, rec); err != nil {
			t.Fatalf("CreateFileRecord: %v", err)
		}
	}

	summary, err := s.GetSummary(ctx)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}

	if summary.TotalRuns != 2 {
		t.Errorf("TotalRuns = %d, want 2", summary.TotalRuns)
	}
	if summary.RunsByStatus[StatusCompleted] != 1 {
		t.Errorf("RunsByStatus[completed] = %d, want 1", summary.RunsByStatus[StatusCompleted])
	}
	if summary.RunsByStatus[StatusFailed] != 1 {
		t.Errorf("RunsByStatus[failed] = %d, want 1", summary.RunsByStatus[StatusFailed])
	}
	if summary.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", summary.TotalFiles)
	}
	if summary.ValidatedFiles != 2 {
		t.Errorf("ValidatedFiles = %d, want 2", summary.ValidatedFiles)
	}
	if summary.FilesByStatus["test_mismatch"] != 1 {
		t.Errorf("FilesByStatus[test_mismatch] = %d, want 1", summary.FilesByStatus["test_mismatch"])
	}
}
