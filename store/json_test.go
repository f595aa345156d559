package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"swebench-validator/logger"
)

func newTestJSONStore(t *testing.T) (*JSONStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := NewJSONStore(path, logger.Nop())
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestJSONStore_CreateRun_GetRun(t *testing.T) {
	s, _ := newTestJSONStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	run := makeRun("run-1", StatusRunning, now)

	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	// Duplicate ID rejected
	if err := s.CreateRun(ctx, run); err == nil {
		t.Fatal("expected error on duplicate run ID")
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil")
	}
	if got.ID != run.ID || got.ModelName != run.ModelName {
		t.Errorf("got %+v, want %+v", got, run)
	}

	// Returned run is a copy, mutating it must not affect the store
	got.Status = StatusFailed
	again, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if again.Status != StatusRunning {
		t.Errorf("Status = %q, want %q (store mutated through returned copy)", again.Status, StatusRunning)
	}
}

func TestJSONStore_GetRun_NotFound(t *testing.T) {
	s, _ := newTestJSONStore(t)

	got, err := s.GetRun(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestJSONStore_UpdateRun(t *testing.T) {
	s, _ := newTestJSONStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	run := makeRun("run-u1", StatusRunning, now)

	// Update before create fails
	if err := s.UpdateRun(ctx, run); err == nil {
		t.Fatal("expected error updating missing run")
	}

	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	finished := now.Add(time.Minute)
	run.Status = StatusCompleted
	run.SuccessRate = 100
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
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}
}

func TestJSONStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	s, err := NewJSONStore(path, logger.Nop())
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := s.CreateRun(ctx, makeRun("run-p1", StatusCompleted, now)); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.CreateFileRecord(ctx, makeFileRecord("f1", "run-p1", "foo", "success", true, now)); err != nil {
		t.Fatalf("CreateFileRecord: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen and verify data survived
	s2, err := NewJSONStore(path, logger.Nop())
	if err != nil {
		t.Fatalf("NewJSONStore(reopen): %v", err)
	}
	defer s2.Close()

	got, err := s2.GetRun(ctx, "run-p1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("run did not survive reopen")
	}

	recs, err := s2.ListFileRecords(ctx, FileFilter{RunID: "run-p1"})
	if err != nil {
		t.Fatalf("ListFileRecords: %v", err)
	}
	if len(recs) != 1 || recs[0].FileName != "foo" {
		t.Fatalf("recs = %+v, want one record for foo", recs)
	}
}

func TestJSONStore_ListRuns(t *testing.T) {
	s, _ := newTestJSONStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []RunStatus{StatusCompleted, StatusFailed, StatusCompleted} {
		run := makeRun("r"+string(rune('1'+i)), st, base.Add(time.Duration(i)*time.Hour))
		if err := s.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	got, err := s.ListRuns(ctx, RunFilter{Status: StatusCompleted})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	// Newest first
	got, err = s.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if got[0].ID != "r3" || got[2].ID != "r1" {
		t.Errorf("order = [%s, %s, %s], want [r3, r2, r1]", got[0].ID, got[1].ID, got[2].ID)
	}

	// Pagination
	got, err = s.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r2" {
		t.Errorf("page = %+v, want [r2]", got)
	}

	// Offset past the end
	got, err = s.ListRuns(ctx, RunFilter{Offset: 10})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestJSONStore_ListFileRecords(t *testing.T) {
	s, _ := newTestJSONStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	if err := s.CreateRun(ctx, makeRun("run-f1", StatusCompleted, now)); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	recs := []*FileRecord{
		makeFileRecord("f1", "run-f1", "foo", "success", true, now.Add(-2*time.Minute)),
		makeFileRecord("f2", "run-f1", "bar", "report_not_found", false, now.Add(-1*time.Minute)),
		makeFileRecord("f3", "run-other", "baz", "success", true, now),
	}
	for _, rec := range recs {
		if err := s.CreateFileRecord(ctx, rec); err != nil {
			t.Fatalf("CreateFileRecord(%s): %v", rec.ID, err)
		}
	}

	got, err := s.ListFileRecords(ctx, FileFilter{RunID: "run-f1"})
	if err != nil {
		t.Fatalf("ListFileRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "f2" || got[1].ID != "f1" {
		t.Errorf("order = [%s, %s], want [f2, f1]", got[0].ID, got[1].ID)
	}

	got, err = s.ListFileRecords(ctx, FileFilter{Status: "success"})
	if err != nil {
		t.Fatalf("ListFileRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestJSONStore_GetSummary(t *testing.T) {
	s, _ := newTestJSONStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	if err := s.CreateRun(ctx, makeRun("run-s1", StatusCompleted, now)); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.CreateRun(ctx, makeRun("run-s2", StatusFailed, now.Add(-72*time.Hour))); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	for i, st := range []string{"success", "test_mismatch", "read_error"} {
		rec := makeFileRecord("f"+string(rune('1'+i)), "run-s1", "file", st, st == "success", now)
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
	if summary.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", summary.TotalFiles)
	}
	if summary.ValidatedFiles != 1 {
		t.Errorf("ValidatedFiles = %d, want 1", summary.ValidatedFiles)
	}
	if summary.FilesByStatus["read_error"] != 1 {
		t.Errorf("FilesByStatus[read_error] = %d, want 1", summary.FilesByStatus["read_error"])
	}
}
