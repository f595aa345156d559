package harness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReportPath(t *testing.T) {
	got := ReportPath(filepath.Join("logs", "run_evaluation"), "foo", "gpt-4", "django__django-12345")
	want := filepath.Join("logs", "run_evaluation", "foo", "gpt-4", "django__django-12345", "report.json")
	if got != want {
		t.Errorf("ReportPath = %q, want %q", got, want)
	}
}

func TestLoadReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	content := `{
		"django__django-12345": {
			"resolved": true,
			"tests_status": {
				"FAIL_TO_PASS": {"success": ["test_a", "test_b"], "failure": []},
				"PASS_TO_PASS": {"success": ["test_c"], "failure": ["test_d"]}
			}
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	report, err := LoadReport(path)
	if err != nil {
		t.Fatalf("LoadReport: %v", err)
	}

	res, ok := report["django__django-12345"]
	if !ok {
		t.Fatal("instance key missing from report")
	}
	if !res.Resolved {
		t.Error("Resolved = false, want true")
	}
	f2p := res.TestsStatus.FailToPass.Success
	if len(f2p) != 2 || f2p[0] != "test_a" {
		t.Errorf("FAIL_TO_PASS success = %v, want [test_a test_b]", f2p)
	}
	if len(res.TestsStatus.PassToPass.Failure) != 1 {
		t.Errorf("PASS_TO_PASS failure = %v, want [test_d]", res.TestsStatus.PassToPass.Failure)
	}
}

func TestLoadReport_Missing(t *testing.T) {
	_, err := LoadReport(filepath.Join(t.TempDir(), "report.json"))
	if err == nil {
		t.Fatal("expected error for missing report")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want wrapping os.ErrNotExist", err)
	}
}

func TestLoadReport_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := LoadReport(path)
	if err == nil {
		t.Fatal("expected error for corrupt report")
	}
	if errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, must not look like a missing file", err)
	}
}

func TestLoadReport_MissingInstanceDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := os.WriteFile(path, []byte(`{"other-instance": {"resolved": true}}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	report, err := LoadReport(path)
	if err != nil {
		t.Fatalf("LoadReport: %v", err)
	}

	// Absent key yields the zero result: unresolved, empty test lists.
	res := report["django__django-12345"]
	if res.Resolved {
		t.Error("Resolved = true for absent instance, want false")
	}
	if len(res.TestsStatus.FailToPass.Success) != 0 {
		t.Errorf("success = %v, want empty", res.TestsStatus.FailToPass.Success)
	}
}
