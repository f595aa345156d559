package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Report is the harness's result artifact: a mapping keyed by instance id.
type Report map[string]InstanceResult

// InstanceResult is the harness verdict for one instance. Fields the
// validator does not consume are left undeclared and ignored on decode.
type InstanceResult struct {
	Resolved    bool        `json:"resolved"`
	TestsStatus TestsStatus `json:"tests_status"`
}

// TestsStatus groups per-category test outcomes.
type TestsStatus struct {
	FailToPass CategoryStatus `json:"FAIL_TO_PASS"`
	PassToPass CategoryStatus `json:"PASS_TO_PASS"`
}

// CategoryStatus lists the test identifiers that passed and failed within
// one expectation category. A missing key decodes to an empty list.
type CategoryStatus struct {
	Success []string `json:"success"`
	Failure []string `json:"failure"`
}

// ReportPath returns the artifact location the harness writes for one
// instance: <logsRoot>/<runID>/<modelName>/<instanceID>/report.json.
func ReportPath(logsRoot, runID, modelName, instanceID string) string {
	return filepath.Join(logsRoot, runID, modelName, instanceID, "report.json")
}

// LoadReport reads and decodes a report artifact. A missing file surfaces as
// an error wrapping os.ErrNotExist so callers can tell absence from
// corruption.
func LoadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}
