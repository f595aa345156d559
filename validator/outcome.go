package validator

// Status classifies the comparison of one data point against the harness
// report artifact.
type Status string

const (
	// StatusSuccess means both expected test sets matched exactly and the
	// harness itself reported the instance resolved.
	StatusSuccess Status = "success"
	// StatusTestMismatch means the report was read but either a test set
	// differed or the harness did not report the instance resolved.
	StatusTestMismatch Status = "test_mismatch"
	// StatusReportNotFound means no report artifact exists at the expected
	// path (the harness likely never ran for this instance).
	StatusReportNotFound Status = "report_not_found"
	// StatusReadError means a report artifact exists but could not be
	// decoded.
	StatusReadError Status = "read_error"
)

// Outcome is the result of comparing one data point's expectations against
// the harness report. It exists only for the duration of a run and its
// reporting; nothing persists it as-is.
type Outcome struct {
	Status             Status   `json:"status"`
	Resolved           bool     `json:"resolved"`
	FailToPassMatch    bool     `json:"fail_to_pass_match"`
	PassToPassMatch    bool     `json:"pass_to_pass_match"`
	ExpectedFailToPass []string `json:"expected_fail_to_pass,omitempty"`
	ActualFailToPass   []string `json:"actual_fail_to_pass,omitempty"`
	ExpectedPassToPass []string `json:"expected_pass_to_pass,omitempty"`
	ActualPassToPass   []string `json:"actual_pass_to_pass,omitempty"`
	Error              string   `json:"error,omitempty"`
}

// FileResult is the end-to-end result for one target file. Success reports
// whether the pipeline ran through COMPARE; whether the file counts as
// validated additionally requires Outcome.Status == StatusSuccess.
type FileResult struct {
	Success    bool     `json:"success"`
	InstanceID string   `json:"instance_id,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
	Outcome    *Outcome `json:"validation_result,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Validated reports whether this file counts as successful in the aggregate:
// the pipeline completed and the comparison classified success.
func (r *FileResult) Validated() bool {
	return r.Success && r.Outcome != nil && r.Outcome.Status == StatusSuccess
}

// AggregateResult summarizes one validation invocation across all targets.
type AggregateResult struct {
	TotalFiles      int                    `json:"total_files"`
	SuccessfulFiles int                    `json:"successful_files"`
	FailedFiles     int                    `json:"failed_files"`
	SuccessRate     float64                `json:"success_rate"`
	FileResults     map[string]*FileResult `json:"file_results"`
}
