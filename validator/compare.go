package validator

import (
	"errors"
	"fmt"
	"os"

	"swebench-validator/datapoint"
	"swebench-validator/harness"
	"swebench-validator/logger"
)

// compare classifies one data point against the harness report artifact for
// its run. An error return means the data point's own expected lists could
// not be parsed; everything observed about the report itself is expressed
// through the Outcome status instead.
func (v *Validator) compare(dp *datapoint.DataPoint, runID string) (*Outcome, error) {
	expectedFTP, expectedPTP, err := dp.TestLists()
	if err != nil {
		return nil, fmt.Errorf("expected tests for %s: %w", dp.InstanceID, err)
	}

	reportPath := harness.ReportPath(v.cfg.LogsRoot, runID, v.formatter.ModelName(), dp.InstanceID)

	report, err := harness.LoadReport(reportPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			v.log.Warn("compare.report_missing",
				logger.String("instance_id", dp.InstanceID),
				logger.String("path", reportPath),
			)
			return &Outcome{
				Status: StatusReportNotFound,
				Error:  fmt.Sprintf("report %s not found", reportPath),
			}, nil
		}
		v.log.Error("compare.report_unreadable",
			logger.String("instance_id", dp.InstanceID),
			logger.Err(err),
		)
		return &Outcome{Status: StatusReadError, Error: err.Error()}, nil
	}

	// A report without this instance id falls through with zero values:
	// unresolved, nothing passing.
	instance := report[dp.InstanceID]
	actualFTP := instance.TestsStatus.FailToPass.Success
	actualPTP := instance.TestsStatus.PassToPass.Success

	outcome := &Outcome{
		Resolved:           instance.Resolved,
		FailToPassMatch:    sameSet(expectedFTP, actualFTP),
		PassToPassMatch:    sameSet(expectedPTP, actualPTP),
		ExpectedFailToPass: expectedFTP,
		ActualFailToPass:   actualFTP,
		ExpectedPassToPass: expectedPTP,
		ActualPassToPass:   actualPTP,
	}

	// Conjunctive policy: the local set comparison is the source of truth
	// for test identity, and the harness's resolved flag must hold on top
	// of it. resolved=true with a mismatched set is still a mismatch.
	if outcome.FailToPassMatch && outcome.PassToPassMatch && outcome.Resolved {
		outcome.Status = StatusSuccess
	} else {
		outcome.Status = StatusTestMismatch
	}
	return outcome, nil
}

// sameSet reports order-insensitive equality with duplicates collapsed.
func sameSet(a, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for s := range setA {
		if _, ok := setB[s]; !ok {
			return false
		}
	}
	return true
}
