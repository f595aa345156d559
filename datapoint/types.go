package datapoint

import (
	"encoding/json"
	"fmt"
)

// DataPoint is one candidate fix to validate: a patch against a repository
// revision plus the test outcomes it is expected to produce.
//
// FailToPass and PassToPass hold JSON-encoded string lists exactly as they
// appear in the record file. They are parsed only when the expected sets are
// compared against a harness report (see TestLists), never at load time.
type DataPoint struct {
	InstanceID string `json:"instance_id"`
	Repo       string `json:"repo"`
	BaseCommit string `json:"base_commit"`
	Patch      string `json:"patch"`
	FailToPass string `json:"FAIL_TO_PASS"`
	PassToPass string `json:"PASS_TO_PASS"`
}

// TestLists decodes the embedded FAIL_TO_PASS and PASS_TO_PASS lists.
// An empty field decodes to an empty list.
func (d *DataPoint) TestLists() (failToPass, passToPass []string, err error) {
	if failToPass, err = decodeTestList(d.FailToPass); err != nil {
		return nil, nil, fmt.Errorf("parse FAIL_TO_PASS: %w", err)
	}
	if passToPass, err = decodeTestList(d.PassToPass); err != nil {
		return nil, nil, fmt.Errorf("parse PASS_TO_PASS: %w", err)
	}
	return failToPass, passToPass, nil
}

func decodeTestList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var tests []string
	if err := json.Unmarshal([]byte(raw), &tests); err != nil {
		return nil, err
	}
	return tests, nil
}
