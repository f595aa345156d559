package datapoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"swebench-validator/logger"
)

// Loader reads data-point records from a directory of JSON files.
//
// The loader is deliberately lenient: a record that fails to decode or fails
// structural validation is dropped (and logged), never raised. Callers always
// receive the valid subset.
type Loader struct {
	log logger.Logger
}

// NewLoader creates a data-point loader.
func NewLoader(log logger.Logger) *Loader {
	return &Loader{log: log}
}

// LoadByFiles loads data points from dir. With nil fileNames every *.json
// file in the directory is considered; otherwise only the named files are
// (the .json extension is appended when missing). Named files that do not
// exist are skipped with a warning.
func (l *Loader) LoadByFiles(dir string, fileNames []string) []DataPoint {
	l.log.Info("loader.scanning", logger.String("dir", dir))

	if _, err := os.Stat(dir); err != nil {
		l.log.Error("loader.dir_missing", logger.String("dir", dir), logger.Err(err))
		return nil
	}

	var files []string
	if fileNames == nil {
		matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			l.log.Error("loader.glob_failed", logger.Err(err))
			return nil
		}
		files = matches
	} else {
		for _, name := range fileNames {
			if !strings.HasSuffix(name, ".json") {
				name += ".json"
			}
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				l.log.Warn("loader.file_missing", logger.String("file", name))
				continue
			}
			files = append(files, path)
		}
	}

	if len(files) == 0 {
		l.log.Warn("loader.no_files", logger.String("dir", dir))
		return nil
	}

	points := make([]DataPoint, 0, len(files))
	for _, path := range files {
		dp, err := l.loadOne(path)
		if err != nil {
			l.log.Warn("loader.dropped",
				logger.String("file", filepath.Base(path)),
				logger.Err(err),
			)
			continue
		}
		l.log.Info("loader.loaded",
			logger.String("file", filepath.Base(path)),
			logger.String("instance_id", dp.InstanceID),
		)
		points = append(points, dp)
	}

	l.log.Info("loader.done", logger.Int("loaded", len(points)), logger.Int("scanned", len(files)))
	return points
}

// rawDataPoint mirrors DataPoint with pointer fields so a missing key can
// be told apart from a present-but-empty one.
type rawDataPoint struct {
	InstanceID *string `json:"instance_id"`
	Repo       *string `json:"repo"`
	BaseCommit *string `json:"base_commit"`
	Patch      *string `json:"patch"`
	FailToPass *string `json:"FAIL_TO_PASS"`
	PassToPass *string `json:"PASS_TO_PASS"`
}

func (l *Loader) loadOne(path string) (DataPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DataPoint{}, fmt.Errorf("read: %w", err)
	}

	var raw rawDataPoint
	if err := json.Unmarshal(data, &raw); err != nil {
		return DataPoint{}, fmt.Errorf("decode: %w", err)
	}
	if err := raw.validate(); err != nil {
		return DataPoint{}, err
	}

	return DataPoint{
		InstanceID: *raw.InstanceID,
		Repo:       *raw.Repo,
		BaseCommit: *raw.BaseCommit,
		Patch:      *raw.Patch,
		FailToPass: *raw.FailToPass,
		PassToPass: *raw.PassToPass,
	}, nil
}

// validate applies the structural rules: all six fields present, patch
// non-empty after trimming, and at least one test list carried.
func (r *rawDataPoint) validate() error {
	required := []struct {
		name string
		val  *string
	}{
		{"instance_id", r.InstanceID},
		{"repo", r.Repo},
		{"base_commit", r.BaseCommit},
		{"patch", r.Patch},
		{"FAIL_TO_PASS", r.FailToPass},
		{"PASS_TO_PASS", r.PassToPass},
	}
	for _, f := range required {
		if f.val == nil {
			return fmt.Errorf("missing required field %q", f.name)
		}
	}

	if strings.TrimSpace(*r.Patch) == "" {
		return fmt.Errorf("patch is empty")
	}
	if *r.FailToPass == "" && *r.PassToPass == "" {
		return fmt.Errorf("both FAIL_TO_PASS and PASS_TO_PASS are empty")
	}
	return nil
}
