package validator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"swebench-validator/datapoint"
	"swebench-validator/harness"
	"swebench-validator/logger"
	"swebench-validator/prediction"
)

// Config holds the paths the validation pipeline operates on.
type Config struct {
	// DataDir is the directory holding one data-point JSON file per record.
	DataDir string
	// LogsRoot is where the harness writes its report artifacts
	// (<LogsRoot>/<run_id>/<model>/<instance_id>/report.json).
	LogsRoot string
	// PredictionsDir is where predictions_<name>.jsonl batch files are
	// written ("" = current directory).
	PredictionsDir string
}

// Validator drives data points through the full pipeline:
// LOAD → CONVERT → PERSIST → EXECUTE → COMPARE.
//
// Files are processed strictly one at a time; a failure at any step
// short-circuits the remaining steps for that file and never aborts the
// batch.
type Validator struct {
	loader    *datapoint.Loader
	formatter *prediction.Formatter
	evaluator harness.Evaluator
	log       logger.Logger
	cfg       Config
}

// New creates a validator.
func New(
	loader *datapoint.Loader,
	formatter *prediction.Formatter,
	evaluator harness.Evaluator,
	log logger.Logger,
	cfg Config,
) *Validator {
	if cfg.LogsRoot == "" {
		cfg.LogsRoot = filepath.Join("logs", "run_evaluation")
	}
	return &Validator{
		loader:    loader,
		formatter: formatter,
		evaluator: evaluator,
		log:       log,
		cfg:       cfg,
	}
}

// ValidateAll runs the pipeline for each target independently and
// aggregates. With nil fileNames every *.json record in the data directory
// is validated. The returned error is top-level only: no files at all to
// process. Everything else is contained in per-file results.
func (v *Validator) ValidateAll(ctx context.Context, fileNames []string) (*AggregateResult, error) {
	if fileNames == nil {
		matches, err := filepath.Glob(filepath.Join(v.cfg.DataDir, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("scan data dir: %w", err)
		}
		for _, m := range matches {
			fileNames = append(fileNames, strings.TrimSuffix(filepath.Base(m), ".json"))
		}
		v.log.Info("validator.discovered", logger.Int("files", len(fileNames)))
	} else {
		v.log.Info("validator.targets", logger.Int("files", len(fileNames)))
	}

	if len(fileNames) == 0 {
		return nil, fmt.Errorf("no files found for processing")
	}

	agg := &AggregateResult{
		TotalFiles:  len(fileNames),
		FileResults: make(map[string]*FileResult, len(fileNames)),
	}

	for _, name := range fileNames {
		v.log.Info("validator.processing", logger.String("file", name))

		res := v.validateFileSafe(ctx, name)
		agg.FileResults[name] = res

		if res.Validated() {
			agg.SuccessfulFiles++
		} else {
			agg.FailedFiles++
			v.log.Error("validator.file_failed",
				logger.String("file", name),
				logger.String("reason", failureReason(res)),
			)
		}
	}

	if agg.TotalFiles > 0 {
		agg.SuccessRate = float64(agg.SuccessfulFiles) / float64(agg.TotalFiles) * 100
	}
	return agg, nil
}

// validateFileSafe contains panics from a single file's pipeline so one
// broken record can never take down the batch.
func (v *Validator) validateFileSafe(ctx context.Context, name string) (res *FileResult) {
	defer func() {
		if p := recover(); p != nil {
			v.log.Error("validator.panic", logger.String("file", name), logger.Any("panic", p))
			res = &FileResult{Error: fmt.Sprintf("unexpected error: %v", p)}
		}
	}()
	return v.validateFile(ctx, name)
}

// validateFile runs one target through the five pipeline steps. The run id
// handed to the harness equals the target file name, which also names the
// predictions batch file and the report artifact directory.
func (v *Validator) validateFile(ctx context.Context, name string) *FileResult {
	runID := name
	predictionsPath := filepath.Join(v.cfg.PredictionsDir, "predictions_"+name+".jsonl")

	// LOAD
	points := v.loader.LoadByFiles(v.cfg.DataDir, []string{name})
	if len(points) == 0 {
		return &FileResult{Error: fmt.Sprintf("failed to load %s.json", name)}
	}
	dp := points[0]

	// CONVERT
	preds := v.formatter.Convert(points[:1])
	if len(preds) == 0 {
		return &FileResult{Error: "failed to convert to prediction"}
	}

	// PERSIST
	if err := v.formatter.WriteFile(preds, predictionsPath); err != nil {
		v.log.Error("validator.save_failed", logger.String("file", name), logger.Err(err))
		return &FileResult{Error: "failed to save prediction"}
	}

	// EXECUTE
	if err := v.evaluator.Run(ctx, predictionsPath, runID); err != nil {
		return &FileResult{Error: fmt.Sprintf("harness evaluation failed: %v", err)}
	}

	// COMPARE
	outcome, err := v.compare(&dp, runID)
	if err != nil {
		return &FileResult{Error: err.Error()}
	}

	return &FileResult{
		Success:    true,
		InstanceID: dp.InstanceID,
		RunID:      runID,
		Outcome:    outcome,
	}
}

func failureReason(res *FileResult) string {
	if res.Error != "" {
		return res.Error
	}
	if res.Outcome != nil {
		return string(res.Outcome.Status)
	}
	return "unknown"
}
