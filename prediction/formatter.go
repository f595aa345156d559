package prediction

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"swebench-validator/datapoint"
	"swebench-validator/logger"
)

// Prediction is the minimal submission record the evaluation harness
// consumes: one patch attributed to one model label.
type Prediction struct {
	InstanceID      string `json:"instance_id"`
	ModelNameOrPath string `json:"model_name_or_path"`
	ModelPatch      string `json:"model_patch"`
}

// Formatter converts data points into harness predictions carrying a fixed
// model label.
type Formatter struct {
	modelName string
	log       logger.Logger
}

// NewFormatter creates a formatter. The modelName label is stamped on every
// prediction it produces.
func NewFormatter(modelName string, log logger.Logger) *Formatter {
	return &Formatter{modelName: modelName, log: log}
}

// ModelName returns the fixed model label.
func (f *Formatter) ModelName() string { return f.modelName }

// Convert maps data points to predictions one-to-one. A data point without
// an instance id or patch yields no prediction (dropped, logged) rather than
// failing the batch.
func (f *Formatter) Convert(points []datapoint.DataPoint) []Prediction {
	preds := make([]Prediction, 0, len(points))
	for _, dp := range points {
		if dp.InstanceID == "" || dp.Patch == "" {
			f.log.Warn("formatter.dropped",
				logger.String("instance_id", dp.InstanceID),
				logger.Bool("patch_present", dp.Patch != ""),
			)
			continue
		}
		preds = append(preds, Prediction{
			InstanceID:      dp.InstanceID,
			ModelNameOrPath: f.modelName,
			ModelPatch:      dp.Patch,
		})
	}
	f.log.Info("formatter.converted",
		logger.Int("in", len(points)),
		logger.Int("out", len(preds)),
	)
	return preds
}

// WriteFile persists predictions as one JSON object per line, in order.
func (f *Formatter) WriteFile(preds []Prediction, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create predictions file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for _, p := range preds {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("encode prediction %s: %w", p.InstanceID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush predictions file: %w", err)
	}

	f.log.Info("formatter.saved", logger.String("path", path), logger.Int("count", len(preds)))
	return nil
}
