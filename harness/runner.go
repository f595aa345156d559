package harness

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"swebench-validator/logger"
)

// Evaluator runs the external evaluation harness against one predictions
// file. Implementations apply the patch and execute tests as a black box;
// the validator only observes the exit status and the report artifact the
// harness leaves behind.
type Evaluator interface {
	Run(ctx context.Context, predictionsPath, runID string) error
}

// ErrTimeout is returned when a harness run exceeds the configured
// wall-clock limit.
var ErrTimeout = errors.New("Timeout")

// RunnerConfig configures the subprocess harness runner.
type RunnerConfig struct {
	// Command is the base command the harness arguments are appended to,
	// e.g. ["docker", "compose", "run", "--rm", "swe-bench-validator",
	// "python", "-m", "swebench.harness.run_evaluation"].
	Command []string
	// Dataset is passed as --dataset_name.
	Dataset string
	// WorkDir is the working directory for the subprocess ("" = inherit).
	WorkDir string
	// Timeout is the hard wall-clock limit per run.
	Timeout time.Duration
}

// DefaultCommand is the stock harness invocation via docker compose.
func DefaultCommand() []string {
	return []string{
		"docker", "compose", "run", "--rm", "swe-bench-validator",
		"python", "-m", "swebench.harness.run_evaluation",
	}
}

// Runner invokes the harness as a subprocess.
type Runner struct {
	cfg RunnerConfig
	log logger.Logger
}

// NewRunner creates a subprocess harness runner.
func NewRunner(cfg RunnerConfig, log logger.Logger) *Runner {
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultCommand()
	}
	if cfg.Dataset == "" {
		cfg.Dataset = "SWE-bench/SWE-bench"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &Runner{cfg: cfg, log: log}
}

// Run executes the harness for one predictions file. Cleanup of intermediate
// harness artifacts is always requested. There is no retry: a non-zero exit,
// a launch failure, or hitting the timeout all surface as a single error
// whose text is the failure reason.
func (r *Runner) Run(ctx context.Context, predictionsPath, runID string) error {
	args := append(append([]string(nil), r.cfg.Command[1:]...),
		"--predictions_path", predictionsPath,
		"--run_id", runID,
		"--dataset_name", r.cfg.Dataset,
		"--clean", "True",
	)

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	r.log.Info("harness.run",
		logger.String("run_id", runID),
		logger.String("predictions", predictionsPath),
		logger.String("dataset", r.cfg.Dataset),
	)
	start := time.Now()

	cmd := exec.CommandContext(runCtx, r.cfg.Command[0], args...)
	if r.cfg.WorkDir != "" {
		cmd.Dir = r.cfg.WorkDir
	}

	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		r.log.Error("harness.timeout",
			logger.String("run_id", runID),
			logger.Any("elapsed", elapsed.Round(time.Second)),
		)
		return ErrTimeout
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.log.Error("harness.failed",
				logger.String("run_id", runID),
				logger.Int("exit_code", exitErr.ExitCode()),
				logger.String("output_tail", tail(output, 500)),
			)
			return fmt.Errorf("Exit code: %d", exitErr.ExitCode())
		}
		r.log.Error("harness.launch_failed", logger.String("run_id", runID), logger.Err(err))
		return err
	}

	r.log.Info("harness.done",
		logger.String("run_id", runID),
		logger.Any("elapsed", elapsed.Round(time.Second)),
	)
	return nil
}

func tail(b []byte, maxRunes int) string {
	runes := []rune(string(b))
	if len(runes) <= maxRunes {
		return string(runes)
	}
	return "..." + string(runes[len(runes)-maxRunes:])
}
