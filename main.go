package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"swebench-validator/api"
	"swebench-validator/datapoint"
	"swebench-validator/harness"
	"swebench-validator/logger"
	"swebench-validator/notify"
	"swebench-validator/prediction"
	"swebench-validator/store"
	"swebench-validator/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dataDir := flag.String("data-dir", "", "directory of data point JSON files (overrides config)")
	targets := flag.String("targets", "", "comma-separated target file names (default: all files in data dir)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	serve := flag.Bool("serve", false, "serve the results API instead of validating")
	flag.Parse()

	// Load config
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *dataDir != "" {
		cfg.DataPoints.Dir = *dataDir
	}

	// Initialize logger
	level := logger.ParseLevel(cfg.Logger.Level)
	if *verbose {
		level = logger.LevelDebug
	}
	var loggers []logger.Logger
	loggers = append(loggers, logger.NewConsole(level, cfg.Logger.Console.Color))

	if cfg.Logger.File.Enabled {
		fileLog, err := logger.NewFile(logger.FileConfig{
			Dir:        cfg.Logger.File.Dir,
			Level:      level,
			MaxAgeDays: cfg.Logger.File.MaxAgeDays,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to init file logger: %v\n", err)
			return 1
		}
		loggers = append(loggers, fileLog)
	}

	if cfg.Logger.Structured.Enabled {
		structLog, err := logger.NewStructured(cfg.Logger.Structured.Path, level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to init structured logger: %v\n", err)
			return 1
		}
		loggers = append(loggers, structLog)
	}

	var log logger.Logger
	if len(loggers) == 1 {
		log = loggers[0]
	} else {
		log = logger.Multi(loggers...)
	}
	defer log.Close()

	log.Info("validator.starting", logger.String("config", *configPath))

	// Initialize store (run ledger). Ledger failures are logged, never fatal
	// for a validation batch, but a store that cannot even open is.
	var dataStore store.Store
	if cfg.Store.Enabled || *serve {
		switch cfg.Store.Type {
		case "mysql":
			dataStore, err = store.NewMySQLStore(store.MySQLConfig{
				DSN:             cfg.Store.MySQL.DSN,
				MaxOpenConns:    cfg.Store.MySQL.MaxOpenConns,
				MaxIdleConns:    cfg.Store.MySQL.MaxIdleConns,
				ConnMaxLifetime: ParseDuration(cfg.Store.MySQL.ConnMaxLifetime, 5*time.Minute),
			}, log)
		case "json":
			storePath := cfg.Store.JSON.Path
			if dir := filepath.Dir(storePath); dir != "." {
				os.MkdirAll(dir, 0755)
			}
			dataStore, err = store.NewJSONStore(storePath, log)
		default:
			dbPath := cfg.Store.SQLite.Path
			if dir := filepath.Dir(dbPath); dir != "." {
				os.MkdirAll(dir, 0755)
			}
			dataStore, err = store.NewSQLiteStore(dbPath, log)
		}
		if err != nil {
			log.Error("store.init_failed", logger.Err(err))
			return 1
		}
		defer dataStore.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *serve {
		return serveAPI(ctx, cfg, dataStore, log)
	}
	return validate(ctx, cfg, dataStore, log, targetNames(*targets, flag.Args()))
}

// targetNames merges the -targets flag with positional arguments and strips
// any ".json" extension so targets match the file-name stems the pipeline
// works with.
func targetNames(flagVal string, args []string) []string {
	var names []string
	for _, part := range strings.Split(flagVal, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, strings.TrimSuffix(part, ".json"))
		}
	}
	for _, arg := range args {
		if arg = strings.TrimSpace(arg); arg != "" {
			names = append(names, strings.TrimSuffix(arg, ".json"))
		}
	}
	return names
}

func validate(ctx context.Context, cfg *Config, dataStore store.Store, log logger.Logger, targets []string) int {
	loader := datapoint.NewLoader(log)
	formatter := prediction.NewFormatter(cfg.Model.Name, log)

	command := cfg.Harness.Command
	if len(command) == 0 {
		command = harness.DefaultCommand()
	}
	runner := harness.NewRunner(harness.RunnerConfig{
		Command: command,
		Dataset: cfg.Harness.Dataset,
		WorkDir: cfg.Harness.WorkDir,
		Timeout: ParseDuration(cfg.Harness.Timeout, 30*time.Minute),
	}, log)

	v := validator.New(loader, formatter, runner, log, validator.Config{
		DataDir:        cfg.DataPoints.Dir,
		LogsRoot:       cfg.Harness.LogsRoot,
		PredictionsDir: cfg.Harness.PredictionsDir,
	})

	// storeCtx creates an independent context for ledger writes that must
	// succeed even after the validation context is cancelled.
	storeCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), 10*time.Second)
	}

	var run *store.ValidationRun
	if dataStore != nil {
		run = &store.ValidationRun{
			ID:        uuid.NewString(),
			DataDir:   cfg.DataPoints.Dir,
			ModelName: cfg.Model.Name,
			Status:    store.StatusRunning,
			StartedAt: time.Now(),
		}
		sCtx, sCancel := storeCtx()
		if err := dataStore.CreateRun(sCtx, run); err != nil {
			log.Error("store.create_run_failed", logger.Err(err))
		}
		sCancel()
	}

	agg, err := v.ValidateAll(ctx, targets)

	if dataStore != nil {
		finishedAt := time.Now()
		run.FinishedAt = &finishedAt
		if err != nil {
			run.Status = store.StatusFailed
			run.Error = err.Error()
		} else {
			run.Status = store.StatusCompleted
			run.TotalFiles = agg.TotalFiles
			run.SuccessfulFiles = agg.SuccessfulFiles
			run.FailedFiles = agg.FailedFiles
			run.SuccessRate = agg.SuccessRate

			sCtx, sCancel := storeCtx()
			for name, res := range agg.FileResults {
				rec := &store.FileRecord{
					ID:        uuid.NewString(),
					RunID:     run.ID,
					FileName:  name,
					Success:   res.Validated(),
					CreatedAt: time.Now(),
				}
				rec.InstanceID = res.InstanceID
				rec.HarnessRunID = res.RunID
				if res.Outcome != nil {
					rec.Status = string(res.Outcome.Status)
					rec.Resolved = res.Outcome.Resolved
					rec.FailToPassMatch = res.Outcome.FailToPassMatch
					rec.PassToPassMatch = res.Outcome.PassToPassMatch
				}
				rec.Reason = fileReason(res)
				if recErr := dataStore.CreateFileRecord(sCtx, rec); recErr != nil {
					log.Error("store.create_file_record_failed",
						logger.String("file", name), logger.Err(recErr))
				}
			}
			sCancel()
		}
		sCtx, sCancel := storeCtx()
		if updErr := dataStore.UpdateRun(sCtx, run); updErr != nil {
			log.Error("store.update_run_failed", logger.Err(updErr))
		}
		sCancel()
	}

	if err != nil {
		log.Error("validator.failed", logger.Err(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	printResults(agg)

	if cfg.Webhook.URL != "" {
		notifier := notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:        cfg.Webhook.URL,
			SignKey:    cfg.Webhook.SignKey,
			Timeout:    ParseDuration(cfg.Webhook.Timeout, 10*time.Second),
			RetryCount: cfg.Webhook.RetryCount,
		}, log)
		runID := ""
		if run != nil {
			runID = run.ID
		}
		notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if notifyErr := notifier.Notify(notifyCtx, notify.BuildSummary(runID, cfg.DataPoints.Dir, cfg.Model.Name, agg)); notifyErr != nil {
			log.Error("webhook.failed", logger.Err(notifyErr))
		}
		notifyCancel()
	}

	if agg.SuccessRate < 100 {
		return 1
	}
	return 0
}

// fileReason picks the most specific failure description for a file result.
func fileReason(res *validator.FileResult) string {
	if res.Error != "" {
		return res.Error
	}
	if res.Outcome != nil && res.Outcome.Error != "" {
		return res.Outcome.Error
	}
	return ""
}

// printResults writes the human-readable batch summary to stdout.
func printResults(agg *validator.AggregateResult) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("VALIDATION RESULTS")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Total files:      %d\n", agg.TotalFiles)
	fmt.Printf("Successful:       %d\n", agg.SuccessfulFiles)
	fmt.Printf("Failed:           %d\n", agg.FailedFiles)
	fmt.Printf("Success rate:     %.1f%%\n", agg.SuccessRate)
	fmt.Println(strings.Repeat("-", 60))

	names := make([]string, 0, len(agg.FileResults))
	for name := range agg.FileResults {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := agg.FileResults[name]
		if res.Validated() {
			fmt.Printf("  [PASS] %s\n", name)
			continue
		}
		reason := fileReason(res)
		if reason == "" && res.Outcome != nil {
			reason = string(res.Outcome.Status)
		}
		fmt.Printf("  [FAIL] %s: %s\n", name, reason)
	}

	fmt.Println(strings.Repeat("=", 60))
	switch {
	case agg.SuccessRate >= 100:
		fmt.Println("All data points validated successfully.")
	case agg.SuccessRate >= 80:
		fmt.Println("Most data points validated; review the failures above.")
	case agg.SuccessRate >= 50:
		fmt.Println("Significant validation failures; review the failures above.")
	default:
		fmt.Println("Validation failed for most data points.")
	}
}

func serveAPI(ctx context.Context, cfg *Config, dataStore store.Store, log logger.Logger) int {
	authToken := cfg.API.AuthToken
	if authToken == "" {
		authToken = os.Getenv("API_AUTH_TOKEN")
	}

	apiServer := api.NewServer(dataStore, log, authToken)
	server := &http.Server{
		Addr:              cfg.API.Listen,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	fatalCh := make(chan error, 1)
	go func() {
		log.Info("api.listening", logger.String("addr", cfg.API.Listen))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("api.listen_failed", logger.Err(err))
			fatalCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("api.shutdown")
	case <-fatalCh:
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	log.Info("api.stopped")
	return 0
}
