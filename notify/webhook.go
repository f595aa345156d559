package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"swebench-validator/logger"
	"swebench-validator/validator"
)

// Summary is the webhook payload sent after a validation batch finishes.
type Summary struct {
	RunID           string            `json:"run_id"`
	DataDir         string            `json:"data_dir"`
	ModelName       string            `json:"model_name"`
	TotalFiles      int               `json:"total_files"`
	SuccessfulFiles int               `json:"successful_files"`
	FailedFiles     int               `json:"failed_files"`
	SuccessRate     float64           `json:"success_rate"`
	Files           map[string]string `json:"files"` // file name -> status or failure reason
	FinishedAt      time.Time         `json:"finished_at"`
}

// WebhookConfig holds webhook notifier configuration.
type WebhookConfig struct {
	URL        string
	SignKey    string
	Timeout    time.Duration
	RetryCount int
}

// WebhookNotifier posts batch summaries to a JSON webhook.
type WebhookNotifier struct {
	url        string
	signKey    string
	httpClient *http.Client
	retryCount int
	log        logger.Logger
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig, log logger.Logger) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	retryCount := cfg.RetryCount
	if retryCount == 0 {
		retryCount = 3
	}
	return &WebhookNotifier{
		url:        cfg.URL,
		signKey:    cfg.SignKey,
		httpClient: &http.Client{Timeout: timeout},
		retryCount: retryCount,
		log:        log,
	}
}

// BuildSummary flattens an aggregate result into the webhook payload.
func BuildSummary(runID, dataDir, modelName string, agg *validator.AggregateResult) *Summary {
	files := make(map[string]string, len(agg.FileResults))
	for name, res := range agg.FileResults {
		switch {
		case res.Outcome != nil:
			files[name] = string(res.Outcome.Status)
		case res.Error != "":
			files[name] = res.Error
		default:
			files[name] = "unknown"
		}
	}
	return &Summary{
		RunID:           runID,
		DataDir:         dataDir,
		ModelName:       modelName,
		TotalFiles:      agg.TotalFiles,
		SuccessfulFiles: agg.SuccessfulFiles,
		FailedFiles:     agg.FailedFiles,
		SuccessRate:     agg.SuccessRate,
		Files:           files,
		FinishedAt:      time.Now(),
	}
}

// Notify posts the summary, retrying with linear backoff on failure.
func (w *WebhookNotifier) Notify(ctx context.Context, summary *Summary) error {
	if w.url == "" {
		return fmt.Errorf("no webhook url configured")
	}

	payload := map[string]any{"summary": summary}
	if w.signKey != "" {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		payload["timestamp"] = ts
		payload["sign"] = w.genSign(ts)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for i := 0; i < w.retryCount; i++ {
		if i > 0 {
			delay := time.NewTimer(time.Duration(i) * time.Second)
			select {
			case <-ctx.Done():
				delay.Stop()
				return ctx.Err()
			case <-delay.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.httpClient.Do(req)
		if err != nil {
			lastErr = err
			w.log.Warn("webhook.retry", logger.Int("attempt", i+1), logger.Err(err))
			continue
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB max
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			w.log.Info("webhook.sent",
				logger.String("run_id", summary.RunID),
				logger.Float64("success_rate", summary.SuccessRate),
			)
			return nil
		}

		lastErr = fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
		w.log.Warn("webhook.retry", logger.Int("attempt", i+1), logger.Err(lastErr))
	}

	return fmt.Errorf("webhook notification failed after %d attempts: %w", w.retryCount, lastErr)
}

func (w *WebhookNotifier) genSign(timestamp string) string {
	stringToSign := timestamp + "\n" + w.signKey
	h := hmac.New(sha256.New, []byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
