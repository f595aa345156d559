package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the validator.
type Config struct {
	DataPoints DataPointsConfig `yaml:"data_points"`
	Model      ModelConfig      `yaml:"model"`
	Harness    HarnessConfig    `yaml:"harness"`
	Store      StoreConfig      `yaml:"store"`
	Logger     LoggerConfig     `yaml:"logger"`
	Webhook    WebhookCfg       `yaml:"webhook"`
	API        APIConfig        `yaml:"api"`
}

type DataPointsConfig struct {
	Dir string `yaml:"dir"`
}

type ModelConfig struct {
	Name string `yaml:"name"`
}

type HarnessConfig struct {
	Command        []string `yaml:"command"`
	Dataset        string   `yaml:"dataset"`
	WorkDir        string   `yaml:"work_dir"`
	Timeout        string   `yaml:"timeout"`
	LogsRoot       string   `yaml:"logs_root"`
	PredictionsDir string   `yaml:"predictions_dir"`
}

type StoreConfig struct {
	Enabled bool         `yaml:"enabled"`
	Type    string       `yaml:"type"`
	SQLite  SQLiteCfg    `yaml:"sqlite"`
	MySQL   MySQLCfg     `yaml:"mysql"`
	JSON    JSONStoreCfg `yaml:"json"`
}

type SQLiteCfg struct {
	Path string `yaml:"path"`
}

type MySQLCfg struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

type JSONStoreCfg struct {
	Path string `yaml:"path"`
}

type LoggerConfig struct {
	Level      string        `yaml:"level"`
	Console    ConsoleLogCfg `yaml:"console"`
	File       FileLogCfg    `yaml:"file"`
	Structured StructLogCfg  `yaml:"structured"`
}

type ConsoleLogCfg struct {
	Color bool `yaml:"color"`
}

type FileLogCfg struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type StructLogCfg struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type WebhookCfg struct {
	URL        string `yaml:"url"`
	SignKey    string `yaml:"sign_key"`
	Timeout    string `yaml:"timeout"`
	RetryCount int    `yaml:"retry_count"`
}

type APIConfig struct {
	Listen    string `yaml:"listen"`
	AuthToken string `yaml:"auth_token"`
}

// LoadConfig reads and parses the config file, expanding environment
// variables. A missing file is not an error: validation runs fine on
// defaults alone.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through to defaults
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		// Expand ${ENV_VAR} references
		expanded := os.Expand(string(data), func(key string) string {
			return os.Getenv(key)
		})
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataPoints.Dir == "" {
		c.DataPoints.Dir = "data_points"
	}
	if c.Model.Name == "" {
		c.Model.Name = "gpt-4"
	}
	if c.Harness.Dataset == "" {
		c.Harness.Dataset = "SWE-bench/SWE-bench"
	}
	if c.Harness.Timeout == "" {
		c.Harness.Timeout = "30m"
	}
	if c.Harness.LogsRoot == "" {
		c.Harness.LogsRoot = filepath.Join("logs", "run_evaluation")
	}
	if c.Store.Type == "" {
		c.Store.Type = "sqlite"
	}
	if c.Store.SQLite.Path == "" {
		c.Store.SQLite.Path = "./data/validator.db"
	}
	if c.Store.JSON.Path == "" {
		c.Store.JSON.Path = "./data/validator.json"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.File.Enabled && c.Logger.File.Dir == "" {
		c.Logger.File.Dir = "./logs"
	}
	if c.Logger.Structured.Enabled && c.Logger.Structured.Path == "" {
		c.Logger.Structured.Path = "./logs/validator.ndjson"
	}
	if c.Webhook.Timeout == "" {
		c.Webhook.Timeout = "10s"
	}
	if c.Webhook.RetryCount == 0 {
		c.Webhook.RetryCount = 3
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
}

// ParseDuration parses a duration string, returning a fallback on error.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
