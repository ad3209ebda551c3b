package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration for the deprecation subsystem.
// The core components never read the process environment themselves;
// the loader resolves files and environment overrides up front and the
// resulting structs are injected into constructors.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Backup    BackupConfig    `yaml:"backup"`
	Safety    SafetyConfig    `yaml:"safety"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type BackupConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type SafetyConfig struct {
	StrictMode             bool `yaml:"strict_mode"`
	RequireBackup          bool `yaml:"require_backup"`
	ValidateBeforeRollback bool `yaml:"validate_before_rollback"`
}

type MonitorConfig struct {
	Enabled              bool `yaml:"enabled"`
	AlertOnAccess        bool `yaml:"alert_on_access"`
	BatchSize            int  `yaml:"batch_size"`
	FlushIntervalSeconds int  `yaml:"flush_interval_seconds"`
	StatsWindowDays      int  `yaml:"stats_window_days"`
}

type AlertsConfig struct {
	ThrottleWindowMinutes int              `yaml:"throttle_window_minutes"`
	SweepIntervalMinutes  int              `yaml:"sweep_interval_minutes"`
	HistoryLimit          int              `yaml:"history_limit"`
	Escalation            []EscalationRule `yaml:"escalation"`
	WebhookURL            string           `yaml:"webhook_url"`
	SlackWebhookURL       string           `yaml:"slack_webhook_url"`
	StoreFile             string           `yaml:"store_file"`
}

type EscalationRule struct {
	TriggerCount      int    `yaml:"trigger_count"`
	TimeWindowMinutes int    `yaml:"time_window_minutes"`
	EscalateTo        string `yaml:"escalate_to"`
}

type TelemetryConfig struct {
	BufferSize                 int         `yaml:"buffer_size"`
	AggregationIntervalMinutes int         `yaml:"aggregation_interval_minutes"`
	RetentionDays              int         `yaml:"retention_days"`
	Redis                      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the configuration used when no file or overrides are present.
func Default() *Config {
	return &Config{
		Backup: BackupConfig{
			Enabled: true,
			Dir:     os.ExpandEnv("$HOME/.schemaguard/backups"),
		},
		Safety: SafetyConfig{
			ValidateBeforeRollback: true,
		},
		Monitor: MonitorConfig{
			Enabled:              true,
			AlertOnAccess:        true,
			BatchSize:            100,
			FlushIntervalSeconds: 30,
			StatsWindowDays:      30,
		},
		Alerts: AlertsConfig{
			ThrottleWindowMinutes: 5,
			SweepIntervalMinutes:  10,
			HistoryLimit:          1000,
			Escalation: []EscalationRule{
				{TriggerCount: 5, TimeWindowMinutes: 15, EscalateTo: "error"},
				{TriggerCount: 20, TimeWindowMinutes: 60, EscalateTo: "critical"},
			},
		},
		Telemetry: TelemetryConfig{
			BufferSize:                 10000,
			AggregationIntervalMinutes: 5,
			RetentionDays:              90,
			Redis: RedisConfig{
				Host: "localhost",
				Port: 6379,
			},
		},
	}
}

// Load reads the config file at path (if it exists), applies environment
// overrides, and returns the result. A missing file is not an error; the
// defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes the configuration to path, creating the directory if needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvOverrides maps SCHEMAGUARD_* environment variables onto the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCHEMAGUARD_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("SCHEMAGUARD_BACKUP_DIR"); v != "" {
		cfg.Backup.Dir = v
	}
	if v, ok := envBool("SCHEMAGUARD_BACKUP_ENABLED"); ok {
		cfg.Backup.Enabled = v
	}
	if v, ok := envBool("SCHEMAGUARD_MONITORING_ENABLED"); ok {
		cfg.Monitor.Enabled = v
	}
	if v, ok := envBool("SCHEMAGUARD_ALERT_ON_ACCESS"); ok {
		cfg.Monitor.AlertOnAccess = v
	}
	if v, ok := envBool("SCHEMAGUARD_STRICT_MODE"); ok {
		cfg.Safety.StrictMode = v
	}
	if v, ok := envBool("SCHEMAGUARD_REQUIRE_BACKUP"); ok {
		cfg.Safety.RequireBackup = v
	}
	if v := os.Getenv("SCHEMAGUARD_REDIS_HOST"); v != "" {
		cfg.Telemetry.Redis.Host = v
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
