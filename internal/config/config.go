// Package config handles TOML configuration for travelgate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yairfalse/travelgate/types"
)

// Snapshot backends
const (
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
	BackendS3       = "s3"
	BackendDynamoDB = "dynamodb"
)

// Config is the root configuration structure.
type Config struct {
	Rulesets   RulesetsConfig    `toml:"rulesets"`
	Snapshots  SnapshotsConfig   `toml:"snapshots"`
	Exceptions ExceptionsConfig  `toml:"exceptions"`
	Approvers  map[string]string `toml:"approvers"`
	Notify     NotifyConfig      `toml:"notify"`
	AWS        AWSConfig         `toml:"aws"`
	OTEL       OTELConfig        `toml:"otel"`
	Metrics    MetricsEndpoint   `toml:"metrics"`
	Log        LogConfig         `toml:"log"`
}

// RulesetsConfig points at the rule files. Empty paths use the built-in
// defaults. ApprovalOverrideEnv names the variable whose YAML content
// replaces the approval file wholesale.
type RulesetsConfig struct {
	PolicyLite          string `toml:"policy_lite"`
	Validator           string `toml:"validator"`
	Approval            string `toml:"approval"`
	ApprovalOverrideEnv string `toml:"approval_override_env"`
}

// SnapshotsConfig selects the snapshot storage backend.
type SnapshotsConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	Bucket  string `toml:"bucket"`
	Prefix  string `toml:"prefix"`
	Table   string `toml:"table"`
}

// ExceptionsConfig holds exception router settings.
type ExceptionsConfig struct {
	JournalDir           string `toml:"journal_dir"`
	JournalMaxFileSize   int64  `toml:"journal_max_file_size"`
	JournalRetentionDays int    `toml:"journal_retention_days"`
	SweepIntervalStr     string `toml:"sweep_interval"`
	SweepInterval        time.Duration
	CompactIntervalStr   string `toml:"compact_interval"`
	CompactInterval      time.Duration
}

// NotifyConfig holds escalation notification settings.
type NotifyConfig struct {
	SQSQueueURL string `toml:"sqs_queue_url"`
}

// AWSConfig holds AWS settings.
type AWSConfig struct {
	Region  string `toml:"region"`
	Profile string `toml:"profile"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint"`
	Insecure    bool          `toml:"insecure"`
	ServiceName string        `toml:"service_name"`
	Traces      TracesConfig  `toml:"traces"`
	Metrics     MetricsConfig `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate float64 `toml:"sample_rate"`
}

// MetricsConfig holds OTLP metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// MetricsEndpoint is the Prometheus scrape listener.
type MetricsEndpoint struct {
	Addr string `toml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	_ = parseInterval(cfg)
	return cfg
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- config path is operator input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML content and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseInterval(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Rulesets.ApprovalOverrideEnv == "" {
		cfg.Rulesets.ApprovalOverrideEnv = "APPROVAL_RULES"
	}
	if cfg.Snapshots.Backend == "" {
		cfg.Snapshots.Backend = BackendBolt
	}
	if cfg.Snapshots.Path == "" {
		cfg.Snapshots.Path = "travelgate.db"
	}
	if cfg.Snapshots.Prefix == "" {
		cfg.Snapshots.Prefix = "snapshots/"
	}
	if cfg.Exceptions.JournalDir == "" {
		cfg.Exceptions.JournalDir = "journal"
	}
	if cfg.Exceptions.JournalMaxFileSize == 0 {
		cfg.Exceptions.JournalMaxFileSize = 64 * 1024 * 1024
	}
	if cfg.Exceptions.JournalRetentionDays == 0 {
		cfg.Exceptions.JournalRetentionDays = 30
	}
	if cfg.Exceptions.SweepIntervalStr == "" {
		cfg.Exceptions.SweepIntervalStr = "15m"
	}
	if cfg.Exceptions.CompactIntervalStr == "" {
		cfg.Exceptions.CompactIntervalStr = "24h"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "travelgate"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func parseInterval(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Exceptions.SweepIntervalStr)
	if err != nil {
		return fmt.Errorf("parse sweep_interval %q: %w", cfg.Exceptions.SweepIntervalStr, err)
	}
	cfg.Exceptions.SweepInterval = d

	d, err = time.ParseDuration(cfg.Exceptions.CompactIntervalStr)
	if err != nil {
		return fmt.Errorf("parse compact_interval %q: %w", cfg.Exceptions.CompactIntervalStr, err)
	}
	cfg.Exceptions.CompactInterval = d
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	switch c.Snapshots.Backend {
	case BackendBolt:
		if c.Snapshots.Path == "" {
			return fmt.Errorf("snapshots: path required for bolt backend")
		}
	case BackendMemory:
	case BackendS3:
		if c.Snapshots.Bucket == "" {
			return fmt.Errorf("snapshots: bucket required for s3 backend")
		}
	case BackendDynamoDB:
		if c.Snapshots.Table == "" {
			return fmt.Errorf("snapshots: table required for dynamodb backend")
		}
	default:
		return fmt.Errorf("snapshots: unknown backend %q", c.Snapshots.Backend)
	}

	if (c.Snapshots.Backend == BackendS3 || c.Snapshots.Backend == BackendDynamoDB || c.Notify.SQSQueueURL != "") && c.AWS.Region == "" {
		return fmt.Errorf("aws: region required for %s backend or sqs notifications", c.Snapshots.Backend)
	}
	if c.Exceptions.SweepInterval <= 0 {
		return fmt.Errorf("exceptions: sweep_interval must be positive (got %s)", c.Exceptions.SweepInterval)
	}
	if c.Exceptions.CompactInterval < 0 {
		return fmt.Errorf("exceptions: compact_interval must not be negative (got %s)", c.Exceptions.CompactInterval)
	}
	if c.Exceptions.JournalMaxFileSize < 0 || c.Exceptions.JournalRetentionDays < 0 {
		return fmt.Errorf("exceptions: journal size and retention must not be negative")
	}
	for approver, level := range c.Approvers {
		if !types.ApprovalLevel(level).Valid() {
			return fmt.Errorf("approvers: %s has unknown level %q", approver, level)
		}
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}

// ApprovalOverride reads the approval override text from the configured
// environment variable. Called once at startup; the content is passed
// explicitly to the expense engine.
func (c *Config) ApprovalOverride() string {
	if c.Rulesets.ApprovalOverrideEnv == "" {
		return ""
	}
	return os.Getenv(c.Rulesets.ApprovalOverrideEnv)
}
