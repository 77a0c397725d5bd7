package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/vkernel/runner"
)

// Archive backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// KernelConfig is the optional kernel config file. Every field has a
// usable zero value; CLI flags override file values.
type KernelConfig struct {
	// Toolchain is the V executable (default "v").
	Toolchain string `yaml:"toolchain"`
	// ScratchRoot is where scratch directories are created (default OS temp dir).
	ScratchRoot string `yaml:"scratch_root"`
	// Timeout bounds each toolchain run. Zero means no limit.
	Timeout  Duration      `yaml:"timeout"`
	LogLevel string        `yaml:"log_level"`
	Archive  ArchiveConfig `yaml:"archive"`
	Adapter  AdapterConfig `yaml:"adapter"`
}

// ArchiveConfig selects where execution records are archived.
// An empty Backend disables archiving.
type ArchiveConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Dataset     string `yaml:"dataset"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig selects where cell_executed notifications go.
// An empty Type disables notifications.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`

	// HistoryKey and HistoryLength keep a capped list of recent events
	// (redis only).
	HistoryKey    string `yaml:"history_key,omitempty"`
	HistoryLength int    `yaml:"history_length,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// ToolchainOrDefault returns the configured toolchain or "v".
func (c *KernelConfig) ToolchainOrDefault() string {
	if c.Toolchain == "" {
		return runner.DefaultToolchain
	}
	return c.Toolchain
}

// Validate checks cross-field constraints.
func (c *KernelConfig) Validate() error {
	var errs []error

	switch c.Archive.Backend {
	case "":
	case BackendFS, BackendS3:
		if c.Archive.Path == "" {
			errs = append(errs, fmt.Errorf("archive.path is required for backend %q", c.Archive.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.backend must be %q or %q, got %q", BackendFS, BackendS3, c.Archive.Backend))
	}

	switch c.Adapter.Type {
	case "":
	case AdapterWebhook, AdapterRedis:
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for type %q", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type must be %q or %q, got %q", AdapterWebhook, AdapterRedis, c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, errors.New("adapter.retries must be >= 0"))
	}
	if c.Adapter.HistoryKey != "" && c.Adapter.Type != AdapterRedis {
		errs = append(errs, fmt.Errorf("adapter.history_key requires type %q", AdapterRedis))
	}
	if c.Adapter.HistoryLength < 0 {
		errs = append(errs, errors.New("adapter.history_length must be >= 0"))
	}

	return errors.Join(errs...)
}
