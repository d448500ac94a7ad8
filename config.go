package taskengine

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvApprovalTimeout overrides the configured approval window, e.g.
// APPROVAL_TIMEOUT_DURATION=30m for operational tuning or tests.
const EnvApprovalTimeout = "APPROVAL_TIMEOUT_DURATION"

// Config is a serialisable representation of the engine configuration.
// It can be populated from YAML or environment variables. The
// zero-value is useful: all nested fields inherit their package
// defaults.
type Config struct {
	Approval ApprovalConfig `json:"approval" yaml:"approval"`
	Notices  NoticesConfig  `json:"notices" yaml:"notices"`
	TimeLogs TimeLogsConfig `json:"timeLogs" yaml:"timeLogs"`
}

// ApprovalConfig controls the customer-approval escalation window.
type ApprovalConfig struct {
	// Timeout is a duration string, e.g. "24h".
	Timeout string `json:"timeout" yaml:"timeout"`
}

// NoticesConfig selects the notification queue vendor.
type NoticesConfig struct {
	Vendor   string `json:"vendor" yaml:"vendor"`     // "memory" or "fs"
	BasePath string `json:"basePath" yaml:"basePath"` // fs vendor only
}

// TimeLogsConfig selects the time-log store vendor.
type TimeLogsConfig struct {
	Vendor   string `json:"vendor" yaml:"vendor"`     // "memory" or "fs"
	BasePath string `json:"basePath" yaml:"basePath"` // fs vendor only
}

// DefaultConfig returns a Config populated with the engine defaults:
// a 24h approval window and in-memory vendors.
func DefaultConfig() *Config {
	return &Config{
		Approval: ApprovalConfig{Timeout: "24h"},
		Notices:  NoticesConfig{Vendor: "memory"},
		TimeLogs: TimeLogsConfig{Vendor: "memory"},
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Approval.Timeout != "" {
		d, err := time.ParseDuration(c.Approval.Timeout)
		if err != nil {
			return fmt.Errorf("approval.timeout is not a valid duration: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("approval.timeout must be > 0")
		}
	}
	for name, vendor := range map[string]string{"notices.vendor": c.Notices.Vendor, "timeLogs.vendor": c.TimeLogs.Vendor} {
		switch vendor {
		case "", "memory", "fs":
		default:
			return fmt.Errorf("%s must be \"memory\" or \"fs\", got %q", name, vendor)
		}
	}
	if c.Notices.Vendor == "fs" && c.Notices.BasePath == "" {
		return fmt.Errorf("notices.basePath is required for the fs vendor")
	}
	if c.TimeLogs.Vendor == "fs" && c.TimeLogs.BasePath == "" {
		return fmt.Errorf("timeLogs.basePath is required for the fs vendor")
	}
	return nil
}

// ApprovalWindow returns the configured approval window, falling back
// to 24h when unset.
func (c *Config) ApprovalWindow() time.Duration {
	if c == nil || c.Approval.Timeout == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(c.Approval.Timeout)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// LoadConfig reads a YAML config file and applies environment
// overrides. A missing `.env` file is not an error; path may be empty
// to load defaults plus environment only.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	config := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if timeout := os.Getenv(EnvApprovalTimeout); timeout != "" {
		config.Approval.Timeout = timeout
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
