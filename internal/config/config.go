// Package config loads the mcpguard YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"mcpguard/internal/approval"
	"mcpguard/internal/audit"
	"mcpguard/internal/policy"
	"mcpguard/internal/redact"
	"mcpguard/internal/scope"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "MCPGUARD_CONFIG"

var validate = validator.New()

// Config is the whole configuration file.
type Config struct {
	Firewall policy.RuleSet  `yaml:"firewall" validate:"-"`
	Approval approval.Config `yaml:"approval"`
	Audit    AuditConfig     `yaml:"audit"`
	Redact   RedactConfig    `yaml:"redact"`
	Scopes   scope.Config    `yaml:"scopes"`
	Schemas  SchemaConfig    `yaml:"schemas"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Report   ReportConfig    `yaml:"report"`
}

// AuditConfig locates the durable stores.
type AuditConfig struct {
	Dir         string `yaml:"dir" validate:"required"`
	ApprovalLog string `yaml:"approval_log" validate:"required"`

	// Index is the DSN of the optional SQL index: a SQLite path or a
	// postgres:// URL.
	Index string `yaml:"index"`
}

// RedactConfig overrides the default secret patterns and key names.
type RedactConfig struct {
	Disabled bool     `yaml:"disabled"`
	Patterns []string `yaml:"patterns"`
	Keys     []string `yaml:"keys"`
}

// SchemaConfig points at per-tool parameter schemas.
type SchemaConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// MetricsConfig configures the Prometheus endpoint of "serve".
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ReportConfig schedules the daily report in "serve".
type ReportConfig struct {
	Schedule string `yaml:"schedule"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Firewall: policy.DefaultRuleSet(),
		Approval: approval.DefaultConfig(),
		Audit: AuditConfig{
			Dir:         filepath.Join("logs", "audit"),
			ApprovalLog: filepath.Join("logs", "approvals.jsonl"),
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		Report:  ReportConfig{Schedule: audit.DefaultReportSchedule},
	}
}

// Path picks the config file: the flag value, then $MCPGUARD_CONFIG.
// Empty means built-in defaults.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvPath)
}

// LoadFile loads path, or returns defaults when path is empty.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Load(data)
}

// Load parses YAML over the defaults. Environment variables are expanded
// before parsing.
func Load(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the firewall rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := policy.Validate(&c.Firewall); err != nil {
		return fmt.Errorf("invalid config: firewall: %w", err)
	}
	return nil
}

// Redactor builds the configured redactor. Nil when disabled.
func (c *Config) Redactor() *redact.Redactor {
	if c.Redact.Disabled {
		return nil
	}
	patterns := c.Redact.Patterns
	if len(patterns) == 0 {
		patterns = redact.DefaultPatterns()
	}
	keys := c.Redact.Keys
	if len(keys) == 0 {
		keys = redact.DefaultKeys()
	}
	return redact.New(patterns, keys)
}
