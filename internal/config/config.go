// Package config provides configuration management for go-interp-driver.
package config

import (
	"strings"
	"time"
)

// LanguageConfig defines or overrides a language in the config file.
type LanguageConfig struct {
	Command          []string `mapstructure:"command" yaml:"command"`
	EndStatement     string   `mapstructure:"end_statement" yaml:"end_statement,omitempty"`
	InterruptPattern string   `mapstructure:"interrupt_pattern" yaml:"interrupt_pattern,omitempty"`
}

// UsesBuiltin reports whether the entry only swaps the binary of the
// built-in profile called name. Anything else defines a generic language.
func (lc LanguageConfig) UsesBuiltin(name string) bool {
	if len(lc.Command) == 0 || lc.EndStatement != "" || lc.InterruptPattern != "" {
		return false
	}
	switch strings.ToLower(name) {
	case "python":
		return true
	case "shell", "javascript":
		return len(lc.Command) == 1
	}
	return false
}

// Config holds all configuration options for the driver.
type Config struct {
	// Interpreter
	Language string `mapstructure:"language"`

	// Execution
	MaxRetries       int           `mapstructure:"max_retries"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	SettleTimeout    time.Duration `mapstructure:"settle_timeout"`
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
	TerminateTimeout time.Duration `mapstructure:"terminate_timeout"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"` // 0 = none

	// Restart pacing
	BackoffInitial  time.Duration `mapstructure:"backoff_initial"` // 0 = restart immediately
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	BackoffMultiply float64       `mapstructure:"backoff_multiply"`

	// Observability
	Debug       bool   `mapstructure:"debug"`
	Verbose     bool   `mapstructure:"verbose"`
	LogFormat   string `mapstructure:"log_format"` // json, text
	LogLevel    string `mapstructure:"log_level"`
	MetricsAddr string `mapstructure:"metrics_addr"` // "" = disabled
	MetricsDump bool   `mapstructure:"metrics_dump"`

	// Front end
	TUIEnabled      bool `mapstructure:"tui"`
	ShowActiveLines bool `mapstructure:"show_active_lines"`
	SkipPreflight   bool `mapstructure:"skip_preflight"`

	// Languages adds or overrides profiles by name.
	Languages map[string]LanguageConfig `mapstructure:"languages"`

	// Command line only
	ConfigPath  string `mapstructure:"-"`
	InitConfig  bool   `mapstructure:"-"`
	Exec        string `mapstructure:"-"` // -e
	File        string `mapstructure:"-"` // -f
	ShowVersion bool   `mapstructure:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Language: "python",

		// Execution
		MaxRetries:       3,
		PollInterval:     100 * time.Millisecond,
		SettleTimeout:    300 * time.Millisecond,
		SettleDelay:      100 * time.Millisecond,
		TerminateTimeout: 5 * time.Second,
		RunTimeout:       0,

		// Restart pacing
		BackoffInitial:  50 * time.Millisecond,
		BackoffMax:      time.Second,
		BackoffMultiply: 2,

		// Observability
		LogFormat: "text",
		LogLevel:  "warn",
	}
}

// OneShot reports whether a single cell was given with -e or -f.
func (c *Config) OneShot() bool {
	return c.Exec != "" || c.File != ""
}
