package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName names the config directory.
const AppName = "go-interp-driver"

// DefaultPath returns $XDG_CONFIG_HOME/go-interp-driver/config.yaml (or the
// platform equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName, "config.yaml"), nil
}

// LoadFile reads a YAML config file into cfg. Keys missing from the file
// keep their current values.
func LoadFile(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decoding config %s: %w", path, err)
	}
	return nil
}

// fileConfig is the on-disk layout written by WriteDefaultFile. Durations
// are strings so the file stays readable.
type fileConfig struct {
	Language         string                    `yaml:"language"`
	MaxRetries       int                       `yaml:"max_retries"`
	PollInterval     string                    `yaml:"poll_interval"`
	SettleTimeout    string                    `yaml:"settle_timeout"`
	SettleDelay      string                    `yaml:"settle_delay"`
	TerminateTimeout string                    `yaml:"terminate_timeout"`
	RunTimeout       string                    `yaml:"run_timeout"`
	BackoffInitial   string                    `yaml:"backoff_initial"`
	BackoffMax       string                    `yaml:"backoff_max"`
	BackoffMultiply  float64                   `yaml:"backoff_multiply"`
	Debug            bool                      `yaml:"debug"`
	Verbose          bool                      `yaml:"verbose"`
	LogFormat        string                    `yaml:"log_format"`
	LogLevel         string                    `yaml:"log_level"`
	MetricsAddr      string                    `yaml:"metrics_addr"`
	MetricsDump      bool                      `yaml:"metrics_dump"`
	TUI              bool                      `yaml:"tui"`
	ShowActiveLines  bool                      `yaml:"show_active_lines"`
	SkipPreflight    bool                      `yaml:"skip_preflight"`
	Languages        map[string]LanguageConfig `yaml:"languages,omitempty"`
}

func toFile(cfg *Config) fileConfig {
	return fileConfig{
		Language:         cfg.Language,
		MaxRetries:       cfg.MaxRetries,
		PollInterval:     cfg.PollInterval.String(),
		SettleTimeout:    cfg.SettleTimeout.String(),
		SettleDelay:      cfg.SettleDelay.String(),
		TerminateTimeout: cfg.TerminateTimeout.String(),
		RunTimeout:       cfg.RunTimeout.String(),
		BackoffInitial:   cfg.BackoffInitial.String(),
		BackoffMax:       cfg.BackoffMax.String(),
		BackoffMultiply:  cfg.BackoffMultiply,
		Debug:            cfg.Debug,
		Verbose:          cfg.Verbose,
		LogFormat:        cfg.LogFormat,
		LogLevel:         cfg.LogLevel,
		MetricsAddr:      cfg.MetricsAddr,
		MetricsDump:      cfg.MetricsDump,
		TUI:              cfg.TUIEnabled,
		ShowActiveLines:  cfg.ShowActiveLines,
		SkipPreflight:    cfg.SkipPreflight,
		Languages:        cfg.Languages,
	}
}

const fileHeader = `# go-interp-driver configuration.
# Command line flags override these values.
#
# Extra languages can be added under "languages", e.g.:
#   languages:
#     ruby:
#       command: [irb, --noecho, --noprompt]
#       end_statement: puts "##end_of_execution##"
`

// WriteDefaultFile writes the default configuration to path unless a file
// already exists there. It reports whether a file was written.
func WriteDefaultFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	data, err := yaml.Marshal(toFile(DefaultConfig()))
	if err != nil {
		return false, fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, append([]byte(fileHeader), data...), 0o644); err != nil {
		return false, err
	}
	return true, nil
}
