package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Language) == "" {
		errs = append(errs, ValidationError{
			Field:   "language",
			Message: "must not be empty",
		})
	}

	if cfg.MaxRetries < 1 {
		errs = append(errs, ValidationError{
			Field:   "max_retries",
			Message: "must be at least 1",
		})
	}

	// Timings
	for _, d := range []struct {
		field    string
		positive bool
		value    int64
	}{
		{"poll_interval", false, int64(cfg.PollInterval)},
		{"settle_timeout", true, int64(cfg.SettleTimeout)},
		{"settle_delay", false, int64(cfg.SettleDelay)},
		{"terminate_timeout", true, int64(cfg.TerminateTimeout)},
		{"run_timeout", false, int64(cfg.RunTimeout)},
	} {
		if d.positive && d.value <= 0 {
			errs = append(errs, ValidationError{Field: d.field, Message: "must be positive"})
		} else if d.value < 0 {
			errs = append(errs, ValidationError{Field: d.field, Message: "must not be negative"})
		}
	}

	// Backoff settings
	if cfg.BackoffInitial < 0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_initial",
			Message: "must not be negative",
		})
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		errs = append(errs, ValidationError{
			Field:   "backoff_max",
			Message: "must be >= backoff_initial",
		})
	}
	if cfg.BackoffMultiply < 1.0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_multiply",
			Message: "must be >= 1.0",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error (got %q)", cfg.LogLevel),
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: fmt.Sprintf("must be host:port (%v)", err),
			})
		}
	}

	for name, lc := range cfg.Languages {
		if len(lc.Command) == 0 || lc.Command[0] == "" {
			errs = append(errs, ValidationError{
				Field:   "languages." + name,
				Message: "command must not be empty",
			})
			continue
		}
		// A generic language without a sentinel never finishes a cell.
		if !lc.UsesBuiltin(name) && strings.TrimSpace(lc.EndStatement) == "" && cfg.RunTimeout <= 0 {
			errs = append(errs, ValidationError{
				Field:   "languages." + name,
				Message: "needs end_statement (or run_timeout > 0)",
			})
		}
	}

	// Front end combinations
	if cfg.Exec != "" && cfg.File != "" {
		errs = append(errs, ValidationError{
			Field:   "e",
			Message: "-e and -f are mutually exclusive",
		})
	}
	if cfg.TUIEnabled && cfg.OneShot() {
		errs = append(errs, ValidationError{
			Field:   "tui",
			Message: "-tui cannot be combined with -e or -f",
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
