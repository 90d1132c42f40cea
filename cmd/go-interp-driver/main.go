// Package main provides the go-interp-driver CLI entry point.
//
// go-interp-driver runs code cells in long-lived interactive interpreters
// (Python, JavaScript, shell and configured extras) and streams their
// output back line by line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/randomizedcoder/go-interp-driver/internal/config"
	"github.com/randomizedcoder/go-interp-driver/internal/logging"
	"github.com/randomizedcoder/go-interp-driver/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-interp-driver
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("%s %s\n", config.AppName, version)
			return 0
		}
	}

	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 2
	}
	if cfg.ShowVersion {
		fmt.Printf("%s %s\n", config.AppName, version)
		return 0
	}

	if cfg.InitConfig {
		return initConfig(cfg.ConfigPath)
	}

	// The TUI owns the terminal, so logs would corrupt the screen.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewDiscardLogger()
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	orch, err := orchestrator.New(cfg, logger, orchestrator.Streams{
		In:          os.Stdin,
		Out:         os.Stdout,
		Err:         os.Stderr,
		Interactive: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
	}, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := orch.Run(context.Background()); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrRunFailed):
			// The cell's own output already explains the failure.
			logger.Debug("run_failed", "error", err)
		case errors.Is(err, orchestrator.ErrPreflight):
			fmt.Fprintln(os.Stderr, "Preflight checks failed; use -skip-preflight to run anyway.")
		default:
			logger.Error("orchestrator_failed", "error", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func initConfig(path string) int {
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		path = p
	}
	written, err := config.WriteDefaultFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
		return 1
	}
	if written {
		fmt.Printf("Wrote default config to %s\n", path)
	} else {
		fmt.Printf("Config already exists at %s\n", path)
	}
	return 0
}
