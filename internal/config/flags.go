package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// languageDefs is a custom flag type for repeatable -define flags of the
// form name=command args...
type languageDefs map[string]LanguageConfig

func (d *languageDefs) String() string {
	if d == nil {
		return ""
	}
	var parts []string
	for name, lc := range *d {
		parts = append(parts, name+"="+strings.Join(lc.Command, " "))
	}
	return strings.Join(parts, ", ")
}

func (d *languageDefs) Set(value string) error {
	name, command, ok := strings.Cut(value, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(command) == "" {
		return fmt.Errorf("want name=command, got %q", value)
	}
	if *d == nil {
		*d = languageDefs{}
	}
	lc := (*d)[name]
	lc.Command = strings.Fields(command)
	(*d)[name] = lc
	return nil
}

// endStatements is a custom flag type for repeatable -end-statement flags
// of the form name=statement.
type endStatements map[string]string

func (e *endStatements) String() string {
	if e == nil {
		return ""
	}
	var parts []string
	for name, stmt := range *e {
		parts = append(parts, name+"="+stmt)
	}
	return strings.Join(parts, ", ")
}

func (e *endStatements) Set(value string) error {
	name, stmt, ok := strings.Cut(value, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(stmt) == "" {
		return fmt.Errorf("want name=statement, got %q", value)
	}
	if *e == nil {
		*e = endStatements{}
	}
	(*e)[name] = stmt
	return nil
}

// ParseFlags parses command-line arguments (without the program name) and
// returns a Config.
//
// Values come from, lowest first: DefaultConfig, the config file (-config,
// or the default path when it exists), then explicit flags.
func ParseFlags(args []string) (*Config, error) {
	cfg := DefaultConfig()

	path, explicit := scanConfigPath(args)
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			if err := LoadFile(path, cfg); err != nil {
				return nil, err
			}
			cfg.ConfigPath = path
		}
	}
	if !explicit && cfg.ConfigPath == "" {
		cfg.ConfigPath = path
	}

	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	defs := languageDefs{}
	ends := endStatements{}
	var configFlag string

	fs.Usage = func() {
		w := fs.Output()
		fmt.Fprintf(w, `go-interp-driver - run code in long-lived interactive interpreters

Usage:
  go-interp-driver [flags]                 line REPL (cells end at a blank line)
  go-interp-driver -e 'print(1)'           run one cell and exit
  go-interp-driver -tui                    terminal UI

Interpreter:
`)
		printFlagCategory(fs, []string{"lang", "define", "end-statement", "e", "f"})

		fmt.Fprintf(w, "\nExecution:\n")
		printFlagCategory(fs, []string{"max-retries", "poll-interval", "settle-timeout", "settle-delay", "terminate-timeout", "run-timeout"})

		fmt.Fprintf(w, "\nRestart Pacing:\n")
		printFlagCategory(fs, []string{"backoff-initial", "backoff-max", "backoff-multiply"})

		fmt.Fprintf(w, "\nObservability:\n")
		printFlagCategory(fs, []string{"debug", "v", "log-format", "log-level", "metrics", "metrics-dump"})

		fmt.Fprintf(w, "\nFront End:\n")
		printFlagCategory(fs, []string{"tui", "show-active-lines", "skip-preflight"})

		fmt.Fprintf(w, "\nConfiguration:\n")
		printFlagCategory(fs, []string{"config", "init-config", "version"})

		fmt.Fprintf(w, `
REPL Commands:
  %%lang NAME   switch language
  %%reset       terminate every interpreter
  %%exit        quit

Examples:
  # Python one-liner
  go-interp-driver -e 'print(sum(range(10)))'

  # Shell script with active line tracing
  go-interp-driver -lang shell -show-active-lines -f build.sh

  # Add a language
  go-interp-driver -define 'lua=lua -i' \
    -end-statement 'lua=print("##end_of_execution##")' -lang lua

`)
	}

	// Interpreter
	fs.StringVar(&cfg.Language, "lang", cfg.Language, "Language to run (python, shell, javascript or a defined one)")
	fs.Var(&defs, "define", "Define a language as name=command (can repeat)")
	fs.Var(&ends, "end-statement", "Statement that prints the sentinel for a defined language, as name=statement (can repeat)")
	fs.StringVar(&cfg.Exec, "e", cfg.Exec, "Run this code as a single cell and exit")
	fs.StringVar(&cfg.File, "f", cfg.File, `Run the contents of this file ("-" for stdin) and exit`)

	// Execution
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Write attempts per cell before giving up")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Sleep when the output queue is empty")
	fs.DurationVar(&cfg.SettleTimeout, "settle-timeout", cfg.SettleTimeout, "Quiet period that ends a cell after its sentinel")
	fs.DurationVar(&cfg.SettleDelay, "settle-delay", cfg.SettleDelay, "Reader delay before signalling the end of a cell")
	fs.DurationVar(&cfg.TerminateTimeout, "terminate-timeout", cfg.TerminateTimeout, "Grace period for each terminate step")
	fs.DurationVar(&cfg.RunTimeout, "run-timeout", cfg.RunTimeout, "Give up on a cell after this long (0 = never)")

	// Restart pacing
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "Delay before the first restart (0 = none)")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum restart delay")
	fs.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Restart delay multiplier")

	// Observability
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Print every code write and received line to stderr")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.BoolVar(&cfg.MetricsDump, "metrics-dump", cfg.MetricsDump, "Print metrics in text format on exit")

	// Front end
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Use the terminal UI")
	fs.BoolVar(&cfg.ShowActiveLines, "show-active-lines", cfg.ShowActiveLines, "Show the executing line in the REPL")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Configuration
	fs.StringVar(&configFlag, "config", cfg.ConfigPath, "Config file path")
	fs.BoolVar(&cfg.InitConfig, "init-config", cfg.InitConfig, "Write the default config file and exit")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if len(defs) > 0 && cfg.Languages == nil {
		cfg.Languages = map[string]LanguageConfig{}
	}
	for name, lc := range defs {
		if existing, ok := cfg.Languages[name]; ok {
			lc.EndStatement = existing.EndStatement
			lc.InterruptPattern = existing.InterruptPattern
		}
		cfg.Languages[name] = lc
	}
	if len(ends) > 0 && cfg.Languages == nil {
		cfg.Languages = map[string]LanguageConfig{}
	}
	for name, stmt := range ends {
		lc := cfg.Languages[name]
		lc.EndStatement = stmt
		cfg.Languages[name] = lc
	}

	return cfg, nil
}

// scanConfigPath finds -config before the full parse so the file can
// supply flag defaults.
func scanConfigPath(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if value, ok := strings.CutPrefix(name, "config="); ok {
			return value, true
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

// ReadCell returns the code given by -e or -f.
func (c *Config) ReadCell(stdin io.Reader) (string, error) {
	switch {
	case c.Exec != "":
		return c.Exec, nil
	case c.File == "-":
		b, err := io.ReadAll(stdin)
		return string(b), err
	case c.File != "":
		b, err := os.ReadFile(c.File)
		return string(b), err
	}
	return "", errors.New("no cell given")
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, names []string) {
	w := fs.Output()
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
			fmt.Fprintf(w, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(w)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
		return ""
	}

	switch f.Value.(type) {
	case *languageDefs:
		return "name=command"
	case *endStatements:
		return "name=statement"
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
