// Package orchestrator wires configuration, the interpreter session,
// metrics and the front ends into one run of the program.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-interp-driver/internal/config"
	"github.com/randomizedcoder/go-interp-driver/internal/interpreter"
	"github.com/randomizedcoder/go-interp-driver/internal/language"
	"github.com/randomizedcoder/go-interp-driver/internal/metrics"
	"github.com/randomizedcoder/go-interp-driver/internal/preflight"
	"github.com/randomizedcoder/go-interp-driver/internal/repl"
	"github.com/randomizedcoder/go-interp-driver/internal/session"
	"github.com/randomizedcoder/go-interp-driver/internal/stats"
	"github.com/randomizedcoder/go-interp-driver/internal/tui"
)

// shutdownTimeout bounds stopping the metrics server.
const shutdownTimeout = 10 * time.Second

var (
	// ErrPreflight is returned when a required preflight check fails.
	ErrPreflight = errors.New("preflight checks failed (use -skip-preflight to override)")

	// ErrRunFailed is returned when a one-shot cell did not complete.
	ErrRunFailed = errors.New("cell did not complete")
)

// Streams are the process's standard streams.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Interactive enables REPL prompts.
	Interactive bool
}

// Orchestrator coordinates all components for one program run.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	streams Streams
	version string

	registry      *language.Registry
	session       *session.Session
	promRegistry  *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	recorder      *stats.Recorder

	mu          sync.Mutex
	lastOutcome interpreter.Outcome

	startTime time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, streams Streams, version string) (*Orchestrator, error) {
	registry, err := BuildRegistry(cfg.Languages)
	if err != nil {
		return nil, err
	}
	if _, err := registry.Lookup(cfg.Language); err != nil {
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	o := &Orchestrator{
		config:       cfg,
		logger:       logger,
		streams:      streams,
		version:      version,
		registry:     registry,
		promRegistry: promRegistry,
		metrics:      metrics.NewCollectorWithRegistry(metrics.CollectorConfig{Version: version}, promRegistry),
		recorder:     stats.NewRecorder(),
	}
	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, promRegistry, logger)
	}

	o.session = session.New(session.Config{
		Registry:  registry,
		Logger:    logger,
		Template:  interpreterTemplate(cfg, streams.Err),
		Callbacks: o.callbacks,
	})
	return o, nil
}

// interpreterTemplate maps configuration onto interpreter settings.
func interpreterTemplate(cfg *config.Config, debugWriter io.Writer) interpreter.Config {
	tmpl := interpreter.DefaultConfig(nil)
	tmpl.MaxRetries = cfg.MaxRetries
	tmpl.PollInterval = cfg.PollInterval
	tmpl.SettleTimeout = cfg.SettleTimeout
	tmpl.SettleDelay = cfg.SettleDelay
	tmpl.TerminateTimeout = cfg.TerminateTimeout
	tmpl.RunTimeout = cfg.RunTimeout
	tmpl.Backoff.Initial = cfg.BackoffInitial
	tmpl.Backoff.Max = cfg.BackoffMax
	tmpl.Backoff.Multiplier = cfg.BackoffMultiply
	tmpl.Debug = cfg.Debug
	tmpl.DebugWriter = debugWriter
	return tmpl
}

// BuildRegistry returns the built-in profiles with the configured
// languages applied. A built-in given only a command keeps its
// instrumentation and swaps the executable; anything else becomes a
// generic profile.
func BuildRegistry(languages map[string]config.LanguageConfig) (*language.Registry, error) {
	registry := language.DefaultRegistry()

	for name, lc := range languages {
		if lc.UsesBuiltin(name) {
			if p, ok := builtin(strings.ToLower(name), lc.Command); ok {
				registry.Register(p)
				continue
			}
		}

		g, err := language.NewGeneric(language.GenericConfig{
			Name:             strings.ToLower(name),
			Command:          lc.Command,
			EndStatement:     lc.EndStatement,
			InterruptPattern: lc.InterruptPattern,
		})
		if err != nil {
			return nil, fmt.Errorf("languages.%s: %w", name, err)
		}
		registry.Register(g)
	}
	return registry, nil
}

func builtin(name string, command []string) (language.Profile, bool) {
	if len(command) == 0 {
		return nil, false
	}
	switch name {
	case "python":
		return language.NewPython(&language.PythonConfig{BinaryPath: command[0], ExtraArgs: command[1:]}), true
	case "shell":
		if len(command) > 1 {
			return nil, false
		}
		return language.NewShell(&language.ShellConfig{BinaryPath: command[0]}), true
	case "javascript":
		if len(command) > 1 {
			return nil, false
		}
		return language.NewJavaScript(&language.JavaScriptConfig{BinaryPath: command[0]}), true
	}
	return nil, false
}

// Run executes the configured front end. It blocks until the user quits,
// the one-shot cell finishes or a signal arrives.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	if !o.config.SkipPreflight {
		if err := o.preflight(); err != nil {
			return err
		}
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// SIGTERM always ends the program. SIGINT cancels the running cell.
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, syscall.SIGTERM)
	defer signal.Stop(termCh)
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	go func() {
		select {
		case sig := <-termCh:
			o.logger.Info("received_signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	o.logger.Info("starting",
		"version", o.version,
		"language", o.config.Language,
		"languages", o.registry.Names(),
		"metrics_addr", o.config.MetricsAddr,
	)

	var runErr error
	switch {
	case o.config.OneShot():
		runErr = o.runOneShot(ctx, interrupts)
	case o.config.TUIEnabled:
		runErr = tui.Run(ctx, tui.Config{Runner: o.session, Language: o.canonical(o.config.Language)})
	default:
		runErr = o.runREPL(ctx, interrupts)
	}

	o.shutdown()
	o.report()
	return runErr
}

func (o *Orchestrator) preflight() error {
	active, _ := o.registry.Lookup(o.config.Language)
	var others []language.Profile
	for _, p := range o.registry.Profiles() {
		if p.Name() != active.Name() {
			others = append(others, p)
		}
	}

	result := preflight.RunAll(preflight.Options{
		Active:      active,
		Others:      others,
		MetricsAddr: o.config.MetricsAddr,
	})
	if !result.Passed || o.config.Verbose {
		preflight.PrintResults(o.streams.Err, result)
	}
	if !result.Passed {
		return ErrPreflight
	}
	return nil
}

// runOneShot runs the -e/-f cell and reports whether it completed.
func (o *Orchestrator) runOneShot(ctx context.Context, interrupts <-chan os.Signal) error {
	code, err := o.config.ReadCell(o.streams.In)
	if err != nil {
		return fmt.Errorf("reading cell: %w", err)
	}

	cellCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-interrupts:
			cancel()
		case <-cellCtx.Done():
		}
	}()

	seq, err := o.session.Run(cellCtx, o.config.Language, code)
	if err != nil {
		return err
	}
	render := repl.NewRenderer(o.streams.Out, o.config.ShowActiveLines)
	for ev := range seq {
		render.Event(ev)
	}

	if outcome := o.LastOutcome(); !outcome.Succeeded() {
		return fmt.Errorf("%w: %s", ErrRunFailed, outcome)
	}
	return nil
}

func (o *Orchestrator) runREPL(ctx context.Context, interrupts <-chan os.Signal) error {
	r, err := repl.New(repl.Config{
		In:              o.streams.In,
		Out:             o.streams.Out,
		Runner:          o.session,
		Language:        o.config.Language,
		ShowActiveLines: o.config.ShowActiveLines,
		Prompt:          o.streams.Interactive,
		Interrupts:      interrupts,
		Logger:          o.logger,
	})
	if err != nil {
		return err
	}
	if o.streams.Interactive {
		o.printBanner()
	}
	return r.Loop(ctx)
}

// shutdown terminates every interpreter and stops the metrics server.
func (o *Orchestrator) shutdown() {
	if err := o.session.Reset(); err != nil {
		o.logger.Warn("shutdown_incomplete", "error", err)
	}

	if o.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := o.metricsServer.Shutdown(ctx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}
}

// report prints the exit summary and the metrics dump.
func (o *Orchestrator) report() {
	if !o.config.OneShot() || o.config.Verbose {
		fmt.Fprint(o.streams.Err, o.Summary())
	}
	if o.config.MetricsDump {
		if err := metrics.WriteText(o.streams.Err, o.promRegistry); err != nil {
			o.logger.Warn("metrics_dump_failed", "error", err)
		}
	}
}

// Summary formats the exit summary for the run so far.
func (o *Orchestrator) Summary() string {
	ps := o.metrics.Summary()
	return stats.FormatExitSummary(o.recorder.Aggregate(), stats.SummaryConfig{
		Duration:        time.Since(o.startTime),
		MetricsAddr:     o.config.MetricsAddr,
		ShowPerLanguage: o.recorder.LanguageCount() > 1 || o.config.Verbose,
		ExitCodes:       ps.ExitCodes,
		TotalStarts:     ps.TotalStarts,
		TotalRestarts:   ps.TotalRestarts,
	})
}

func (o *Orchestrator) printBanner() {
	w := o.streams.Out
	fmt.Fprintf(w, "go-interp-driver %s (%s)\n", o.version, o.canonical(o.config.Language))
	fmt.Fprintf(w, "Languages: %s\n", strings.Join(o.registry.Names(), ", "))
	fmt.Fprintf(w, "%s\n", "End a cell with a blank line. Commands: %lang NAME, %reset, %exit")
	fmt.Fprintln(w)
}

func (o *Orchestrator) canonical(lang string) string {
	if p, err := o.registry.Lookup(lang); err == nil {
		return p.Name()
	}
	return lang
}

// =============================================================================
// Callback handlers
// =============================================================================

// callbacks returns the interpreter callbacks for one language.
func (o *Orchestrator) callbacks(lang string) interpreter.Callbacks {
	ls := o.recorder.Language(lang)

	return interpreter.Callbacks{
		OnStart: func(pid int) {
			o.metrics.ProcessStarted(lang)
			ls.Starts.Add(1)
			if o.config.Verbose {
				o.logger.Debug("interpreter_process_started", "language", lang, "pid", pid)
			}
		},
		OnExit: func(exitCode int, uptime time.Duration) {
			o.metrics.ProcessExited(lang, exitCode, uptime)
			ls.Exits.Add(1)
		},
		OnRestart: func(attempt int, delay time.Duration) {
			o.metrics.ProcessRestarted(lang)
			ls.Restarts.Add(1)
			if o.config.Verbose {
				o.logger.Debug("interpreter_restart_scheduled",
					"language", lang,
					"attempt", attempt,
					"delay", delay.String(),
				)
			}
		},
		OnWriteFailure: func(int, error) {
			o.metrics.WriteFailed(lang)
			ls.WriteFailures.Add(1)
		},
		OnLine: func(s interpreter.Stream) {
			o.metrics.LineRead(lang, s.String())
		},
		OnRunStart: func(string) {
			o.metrics.RunStarted(lang)
		},
		OnEvent: func(ev interpreter.Event) {
			o.metrics.EventYielded(lang, ev.Kind.String())
			ls.Events.Add(1)
		},
		OnRunComplete: func(res interpreter.RunResult) {
			o.metrics.RunCompleted(lang, string(res.Outcome), res.Duration, res.Attempts)
			ls.RecordRun(string(res.Outcome), res.Duration)

			o.mu.Lock()
			o.lastOutcome = res.Outcome
			o.mu.Unlock()
		},
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Session returns the interpreter session.
func (o *Orchestrator) Session() *session.Session {
	return o.session
}

// Metrics returns the metrics collector.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Gatherer returns the Prometheus registry holding the driver's metrics.
func (o *Orchestrator) Gatherer() prometheus.Gatherer {
	return o.promRegistry
}

// Recorder returns the run statistics.
func (o *Orchestrator) Recorder() *stats.Recorder {
	return o.recorder
}

// LastOutcome returns the outcome of the most recent run.
func (o *Orchestrator) LastOutcome() interpreter.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastOutcome
}
