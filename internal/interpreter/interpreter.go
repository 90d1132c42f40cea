package interpreter

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-interp-driver/internal/language"
	"github.com/randomizedcoder/go-interp-driver/internal/logging"
)

// Notices yielded as Output events by Run.
const (
	msgRetrying       = "Retrying... (%d/%d)"
	msgRestarting     = "Restarting process."
	msgMaxRetries     = "Maximum retries reached. Could not execute code."
	msgPreprocess     = "Error preprocessing code: %v"
	msgCancelled      = "Execution cancelled."
	msgTimedOut       = "Execution timed out after %s."
	msgProcessExited  = "Process exited unexpectedly (exit code %d)."
	recentStderrLines = 20
)

// Callbacks contains optional callback functions for interpreter events.
type Callbacks struct {
	// OnStateChange is called when the process state changes.
	OnStateChange func(oldState, newState State)

	// OnStart is called when a process starts.
	OnStart func(pid int)

	// OnExit is called when a process exits.
	OnExit func(exitCode int, uptime time.Duration)

	// OnRestart is called before a forced restart.
	OnRestart func(attempt int, delay time.Duration)

	// OnWriteFailure is called for every failed stdin write.
	OnWriteFailure func(attempt int, err error)

	// OnLine is called for every raw line read from either stream.
	OnLine func(stream Stream)

	// OnRunStart is called when a Run begins executing.
	OnRunStart func(runID string)

	// OnEvent is called for every event yielded to the caller.
	OnEvent func(ev Event)

	// OnRunComplete is called when a Run finishes, however it ends.
	OnRunComplete func(res RunResult)
}

// RunResult summarises one Run call.
type RunResult struct {
	RunID    string
	Outcome  Outcome
	Duration time.Duration
	Attempts int
	Events   int
}

// Config holds configuration for creating an Interpreter.
type Config struct {
	Profile language.Profile
	Logger  *slog.Logger

	// MaxRetries is the write attempt ceiling per run (default 3).
	MaxRetries int

	// PollInterval is slept when the queue is empty (default 100ms).
	PollInterval time.Duration

	// SettleTimeout bounds each blocking queue wait (default 300ms).
	SettleTimeout time.Duration

	// SettleDelay is slept by a reader before pushing Done (default 100ms).
	SettleDelay time.Duration

	// TerminateTimeout bounds each terminate step (default 5s).
	TerminateTimeout time.Duration

	// RunTimeout bounds the drain of one run; 0 means no limit.
	RunTimeout time.Duration

	// InterruptTimeout bounds the wait for a cell left running by an
	// earlier run to stop after SIGINT (default 2s). The process is
	// restarted if it does not.
	InterruptTimeout time.Duration

	Backoff BackoffConfig

	// Debug mirrors code writes and received lines to DebugWriter
	// (default os.Stderr).
	Debug       bool
	DebugWriter io.Writer

	Callbacks Callbacks

	Dir string
	Env []string
}

// DefaultConfig returns the default configuration for profile.
func DefaultConfig(profile language.Profile) Config {
	return Config{
		Profile:          profile,
		MaxRetries:       3,
		PollInterval:     100 * time.Millisecond,
		SettleTimeout:    300 * time.Millisecond,
		SettleDelay:      100 * time.Millisecond,
		TerminateTimeout: 5 * time.Second,
		InterruptTimeout: 2 * time.Second,
		Backoff:          DefaultBackoffConfig(),
	}
}

// Interpreter is the execution driver for one language. Run feeds it code
// and streams back events; Terminate releases the subprocess.
type Interpreter struct {
	cfg        Config
	logger     *slog.Logger
	queue      *Queue
	manager    *Manager
	transcript *logging.Transcript
	backoff    *Backoff

	runMu   sync.Mutex // single consumer
	phase   atomic.Int32
	runs    atomic.Int64
	pending atomic.Int32
}

// What the next run must wait for before writing, when an earlier run
// ended while its cell was still executing.
const (
	pendingNone      int32 = iota
	pendingSentinel        // wait briefly for a sentinel
	pendingInterrupt       // wait, then interrupt or restart
)

// New creates an Interpreter. The subprocess starts on the first Run.
func New(cfg Config) *Interpreter {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 300 * time.Millisecond
	}
	if cfg.InterruptTimeout <= 0 {
		cfg.InterruptTimeout = 2 * time.Second
	}
	if cfg.DebugWriter == nil {
		cfg.DebugWriter = os.Stderr
	}

	logger := cfg.Logger.With("language", cfg.Profile.Name())
	queue := NewQueue()
	transcript := logging.NewTranscript(cfg.Profile.Name(), logger, cfg.DebugWriter, cfg.Debug)

	return &Interpreter{
		cfg:        cfg,
		logger:     logger,
		queue:      queue,
		transcript: transcript,
		backoff:    NewBackoff(time.Now().UnixNano(), cfg.Backoff),
		manager: NewManager(ManagerConfig{
			Profile:          cfg.Profile,
			Queue:            queue,
			Logger:           cfg.Logger,
			Transcript:       transcript,
			SettleDelay:      cfg.SettleDelay,
			TerminateTimeout: cfg.TerminateTimeout,
			Dir:              cfg.Dir,
			Env:              cfg.Env,
			Callbacks:        cfg.Callbacks,
		}),
	}
}

// Name returns the language name of the profile.
func (i *Interpreter) Name() string {
	return i.cfg.Profile.Name()
}

// Run executes code and returns its events as a lazy sequence.
func (i *Interpreter) Run(code string) iter.Seq[Event] {
	return i.RunContext(context.Background(), code)
}

// RunContext is Run with cancellation. Cancelling ctx ends the drain with a
// notice and sends SIGINT to the process group; the subprocess itself is
// kept when the interpreter survives the interrupt.
//
// Nothing happens until the sequence is ranged over. Breaking out of the
// range loop abandons the run. A cell still executing when its run ends is
// waited for by the next run: it gets until the sentinel arrives, then
// SIGINT, then a restart. Runs on one Interpreter are serialised.
func (i *Interpreter) RunContext(ctx context.Context, code string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		i.runMu.Lock()
		defer i.runMu.Unlock()
		i.execute(ctx, code, yield)
	}
}

// run carries the per-call state of execute.
type run struct {
	res     RunResult
	logger  *slog.Logger
	yield   func(Event) bool
	onEvent func(Event)
	stopped bool

	written bool // the cell reached stdin
	sawDone bool
}

// emit yields ev and reports whether the consumer wants more.
func (r *run) emit(ev Event) bool {
	if r.stopped {
		return false
	}
	r.res.Events++
	if r.onEvent != nil {
		r.onEvent(ev)
	}
	if !r.yield(ev) {
		r.stopped = true
		return false
	}
	return true
}

func (i *Interpreter) execute(ctx context.Context, code string, yield func(Event) bool) {
	start := time.Now()
	r := &run{
		res:     RunResult{RunID: uuid.NewString()},
		yield:   yield,
		onEvent: i.cfg.Callbacks.OnEvent,
	}
	r.logger = i.logger.With("run_id", r.res.RunID)
	i.runs.Add(1)

	defer func() {
		if r.res.Outcome == "" {
			r.res.Outcome = OutcomeAbandoned
		}
		i.markPending(r)
		if r.res.Outcome.Succeeded() {
			i.setPhase(PhaseCompleted)
		} else {
			i.setPhase(PhaseFailed)
		}
		r.res.Duration = time.Since(start)
		r.logger.Info("run_completed",
			"outcome", string(r.res.Outcome),
			"attempts", r.res.Attempts,
			"events", r.res.Events,
			"duration", r.res.Duration.String(),
		)
		if i.cfg.Callbacks.OnRunComplete != nil {
			i.cfg.Callbacks.OnRunComplete(r.res)
		}
	}()

	r.logger.Debug("run_started", "bytes", len(code))
	if i.cfg.Callbacks.OnRunStart != nil {
		i.cfg.Callbacks.OnRunStart(r.res.RunID)
	}
	i.awaitPending(r.logger)
	i.discardStale(r.logger, "run_start")
	i.backoff.Reset()

	i.setPhase(PhasePreprocessing)
	prepared, err := i.cfg.Profile.Preprocess(code)
	if err != nil {
		r.logger.Warn("preprocess_failed", "error", err)
		r.res.Outcome = OutcomePreprocessFailed
		r.emit(Outputf(msgPreprocess, err))
		return
	}
	i.transcript.RecordCode(prepared)

	if !i.manager.IsAlive() {
		// A spawn failure is logged by the manager and surfaces as a
		// failed write below.
		_ = i.manager.Start()
	}

	if !i.write(ctx, r, prepared) {
		return
	}

	i.drain(ctx, r)
}

// write sends the cell, restarting the process on failure until the retry
// ceiling is exceeded. It reports whether draining should follow.
func (i *Interpreter) write(ctx context.Context, r *run, prepared string) bool {
	for attempt := 1; ; {
		i.setPhase(PhaseWritingCode)
		r.res.Attempts = attempt

		err := i.manager.Write(prepared)
		if err == nil {
			r.written = true
			return true
		}

		i.setPhase(PhaseWriteFailed)
		r.logger.Warn("stdin_write_failed",
			"attempt", attempt,
			"max_retries", i.cfg.MaxRetries,
			"error", err,
		)
		if i.cfg.Callbacks.OnWriteFailure != nil {
			i.cfg.Callbacks.OnWriteFailure(attempt, err)
		}

		// The first failure is usually a process that died between runs;
		// only later failures show the error detail.
		if attempt > 1 && !r.emit(Output(err.Error())) {
			return false
		}
		if !r.emit(Outputf(msgRetrying, attempt, i.cfg.MaxRetries)) || !r.emit(Output(msgRestarting)) {
			return false
		}

		i.setPhase(PhaseRestarting)
		delay := i.backoff.Next()
		if i.cfg.Callbacks.OnRestart != nil {
			i.cfg.Callbacks.OnRestart(attempt, delay)
		}
		r.logger.Info("process_restart", "attempt", attempt, "delay", delay.String())

		if delay > 0 {
			select {
			case <-ctx.Done():
				r.res.Outcome = OutcomeCancelled
				r.emit(Output(msgCancelled))
				return false
			case <-time.After(delay):
			}
		}

		_ = i.manager.Restart()
		i.discardStale(r.logger, "restart")

		attempt++
		if attempt > i.cfg.MaxRetries {
			r.logger.Error("max_retries_reached",
				"attempts", attempt-1,
				"error", ErrMaxRetries,
			)
			r.res.Outcome = OutcomeMaxRetries
			r.emit(Output(msgMaxRetries))
			return false
		}
	}
}

// drain forwards queued events until the sentinel has been seen and the
// queue has then stayed quiet for one bounded wait.
func (i *Interpreter) drain(ctx context.Context, r *run) {
	i.setPhase(PhaseStreaming)

	var deadline <-chan time.Time
	if i.cfg.RunTimeout > 0 {
		timer := time.NewTimer(i.cfg.RunTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var exited <-chan struct{} = closedChan
	if p := i.manager.Process(); p != nil {
		exited = p.Exited()
	}

	done := false
	for {
		select {
		case <-ctx.Done():
			r.res.Outcome = OutcomeCancelled
			r.emit(Output(msgCancelled))
			return
		case <-deadline:
			r.logger.Warn("run_timed_out", "timeout", i.cfg.RunTimeout.String())
			r.res.Outcome = OutcomeTimedOut
			r.emit(Outputf(msgTimedOut, i.cfg.RunTimeout))
			return
		default:
		}

		ev, ok := i.queue.TryPop()
		if !ok {
			if i.cfg.PollInterval > 0 {
				time.Sleep(i.cfg.PollInterval)
			}
			ev, ok = i.queue.PopWait(i.cfg.SettleTimeout)
		}

		if !ok {
			if done {
				r.res.Outcome = OutcomeCompleted
				return
			}
			select {
			case <-exited:
				i.reportExit(r)
				return
			default:
			}
			continue
		}

		switch ev.Kind {
		case KindDone:
			done = true
			r.sawDone = true
		case KindInterrupted:
			r.res.Outcome = OutcomeInterrupted
			return
		default:
			if !r.emit(ev) {
				return
			}
		}
	}
}

// reportExit ends a run whose process died without printing the sentinel.
func (i *Interpreter) reportExit(r *run) {
	code := -1
	if p := i.manager.Process(); p != nil {
		code = p.ExitCode()
	}
	r.logger.Warn("process_exited_during_run", "exit_code", code)
	r.res.Outcome = OutcomeProcessExited

	msg := Outputf(msgProcessExited, code)
	if recent := i.transcript.RecentLines(recentStderrLines, StreamStderr.String()); len(recent) > 0 {
		msg.Text += "\n" + strings.Join(recent, "\n")
	}
	r.emit(msg)
}

// markPending records that the cell of r may still be executing. Cancelled
// and timed out cells are interrupted right away.
func (i *Interpreter) markPending(r *run) {
	if !r.written || r.sawDone {
		return
	}
	p := i.manager.Process()
	if p == nil || !p.Alive() {
		return
	}

	switch r.res.Outcome {
	case OutcomeCancelled, OutcomeTimedOut:
		r.logger.Debug("interrupting_cell", "pid", p.Pid(), "outcome", string(r.res.Outcome))
		if err := p.Interrupt(); err != nil {
			r.logger.Debug("interrupt_signal_failed", "pid", p.Pid(), "error", err)
		}
		i.pending.Store(pendingInterrupt)
	case OutcomeAbandoned:
		i.pending.Store(pendingInterrupt)
	case OutcomeInterrupted:
		i.pending.Store(pendingSentinel)
	}
}

// awaitPending makes sure no output of an earlier cell is still on its way
// before a new cell is written.
func (i *Interpreter) awaitPending(logger *slog.Logger) {
	mode := i.pending.Swap(pendingNone)
	if mode == pendingNone {
		return
	}
	p := i.manager.Process()
	if p == nil || !p.Alive() {
		return
	}

	if i.awaitSentinel(p, i.cfg.SettleTimeout) || mode == pendingSentinel {
		return
	}

	logger.Info("interrupting_pending_cell", "pid", p.Pid())
	if err := p.Interrupt(); err != nil {
		logger.Debug("interrupt_signal_failed", "pid", p.Pid(), "error", err)
	}
	if i.awaitSentinel(p, i.cfg.InterruptTimeout) {
		return
	}

	logger.Warn("pending_cell_unresponsive",
		"pid", p.Pid(),
		"timeout", i.cfg.InterruptTimeout.String(),
	)
	_ = i.manager.Restart()
}

// awaitSentinel discards events until a sentinel has arrived and the queue
// has gone quiet, or the process has exited. It returns false on timeout.
func (i *Interpreter) awaitSentinel(p *Process, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		ev, ok := i.queue.PopWait(min(remaining, i.cfg.SettleTimeout))
		if !ok {
			if !p.Alive() {
				return true
			}
			continue
		}
		if ev.Kind == KindDone {
			for {
				if _, ok := i.queue.PopWait(i.cfg.SettleTimeout); !ok {
					return true
				}
			}
		}
	}
}

func (i *Interpreter) discardStale(logger *slog.Logger, reason string) {
	if n := i.queue.Discard(); n > 0 {
		logger.Debug("stale_events_discarded", "count", n, "reason", reason)
	}
}

// Terminate stops the subprocess. It is safe to call repeatedly and from
// any state; a later Run starts a fresh process.
func (i *Interpreter) Terminate() error {
	err := i.manager.Terminate()
	i.pending.Store(pendingNone)
	i.transcript.Reset()
	return err
}

// State returns the process state.
func (i *Interpreter) State() State {
	return i.manager.State()
}

// Phase returns the phase of the current or most recent run.
func (i *Interpreter) Phase() Phase {
	return Phase(i.phase.Load())
}

func (i *Interpreter) setPhase(p Phase) {
	i.phase.Store(int32(p))
}

// Pid returns the subprocess id, or 0.
func (i *Interpreter) Pid() int {
	return i.manager.Pid()
}

// Restarts returns how many forced restarts have happened.
func (i *Interpreter) Restarts() int {
	return i.manager.Restarts()
}

// Runs returns how many runs have been started.
func (i *Interpreter) Runs() int64 {
	return i.runs.Load()
}

// Transcript returns the debug transcript.
func (i *Interpreter) Transcript() *logging.Transcript {
	return i.transcript
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()
