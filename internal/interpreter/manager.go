package interpreter

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-interp-driver/internal/language"
	"github.com/randomizedcoder/go-interp-driver/internal/logging"
)

// ManagerConfig holds configuration for creating a Manager.
type ManagerConfig struct {
	Profile          language.Profile
	Queue            *Queue
	Logger           *slog.Logger
	Transcript       *logging.Transcript
	SettleDelay      time.Duration
	TerminateTimeout time.Duration
	Dir              string
	Env              []string
	Callbacks        Callbacks
}

// Manager owns the interpreter subprocess: at most one live Process at a
// time, replaced on Start and released on Terminate.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	mu      sync.Mutex // serialises Start/Terminate
	current atomic.Pointer[Process]

	state   State
	stateMu sync.RWMutex

	starts   atomic.Int64
	restarts atomic.Int64

	// wrapStdin is set by tests to inject write failures.
	wrapStdin func(io.WriteCloser) io.WriteCloser
}

// NewManager creates a Manager. No process is spawned until Start.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Queue == nil {
		cfg.Queue = NewQueue()
	}
	if cfg.TerminateTimeout <= 0 {
		cfg.TerminateTimeout = 5 * time.Second
	}
	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger.With("language", cfg.Profile.Name()),
		state:  StateNotStarted,
	}
}

// Start terminates any running process, then spawns a new one.
// Spawn failures are returned, not retried.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked()
}

// Restart replaces the process, counting it as a restart.
func (m *Manager) Restart() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.restarts.Add(1)
	m.setState(StateRestarting)
	return m.startLocked()
}

func (m *Manager) startLocked() error {
	m.stopLocked()

	p, err := StartProcess(ProcessConfig{
		Profile:     m.cfg.Profile,
		Queue:       m.cfg.Queue,
		Logger:      m.logger,
		Transcript:  m.cfg.Transcript,
		SettleDelay: m.cfg.SettleDelay,
		Dir:         m.cfg.Dir,
		Env:         m.cfg.Env,
		OnLine:      m.cfg.Callbacks.OnLine,
		OnExit:      m.handleExit,
		wrapStdin:   m.wrapStdin,
	})
	if err != nil {
		m.setState(StateCrashed)
		m.logger.Error("process_spawn_failed",
			"command", language.CommandString(m.cfg.Profile),
			"error", err,
		)
		return err
	}

	m.current.Store(p)
	m.starts.Add(1)
	m.setState(StateRunning)

	m.logger.Info("process_started",
		"pid", p.Pid(),
		"command", language.CommandString(m.cfg.Profile),
	)

	if m.cfg.Callbacks.OnStart != nil {
		m.cfg.Callbacks.OnStart(p.Pid())
	}
	return nil
}

// handleExit runs on the process monitor goroutine. A process that exits
// while still current has crashed.
func (m *Manager) handleExit(p *Process, exitCode int, uptime time.Duration) {
	if m.current.Load() == p {
		m.setState(StateCrashed)
	}
	if m.cfg.Callbacks.OnExit != nil {
		m.cfg.Callbacks.OnExit(exitCode, uptime)
	}
}

// Terminate stops the current process, if any. It is safe to call more
// than once and in any state.
func (m *Manager) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.stopLocked()
	m.setState(StateTerminated)
	return err
}

func (m *Manager) stopLocked() error {
	p := m.current.Swap(nil)
	if p == nil {
		return nil
	}
	err := p.Terminate(m.cfg.TerminateTimeout)
	if err != nil {
		m.logger.Error("process_terminate_failed", "pid", p.Pid(), "error", err)
	}
	return err
}

// IsAlive is a non-blocking liveness check.
func (m *Manager) IsAlive() bool {
	p := m.current.Load()
	return p != nil && p.Alive()
}

// Write sends code to the current process. Without a live process it fails
// with ErrStdinWrite wrapping ErrNotRunning.
func (m *Manager) Write(code string) error {
	p := m.current.Load()
	if p == nil {
		return errNotRunning()
	}
	return p.Write(code)
}

// Process returns the current process, or nil.
func (m *Manager) Process() *Process {
	return m.current.Load()
}

// Pid returns the current process id, or 0.
func (m *Manager) Pid() int {
	if p := m.current.Load(); p != nil {
		return p.Pid()
	}
	return 0
}

// Uptime returns the current process uptime, or 0 if none is running.
func (m *Manager) Uptime() time.Duration {
	if p := m.current.Load(); p != nil && p.Alive() {
		return p.Uptime()
	}
	return 0
}

// Restarts returns the number of forced restarts.
func (m *Manager) Restarts() int {
	return int(m.restarts.Load())
}

// Starts returns the number of successful spawns.
func (m *Manager) Starts() int {
	return int(m.starts.Load())
}

// State returns the current process state.
func (m *Manager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// setState updates the state and calls the callback if registered.
func (m *Manager) setState(newState State) {
	m.stateMu.Lock()
	oldState := m.state
	m.state = newState
	m.stateMu.Unlock()

	if m.cfg.Callbacks.OnStateChange != nil && oldState != newState {
		m.cfg.Callbacks.OnStateChange(oldState, newState)
	}
}
