package interpreter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/randomizedcoder/go-interp-driver/internal/language"
	"github.com/randomizedcoder/go-interp-driver/internal/logging"
)

// ProcessConfig holds configuration for spawning one interpreter subprocess.
type ProcessConfig struct {
	Profile     language.Profile
	Queue       *Queue
	Logger      *slog.Logger
	Transcript  *logging.Transcript
	SettleDelay time.Duration

	// Dir and Env are passed to exec.Cmd unchanged.
	Dir string
	Env []string

	// OnLine is called for every raw line read (optional).
	OnLine func(stream Stream)

	// OnExit is called once the process and both readers are gone.
	OnExit func(p *Process, exitCode int, uptime time.Duration)

	// wrapStdin lets tests interpose on writes to the child.
	wrapStdin func(io.WriteCloser) io.WriteCloser
}

// Process is one live interpreter subprocess with its three pipes and the
// two stream readers bound to it.
type Process struct {
	cmd    *exec.Cmd
	logger *slog.Logger

	stdinMu sync.Mutex
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser

	readers   []*StreamReader
	startTime time.Time

	exited   chan struct{}
	exitCode int // valid once exited is closed

	closeStdin sync.Once
	closeReads sync.Once
}

// StartProcess spawns the profile's start command with stdin, stdout and
// stderr as pipes and starts one StreamReader per output pipe.
func StartProcess(cfg ProcessConfig) (*Process, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	argv := cfg.Profile.StartCommand()
	if len(argv) == 0 {
		return nil, &SpawnError{Argv: argv, Err: errors.New("empty start command")}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.Env
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Argv: argv, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Argv: argv, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Argv: argv, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Argv: argv, Err: err}
	}

	p := &Process{
		cmd:       cmd,
		logger:    cfg.Logger,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		startTime: time.Now(),
		exited:    make(chan struct{}),
	}
	if cfg.wrapStdin != nil {
		p.stdin = cfg.wrapStdin(stdin)
	}

	for _, src := range []struct {
		stream Stream
		r      io.Reader
	}{
		{StreamStdout, stdout},
		{StreamStderr, stderr},
	} {
		p.readers = append(p.readers, NewStreamReader(ReaderConfig{
			Stream:      src.stream,
			Reader:      src.r,
			Profile:     cfg.Profile,
			Queue:       cfg.Queue,
			Logger:      cfg.Logger,
			Transcript:  cfg.Transcript,
			SettleDelay: cfg.SettleDelay,
			OnLine:      cfg.OnLine,
		}))
	}

	var wg conc.WaitGroup
	for _, r := range p.readers {
		wg.Go(func() {
			if err := r.Run(); err != nil {
				p.abort(err)
			}
		})
	}

	go p.monitor(&wg, cfg.OnExit)

	return p, nil
}

// monitor waits for both readers to reach end of stream, then reaps the
// process. cmd.Wait closes the pipes, so it must come after the reads.
func (p *Process) monitor(wg *conc.WaitGroup, onExit func(*Process, int, time.Duration)) {
	if r := wg.WaitAndRecover(); r != nil {
		p.logger.Error("stream_reader_panic",
			"pid", p.Pid(),
			"panic", r.Value,
			"stack", string(r.Stack),
		)
		p.closeReadPipes()
	}

	waitErr := p.cmd.Wait()
	p.exitCode = extractExitCode(waitErr)
	uptime := time.Since(p.startTime)

	p.logger.Info("process_exited",
		"pid", p.Pid(),
		"exit_code", p.exitCode,
		"uptime", uptime.String(),
	)

	// Terminate returns only after the exit has been reported.
	if onExit != nil {
		onExit(p, p.exitCode, uptime)
	}
	close(p.exited)
}

// Write sends code followed by a newline to the child's stdin.
func (p *Process) Write(code string) error {
	if !p.Alive() {
		return errNotRunning()
	}

	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()

	if _, err := io.WriteString(p.stdin, code+"\n"); err != nil {
		return fmt.Errorf("%w: %w", ErrStdinWrite, err)
	}
	return nil
}

// Alive is a non-blocking liveness check.
func (p *Process) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ExitCode returns the exit code, or -1 while the process is running.
func (p *Process) ExitCode() int {
	if p.Alive() {
		return -1
	}
	return p.exitCode
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Uptime returns how long the process has been (or was) running.
func (p *Process) Uptime() time.Duration {
	return time.Since(p.startTime)
}

// ReaderStats returns the stats of the stdout and stderr readers.
func (p *Process) ReaderStats() (linesOut, linesErr int64) {
	_, linesOut, _ = p.readers[0].Stats()
	_, linesErr, _ = p.readers[1].Stats()
	return linesOut, linesErr
}

// Interrupt sends SIGINT to the process group. It does not wait.
func (p *Process) Interrupt() error {
	if !p.Alive() {
		return errNotRunning()
	}
	return interruptGroup(p.cmd.Process)
}

// abort kills the process after one of its readers failed. Without a
// reader the child would eventually block on a full pipe.
func (p *Process) abort(err error) {
	p.logger.Error("killing_process_after_read_failure", "pid", p.Pid(), "error", err)
	p.closeReadPipes()
	if kerr := killGroup(p.cmd.Process); kerr != nil {
		p.logger.Debug("kill_signal_failed", "pid", p.Pid(), "error", kerr)
	}
}

// Terminate stops the process and waits for it and both readers to exit.
//
// Stdin is closed first, then the group gets SIGTERM. If the process is
// still around after timeout the read pipes are closed and the group is
// killed. Terminating an exited process returns nil.
func (p *Process) Terminate(timeout time.Duration) error {
	p.closeStdin.Do(func() {
		p.stdinMu.Lock()
		p.stdin.Close()
		p.stdinMu.Unlock()
	})

	if !p.Alive() {
		return nil
	}

	if err := terminateGroup(p.cmd.Process); err != nil {
		p.logger.Debug("terminate_signal_failed", "pid", p.Pid(), "error", err)
	}

	select {
	case <-p.exited:
		return nil
	case <-time.After(timeout):
	}

	p.logger.Warn("force_killing_process", "pid", p.Pid())
	p.closeReadPipes()
	if err := killGroup(p.cmd.Process); err != nil {
		p.logger.Debug("kill_signal_failed", "pid", p.Pid(), "error", err)
	}

	select {
	case <-p.exited:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: pid %d", ErrTerminateTimeout, p.Pid())
	}
}

// closeReadPipes unblocks readers stuck on a pipe still held open by a
// grandchild.
func (p *Process) closeReadPipes() {
	p.closeReads.Do(func() {
		p.stdout.Close()
		p.stderr.Close()
	})
}
