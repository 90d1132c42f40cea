package interpreter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProcessSpawn means the interpreter subprocess could not be launched.
	ErrProcessSpawn = errors.New("process spawn failed")

	// ErrStdinWrite means code could not be written to the subprocess.
	// It drives the retry/restart loop in Run.
	ErrStdinWrite = errors.New("stdin write failed")

	// ErrStreamRead means a stream reader stopped on a read error.
	ErrStreamRead = errors.New("stream read failed")

	// ErrMaxRetries means every write attempt of one run failed.
	ErrMaxRetries = errors.New("maximum retries reached")

	// ErrNotRunning means there is no live subprocess to write to.
	ErrNotRunning = errors.New("process not running")

	// ErrTerminateTimeout means the subprocess or its readers did not exit
	// within the terminate timeout, even after SIGKILL.
	ErrTerminateTimeout = errors.New("process did not exit in time")
)

// SpawnError describes a failed launch.
type SpawnError struct {
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrProcessSpawn, strings.Join(e.Argv, " "), e.Err)
}

// Unwrap lets errors.Is match both ErrProcessSpawn and the cause.
func (e *SpawnError) Unwrap() []error {
	return []error{ErrProcessSpawn, e.Err}
}

func errNotRunning() error {
	return fmt.Errorf("%w: %w", ErrStdinWrite, ErrNotRunning)
}
