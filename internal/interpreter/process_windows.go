//go:build windows

package interpreter

import (
	"errors"
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// Interrupt is not implemented for child processes on Windows; the error
// makes callers fall back to a restart.
func interruptGroup(p *os.Process) error {
	return p.Signal(os.Interrupt)
}

// Windows has no SIGTERM; both steps kill the process.
func terminateGroup(p *os.Process) error {
	return p.Kill()
}

func killGroup(p *os.Process) error {
	return p.Kill()
}

func extractExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
