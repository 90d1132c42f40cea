//go:build !windows

package interpreter

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so that signals
// reach anything it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the process group of p, falling back to p alone.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if pgid, err := syscall.Getpgid(p.Pid); err == nil {
		return syscall.Kill(-pgid, sig)
	}
	return p.Signal(sig)
}

func interruptGroup(p *os.Process) error {
	return signalGroup(p, syscall.SIGINT)
}

func terminateGroup(p *os.Process) error {
	return signalGroup(p, syscall.SIGTERM)
}

func killGroup(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
