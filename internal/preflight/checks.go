// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/randomizedcoder/go-interp-driver/internal/language"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

// Each interpreter holds three pipes (two fds each) plus its own files.
const (
	fdsPerInterpreter = 8
	fdOverhead        = 64
	procOverhead      = 16
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll checks.
type Options struct {
	// Active is the profile used for the first run. A missing executable
	// fails the preflight.
	Active language.Profile

	// Others are registered but optional; a missing executable only warns.
	Others []language.Profile

	// MetricsAddr is checked for bind permission when set.
	MetricsAddr string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, len(opts.Others)+4),
		Passed: true,
	}

	interpreters := len(opts.Others)
	if opts.Active != nil {
		interpreters++
		result.add(checkInterpreter(opts.Active, true))
	}
	for _, p := range opts.Others {
		result.add(checkInterpreter(p, false))
	}

	result.add(checkFileDescriptors(interpreters))
	result.add(checkProcessLimit(interpreters))

	if opts.MetricsAddr != "" {
		result.add(checkListen(opts.MetricsAddr))
	}
	return result
}

// checkInterpreter verifies the profile's executable is on PATH.
func checkInterpreter(p language.Profile, required bool) Check {
	name := "interpreter_" + p.Name()
	argv := p.StartCommand()
	if len(argv) == 0 {
		return Check{Name: name, Passed: !required, Warning: !required, Message: "empty start command"}
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return Check{
			Name:    name,
			Passed:  !required,
			Warning: !required,
			Message: fmt.Sprintf("%s not found: %v", argv[0], err),
		}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(interpreters int) Check {
	required := interpreters*fdsPerInterpreter + fdOverhead
	actual, ok := openFileLimit()
	if !ok {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: "unable to check on this platform",
		}
	}

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d interpreters)", actual, required, interpreters),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(interpreters int) Check {
	required := interpreters + procOverhead

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses reads the soft limit from /proc/self/limits content.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		var n int
		fmt.Sscanf(fields[2], "%d", &n)
		return n
	}
	return 0
}

// checkListen verifies the metrics address can be bound.
func checkListen(addr string) Check {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{
			Name:    "metrics_addr",
			Passed:  false,
			Message: fmt.Sprintf("cannot listen on %s: %v", addr, err),
		}
	}
	ln.Close()
	return Check{
		Name:    "metrics_addr",
		Passed:  true,
		Message: fmt.Sprintf("%s is free", addr),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch {
	case name == "file_descriptors":
		return "ulimit -n 4096 (or edit /etc/security/limits.conf)"
	case name == "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case name == "metrics_addr":
		return "pick a free port with -metrics, or stop the process holding it"
	case strings.HasPrefix(name, "interpreter_"):
		return "install " + strings.TrimPrefix(name, "interpreter_") +
			" or point languages." + strings.TrimPrefix(name, "interpreter_") + ".command at it in the config file"
	default:
		return "see documentation"
	}
}
