package language

import (
	"encoding/json"
	"fmt"
	"strings"
)

// pythonBootstrap is executed once when the interpreter starts. It defines
// the runner that every preprocessed cell calls.
const pythonBootstrap = `import sys as __oi_sys, traceback as __oi_tb
__oi_sys.ps1 = __oi_sys.ps2 = ""
def __oi_run(src):
    def trace(frame, event, arg):
        if frame.f_code.co_filename == "<cell>" and event == "line":
            print("##active_line %d##" % frame.f_lineno, flush=True)
        return trace
    try:
        code = compile(src, "<cell>", "exec")
        __oi_sys.settrace(trace)
        try:
            exec(code, globals())
        finally:
            __oi_sys.settrace(None)
    except KeyboardInterrupt:
        print("KeyboardInterrupt", file=__oi_sys.stderr, flush=True)
    except BaseException:
        __oi_tb.print_exc()
    finally:
        __oi_sys.stdout.flush()
        __oi_sys.stderr.flush()
        print("##end_of_execution##", flush=True)
`

// PythonConfig holds configuration for the Python profile.
type PythonConfig struct {
	// BinaryPath is the path to the Python interpreter.
	BinaryPath string

	// ExtraArgs are appended before the bootstrap arguments.
	ExtraArgs []string
}

// DefaultPythonConfig returns a PythonConfig with sensible defaults.
func DefaultPythonConfig() *PythonConfig {
	return &PythonConfig{
		BinaryPath: "python3",
	}
}

// Python drives an interactive CPython interpreter.
type Python struct {
	markers
	config *PythonConfig
}

// NewPython creates a Python profile with the given configuration.
func NewPython(cfg *PythonConfig) *Python {
	if cfg == nil {
		cfg = DefaultPythonConfig()
	}
	return &Python{config: cfg}
}

// Name returns "python".
func (p *Python) Name() string {
	return "python"
}

// StartCommand runs the interpreter interactively with unbuffered output.
// The bootstrap empties the prompts, so nothing but cell output is printed.
func (p *Python) StartCommand() []string {
	args := []string{p.config.BinaryPath}
	args = append(args, p.config.ExtraArgs...)
	return append(args, "-i", "-q", "-u", "-c", pythonBootstrap)
}

// Preprocess turns the cell into a single runner call so the interactive
// prompt never sees an incomplete block.
func (p *Python) Preprocess(code string) (string, error) {
	if err := validate(code); err != nil {
		return "", err
	}
	quoted, err := json.Marshal(strings.ReplaceAll(code, "\r\n", "\n"))
	if err != nil {
		return "", fmt.Errorf("quote python cell: %w", err)
	}
	return "__oi_run(" + string(quoted) + ")", nil
}

// PostprocessLine passes output through unchanged. Blank lines are kept.
func (p *Python) PostprocessLine(line string) (string, bool) {
	return line, true
}

var _ Profile = (*Python)(nil)
