package language

import (
	"errors"
	"strings"
)

// GenericConfig describes an interpreter defined entirely by configuration.
type GenericConfig struct {
	// Name is the language name.
	Name string

	// Command is the executable followed by its arguments.
	Command []string

	// EndStatement is appended to every cell. It must make the interpreter
	// print EndOfExecutionMarker on its own line, e.g. `echo "##end_of_execution##"`.
	EndStatement string

	// InterruptPattern overrides the stderr interrupt substring.
	InterruptPattern string
}

// Generic is a profile without active-line instrumentation.
type Generic struct {
	markers
	config GenericConfig
}

// NewGeneric creates a profile from configuration.
func NewGeneric(cfg GenericConfig) (*Generic, error) {
	if cfg.Name == "" {
		return nil, errors.New("generic language requires a name")
	}
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, errors.New("generic language " + cfg.Name + " requires a command")
	}
	return &Generic{config: cfg}, nil
}

// Name returns the configured name.
func (g *Generic) Name() string {
	return g.config.Name
}

// StartCommand returns a copy of the configured command.
func (g *Generic) StartCommand() []string {
	return append([]string(nil), g.config.Command...)
}

// Preprocess appends the end statement, if any.
func (g *Generic) Preprocess(code string) (string, error) {
	if err := validate(code); err != nil {
		return "", err
	}
	code = strings.TrimRight(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	if g.config.EndStatement == "" {
		return code, nil
	}
	return code + "\n" + g.config.EndStatement, nil
}

// PostprocessLine passes lines through unchanged.
func (g *Generic) PostprocessLine(line string) (string, bool) {
	return line, true
}

// DetectInterrupt uses the configured pattern when set.
func (g *Generic) DetectInterrupt(line string) bool {
	if g.config.InterruptPattern == "" {
		return DefaultInterrupt(line)
	}
	return strings.Contains(line, g.config.InterruptPattern)
}

var (
	_ Profile           = (*Generic)(nil)
	_ InterruptDetector = (*Generic)(nil)
)
