// Package language provides the per-language hooks used to drive an
// interactive interpreter subprocess.
package language

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Profile is the set of hooks for one interpreter language.
// This interface keeps the execution driver language-agnostic.
// A Profile is immutable once constructed.
type Profile interface {
	// Name returns the language name used for lookup and logging.
	Name() string

	// StartCommand returns the executable followed by its arguments.
	StartCommand() []string

	// Preprocess rewrites a code cell into the text written to stdin.
	// The returned text must not end with a newline; the driver adds one.
	Preprocess(code string) (string, error)

	// PostprocessLine rewrites one line read from the subprocess.
	// Returning false discards the line entirely.
	PostprocessLine(line string) (string, bool)

	// DetectActiveLine reports the source line a marker line refers to.
	DetectActiveLine(line string) (int, bool)

	// DetectEndOfExecution reports whether line is the completion sentinel.
	DetectEndOfExecution(line string) bool
}

// InterruptDetector is implemented by profiles with their own notion of an
// interrupt message on stderr. Profiles without it use DefaultInterrupt.
type InterruptDetector interface {
	DetectInterrupt(line string) bool
}

const (
	// EndOfExecutionMarker is printed by instrumented code once a cell finishes.
	EndOfExecutionMarker = "##end_of_execution##"

	// InterruptMarker appears on stderr when the interpreter is interrupted.
	InterruptMarker = "KeyboardInterrupt"
)

// ErrInvalidCode is returned by Preprocess for code that cannot be sent.
var ErrInvalidCode = errors.New("invalid code")

// A marker may follow output that did not end with a newline, so both
// markers are matched at the end of a line.
var activeLineRe = regexp.MustCompile(`##active_line ([1-9][0-9]*)##$`)

// ActiveLineMarker returns the marker line announcing source line n.
func ActiveLineMarker(n int) string {
	return "##active_line " + strconv.Itoa(n) + "##"
}

// ParseActiveLine extracts the line number from a line ending in
// "##active_line N##". Line numbers start at 1. Trailing whitespace is
// ignored.
func ParseActiveLine(line string) (int, bool) {
	m := activeLineRe.FindStringSubmatch(strings.TrimRight(line, " \t\r"))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsEndOfExecution reports whether line ends with the end-of-execution
// marker.
func IsEndOfExecution(line string) bool {
	return strings.HasSuffix(strings.TrimRight(line, " \t\r"), EndOfExecutionMarker)
}

// TextBeforeMarker returns the output printed on the same line before a
// trailing active-line or end-of-execution marker. A line without a
// trailing marker is returned unchanged.
func TextBeforeMarker(line string) string {
	trimmed := strings.TrimRight(line, " \t\r")
	if loc := activeLineRe.FindStringIndex(trimmed); loc != nil {
		return trimmed[:loc[0]]
	}
	if strings.HasSuffix(trimmed, EndOfExecutionMarker) {
		return strings.TrimSuffix(trimmed, EndOfExecutionMarker)
	}
	return line
}

// DefaultInterrupt is the interrupt check used when a profile has none.
func DefaultInterrupt(line string) bool {
	return strings.Contains(line, InterruptMarker)
}

// DetectInterrupt applies the profile's interrupt check, falling back to
// DefaultInterrupt.
func DetectInterrupt(p Profile, line string) bool {
	if d, ok := p.(InterruptDetector); ok {
		return d.DetectInterrupt(line)
	}
	return DefaultInterrupt(line)
}

// CommandString returns the start command joined for display.
func CommandString(p Profile) string {
	return strings.Join(p.StartCommand(), " ")
}

// markers implements the marker detection shared by the built-in profiles.
type markers struct{}

func (markers) DetectActiveLine(line string) (int, bool) {
	return ParseActiveLine(line)
}

func (markers) DetectEndOfExecution(line string) bool {
	return IsEndOfExecution(line)
}

// validate rejects code the built-in profiles cannot quote safely.
func validate(code string) error {
	if !utf8.ValidString(code) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidCode)
	}
	if strings.ContainsRune(code, 0) {
		return fmt.Errorf("%w: contains NUL byte", ErrInvalidCode)
	}
	return nil
}

// splitLines normalises line endings and splits code into lines.
func splitLines(code string) []string {
	code = strings.ReplaceAll(code, "\r\n", "\n")
	code = strings.TrimRight(code, "\n")
	return strings.Split(code, "\n")
}
