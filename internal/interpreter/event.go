package interpreter

import "fmt"

// EventKind identifies the variant of an Event.
type EventKind int

const (
	// KindOutput carries one line of plain output in Text.
	KindOutput EventKind = iota

	// KindActiveLine carries the executing source line in Line.
	// Line 0 means no line is active any more.
	KindActiveLine

	// KindDone marks the end of a cell. It is never yielded by Run.
	KindDone

	// KindInterrupted marks an interrupted cell. It is never yielded by Run.
	KindInterrupted
)

// String returns a human-readable name for the kind.
func (k EventKind) String() string {
	switch k {
	case KindOutput:
		return "output"
	case KindActiveLine:
		return "active_line"
	case KindDone:
		return "done"
	case KindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// NoLine is the Line value of an ActiveLine event that clears the active line.
const NoLine = 0

// Event is one classified item of interpreter output.
type Event struct {
	Kind   EventKind
	Line   int
	Text   string
	Stream Stream
}

// Output returns an output event not tied to a stream.
func Output(text string) Event {
	return Event{Kind: KindOutput, Text: text, Stream: StreamInternal}
}

// Outputf formats an output event.
func Outputf(format string, args ...any) Event {
	return Output(fmt.Sprintf(format, args...))
}

// ActiveLine returns an active-line event. Use NoLine to clear it.
func ActiveLine(n int) Event {
	return Event{Kind: KindActiveLine, Line: n}
}

// IsTerminal reports whether the event ends a cell.
func (e Event) IsTerminal() bool {
	return e.Kind == KindDone || e.Kind == KindInterrupted
}

// HasLine reports whether an active-line event names a line.
func (e Event) HasLine() bool {
	return e.Kind == KindActiveLine && e.Line != NoLine
}

// String formats the event for debugging.
func (e Event) String() string {
	switch e.Kind {
	case KindOutput:
		return fmt.Sprintf("output(%q)", e.Text)
	case KindActiveLine:
		if e.Line == NoLine {
			return "active_line(none)"
		}
		return fmt.Sprintf("active_line(%d)", e.Line)
	default:
		return e.Kind.String()
	}
}

// Stream identifies where a line came from.
type Stream int

const (
	// StreamInternal marks events generated by the driver itself.
	StreamInternal Stream = iota
	StreamStdout
	StreamStderr
)

// String returns "stdout", "stderr" or "internal".
func (s Stream) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return "internal"
	}
}
