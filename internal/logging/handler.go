package logging

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a recorded line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per interpreter.
	MaxBufferedLines = 100
)

type recordedLine struct {
	stream string
	text   string
}

// Transcript records the traffic of one interpreter: code written to stdin
// and lines read back. It keeps a ring of recent lines for crash reports
// and, in debug mode, mirrors everything to a writer.
type Transcript struct {
	name   string
	logger *slog.Logger
	debug  bool

	wMu sync.Mutex
	w   io.Writer

	// Circular buffer for recent lines
	mu     sync.Mutex
	buffer []recordedLine
	bufIdx int
}

// NewTranscript creates a transcript for the named interpreter. When debug
// is true every write and line is also printed to w.
func NewTranscript(name string, logger *slog.Logger, w io.Writer, debug bool) *Transcript {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if w == nil {
		w = io.Discard
	}
	return &Transcript{
		name:   name,
		logger: logger,
		debug:  debug,
		w:      w,
		buffer: make([]recordedLine, MaxBufferedLines),
	}
}

// RecordCode notes a cell written to the interpreter.
func (t *Transcript) RecordCode(code string) {
	t.logger.Debug("code_written", "language", t.name, "bytes", len(code))
	if t.debug {
		t.printf("Running code:\n%s\n---\n", code)
	}
}

// RecordLine notes one raw line read from stream.
func (t *Transcript) RecordLine(stream, line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	t.mu.Lock()
	t.buffer[t.bufIdx] = recordedLine{stream: stream, text: line}
	t.bufIdx = (t.bufIdx + 1) % MaxBufferedLines
	t.mu.Unlock()

	if t.debug {
		t.logger.Debug("line_received", "language", t.name, "stream", stream, "line", line)
		t.printf("Received output line (%s):\n%s\n---\n", stream, line)
	}
}

func (t *Transcript) printf(format string, args ...any) {
	t.wMu.Lock()
	defer t.wMu.Unlock()
	fmt.Fprintf(t.w, format, args...)
}

// RecentLines returns up to n of the most recent lines, oldest first.
// An empty stream returns lines from every stream.
func (t *Transcript) RecentLines(n int, stream string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	// Walk backwards from the newest entry, then reverse.
	for i := 1; i <= MaxBufferedLines && len(lines) < n; i++ {
		idx := (t.bufIdx - i + MaxBufferedLines) % MaxBufferedLines
		rec := t.buffer[idx]
		if rec.stream == "" {
			break
		}
		if stream != "" && rec.stream != stream {
			continue
		}
		lines = append(lines, rec.text)
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines
}

// Reset clears the recent-line buffer.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.buffer {
		t.buffer[i] = recordedLine{}
	}
	t.bufIdx = 0
}
