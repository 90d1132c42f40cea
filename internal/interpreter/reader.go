package interpreter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-interp-driver/internal/language"
	"github.com/randomizedcoder/go-interp-driver/internal/logging"
)

// classify turns one raw line into zero or more events.
//
// Order of checks: discard, active line, end of execution, stderr
// interrupt, plain output. Text printed before a marker on the same line
// is yielded as output first. A sentinel also clears the active line and
// ends the cell.
func classify(p language.Profile, stream Stream, raw string) []Event {
	line, keep := p.PostprocessLine(strings.TrimRight(raw, "\r"))
	if !keep {
		return nil
	}

	if n, ok := p.DetectActiveLine(line); ok {
		return append(leadingOutput(line, stream),
			Event{Kind: KindActiveLine, Line: n, Stream: stream},
		)
	}

	if p.DetectEndOfExecution(line) {
		return append(leadingOutput(line, stream),
			Event{Kind: KindActiveLine, Line: NoLine, Stream: stream},
			Event{Kind: KindDone, Stream: stream},
		)
	}

	if stream == StreamStderr && language.DetectInterrupt(p, line) {
		return []Event{
			{Kind: KindOutput, Text: line, Stream: stream},
			{Kind: KindInterrupted, Stream: stream},
		}
	}

	return []Event{{Kind: KindOutput, Text: line, Stream: stream}}
}

// leadingOutput returns the text before a trailing marker as an output
// event. Profiles may treat a line without a marker as the sentinel, in
// which case the whole line is output.
func leadingOutput(line string, stream Stream) []Event {
	text := language.TextBeforeMarker(line)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []Event{{Kind: KindOutput, Text: text, Stream: stream}}
}

// ReaderConfig holds configuration for a StreamReader.
type ReaderConfig struct {
	Stream     Stream
	Reader     io.Reader
	Profile    language.Profile
	Queue      *Queue
	Logger     *slog.Logger
	Transcript *logging.Transcript

	// SettleDelay is slept before pushing Done or Interrupted so that last
	// writes to the other stream can land first.
	SettleDelay time.Duration

	// OnLine is called for every raw line read (optional).
	OnLine func(stream Stream)
}

// StreamReader reads one pipe of the subprocess line by line, classifies each
// line and pushes the resulting events onto the shared queue.
type StreamReader struct {
	cfg ReaderConfig

	// Stats (atomic for thread-safety)
	bytesRead atomic.Int64
	linesRead atomic.Int64
	failed    atomic.Bool
}

// NewStreamReader creates a reader. Run must be called to start it.
func NewStreamReader(cfg ReaderConfig) *StreamReader {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &StreamReader{cfg: cfg}
}

// Reader buffer sizes. A line longer than maxLineSize is split into several
// output lines instead of failing the reader.
const (
	readBufferSize = 64 * 1024
	maxLineSize    = 1024 * 1024
)

// Run reads until end of stream or a read error. A read error is logged and
// returned; the reader never restarts itself.
func (r *StreamReader) Run() error {
	br := bufio.NewReaderSize(r.cfg.Reader, readBufferSize)
	var line []byte

	for {
		chunk, err := br.ReadSlice('\n')
		line = append(line, chunk...)

		if errors.Is(err, bufio.ErrBufferFull) {
			if len(line) >= maxLineSize {
				r.handleLine(string(line))
				line = line[:0]
			}
			continue
		}

		if len(line) > 0 {
			r.handleLine(strings.TrimSuffix(string(line), "\n"))
			line = line[:0]
		}

		if err != nil {
			return r.finish(err)
		}
	}
}

func (r *StreamReader) handleLine(raw string) {
	r.bytesRead.Add(int64(len(raw) + 1)) // +1 for newline
	r.linesRead.Add(1)

	if r.cfg.OnLine != nil {
		r.cfg.OnLine(r.cfg.Stream)
	}
	if r.cfg.Transcript != nil {
		r.cfg.Transcript.RecordLine(r.cfg.Stream.String(), raw)
	}

	for _, ev := range classify(r.cfg.Profile, r.cfg.Stream, raw) {
		if ev.IsTerminal() && r.cfg.SettleDelay > 0 {
			time.Sleep(r.cfg.SettleDelay)
		}
		r.cfg.Queue.Push(ev)
	}
}

func (r *StreamReader) finish(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		r.cfg.Logger.Debug("stream_closed",
			"stream", r.cfg.Stream.String(),
			"lines_read", r.linesRead.Load(),
		)
		return nil
	}

	r.failed.Store(true)
	r.cfg.Logger.Error("stream_read_failed",
		"stream", r.cfg.Stream.String(),
		"lines_read", r.linesRead.Load(),
		"error", err,
	)
	return fmt.Errorf("%w: %s: %w", ErrStreamRead, r.cfg.Stream, err)
}

// Stream returns which pipe this reader consumes.
func (r *StreamReader) Stream() Stream {
	return r.cfg.Stream
}

// Stats returns (bytesRead, linesRead, healthy).
// healthy is false once the reader stopped on a read error.
func (r *StreamReader) Stats() (bytesRead int64, linesRead int64, healthy bool) {
	return r.bytesRead.Load(), r.linesRead.Load(), !r.failed.Load()
}
