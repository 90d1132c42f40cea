package interpreter

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-interp-driver/internal/language"
	"github.com/randomizedcoder/go-interp-driver/internal/logging"
)

func TestClassify(t *testing.T) {
	p := newTestProfile("cat")
	p.post = func(line string) (string, bool) {
		if line == "discard-me" {
			return "", false
		}
		return strings.TrimPrefix(line, ">>> "), true
	}

	tests := []struct {
		name   string
		stream Stream
		line   string
		want   []Event
	}{
		{
			name:   "active_line",
			stream: StreamStdout,
			line:   "##active_line 7##",
			want:   []Event{{Kind: KindActiveLine, Line: 7, Stream: StreamStdout}},
		},
		{
			name:   "end_of_execution",
			stream: StreamStdout,
			line:   language.EndOfExecutionMarker,
			want: []Event{
				{Kind: KindActiveLine, Line: NoLine, Stream: StreamStdout},
				{Kind: KindDone, Stream: StreamStdout},
			},
		},
		{
			name:   "active_line_after_partial_output",
			stream: StreamStdout,
			line:   "abc##active_line 2##",
			want: []Event{
				{Kind: KindOutput, Text: "abc", Stream: StreamStdout},
				{Kind: KindActiveLine, Line: 2, Stream: StreamStdout},
			},
		},
		{
			name:   "end_after_partial_output",
			stream: StreamStdout,
			line:   "abc" + language.EndOfExecutionMarker,
			want: []Event{
				{Kind: KindOutput, Text: "abc", Stream: StreamStdout},
				{Kind: KindActiveLine, Line: NoLine, Stream: StreamStdout},
				{Kind: KindDone, Stream: StreamStdout},
			},
		},
		{
			name:   "active_line_zero_is_output",
			stream: StreamStdout,
			line:   "##active_line 0##",
			want:   []Event{{Kind: KindOutput, Text: "##active_line 0##", Stream: StreamStdout}},
		},
		{
			name:   "interrupt_on_stderr",
			stream: StreamStderr,
			line:   "KeyboardInterrupt",
			want: []Event{
				{Kind: KindOutput, Text: "KeyboardInterrupt", Stream: StreamStderr},
				{Kind: KindInterrupted, Stream: StreamStderr},
			},
		},
		{
			name:   "interrupt_text_on_stdout_is_output",
			stream: StreamStdout,
			line:   "KeyboardInterrupt",
			want:   []Event{{Kind: KindOutput, Text: "KeyboardInterrupt", Stream: StreamStdout}},
		},
		{
			name:   "postprocessed",
			stream: StreamStdout,
			line:   ">>> 42\r",
			want:   []Event{{Kind: KindOutput, Text: "42", Stream: StreamStdout}},
		},
		{
			name:   "discarded",
			stream: StreamStdout,
			line:   "discard-me",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(p, tt.stream, tt.line)
			if len(got) != len(tt.want) {
				t.Fatalf("classify(%q) = %v, want %v", tt.line, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("event %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClassify_SentinelWithText(t *testing.T) {
	p := newTestProfile("cat")
	p.end = func(string) bool { return true }

	got := classify(p, StreamStdout, "x")
	if len(got) != 3 {
		t.Fatalf("got %v", got)
	}
	if got[0].Kind != KindOutput || got[0].Text != "x" {
		t.Errorf("first event = %v, want output(x)", got[0])
	}
	if got[1].HasLine() || got[1].Kind != KindActiveLine {
		t.Errorf("second event = %v, want active_line(none)", got[1])
	}
	if got[2].Kind != KindDone {
		t.Errorf("third event = %v, want done", got[2])
	}
}

func TestStreamReader_ActiveLineOnly(t *testing.T) {
	q := NewQueue()
	r := NewStreamReader(ReaderConfig{
		Stream:  StreamStdout,
		Reader:  strings.NewReader("##active_line 7##\n"),
		Profile: newTestProfile("cat"),
		Queue:   q,
	})

	if err := r.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	ev, ok := q.TryPop()
	if !ok || ev.Kind != KindActiveLine || ev.Line != 7 {
		t.Fatalf("got %v, want active_line(7)", ev)
	}
	if ev, ok := q.TryPop(); ok {
		t.Errorf("unexpected extra event %v", ev)
	}
}

func TestStreamReader_RecordsAndCounts(t *testing.T) {
	q := NewQueue()
	tr := logging.NewTranscript("test", nil, nil, false)
	var seen []Stream

	r := NewStreamReader(ReaderConfig{
		Stream:      StreamStderr,
		Reader:      strings.NewReader("one\ntwo\n" + language.EndOfExecutionMarker + "\n"),
		Profile:     newTestProfile("cat"),
		Queue:       q,
		Transcript:  tr,
		SettleDelay: 10 * time.Millisecond,
		OnLine:      func(s Stream) { seen = append(seen, s) },
	})

	start := time.Now()
	if err := r.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("settle delay not applied before done")
	}

	bytesRead, lines, healthy := r.Stats()
	if lines != 3 || !healthy {
		t.Errorf("Stats() lines=%d healthy=%v", lines, healthy)
	}
	if bytesRead == 0 {
		t.Error("bytesRead should be non-zero")
	}
	if len(seen) != 3 || seen[0] != StreamStderr {
		t.Errorf("OnLine calls = %v", seen)
	}
	if got := tr.RecentLines(10, "stderr"); len(got) != 3 {
		t.Errorf("transcript recorded %v", got)
	}
	// one, two, active_line(none), done
	if q.Len() != 4 {
		t.Errorf("queue length = %d, want 4", q.Len())
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestStreamReader_ReadError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"closed_pipe", io.ErrClosedPipe, false},
		{"other_error", errors.New("disk on fire"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStreamReader(ReaderConfig{
				Stream:  StreamStdout,
				Reader:  failingReader{tt.err},
				Profile: newTestProfile("cat"),
				Queue:   NewQueue(),
			})
			err := r.Run()
			if tt.wantErr {
				if !errors.Is(err, ErrStreamRead) {
					t.Errorf("Run() error = %v, want ErrStreamRead", err)
				}
				if _, _, healthy := r.Stats(); healthy {
					t.Error("reader should report unhealthy")
				}
			} else if err != nil {
				t.Errorf("Run() error = %v, want nil", err)
			}
		})
	}
}

func TestStreamReader_LongLine(t *testing.T) {
	q := NewQueue()
	long := strings.Repeat("x", 2*maxLineSize+100)
	r := NewStreamReader(ReaderConfig{
		Stream:  StreamStdout,
		Reader:  strings.NewReader(long + "\n" + "tail" + language.EndOfExecutionMarker),
		Profile: newTestProfile("cat"),
		Queue:   q,
	})

	if err := r.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var b strings.Builder
	var outputs int
	var sawDone bool
	for {
		ev, ok := q.TryPop()
		if !ok {
			break
		}
		switch ev.Kind {
		case KindOutput:
			outputs++
			if len(ev.Text) > maxLineSize {
				t.Errorf("output line of %d bytes exceeds the limit", len(ev.Text))
			}
			if ev.Text != "tail" {
				b.WriteString(ev.Text)
			}
		case KindDone:
			sawDone = true
		}
	}

	if b.String() != long {
		t.Errorf("reassembled %d bytes, want %d", b.Len(), len(long))
	}
	if outputs != 4 {
		t.Errorf("outputs = %d, want 3 chunks plus tail", outputs)
	}
	if !sawDone {
		t.Error("sentinel after a long line and without a newline was not seen")
	}
}
