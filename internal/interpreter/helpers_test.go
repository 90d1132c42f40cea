package interpreter

import (
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randomizedcoder/go-interp-driver/internal/language"
)

// testProfile is a language.Profile assembled from functions.
type testProfile struct {
	argv      []string
	prep      func(string) (string, error)
	post      func(string) (string, bool)
	end       func(string) bool
	interrupt func(string) bool
}

func newTestProfile(argv ...string) *testProfile {
	return &testProfile{argv: argv}
}

func (p *testProfile) Name() string           { return "test" }
func (p *testProfile) StartCommand() []string { return p.argv }

func (p *testProfile) Preprocess(code string) (string, error) {
	if p.prep != nil {
		return p.prep(code)
	}
	return code, nil
}

func (p *testProfile) PostprocessLine(line string) (string, bool) {
	if p.post != nil {
		return p.post(line)
	}
	return line, true
}

func (p *testProfile) DetectActiveLine(line string) (int, bool) {
	return language.ParseActiveLine(line)
}

func (p *testProfile) DetectEndOfExecution(line string) bool {
	if p.end != nil {
		return p.end(line)
	}
	return language.IsEndOfExecution(line)
}

func (p *testProfile) DetectInterrupt(line string) bool {
	if p.interrupt != nil {
		return p.interrupt(line)
	}
	return language.DefaultInterrupt(line)
}

// echoProfile runs cat and treats every echoed line as the sentinel.
func echoProfile() *testProfile {
	p := newTestProfile("cat")
	p.end = func(string) bool { return true }
	return p
}

// shProfile runs script under sh -c; lines are never a sentinel unless they
// carry the end marker.
func shProfile(script string) *testProfile {
	return newTestProfile("sh", "-c", script)
}

func requireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not found in PATH", name)
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns fast timings for profile.
func testConfig(p language.Profile) Config {
	return Config{
		Profile:          p,
		Logger:           newTestLogger(),
		MaxRetries:       3,
		PollInterval:     10 * time.Millisecond,
		SettleTimeout:    150 * time.Millisecond,
		SettleDelay:      10 * time.Millisecond,
		TerminateTimeout: 2 * time.Second,
		DebugWriter:      io.Discard,
	}
}

// newTestInterpreter builds an interpreter and terminates it at cleanup.
func newTestInterpreter(t *testing.T, cfg Config) *Interpreter {
	t.Helper()
	interp := New(cfg)
	t.Cleanup(func() { interp.Terminate() })
	return interp
}

// failingWriter fails the first failFirst writes, or every write when
// failFirst is negative.
type failingWriter struct {
	io.WriteCloser
	failFirst int64
	writes    *atomic.Int64
}

var errInjected = errors.New("broken pipe (injected)")

func (w *failingWriter) Write(b []byte) (int, error) {
	n := w.writes.Add(1)
	if w.failFirst < 0 || n <= w.failFirst {
		return 0, errInjected
	}
	return w.WriteCloser.Write(b)
}

func injectWriteFailures(interp *Interpreter, failFirst int64) *atomic.Int64 {
	writes := &atomic.Int64{}
	interp.manager.wrapStdin = func(wc io.WriteCloser) io.WriteCloser {
		return &failingWriter{WriteCloser: wc, failFirst: failFirst, writes: writes}
	}
	return writes
}

// resultRecorder captures OnRunComplete results.
type resultRecorder struct {
	mu      sync.Mutex
	results []RunResult
}

func (r *resultRecorder) record(res RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *resultRecorder) last(t *testing.T) RunResult {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results) == 0 {
		t.Fatal("no run result recorded")
	}
	return r.results[len(r.results)-1]
}

func collect(seq func(func(Event) bool)) []Event {
	var events []Event
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

func texts(events []Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == KindOutput {
			out = append(out, ev.Text)
		}
	}
	return out
}

// processOutput returns output events that came from the subprocess.
func processOutput(events []Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == KindOutput && ev.Stream != StreamInternal {
			out = append(out, ev.Text)
		}
	}
	return out
}

func count(events []Event, text string) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == KindOutput && ev.Text == text {
			n++
		}
	}
	return n
}
