package tui

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-interp-driver/internal/interpreter"
)

// fakeRunner echoes each cell line back, reporting active lines.
type fakeRunner struct {
	mu     sync.Mutex
	langs  []string
	resets int
	block  bool
}

func (f *fakeRunner) Run(ctx context.Context, lang, code string) (iter.Seq[interpreter.Event], error) {
	if lang == "broken" {
		return nil, errors.New("unknown language broken")
	}
	f.mu.Lock()
	f.langs = append(f.langs, lang)
	f.mu.Unlock()

	return func(yield func(interpreter.Event) bool) {
		for i, line := range strings.Split(code, "\n") {
			if !yield(interpreter.ActiveLine(i + 1)) {
				return
			}
			if !yield(interpreter.Event{Kind: interpreter.KindOutput, Text: line, Stream: interpreter.StreamStdout}) {
				return
			}
		}
		if f.block {
			<-ctx.Done()
			yield(interpreter.Output("Execution cancelled."))
			return
		}
		yield(interpreter.ActiveLine(interpreter.NoLine))
	}, nil
}

func (f *fakeRunner) Languages() []string { return []string{"javascript", "python", "shell"} }

func (f *fakeRunner) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// drain feeds command results back into the model until the run ends.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for i := 0; cmd != nil; i++ {
		if i > 1000 {
			t.Fatal("run did not finish")
		}
		msg := cmd()
		m, cmd = update(m, msg)
		if _, ok := msg.(runDoneMsg); ok {
			break
		}
	}
	return m
}

func newModel(t *testing.T, f *fakeRunner, lang string) Model {
	t.Helper()
	m := New(Config{Runner: f, Language: lang})
	t.Cleanup(m.cancel)
	return m
}

func TestNew_Language(t *testing.T) {
	f := &fakeRunner{}

	if got := newModel(t, f, "python").Language(); got != "python" {
		t.Errorf("Language = %q, want python", got)
	}
	if got := newModel(t, f, "unknown").Language(); got != "javascript" {
		t.Errorf("Language = %q, want the first language", got)
	}
}

func TestUpdate_CycleLanguage(t *testing.T) {
	m := newModel(t, &fakeRunner{}, "python")

	m, _ = update(m, key(tea.KeyCtrlL))
	if m.Language() != "shell" {
		t.Errorf("after one cycle = %q, want shell", m.Language())
	}
	m, _ = update(m, key(tea.KeyCtrlL))
	if m.Language() != "javascript" {
		t.Errorf("cycle should wrap, got %q", m.Language())
	}
}

func TestUpdate_RunEmptyCellIsNoop(t *testing.T) {
	m := newModel(t, &fakeRunner{}, "python")

	m, cmd := update(m, key(tea.KeyCtrlR))
	if cmd != nil || m.Running() {
		t.Error("an empty cell should not start a run")
	}
}

func TestUpdate_RunStreamsOutput(t *testing.T) {
	f := &fakeRunner{}
	m := newModel(t, f, "python")
	m.editor.SetValue("first\nsecond")

	m, cmd := update(m, key(tea.KeyCtrlR))
	if !m.Running() {
		t.Fatal("ctrl+r should start a run")
	}
	if !strings.Contains(m.View(), "running") {
		t.Error("header should show the run in progress")
	}

	// First event is the active line.
	m, cmd = update(m, cmd())
	if m.ActiveLine() != 1 {
		t.Errorf("ActiveLine = %d, want 1", m.ActiveLine())
	}

	m = drain(t, m, cmd)

	if m.Running() {
		t.Error("run should be finished")
	}
	out := strings.Join(m.Output(), "\n")
	for _, want := range []string{"[1] python", "first", "second"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if m.ActiveLine() != interpreter.NoLine {
		t.Errorf("ActiveLine after run = %d", m.ActiveLine())
	}
	if len(f.langs) != 1 || f.langs[0] != "python" {
		t.Errorf("runs = %v", f.langs)
	}
}

func TestUpdate_RunErrorShown(t *testing.T) {
	f := &fakeRunner{}
	m := New(Config{Runner: f})
	defer m.cancel()
	m.languages = []string{"broken"}
	m.editor.SetValue("x")

	m, cmd := update(m, key(tea.KeyCtrlR))
	if cmd != nil || m.Running() {
		t.Error("a failed Run should not start streaming")
	}
	if out := strings.Join(m.Output(), "\n"); !strings.Contains(out, "unknown language broken") {
		t.Errorf("output = %q", out)
	}
}

func TestUpdate_CancelRun(t *testing.T) {
	m := newModel(t, &fakeRunner{block: true}, "shell")
	m.editor.SetValue("sleep 100")

	m, cmd := update(m, key(tea.KeyCtrlR))
	m, _ = update(m, key(tea.KeyCtrlX))
	m = drain(t, m, cmd)

	if m.Running() {
		t.Error("cancelled run should finish")
	}
	if out := strings.Join(m.Output(), "\n"); !strings.Contains(out, "Execution cancelled.") {
		t.Errorf("missing cancellation notice:\n%s", out)
	}
}

func TestUpdate_LanguageFixedWhileRunning(t *testing.T) {
	m := newModel(t, &fakeRunner{block: true}, "shell")
	m.editor.SetValue("sleep")

	m, cmd := update(m, key(tea.KeyCtrlR))
	m, _ = update(m, key(tea.KeyCtrlL))
	if m.Language() != "shell" {
		t.Errorf("language changed during a run: %q", m.Language())
	}

	m, _ = update(m, key(tea.KeyCtrlX))
	drain(t, m, cmd)
}

func TestUpdate_Reset(t *testing.T) {
	f := &fakeRunner{}
	m := newModel(t, f, "python")

	m, cmd := update(m, key(tea.KeyCtrlK))
	if cmd == nil {
		t.Fatal("ctrl+k should return a reset command")
	}
	m, _ = update(m, cmd())

	if f.resets != 1 {
		t.Errorf("resets = %d, want 1", f.resets)
	}
	if out := strings.Join(m.Output(), "\n"); !strings.Contains(out, "Interpreters reset.") {
		t.Errorf("output = %q", out)
	}
}

func TestUpdate_ResetFailure(t *testing.T) {
	m := newModel(t, &fakeRunner{}, "python")

	m, _ = update(m, resetDoneMsg{err: errors.New("terminate timed out")})
	if out := strings.Join(m.Output(), "\n"); !strings.Contains(out, "reset failed: terminate timed out") {
		t.Errorf("output = %q", out)
	}
}

func TestUpdate_StaleRunMessagesIgnored(t *testing.T) {
	m := newModel(t, &fakeRunner{}, "python")

	m, _ = update(m, eventMsg{run: 42, ev: interpreter.Output("late")})
	m, _ = update(m, runDoneMsg{run: 42})

	if len(m.Output()) != 0 {
		t.Errorf("stale event was rendered: %v", m.Output())
	}
}

func TestUpdate_Quit(t *testing.T) {
	for _, k := range []tea.KeyType{tea.KeyEsc, tea.KeyCtrlC} {
		m := newModel(t, &fakeRunner{}, "python")

		m, cmd := update(m, key(k))
		if cmd == nil {
			t.Fatalf("%v should quit", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%v did not return tea.Quit", k)
		}
		if m.View() != "" {
			t.Error("View should be empty after quitting")
		}
		if m.ctx.Err() == nil {
			t.Error("quitting should cancel the model context")
		}
	}
}

func TestUpdate_WindowSize(t *testing.T) {
	m := newModel(t, &fakeRunner{}, "python")

	m, _ = update(m, tea.WindowSizeMsg{Width: 120, Height: 40})

	if m.output.Width != 118 {
		t.Errorf("output width = %d, want 118", m.output.Width)
	}
	if m.output.Height <= m.editor.Height() {
		t.Errorf("output pane (%d) should be taller than the editor (%d)", m.output.Height, m.editor.Height())
	}
}

func TestView_Header(t *testing.T) {
	m := newModel(t, &fakeRunner{}, "javascript")

	v := m.View()
	for _, want := range []string{"go-interp-driver", "[javascript]", "idle", "runs: 0", "ctrl+r run"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestAppendLine_BoundsScrollback(t *testing.T) {
	m := newModel(t, &fakeRunner{}, "python")
	for i := 0; i < maxOutputLines+10; i++ {
		m.appendLine("x")
	}
	if len(m.Output()) != maxOutputLines {
		t.Errorf("scrollback = %d, want %d", len(m.Output()), maxOutputLines)
	}
}
