// Package tui provides a terminal front end for running cells.
//
// The TUI uses Bubble Tea for the application framework, Bubbles for the
// code editor and output pane, and Lipgloss for styling.
package tui

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-interp-driver/internal/interpreter"
)

// maxOutputLines bounds the output pane's scrollback.
const maxOutputLines = 5000

// =============================================================================
// Messages
// =============================================================================

// eventMsg carries one event of the running cell.
type eventMsg struct {
	run int
	ev  interpreter.Event
}

// runDoneMsg is sent when the running cell's event stream ends.
type runDoneMsg struct {
	run int
}

// resetDoneMsg reports the result of resetting the interpreters.
type resetDoneMsg struct {
	err error
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Runner executes cells. *session.Session implements it.
type Runner interface {
	Run(ctx context.Context, lang, code string) (iter.Seq[interpreter.Event], error)
	Languages() []string
	Reset() error
}

// Config holds TUI configuration.
type Config struct {
	Runner   Runner
	Language string
}

// Model represents the TUI state.
type Model struct {
	runner    Runner
	languages []string
	langIdx   int

	editor textarea.Model
	output viewport.Model
	lines  []string

	// Current run
	running    bool
	run        int
	activeLine int
	events     <-chan interpreter.Event
	cancelRun  context.CancelFunc

	// ctx is cancelled when the model quits.
	ctx    context.Context
	cancel context.CancelFunc

	status   string
	width    int
	height   int
	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	ctx, cancel := context.WithCancel(context.Background())

	editor := textarea.New()
	editor.Placeholder = "Type code, ctrl+r to run"
	editor.ShowLineNumbers = true
	editor.CharLimit = 0
	editor.Focus()

	m := Model{
		runner:    cfg.Runner,
		languages: cfg.Runner.Languages(),
		editor:    editor,
		output:    viewport.New(80, 10),
		ctx:       ctx,
		cancel:    cancel,
		width:     80,
		height:    24,
	}
	for i, name := range m.languages {
		if name == cfg.Language {
			m.langIdx = i
		}
	}
	m.layout()
	return m
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m.quit()
		case "ctrl+r":
			return m.startRun()
		case "ctrl+x":
			if m.running && m.cancelRun != nil {
				m.cancelRun()
				m.status = "cancelling"
			}
			return m, nil
		case "ctrl+l":
			if !m.running && len(m.languages) > 0 {
				m.langIdx = (m.langIdx + 1) % len(m.languages)
				m.status = "language " + m.Language()
			}
			return m, nil
		case "ctrl+k":
			if m.cancelRun != nil {
				m.cancelRun()
			}
			m.status = "resetting"
			runner := m.runner
			return m, func() tea.Msg { return resetDoneMsg{err: runner.Reset()} }
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.output, cmd = m.output.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case eventMsg:
		if msg.run != m.run {
			return m, nil
		}
		m.handleEvent(msg.ev)
		return m, m.waitForEvent()

	case runDoneMsg:
		if msg.run == m.run {
			m.running = false
			m.activeLine = interpreter.NoLine
			m.events = nil
			if m.cancelRun != nil {
				m.cancelRun()
				m.cancelRun = nil
			}
			m.status = "done"
		}
		return m, nil

	case resetDoneMsg:
		if msg.err != nil {
			m.appendLine(errorStyle.Render("reset failed: " + msg.err.Error()))
			m.status = "reset failed"
		} else {
			m.appendLine(noticeStyle.Render("Interpreters reset."))
			m.status = "reset"
		}
		return m, nil

	case QuitMsg:
		return m.quit()
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(focusedPaneStyle.Render(m.editor.View()))
	b.WriteString("\n")
	b.WriteString(paneStyle.Render(m.output.View()))
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("ctrl+r run • ctrl+x cancel • ctrl+l language • ctrl+k reset • pgup/pgdn scroll • esc quit"))
	return b.String()
}

func (m Model) renderHeader() string {
	state := statusIdle.Render("● idle")
	if m.running {
		state = statusRunning.Render("● running")
		if m.activeLine != interpreter.NoLine {
			state += " " + activeLineStyle.Render(fmt.Sprintf("line %d", m.activeLine))
		}
	}

	parts := []string{
		titleStyle.Render("go-interp-driver"),
		languageStyle.Render("[" + m.Language() + "]"),
		state,
		mutedStyle.Render(fmt.Sprintf("runs: %d", m.run)),
	}
	if m.status != "" {
		parts = append(parts, mutedStyle.Render(m.status))
	}
	return strings.Join(parts, "  ")
}

// =============================================================================
// Runs
// =============================================================================

func (m Model) startRun() (tea.Model, tea.Cmd) {
	code := m.editor.Value()
	if m.running || strings.TrimSpace(code) == "" {
		return m, nil
	}

	runCtx, cancel := context.WithCancel(m.ctx)
	seq, err := m.runner.Run(runCtx, m.Language(), code)
	if err != nil {
		cancel()
		m.appendLine(errorStyle.Render("error: " + err.Error()))
		return m, nil
	}

	events := make(chan interpreter.Event, 64)
	quit := m.ctx
	go func() {
		defer close(events)
		for ev := range seq {
			select {
			case events <- ev:
			case <-quit.Done():
				return
			}
		}
	}()

	m.run++
	m.running = true
	m.activeLine = interpreter.NoLine
	m.events = events
	m.cancelRun = cancel
	m.status = ""
	m.appendLine(languageStyle.Render(fmt.Sprintf("[%d] %s", m.run, m.Language())))
	return m, m.waitForEvent()
}

// waitForEvent returns a command that delivers the next event of the
// current run, or runDoneMsg once the stream ends.
func (m Model) waitForEvent() tea.Cmd {
	events, run := m.events, m.run
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return runDoneMsg{run: run}
		}
		return eventMsg{run: run, ev: ev}
	}
}

func (m *Model) handleEvent(ev interpreter.Event) {
	switch ev.Kind {
	case interpreter.KindOutput:
		m.appendLine(outputStyle(ev.Stream).Render(ev.Text))
	case interpreter.KindActiveLine:
		m.activeLine = ev.Line
	}
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxOutputLines {
		m.lines = m.lines[len(m.lines)-maxOutputLines:]
	}
	m.output.SetContent(strings.Join(m.lines, "\n"))
	m.output.GotoBottom()
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.cancel()
	return m, tea.Quit
}

// layout sizes the editor and output pane to the window.
func (m *Model) layout() {
	// header + footer + two pane borders
	const chrome = 2 + 4
	inner := m.width - 2
	if inner < 20 {
		inner = 20
	}

	editorHeight := (m.height - chrome) / 3
	if editorHeight < 3 {
		editorHeight = 3
	}
	outputHeight := m.height - chrome - editorHeight
	if outputHeight < 3 {
		outputHeight = 3
	}

	m.editor.SetWidth(inner)
	m.editor.SetHeight(editorHeight)
	m.output.Width = inner
	m.output.Height = outputHeight
}

// =============================================================================
// Accessors
// =============================================================================

// Language returns the selected language.
func (m Model) Language() string {
	if len(m.languages) == 0 {
		return ""
	}
	return m.languages[m.langIdx]
}

// Running reports whether a cell is executing.
func (m Model) Running() bool {
	return m.running
}

// Output returns the output pane's lines.
func (m Model) Output() []string {
	return m.lines
}

// ActiveLine returns the line the running cell is on, or 0.
func (m Model) ActiveLine() int {
	return m.activeLine
}

// =============================================================================
// Program
// =============================================================================

// Run starts the TUI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(New(cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
