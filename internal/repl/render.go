package repl

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-interp-driver/internal/interpreter"
)

var (
	colorError  = lipgloss.Color("#EF4444") // Red
	colorAccent = lipgloss.Color("#F59E0B") // Amber
	colorDim    = lipgloss.Color("#6B7280") // Dark gray

	stderrStyle     = lipgloss.NewStyle().Foreground(colorError)
	noticeStyle     = lipgloss.NewStyle().Foreground(colorDim).Italic(true)
	activeLineStyle = lipgloss.NewStyle().Foreground(colorAccent)
	errorStyle      = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)

// Renderer writes events as text lines.
type Renderer struct {
	w               io.Writer
	showActiveLines bool
}

// NewRenderer creates a renderer writing to w. Active-line events are
// dropped unless showActiveLines is set.
func NewRenderer(w io.Writer, showActiveLines bool) *Renderer {
	return &Renderer{w: w, showActiveLines: showActiveLines}
}

// Event renders one event.
func (r *Renderer) Event(ev interpreter.Event) {
	switch ev.Kind {
	case interpreter.KindOutput:
		fmt.Fprintln(r.w, styleFor(ev.Stream).Render(ev.Text))
	case interpreter.KindActiveLine:
		if r.showActiveLines && ev.HasLine() {
			fmt.Fprintln(r.w, activeLineStyle.Render(fmt.Sprintf("→ line %d", ev.Line)))
		}
	}
}

// Error renders an error that stopped a cell from running at all.
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.w, errorStyle.Render("error: "+err.Error()))
}

// Notice renders a message from the front end itself.
func (r *Renderer) Notice(format string, args ...any) {
	fmt.Fprintln(r.w, noticeStyle.Render(fmt.Sprintf(format, args...)))
}

func styleFor(s interpreter.Stream) lipgloss.Style {
	switch s {
	case interpreter.StreamStderr:
		return stderrStyle
	case interpreter.StreamInternal:
		return noticeStyle
	default:
		return lipgloss.NewStyle()
	}
}
