package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-interp-driver/internal/interpreter"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan
	colorAccent    = lipgloss.Color("#F59E0B") // Amber

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorError   = lipgloss.Color("#EF4444") // Red

	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	languageStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	statusRunning = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	statusIdle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	activeLineStyle = lipgloss.NewStyle().
			Foreground(colorAccent)

	// Output lines by stream
	stdoutStyle = lipgloss.NewStyle().
			Foreground(colorText)

	stderrStyle = lipgloss.NewStyle().
			Foreground(colorError)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorTextDim).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	focusedPaneStyle = paneStyle.
				BorderForeground(colorPrimary)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

// outputStyle returns the style for an output line from stream s.
func outputStyle(s interpreter.Stream) lipgloss.Style {
	switch s {
	case interpreter.StreamStderr:
		return stderrStyle
	case interpreter.StreamInternal:
		return noticeStyle
	default:
		return stdoutStyle
	}
}
