package chat

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	styleUser = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	styleAgents = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	styleSystem = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Italic(true)

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	styleStatus = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	styleActivity = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))
)

// newMarkdownRenderer builds a glamour renderer wrapped to the given width.
// Returns nil on failure; callers fall back to plain text.
func newMarkdownRenderer(width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}
