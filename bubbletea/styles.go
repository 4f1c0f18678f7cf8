package bubbletea

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/margin"
)

// Styles maps a Theme to lipgloss styles for TUI rendering.
type Styles struct {
	User    lipgloss.Style
	Summary lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Accent  lipgloss.Style
}

// NewStyles creates Styles from a Theme.
func NewStyles(t margin.Theme) Styles {
	return Styles{
		User:    lipgloss.NewStyle().Foreground(ansiColor(t.User)).Bold(true),
		Summary: lipgloss.NewStyle().Foreground(ansiColor(t.Summary)).Italic(true),
		Error:   lipgloss.NewStyle().Foreground(ansiColor(t.Error)),
		Muted:   lipgloss.NewStyle().Foreground(ansiColor(t.Muted)).Faint(true),
		Accent:  lipgloss.NewStyle().Foreground(ansiColor(t.Accent)).Bold(true),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}
