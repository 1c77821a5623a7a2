// Package ui renders indexing progress to the terminal, either as a
// bubbletea full-screen view or as plain log lines when stdout isn't a TTY.
package ui

import "github.com/charmbracelet/lipgloss"

// Color palette — single lime-green accent, matching the teacher's
// asitop-inspired theme.
const (
	ColorLime     = "154"
	ColorGray     = "245"
	ColorDarkGray = "238"
	ColorRed      = "196"
)

// Styles holds the lipgloss styles the progress view renders with.
type Styles struct {
	Header lipgloss.Style
	Active lipgloss.Style
	Dim    lipgloss.Style
	Error  lipgloss.Style
	Border lipgloss.Style
}

// DefaultStyles returns the colored style set.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Active: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Dim:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Border: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
	}
}

// NoColorStyles returns an unstyled set, used by the TUI view when NO_COLOR
// is set.
func NoColorStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle(),
		Active: lipgloss.NewStyle(),
		Dim:    lipgloss.NewStyle(),
		Error:  lipgloss.NewStyle(),
		Border: lipgloss.NewStyle(),
	}
}
