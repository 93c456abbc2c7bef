package ui

import "github.com/charmbracelet/lipgloss"

// Color palette. Single cyan accent with gray support colors.
const (
	ColorAccent    = "45"  // Primary accent - bright cyan
	ColorAccentDim = "31"  // Dimmed accent for secondary elements
	ColorWhite     = "255" // Headers, important text
	ColorGray      = "245" // Secondary text, labels
	ColorDarkGray  = "238" // Borders, separators
	ColorRed       = "196" // Errors
	ColorYellow    = "220" // Warnings
)

// Styles holds the lipgloss styles for TUI rendering.
type Styles struct {
	Header   lipgloss.Style
	Prompt   lipgloss.Style
	Selected lipgloss.Style
	Result   lipgloss.Style
	Category lipgloss.Style
	Score    lipgloss.Style
	Dim      lipgloss.Style
	Error    lipgloss.Style
	Warning  lipgloss.Style
	Footer   lipgloss.Style
}

// DefaultStyles returns the styled component set.
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Prompt:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)).Background(lipgloss.Color(ColorAccentDim)),
		Result:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWhite)),
		Category: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentDim)),
		Score:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Footer:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
	}
}

// NoColorStyles returns unstyled components for NO_COLOR or non-TTY use.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:   plain,
		Prompt:   plain,
		Selected: lipgloss.NewStyle().Reverse(true),
		Result:   plain,
		Category: plain,
		Score:    plain,
		Dim:      plain,
		Error:    plain,
		Warning:  plain,
		Footer:   plain,
	}
}
