// Package tui is the read-only Bubble Tea journal viewer behind
// `vkernel journal --tui`. It shows the same records the json/table/yaml
// renderers do and never writes anything.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	accentColor  = lipgloss.Color("#3B82F6")
)

var (
	// TitleStyle for the header line.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for section labels in the detail pane.
	LabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(mutedColor)

	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)

	// SelectedStyle marks the cursor row in the cell list.
	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	// ListStyle for the cell list pane.
	ListStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	// DetailStyle for the selected cell pane.
	DetailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// StatusStyle returns the style for an execution status.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "ok":
		return SuccessStyle
	case "error":
		return ErrorStyle
	default:
		return WarningStyle
	}
}
