package ui

import "github.com/charmbracelet/lipgloss"

var (
	TitleStyle     = lipgloss.NewStyle().Inline(true).Bold(true).Foreground(lipgloss.Color("252")).Render
	HelpStyle      = lipgloss.NewStyle().Inline(true).Foreground(lipgloss.Color("241")).Render
	RemainingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("218")).Padding(1, 2).Render
	ExpiredStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("70")).Padding(1, 2).Render
	ErrorStyle     = lipgloss.NewStyle().Inline(true).Foreground(lipgloss.Color("203")).Render
)

// ModeStyle colors a countdown mode: network synced countdowns are green,
// local clock fallbacks yellow.
func ModeStyle(mode string) string {
	color := lipgloss.Color("241")
	switch mode {
	case "network-time":
		color = lipgloss.Color("70")
	case "system-time":
		color = lipgloss.Color("214")
	}
	return lipgloss.NewStyle().Inline(true).Foreground(color).Render(mode)
}
