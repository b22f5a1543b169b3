package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	mutedColor   = lipgloss.Color("#6B7280")
	errorColor   = lipgloss.Color("#EF4444")
	warningColor = lipgloss.Color("#F59E0B")

	headerStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)

	headerBrandStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(primaryColor)

	serverConnectedStyle = lipgloss.NewStyle().
				Foreground(successColor).
				Background(primaryColor)

	serverIdleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#C4B5FD")).
			Background(primaryColor)

	userLabelStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	agentLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(successColor)
	systemStyle      = lipgloss.NewStyle().Italic(true).Foreground(mutedColor)
	toolLabelStyle   = lipgloss.NewStyle().Bold(true).Foreground(warningColor)
	toolInputStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	statusStyle      = lipgloss.NewStyle().Foreground(mutedColor).Padding(0, 1)
	thinkingStyle    = lipgloss.NewStyle().Foreground(primaryColor)
	promptTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(warningColor)

	permissionBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(warningColor).
				Padding(0, 1)

	errorStyle = lipgloss.NewStyle().Foreground(errorColor)
)
