package presentation

import (
	"github.com/charmbracelet/lipgloss"
)

// Role colors, consistent across every text rendering.
var (
	UserColor      = lipgloss.AdaptiveColor{Light: "#FB923C", Dark: "#FB923C"}
	AssistantColor = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#179299"}
	SystemColor    = lipgloss.AdaptiveColor{Light: "#A066D3", Dark: "#A066D3"}
	ErrorColor     = lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#FF8787"}
	MutedColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"}
	AddedColor     = lipgloss.AdaptiveColor{Light: "#40A02B", Dark: "#43BF6D"}
)

var (
	// RoleStyle applies bold formatting to role labels.
	RoleStyle = lipgloss.NewStyle().Bold(true)

	// MutedStyle is for ids, timestamps and branch markers.
	MutedStyle = lipgloss.NewStyle().Foreground(MutedColor)

	ErrorStyle   = lipgloss.NewStyle().Foreground(ErrorColor)
	TitleStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(MutedColor)
	AddedStyle   = lipgloss.NewStyle().Foreground(AddedColor).Bold(true)
	DeletedStyle = lipgloss.NewStyle().Foreground(ErrorColor).Strikethrough(true)
)

// roleLabel returns the styled label shown above a message.
func roleLabel(role string, isError bool) string {
	switch {
	case isError:
		return RoleStyle.Foreground(ErrorColor).Render("Assistant (error)")
	case role == "user":
		return RoleStyle.Foreground(UserColor).Render("You")
	case role == "system":
		return RoleStyle.Foreground(SystemColor).Render("System")
	default:
		return RoleStyle.Foreground(AssistantColor).Render("Assistant")
	}
}
