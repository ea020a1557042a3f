package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	Accent    = lipgloss.Color("12")
	Muted     = lipgloss.Color("8")
	Good      = lipgloss.Color("10")
	Warn      = lipgloss.Color("11")
	Bad       = lipgloss.Color("9")
	Highlight = lipgloss.Color("205")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(Accent).Padding(0, 1)
	FooterStyle  = lipgloss.NewStyle().Foreground(Muted).Italic(true)
	RowStyle     = lipgloss.NewStyle().Padding(0, 1)
	CursorStyle  = RowStyle.Background(Muted).Bold(true)
	MessageStyle = lipgloss.NewStyle().Foreground(Good)
	dialogStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
)

// Colorize applies the given ANSI color to the text using lipgloss.
func Colorize(text string, color lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

// Dialog draws a bordered box with a bold title, the body and a hint line.
func Dialog(title, body, hint string, color lipgloss.Color) string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(color).Render(title))
	if body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	if hint != "" {
		b.WriteString("\n\n")
		b.WriteString(FooterStyle.Render(hint))
	}
	return dialogStyle.BorderForeground(color).Render(b.String())
}

// Status renders the install state of a mod as a short colored word.
func Status(installed, fileExists bool) string {
	switch {
	case installed && !fileExists:
		return Colorize("installed*", Warn)
	case installed:
		return Colorize("installed", Good)
	case !fileExists:
		return Colorize("missing", Bad)
	}
	return Colorize("available", Muted)
}

// Truncate shortens s to at most maxLen runes, ending with "...".
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
