package ui

import "github.com/charmbracelet/lipgloss"

var (
	normalFg    = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#dddddd"}
	dimFg       = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}
	gutterFg    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	cream       = lipgloss.AdaptiveColor{Light: "#FFFDF5", Dark: "#FFFDF5"}
	green       = lipgloss.Color("#04B575")
	yellow      = lipgloss.Color("#ECFD65")
	red         = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	statusBarBg = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}
	statusBarFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	messageBg   = lipgloss.AdaptiveColor{Light: "#6BCB94", Dark: "#1C8760"}
)

func newStyle(fg, bg lipgloss.TerminalColor, bold bool) func(...string) string {
	return lipgloss.NewStyle().Foreground(fg).Background(bg).Bold(bold).Render
}

var (
	logoStyle          = newStyle(cream, lipgloss.Color("#5A56E0"), true)
	statusBarNoteStyle = newStyle(statusBarFg, statusBarBg, false)
	statusBarHelpStyle = newStyle(statusBarFg, lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}, false)
	statusMessageStyle = newStyle(cream, messageBg, false)
	errorMessageStyle  = newStyle(cream, red, false)
	gutterStyle        = lipgloss.NewStyle().Foreground(gutterFg).Render
	dimStyle           = lipgloss.NewStyle().Foreground(dimFg).Render
	normalStyle        = lipgloss.NewStyle().Foreground(normalFg).Render
	pendingStyle       = lipgloss.NewStyle().Foreground(dimFg).Italic(true).Render
)

// activeStyle marks the segment being read. Without a color it falls back
// to reverse video.
func activeStyle(color string) func(...string) string {
	if color == "" {
		return lipgloss.NewStyle().Reverse(true).Render
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render
}

func stateColor(playing, paused bool) lipgloss.TerminalColor {
	switch {
	case playing:
		return green
	case paused:
		return yellow
	default:
		return statusBarFg
	}
}
