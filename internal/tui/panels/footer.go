package panels

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

// FooterProps holds all data needed to render the footer bar.
type FooterProps struct {
	Current       string // session directory being recorded
	Following     bool
	StopRequested bool
	Done          bool
}

// RenderFooter renders the footer bar. Left side: the session being
// recorded. Right side: keybinding hints.
func RenderFooter(props FooterProps, width int) string {
	current := props.Current
	if current == "" {
		current = "—"
	}
	left := fmt.Sprintf("recording: %s", AbbreviatePath(current))

	var right string
	switch {
	case props.Done:
		right = "stopped  q:quit"
	case props.StopRequested:
		right = "⏹ stopping current session…  q:force quit"
	default:
		follow := "f:follow"
		if props.Following {
			follow = "f:unfollow"
		}
		right = follow + "  ↑/↓:scroll  q:stop"
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}

	return footerStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}
