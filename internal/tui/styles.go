// Package tui provides a bubbletea + lipgloss terminal UI for the capture
// rotation loop.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"

	"github.com/LISSConsulting/bagkeeper/internal/loop"
)

// defaultAccentColor is the default accent color (indigo).
const defaultAccentColor = "#7D56F4"

var (
	colorWhite  = lipgloss.Color("#FAFAFA")
	colorGray   = lipgloss.Color("#888888")
	colorBlue   = lipgloss.Color("#5B9BD5")
	colorGreen  = lipgloss.Color("#6BCB77")
	colorYellow = lipgloss.Color("#FFD93D")
	colorRed    = lipgloss.Color("#FF6B6B")
	colorOrange = lipgloss.Color("#FFA54F")
)

// Styles used across the TUI. Accent-dependent styles live on Theme.
var (
	timestampStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	poolStyle = lipgloss.NewStyle().
			Foreground(colorBlue)

	evictStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	alertStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(colorRed).
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(colorOrange)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorWhite)
)

// Theme holds accent-color-derived styles.
type Theme struct {
	accent      string
	headerStyle lipgloss.Style
	startStyle  lipgloss.Style
}

// NewTheme creates a Theme from a hex accent color string (e.g. "#7D56F4").
// If accentColor is empty, the default accent color is used.
func NewTheme(accentColor string) Theme {
	color := defaultAccentColor
	if accentColor != "" {
		color = accentColor
	}
	c := lipgloss.Color(color)
	return Theme{
		accent: color,
		headerStyle: lipgloss.NewStyle().
			Background(c).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true),
		startStyle: lipgloss.NewStyle().
			Foreground(c),
	}
}

// RenderLogLine renders a loop.LogEntry as a single terminal line.
func (t Theme) RenderLogLine(entry loop.LogEntry) string {
	ts := timestampStyle.Render(fmt.Sprintf("[%s]", entry.Timestamp.Format("15:04:05")))
	msg := singleLine(entry.Message)

	switch entry.Kind {
	case loop.LogSessionStart:
		return fmt.Sprintf("%s  %s", ts, t.startStyle.Render("● "+msg))
	case loop.LogSessionDone:
		return fmt.Sprintf("%s  %s", ts, resultStyle.Render("✅ "+msg))
	case loop.LogPoolSize:
		return fmt.Sprintf("%s  %s", ts, poolStyle.Render("🗄  "+msg))
	case loop.LogEvict:
		return fmt.Sprintf("%s  %s", ts, evictStyle.Render(fmt.Sprintf("🗑  %s  (-%s)", msg, units.BytesSize(float64(entry.Bytes)))))
	case loop.LogError:
		return fmt.Sprintf("%s  %s", ts, errorStyle.Render("❌ "+msg))
	case loop.LogAlert:
		return fmt.Sprintf("%s  %s", ts, alertStyle.Render("🚨 "+msg))
	case loop.LogDone:
		return fmt.Sprintf("%s  %s", ts, resultStyle.Render("✅ "+msg))
	case loop.LogStopped:
		return fmt.Sprintf("%s  %s", ts, stoppedStyle.Render("⏹ "+msg))
	default:
		return fmt.Sprintf("%s  %s", ts, infoStyle.Render(msg))
	}
}

// singleLine collapses newlines so one entry never spans several rows.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
