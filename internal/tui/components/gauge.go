// Package components provides reusable TUI components for the bagkeeper UI.
package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"
)

const overColor = "#FF6B6B"

// PoolGauge shows pool usage against the storage ceiling as a bar with a
// "used / ceiling" label. It renders statically; there is no animation.
type PoolGauge struct {
	bar     progress.Model
	over    progress.Model
	used    int64
	ceiling int64
	width   int
}

// NewPoolGauge creates a gauge of the given total width. The bar is filled
// with accent while the pool is under its ceiling, and red once it is over.
func NewPoolGauge(width int, accent string) PoolGauge {
	g := PoolGauge{
		bar:  progress.New(progress.WithSolidFill(accent), progress.WithoutPercentage()),
		over: progress.New(progress.WithSolidFill(overColor), progress.WithoutPercentage()),
	}
	return g.SetWidth(width)
}

// SetUsage records the pool size and ceiling to display.
func (g PoolGauge) SetUsage(used, ceiling int64) PoolGauge {
	g.used = used
	g.ceiling = ceiling
	return g.SetWidth(g.width)
}

// SetWidth resizes the gauge. The label takes what it needs; the bar gets
// the rest.
func (g PoolGauge) SetWidth(width int) PoolGauge {
	g.width = width
	barW := width - lipgloss.Width(g.label()) - 2
	if barW < 10 {
		barW = 10
	}
	g.bar.Width = barW
	g.over.Width = barW
	return g
}

// Percent returns used/ceiling clamped to [0, 1]. A non-positive ceiling
// reads as full whenever anything is stored.
func (g PoolGauge) Percent() float64 {
	if g.ceiling <= 0 {
		if g.used > 0 {
			return 1
		}
		return 0
	}
	p := float64(g.used) / float64(g.ceiling)
	if p > 1 {
		return 1
	}
	return p
}

// Over reports whether the pool exceeds the ceiling.
func (g PoolGauge) Over() bool {
	return g.used > g.ceiling
}

func (g PoolGauge) label() string {
	pct := 0.0
	if g.ceiling > 0 {
		pct = float64(g.used) / float64(g.ceiling) * 100
	}
	return fmt.Sprintf("%s / %s (%.0f%%)",
		units.BytesSize(float64(g.used)), units.BytesSize(float64(g.ceiling)), pct)
}

// View renders the bar followed by its label.
func (g PoolGauge) View() string {
	bar := g.bar
	if g.Over() {
		bar = g.over
	}
	return bar.ViewAs(g.Percent()) + "  " + g.label()
}
