package tui

import (
	"github.com/LISSConsulting/bagkeeper/internal/tui/panels"
)

// View renders the TUI: header bar, pool gauge, scrollable log, footer bar.
func (m Model) View() string {
	header := panels.RenderHeader(panels.HeaderProps{
		Namespace:   m.namespace,
		Root:        m.root,
		Session:     m.session,
		MaxSessions: m.maxSessions,
		Recorded:    m.recorded,
		Failed:      m.failed,
		Evictions:   m.evictions,
		StateSymbol: m.state.Symbol(),
		StateLabel:  m.state.Label(),
		Elapsed:     m.now.Sub(m.startedAt),
		Clock:       m.now,
	}, m.width, m.theme.headerStyle)

	footer := panels.RenderFooter(panels.FooterProps{
		Current:       m.current,
		Following:     m.logView.Following(),
		StopRequested: m.stopRequested,
		Done:          m.done,
	}, m.width)

	return header + "\n" + m.gauge.View() + "\n" + m.logView.View() + "\n" + footer
}
