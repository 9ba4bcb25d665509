package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/bagkeeper/internal/loop"
)

// Update handles incoming messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := m.height - chromeHeight
		if h < 1 {
			h = 1
		}
		m.logView = m.logView.SetSize(m.width, h)
		m.gauge = m.gauge.SetWidth(m.width)
		return m, nil

	case logEntryMsg:
		return m.handleLogEntry(loop.LogEntry(msg))

	case loopDoneMsg:
		m.done = true
		m.state = StateFinished
		m.current = ""
		return m, tea.Quit

	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		// First press stops the loop gracefully; a second one quits at once.
		if m.requestStop == nil || m.stopRequested || m.done {
			return m, tea.Quit
		}
		m.stopRequested = true
		m.state = StateStopping
		m.requestStop()
		return m, nil
	case "f":
		m.logView = m.logView.ToggleFollow()
		return m, nil
	}
	var cmd tea.Cmd
	m.logView, cmd = m.logView.Update(msg)
	return m, cmd
}

func (m Model) handleLogEntry(entry loop.LogEntry) (tea.Model, tea.Cmd) {
	if entry.Session > 0 {
		m.session = entry.Session
		m.recorded = entry.Recorded
		m.failed = entry.Failed
		m.evictions = entry.Evictions
	}
	if entry.Namespace != "" {
		m.namespace = entry.Namespace
	}

	switch entry.Kind {
	case loop.LogPoolSize:
		m.gauge = m.gauge.SetUsage(entry.PoolBytes, entry.CeilingBytes)
	case loop.LogSessionStart:
		m.current = entry.Path
		if !m.stopRequested {
			m.state = StateRecording
		}
	case loop.LogSessionDone, loop.LogError:
		m.current = ""
	case loop.LogEvict:
		m.state = StateEvicting
	case loop.LogAlert:
		m.state = StateAlert
		if entry.CeilingBytes > 0 {
			m.gauge = m.gauge.SetUsage(entry.PoolBytes, entry.CeilingBytes)
		}
	case loop.LogDone, loop.LogStopped:
		m.state = StateFinished
		m.current = ""
	}

	m.logView = m.logView.AppendLine(m.theme.RenderLogLine(entry))
	return m, waitForEvent(m.events)
}
