package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/bagkeeper/internal/loop"
	"github.com/LISSConsulting/bagkeeper/internal/tui/components"
)

// RunState is the manager state shown in the header.
type RunState int

const (
	StateIdle RunState = iota
	StateRecording
	StateEvicting
	StateAlert
	StateStopping
	StateFinished
)

// Symbol returns the header glyph for the state.
func (s RunState) Symbol() string {
	switch s {
	case StateRecording:
		return "●"
	case StateEvicting:
		return "🗑"
	case StateAlert:
		return "🚨"
	case StateStopping:
		return "⏹"
	case StateFinished:
		return "✓"
	default:
		return "○"
	}
}

// Label returns the header label for the state.
func (s RunState) Label() string {
	switch s {
	case StateRecording:
		return "RECORDING"
	case StateEvicting:
		return "EVICTING"
	case StateAlert:
		return "OVER CEILING"
	case StateStopping:
		return "STOPPING"
	case StateFinished:
		return "STOPPED"
	default:
		return "IDLE"
	}
}

// Options configures a Model.
type Options struct {
	AccentColor string
	Namespace   string
	Root        string
	Ceiling     int64
	MaxSessions int

	// RequestStop, if non-nil, is called once when the user first presses
	// q or ctrl+c. The TUI then waits for the loop to finish the session.
	RequestStop func()
}

// Model is the bubbletea model for the bagkeeper TUI.
type Model struct {
	events <-chan loop.LogEntry
	theme  Theme

	logView components.LogView
	gauge   components.PoolGauge
	width   int
	height  int

	// Run state
	state       RunState
	namespace   string
	root        string
	session     int
	maxSessions int
	current     string
	recorded    int
	failed      int
	evictions   int

	startedAt time.Time
	now       time.Time

	requestStop   func()
	stopRequested bool
	done          bool
}

// New creates a TUI Model that consumes events from the given channel.
func New(events <-chan loop.LogEntry, opts Options) Model {
	now := time.Now()
	th := NewTheme(opts.AccentColor)
	return Model{
		events:      events,
		theme:       th,
		logView:     components.NewLogView(80, 24-chromeHeight),
		gauge:       components.NewPoolGauge(80, th.accent).SetUsage(0, opts.Ceiling),
		width:       80,
		height:      24,
		namespace:   opts.Namespace,
		root:        opts.Root,
		maxSessions: opts.MaxSessions,
		startedAt:   now,
		now:         now,
		requestStop: opts.RequestStop,
	}
}

// chromeHeight is the number of rows taken by header, gauge and footer.
const chromeHeight = 3

// Init returns the initial commands: event listener + clock ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tickCmd())
}

// tickCmd schedules the next one-second clock tick.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForEvent returns a command that blocks on the event channel.
func waitForEvent(ch <-chan loop.LogEntry) tea.Cmd {
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return loopDoneMsg{}
		}
		return logEntryMsg(entry)
	}
}
