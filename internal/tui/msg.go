package tui

import (
	"time"

	"github.com/LISSConsulting/bagkeeper/internal/loop"
)

// logEntryMsg wraps a LogEntry as a bubbletea message.
type logEntryMsg loop.LogEntry

// loopDoneMsg signals the event channel closed.
type loopDoneMsg struct{}

// tickMsg is sent every second for the clock.
type tickMsg time.Time
