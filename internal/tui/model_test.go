package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/bagkeeper/internal/loop"
)

func newTestModel(opts Options) Model {
	return New(make(chan loop.LogEntry, 1), opts)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func TestNew(t *testing.T) {
	m := newTestModel(Options{Namespace: "amr7", Ceiling: 1 << 30, MaxSessions: 5})

	if m.width != 80 || m.height != 24 {
		t.Errorf("expected default size 80x24, got %dx%d", m.width, m.height)
	}
	if m.done || m.stopRequested {
		t.Error("expected a fresh model")
	}
	if m.state != StateIdle {
		t.Errorf("expected idle state, got %v", m.state)
	}
	if !m.logView.Following() {
		t.Error("expected follow mode on by default")
	}
}

func TestInit(t *testing.T) {
	if cmd := newTestModel(Options{}).Init(); cmd == nil {
		t.Error("Init should return a non-nil command")
	}
}

func TestUpdateWindowSize(t *testing.T) {
	m, cmd := update(t, newTestModel(Options{}), tea.WindowSizeMsg{Width: 120, Height: 40})

	if cmd != nil {
		t.Error("window size should not produce a command")
	}
	if m.width != 120 || m.height != 40 {
		t.Errorf("expected 120x40, got %dx%d", m.width, m.height)
	}
}

func TestUpdateLogEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry loop.LogEntry
		check func(t *testing.T, m Model)
	}{
		{
			name:  "session start",
			entry: loop.LogEntry{Kind: loop.LogSessionStart, Session: 2, Path: "/bags/s2", Namespace: "amr7"},
			check: func(t *testing.T, m Model) {
				if m.session != 2 || m.current != "/bags/s2" || m.namespace != "amr7" {
					t.Errorf("unexpected session state: %d %q %q", m.session, m.current, m.namespace)
				}
				if m.state != StateRecording {
					t.Errorf("expected recording, got %v", m.state.Label())
				}
			},
		},
		{
			name:  "pool size updates the gauge",
			entry: loop.LogEntry{Kind: loop.LogPoolSize, PoolBytes: 50, CeilingBytes: 100},
			check: func(t *testing.T, m Model) {
				if m.gauge.Percent() != 0.5 {
					t.Errorf("gauge percent = %v, want 0.5", m.gauge.Percent())
				}
			},
		},
		{
			name:  "eviction",
			entry: loop.LogEntry{Kind: loop.LogEvict, Session: 4, Evictions: 3, Recorded: 4},
			check: func(t *testing.T, m Model) {
				if m.state != StateEvicting || m.evictions != 3 || m.recorded != 4 {
					t.Errorf("unexpected: state %v evictions %d recorded %d", m.state.Label(), m.evictions, m.recorded)
				}
			},
		},
		{
			name:  "alert",
			entry: loop.LogEntry{Kind: loop.LogAlert, PoolBytes: 200, CeilingBytes: 100},
			check: func(t *testing.T, m Model) {
				if m.state != StateAlert || !m.gauge.Over() {
					t.Errorf("expected alert state with gauge over ceiling")
				}
			},
		},
		{
			name:  "stopped",
			entry: loop.LogEntry{Kind: loop.LogStopped, Session: 1, Failed: 1},
			check: func(t *testing.T, m Model) {
				if m.state != StateFinished || m.failed != 1 {
					t.Errorf("unexpected: %v failed %d", m.state.Label(), m.failed)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.entry.Timestamp = time.Now()
			m, cmd := update(t, newTestModel(Options{}), logEntryMsg(tt.entry))
			if cmd == nil {
				t.Error("log entry should produce a command to wait for more events")
			}
			if m.logView.Len() != 1 {
				t.Errorf("expected 1 log line, got %d", m.logView.Len())
			}
			tt.check(t, m)
		})
	}
}

func TestSessionDoneClearsCurrent(t *testing.T) {
	m := newTestModel(Options{})
	m, _ = update(t, m, logEntryMsg(loop.LogEntry{Kind: loop.LogSessionStart, Session: 1, Path: "/bags/s1"}))
	m, _ = update(t, m, logEntryMsg(loop.LogEntry{Kind: loop.LogSessionDone, Session: 1, Recorded: 1}))
	if m.current != "" {
		t.Errorf("expected current cleared, got %q", m.current)
	}
	if m.recorded != 1 {
		t.Errorf("expected 1 recorded, got %d", m.recorded)
	}
}

func TestUpdateLoopDone(t *testing.T) {
	m, cmd := update(t, newTestModel(Options{}), loopDoneMsg{})
	if !m.done {
		t.Error("expected done after loopDoneMsg")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestUpdateKeyStop(t *testing.T) {
	stops := 0
	m := newTestModel(Options{RequestStop: func() { stops++ }})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd != nil {
		t.Error("first q should request a graceful stop, not quit")
	}
	if stops != 1 || !m.stopRequested || m.state != StateStopping {
		t.Errorf("stop not requested: stops=%d requested=%v state=%v", stops, m.stopRequested, m.state.Label())
	}

	// A session start during shutdown does not flip the state back.
	m, _ = update(t, m, logEntryMsg(loop.LogEntry{Kind: loop.LogSessionStart, Session: 2}))
	if m.state != StateStopping {
		t.Errorf("expected stopping to persist, got %v", m.state.Label())
	}

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Error("second press should quit")
	}
	if stops != 1 {
		t.Errorf("RequestStop called %d times, want 1", stops)
	}
}

func TestUpdateKeyQuitWithoutStopper(t *testing.T) {
	_, cmd := update(t, newTestModel(Options{}), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Error("q without RequestStop should quit immediately")
	}
}

func TestUpdateKeyFollow(t *testing.T) {
	m, _ := update(t, newTestModel(Options{}), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	if m.logView.Following() {
		t.Error("f should turn follow mode off")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	if !m.logView.Following() {
		t.Error("second f should turn follow mode back on")
	}
}

func TestUpdateTick(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m, cmd := update(t, newTestModel(Options{}), tickMsg(ts))
	if !m.now.Equal(ts) {
		t.Errorf("now = %v, want %v", m.now, ts)
	}
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
}

func TestUpdateUnknownMsg(t *testing.T) {
	type unknown struct{}
	if _, cmd := update(t, newTestModel(Options{}), unknown{}); cmd != nil {
		t.Error("unknown message should produce no command")
	}
}

func TestWaitForEvent(t *testing.T) {
	ch := make(chan loop.LogEntry, 1)
	ch <- loop.LogEntry{Kind: loop.LogInfo, Message: "hello"}
	msg := waitForEvent(ch)()
	entry, ok := msg.(logEntryMsg)
	if !ok || entry.Message != "hello" {
		t.Errorf("unexpected message: %#v", msg)
	}

	close(ch)
	if _, ok := waitForEvent(ch)().(loopDoneMsg); !ok {
		t.Error("closed channel should produce loopDoneMsg")
	}
}

func TestViewRenders(t *testing.T) {
	m := newTestModel(Options{Namespace: "amr7", Root: "/data/bag_files", Ceiling: 1 << 30, MaxSessions: 3})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 20})
	m, _ = update(t, m, logEntryMsg(loop.LogEntry{Kind: loop.LogSessionStart, Session: 1, Path: "/data/bag_files/s1", Message: "── session 1 ── recording", Timestamp: time.Now()}))

	view := m.View()
	for _, want := range []string{"bagkeeper", "ns: amr7", "1/3", "RECORDING", "/ 1GiB", "session 1", "recording: /data/bag_files/s1"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestRenderLogLine(t *testing.T) {
	th := NewTheme("")
	ts := time.Date(2026, 1, 1, 9, 8, 7, 0, time.UTC)
	tests := []struct {
		kind loop.LogKind
		want string
	}{
		{loop.LogInfo, "starting"},
		{loop.LogSessionStart, "● starting"},
		{loop.LogSessionDone, "✅ starting"},
		{loop.LogEvict, "(-1KiB)"},
		{loop.LogError, "❌ starting"},
		{loop.LogAlert, "🚨 starting"},
		{loop.LogStopped, "⏹ starting"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			line := th.RenderLogLine(loop.LogEntry{Kind: tt.kind, Timestamp: ts, Message: "starting\nnow", Bytes: 1024})
			if !strings.Contains(line, "[09:08:07]") {
				t.Errorf("missing timestamp: %q", line)
			}
			if !strings.Contains(line, tt.want) {
				t.Errorf("missing %q: %q", tt.want, line)
			}
			if strings.Contains(line, "\n") {
				t.Errorf("line should not contain newlines: %q", line)
			}
		})
	}
}

func TestRunStateLabels(t *testing.T) {
	for s := StateIdle; s <= StateFinished; s++ {
		if s.Label() == "" || s.Symbol() == "" {
			t.Errorf("state %d has empty label or symbol", s)
		}
	}
}
