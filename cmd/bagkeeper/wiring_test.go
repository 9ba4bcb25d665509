package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/LISSConsulting/bagkeeper/internal/capture"
	"github.com/LISSConsulting/bagkeeper/internal/config"
	"github.com/LISSConsulting/bagkeeper/internal/loop"
	"github.com/LISSConsulting/bagkeeper/internal/state"
	"github.com/LISSConsulting/bagkeeper/internal/store"
	"github.com/LISSConsulting/bagkeeper/internal/supervisor"
)

// stubRecorder returns a finished session without starting anything.
type stubRecorder struct {
	root    string
	calls   int
	err     error
	onStart func(path string, args []string)
}

func (s *stubRecorder) Record(ctx context.Context, _ string, _ time.Duration) (capture.Result, error) {
	s.calls++
	now := time.Now()
	res := capture.Result{
		Path:        filepath.Join(s.root, capture.SessionName(now)),
		State:       capture.StateDone,
		StartedAt:   now,
		StoppedAt:   now,
		Graceful:    true,
		Interrupted: ctx.Err() != nil,
	}
	if s.onStart != nil && s.err == nil {
		s.onStart(res.Path, nil)
	}
	return res, s.err
}

func noColor(t *testing.T) {
	t.Helper()
	old := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = old })
}

func testSetup(t *testing.T) (*config.Config, *loop.Loop, *stubRecorder) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Dir = t.TempDir()
	cfg.Capture.Namespace = "amr7"
	cfg.Storage.MaxStorage = "1GiB"
	rec := &stubRecorder{root: cfg.RootPath()}
	lp := &loop.Loop{Recorder: rec, Config: &cfg, MaxSessions: 2}
	rec.onStart = lp.SessionStarted
	return &cfg, lp, rec
}

func TestFormatLogLine(t *testing.T) {
	noColor(t)
	ts := time.Date(2024, 3, 9, 7, 5, 2, 0, time.Local)

	tests := []struct {
		kind loop.LogKind
		msg  string
	}{
		{loop.LogInfo, "Starting capture rotation"},
		{loop.LogEvict, "Storage limit exceeded — deleted oldest session /b/a"},
		{loop.LogAlert, "Cannot enforce storage ceiling"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got := formatLogLine(loop.LogEntry{Kind: tt.kind, Timestamp: ts, Message: tt.msg})
			want := "[07:05:02]  " + tt.msg
			if got != want {
				t.Errorf("formatLogLine() = %q, want %q", got, want)
			}
		})
	}
}

func TestFormatLogLineColors(t *testing.T) {
	old := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = old })

	plain := formatLogLine(loop.LogEntry{Kind: loop.LogInfo, Message: "x"})
	alerted := formatLogLine(loop.LogEntry{Kind: loop.LogAlert, Message: "x"})
	if plain == alerted {
		t.Error("alerts should be styled differently from info lines")
	}
	if !strings.Contains(alerted, "\x1b[") {
		t.Errorf("expected ANSI escapes in %q", alerted)
	}
}

func TestFormatRunSummary(t *testing.T) {
	tests := []struct {
		name     string
		run      store.RunSummary
		sessions []store.SessionSummary
		contains []string
		excludes []string
	}{
		{
			name: "clean run",
			run:  store.RunSummary{RunID: "1700000000-42", Sessions: 2},
			sessions: []store.SessionSummary{
				{Number: 1, Duration: 600, Status: "ok"},
				{Number: 2, Duration: 600, Status: "ok"},
			},
			contains: []string{"Run 1700000000-42: 2 sessions (0 failed, 0 stopped early), 20m0s recorded"},
			excludes: []string{"evictions", "Last alert"},
		},
		{
			name: "evictions and alert",
			run: store.RunSummary{
				RunID: "r", Sessions: 3, Failed: 1, Evictions: 2,
				EvictedBytes: 3 << 30, LastAlert: "Cannot enforce storage ceiling",
			},
			sessions: []store.SessionSummary{
				{Number: 1, Duration: 600, Status: "ok"},
				{Number: 2, Status: "error"},
				{Number: 3, Duration: 90.4, Status: "early"},
			},
			contains: []string{
				"3 sessions (1 failed, 1 stopped early), 11m30s recorded",
				"2 evictions freed 3GiB",
				"Last alert: Cannot enforce storage ceiling",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatRunSummary(tt.run, tt.sessions)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("missing %q in:\n%s", want, got)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("unexpected %q in:\n%s", bad, got)
				}
			}
		})
	}
}

func TestRunHeadless(t *testing.T) {
	noColor(t)
	cfg, lp, rec := testSetup(t)

	ceiling, err := cfg.CeilingBytes()
	if err != nil {
		t.Fatal(err)
	}
	sk, err := openSinks(cfg, ceiling)
	if err != nil {
		t.Fatalf("openSinks: %v", err)
	}

	var out bytes.Buffer
	if err := runHeadless(context.Background(), lp, supervisor.New(cfg), sk, &out); err != nil {
		t.Fatalf("runHeadless: %v", err)
	}
	run, sessions, err := sk.summary()
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if run.Sessions != 2 || len(sessions) != 2 || run.Namespace != "amr7" {
		t.Errorf("unexpected run summary: %+v, %d sessions", run, len(sessions))
	}
	if err := sk.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if rec.calls != 2 {
		t.Errorf("expected 2 sessions, got %d", rec.calls)
	}
	if !strings.Contains(out.String(), "Capture rotation complete — 2 sessions recorded") {
		t.Errorf("missing completion line:\n%s", out.String())
	}

	s, err := state.Load(cfg.StateDir())
	if err != nil {
		t.Fatalf("state.Load: %v", err)
	}
	if s.SessionsRecorded != 2 || s.FinishedAt.IsZero() || s.Running() {
		t.Errorf("unexpected state: %+v", s)
	}
	if s.CeilingBytes != 1<<30 || s.Namespace != "amr7" {
		t.Errorf("unexpected state: %+v", s)
	}

	latest, err := store.Latest(cfg.JournalPath())
	if err != nil || latest == "" {
		t.Fatalf("Latest: %q, %v", latest, err)
	}
	if latest != s.Journal {
		t.Errorf("state journal %q, latest %q", s.Journal, latest)
	}
	entries, err := store.NewTail(latest).Next()
	if err != nil {
		t.Fatal(err)
	}
	if last := entries[len(entries)-1]; last.Kind != loop.LogDone {
		t.Errorf("last journal entry kind = %s, want complete", last.Kind)
	}
}

func TestRunHeadlessCancelled(t *testing.T) {
	noColor(t)
	cfg, lp, _ := testSetup(t)
	lp.MaxSessions = 0
	sk, err := openSinks(cfg, 1<<30)
	if err != nil {
		t.Fatal(err)
	}
	defer sk.close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err = runHeadless(ctx, lp, supervisor.New(cfg), sk, &out)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !strings.Contains(out.String(), "Capture rotation stopped") {
		t.Errorf("missing stop line:\n%s", out.String())
	}

	s, _ := state.Load(cfg.StateDir())
	if s.FinishedAt.IsZero() {
		t.Error("stopped run should record a finish time")
	}
}

func TestOpenSinksRetention(t *testing.T) {
	cfg, _, _ := testSetup(t)
	cfg.Journal.Retention = 1

	first, err := openSinks(cfg, 1)
	if err != nil {
		t.Fatal(err)
	}
	_ = first.close()
	// Journal names carry a Unix-second timestamp.
	time.Sleep(1100 * time.Millisecond)

	second, err := openSinks(cfg, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer second.close()

	matches, _ := filepath.Glob(filepath.Join(cfg.JournalPath(), "*.jsonl"))
	if len(matches) != 1 {
		t.Errorf("expected 1 journal after retention, got %v", matches)
	}
}
