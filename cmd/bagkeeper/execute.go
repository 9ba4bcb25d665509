package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"

	"github.com/LISSConsulting/bagkeeper/internal/capture"
	"github.com/LISSConsulting/bagkeeper/internal/config"
	"github.com/LISSConsulting/bagkeeper/internal/loop"
	"github.com/LISSConsulting/bagkeeper/internal/notify"
	"github.com/LISSConsulting/bagkeeper/internal/pool"
	"github.com/LISSConsulting/bagkeeper/internal/state"
	"github.com/LISSConsulting/bagkeeper/internal/store"
	"github.com/LISSConsulting/bagkeeper/internal/supervisor"
	"github.com/LISSConsulting/bagkeeper/internal/tui"
)

// loadConfig loads and validates bagkeeper.toml.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// newRecorder builds the capture recorder described by cfg.
func newRecorder(cfg *config.Config) (*capture.Recorder, error) {
	topics, err := capture.NewTopicSet(cfg.Topics.Patterns, cfg.Topics.Exclude)
	if err != nil {
		return nil, err
	}
	rec := capture.NewRecorder(cfg.RootPath(), topics)
	if cfg.Capture.Executable != "" {
		rec.Executable = cfg.Capture.Executable
	}
	if len(cfg.Capture.Args) > 0 {
		rec.BaseArgs = cfg.Capture.Args
	}
	rec.IncludeHidden = cfg.Capture.IncludeHidden
	rec.StopTimeout = cfg.StopTimeout()
	return rec, nil
}

// executeRun loads config, builds the recorder and loop, and runs it until
// the session limit or a shutdown signal. A signal-driven stop is a normal
// exit.
func executeRun(configPath string, maxSessions int, noTUI bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ceiling, err := cfg.CeilingBytes()
	if err != nil {
		return err
	}
	rec, err := newRecorder(cfg)
	if err != nil {
		return err
	}

	lp := &loop.Loop{
		Recorder:    rec,
		Config:      cfg,
		MaxSessions: maxSessions,
	}
	rec.OnStart = lp.SessionStarted
	sup := supervisor.New(cfg)

	if cfg.Notifications.URL != "" {
		n := notify.New(cfg.Notifications.URL, cfg.Capture.Namespace,
			cfg.Notifications.OnEvictFailure, cfg.Notifications.OnError, cfg.Notifications.OnStop)
		lp.NotificationHook = n.Hook
		sup.NotificationHook = n.Hook
	}

	sk, err := openSinks(cfg, ceiling)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	registerQuitHandler()

	if noTUI {
		rec.Stdout = os.Stdout
		rec.Stderr = os.Stderr
		err = runHeadless(ctx, lp, sup, sk, os.Stdout)
	} else {
		err = runWithTUI(ctx, lp, sup, sk, tui.Options{
			AccentColor: cfg.TUI.AccentColor,
			Namespace:   cfg.Capture.Namespace,
			Root:        cfg.RootPath(),
			Ceiling:     ceiling,
			MaxSessions: maxSessions,
		})
	}

	if run, sessions, sumErr := sk.summary(); sumErr == nil && run.Sessions > 0 {
		fmt.Print(formatRunSummary(run, sessions))
	}
	if closeErr := sk.close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", closeErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// executePrune runs one eviction pass outside of a recording run.
func executePrune(configPath string, dryRun bool, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ceiling, err := cfg.CeilingBytes()
	if err != nil {
		return err
	}
	root := cfg.RootPath()

	if dryRun {
		sessions, err := pool.Sessions(root)
		if err != nil {
			return err
		}
		size, err := pool.Size(root)
		if err != nil {
			return err
		}
		fmt.Fprint(out, formatPrunePlan(planEviction(sessions, size, ceiling), size, ceiling))
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := pool.Enforce(ctx, root, ceiling, func(s pool.Session) {
		fmt.Fprintf(out, "Evicted %s (%s)\n", s.Path, units.BytesSize(float64(s.Size)))
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Pool %s of %s — %d sessions evicted\n",
		units.BytesSize(float64(res.Size)), units.BytesSize(float64(ceiling)), len(res.Evicted))
	if res.Empty && res.Size > ceiling {
		fmt.Fprintln(out, "Pool is still over the ceiling with no sessions left to evict.")
	}
	return nil
}

// planEviction returns the sessions Enforce would remove, oldest first.
func planEviction(sessions []pool.Session, size, ceiling int64) []pool.Session {
	var plan []pool.Session
	for _, s := range sessions {
		if size <= ceiling {
			break
		}
		plan = append(plan, s)
		size -= s.Size
	}
	return plan
}

func formatPrunePlan(plan []pool.Session, size, ceiling int64) string {
	if len(plan) == 0 {
		return fmt.Sprintf("Pool %s of %s — nothing to evict\n",
			units.BytesSize(float64(size)), units.BytesSize(float64(ceiling)))
	}
	var b strings.Builder
	var freed int64
	for _, s := range plan {
		freed += s.Size
		fmt.Fprintf(&b, "Would evict %s (%s)\n", s.Path, units.BytesSize(float64(s.Size)))
	}
	fmt.Fprintf(&b, "Pool %s of %s — %d sessions, %s would be freed\n",
		units.BytesSize(float64(size)), units.BytesSize(float64(ceiling)), len(plan), units.BytesSize(float64(freed)))
	return b.String()
}

// showStatus reads .bagkeeper/state.json and prints a summary followed by
// the last events of the run journal.
func showStatus(configPath string, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	s, err := state.Load(cfg.StateDir())
	if err != nil {
		return err
	}
	fmt.Fprint(out, formatStatus(s, time.Now(), processAlive(s.PID)))

	if s.Journal == "" {
		return nil
	}
	entries, err := store.NewTail(s.Journal).Next()
	if err != nil {
		// Journal rotated away by retention; the state summary is still valid.
		return nil
	}
	fmt.Fprint(out, formatRecent(entries, 5))
	return nil
}

// statusResult classifies a persisted run for display.
type statusResult int

const (
	statusNoState statusResult = iota
	statusRunning
	statusStale
	statusComplete
	statusFailures
)

func classifyResult(s state.State, alive bool) statusResult {
	switch {
	case s.PID == 0 && s.StartedAt.IsZero():
		return statusNoState
	case s.Running() && alive:
		return statusRunning
	case s.Running():
		return statusStale
	case s.SessionsFailed > 0:
		return statusFailures
	default:
		return statusComplete
	}
}

// formatStatus renders the persisted state. alive reports whether the
// recorded PID is still running.
func formatStatus(s state.State, now time.Time, alive bool) string {
	result := classifyResult(s, alive)
	if result == statusNoState {
		return "No state found. Run 'bagkeeper run' first.\n"
	}

	var b strings.Builder
	b.WriteString("bagkeeper Status\n")
	b.WriteString("────────────────\n")
	line := func(label, format string, args ...any) {
		fmt.Fprintf(&b, "  %-20s %s\n", label, fmt.Sprintf(format, args...))
	}

	if s.Namespace != "" {
		line("Namespace:", "%s", s.Namespace)
	}
	if s.Root != "" {
		line("Root:", "%s", s.Root)
	}
	pct := 0.0
	if s.CeilingBytes > 0 {
		pct = float64(s.PoolBytes) / float64(s.CeilingBytes) * 100
	}
	line("Pool:", "%s of %s (%.0f%%)", units.BytesSize(float64(s.PoolBytes)), units.BytesSize(float64(s.CeilingBytes)), pct)
	line("Session:", "%d", s.Session)
	if result == statusRunning && s.CurrentSession != "" {
		line("Recording:", "%s", s.CurrentSession)
	}
	line("Recorded:", "%d (%d failed)", s.SessionsRecorded, s.SessionsFailed)
	line("Evictions:", "%d", s.Evictions)

	switch {
	case result == statusRunning:
		line("Duration:", "%s (running)", now.Sub(s.StartedAt).Round(time.Second))
		if !s.LastEventAt.IsZero() {
			line("Last event:", "%s ago", now.Sub(s.LastEventAt).Round(time.Second))
		}
	case !s.FinishedAt.IsZero():
		line("Duration:", "%s", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	}

	if s.LastError != "" {
		line("Last error:", "%s", s.LastError)
	}
	if s.LastAlert != "" {
		line("Last alert:", "%s", s.LastAlert)
	}

	switch result {
	case statusRunning:
		line("Result:", "running")
	case statusStale:
		line("Result:", "stale (process %d is gone)", s.PID)
	case statusFailures:
		line("Result:", "finished with %d failed sessions", s.SessionsFailed)
	default:
		line("Result:", "finished")
	}
	return b.String()
}

// formatRecent renders the last n journal entries.
func formatRecent(entries []loop.LogEntry, n int) string {
	if len(entries) == 0 {
		return ""
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	var b strings.Builder
	b.WriteString("\nRecent events\n")
	for _, e := range entries {
		b.WriteString("  " + formatLogLine(e) + "\n")
	}
	return b.String()
}

// followJournal prints the current run journal and then every line appended
// to it until ctx is cancelled. When a newer journal appears in the same
// directory (a new run started), it switches to that one.
func followJournal(ctx context.Context, configPath string, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	dir := cfg.JournalPath()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("follow: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("follow: watch %s: %w", dir, err)
	}

	path, err := store.Latest(dir)
	if err != nil {
		return err
	}
	var tail *store.Tail
	if path == "" {
		fmt.Fprintf(out, "Waiting for a run journal in %s\n", dir)
	} else {
		tail = store.NewTail(path)
	}

	drain := func() error {
		if tail == nil {
			return nil
		}
		entries, err := tail.Next()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintln(out, formatLogLine(e))
		}
		return nil
	}
	if err := drain(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("follow: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".jsonl" {
				continue
			}
			if ev.Has(fsnotify.Create) && ev.Name != path {
				latest, latestErr := store.Latest(dir)
				if latestErr == nil && latest == ev.Name {
					if err := drain(); err != nil {
						return err
					}
					path = latest
					tail = store.NewTail(path)
					fmt.Fprintf(out, "── new run: %s\n", path)
				}
			}
			if ev.Name == path && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				if err := drain(); err != nil {
					return err
				}
			}
		}
	}
}
