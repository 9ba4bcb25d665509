package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/docker/go-units"
	"github.com/fatih/color"

	"github.com/LISSConsulting/bagkeeper/internal/config"
	"github.com/LISSConsulting/bagkeeper/internal/loop"
	"github.com/LISSConsulting/bagkeeper/internal/state"
	"github.com/LISSConsulting/bagkeeper/internal/store"
	"github.com/LISSConsulting/bagkeeper/internal/supervisor"
	"github.com/LISSConsulting/bagkeeper/internal/tui"
)

// sinks receives every loop event on the drain goroutine: the run journal
// and the state file read by `bagkeeper status`.
type sinks struct {
	journal store.Store
	tracker *state.Tracker
	err     error // first journal write failure
}

// openSinks creates the run journal, prunes old journals and starts state
// tracking.
func openSinks(cfg *config.Config, ceiling int64) (*sinks, error) {
	tracker, err := state.NewTracker(cfg.StateDir(), cfg.Capture.Namespace, cfg.RootPath(), ceiling)
	if err != nil {
		return nil, err
	}
	journal, err := store.NewJSONL(cfg.JournalPath())
	if err != nil {
		return nil, err
	}
	tracker.SetJournal(journal.Path())
	if err := store.EnforceRetention(cfg.JournalPath(), cfg.Journal.Retention); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return &sinks{journal: journal, tracker: tracker}, nil
}

func (s *sinks) record(entry loop.LogEntry) {
	if err := s.journal.Append(entry); err != nil && s.err == nil {
		s.err = err
	}
	s.tracker.Track(entry)
}

// summary reads the run totals back from the journal index.
func (s *sinks) summary() (store.RunSummary, []store.SessionSummary, error) {
	run, err := s.journal.RunSummary()
	if err != nil {
		return store.RunSummary{}, nil, err
	}
	sessions, err := s.journal.Sessions()
	if err != nil {
		return store.RunSummary{}, nil, err
	}
	return run, sessions, nil
}

// close flushes the journal and reports the first persistence failure.
func (s *sinks) close() error {
	return errors.Join(s.err, s.tracker.Err(), s.journal.Close())
}

// runHeadless runs the loop under supervision with events drained to out as
// colored log lines.
func runHeadless(ctx context.Context, lp *loop.Loop, sup *supervisor.Supervisor, sk *sinks, out io.Writer) error {
	events := make(chan loop.LogEntry, 128)
	lp.Events = events
	sup.Events = events

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for entry := range events {
			sup.Observe(entry)
			sk.record(entry)
			fmt.Fprintln(out, formatLogLine(entry))
		}
	}()

	err := sup.Supervise(ctx, lp.Run)
	close(events)
	<-drainDone
	return err
}

// runWithTUI runs the loop under supervision with the terminal UI. Loop events pass through
// the sinks before reaching the TUI. The first q in the TUI cancels the run;
// the loop still finishes the current session's graceful stop and eviction
// pass, and this function waits for it even if the TUI is force-quit.
func runWithTUI(ctx context.Context, lp *loop.Loop, sup *supervisor.Supervisor, sk *sinks, opts tui.Options) error {
	loopEvents := make(chan loop.LogEntry, 128)
	tuiEvents := make(chan loop.LogEntry, 128)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	opts.RequestStop = stop
	lp.Events = loopEvents
	sup.Events = loopEvents

	program := tea.NewProgram(tui.New(tuiEvents, opts), tea.WithAltScreen())

	// Forward loop events → sinks → TUI
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for entry := range loopEvents {
			sup.Observe(entry)
			sk.record(entry)
			select {
			case tuiEvents <- entry:
			default:
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		defer close(tuiEvents)
		runErr := sup.Supervise(runCtx, lp.Run)
		close(loopEvents)
		<-forwardDone
		errCh <- runErr
	}()

	tuiErr := finishTUI(program)
	stop()

	var loopErr error
	select {
	case loopErr = <-errCh:
	default:
		fmt.Fprintln(os.Stderr, "Waiting for the current session to stop…")
		loopErr = <-errCh
	}

	if tuiErr != nil {
		return tuiErr
	}
	return loopErr
}

// finishTUI runs the bubbletea program until it quits.
func finishTUI(program *tea.Program) error {
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

var (
	dim    = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	alert  = color.New(color.FgRed, color.Bold).SprintFunc()
)

// formatRunSummary renders the totals printed when `bagkeeper run` exits.
func formatRunSummary(run store.RunSummary, sessions []store.SessionSummary) string {
	var early int
	var recorded float64
	for _, s := range sessions {
		recorded += s.Duration
		if s.Status == "early" {
			early++
		}
	}
	total := time.Duration(recorded * float64(time.Second)).Round(time.Second)
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %d sessions (%d failed, %d stopped early), %s recorded\n",
		run.RunID, run.Sessions, run.Failed, early, total)
	if run.Evictions > 0 {
		fmt.Fprintf(&b, "  %d evictions freed %s\n", run.Evictions, units.BytesSize(float64(run.EvictedBytes)))
	}
	if run.LastAlert != "" {
		fmt.Fprintf(&b, "  Last alert: %s\n", run.LastAlert)
	}
	return b.String()
}

// formatLogLine renders one event for the console: a dimmed timestamp and
// the message colored by kind.
func formatLogLine(entry loop.LogEntry) string {
	msg := entry.Message
	switch entry.Kind {
	case loop.LogSessionStart:
		msg = cyan(msg)
	case loop.LogSessionDone:
		if entry.Early {
			msg = yellow(msg)
		} else {
			msg = green(msg)
		}
	case loop.LogEvict:
		msg = yellow(msg)
	case loop.LogError:
		msg = red(msg)
	case loop.LogAlert:
		msg = alert(msg)
	case loop.LogDone, loop.LogStopped:
		msg = bold(msg)
	case loop.LogPoolSize:
		msg = dim(msg)
	}
	return dim("["+entry.Timestamp.Format("15:04:05")+"]") + "  " + msg
}
