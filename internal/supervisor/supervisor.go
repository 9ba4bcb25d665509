// Package supervisor keeps the capture loop alive on an unattended robot:
// a crashed loop is restarted with backoff, and a loop that goes silent for
// too long raises an alert.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LISSConsulting/bagkeeper/internal/config"
	"github.com/LISSConsulting/bagkeeper/internal/loop"
)

// RunFunc is the function the Supervisor supervises. Typically wraps loop.Loop.Run.
type RunFunc func(ctx context.Context) error

// Supervisor restarts a panicking RunFunc and watches for stalls.
type Supervisor struct {
	maxRestarts  int
	backoff      time.Duration
	stallTimeout time.Duration

	// Events, if set, receives supervisor alerts and notices.
	Events chan<- loop.LogEntry

	// NotificationHook, if set, is called with every alert.
	NotificationHook func(loop.LogEntry)

	// mu protects lastEventAt and stalled
	mu          sync.Mutex
	lastEventAt time.Time
	stalled     bool
}

// New creates a Supervisor from the [supervisor] section and the session
// timing of cfg.
func New(cfg *config.Config) *Supervisor {
	return &Supervisor{
		maxRestarts:  cfg.Supervisor.MaxRestarts,
		backoff:      time.Duration(cfg.Supervisor.RestartBackoffSeconds) * time.Second,
		stallTimeout: cfg.StallTimeout(),
		lastEventAt:  time.Now(),
	}
}

// CrashError reports a panic recovered from the supervised function.
type CrashError struct {
	Value any
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("capture loop crashed: %v", e.Value)
}

// Supervise runs run until it returns. A panic is recovered and run is
// started again after the backoff, up to the configured number of
// consecutive restarts. Errors returned by run are passed through unchanged:
// they come from configuration or cancellation and a restart would not help.
func (s *Supervisor) Supervise(ctx context.Context, run RunFunc) error {
	var crashes int
	for {
		s.touch()
		err := s.runWatched(ctx, run)

		var crash *CrashError
		if !errors.As(err, &crash) {
			return err
		}
		crashes++
		s.alert(crash.Error())

		if crashes > s.maxRestarts {
			s.alert(fmt.Sprintf("Max restarts (%d) exceeded — giving up", s.maxRestarts))
			return fmt.Errorf("supervisor: max restarts exceeded after %d crashes: %w", crashes, crash)
		}

		s.notice(fmt.Sprintf("Restarting capture loop in %s (restart %d/%d)", s.backoff, crashes, s.maxRestarts))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff):
		}
	}
}

// runWatched calls run with a stall watchdog alongside it.
func (s *Supervisor) runWatched(ctx context.Context, run RunFunc) (err error) {
	watchCtx, stop := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		s.watch(watchCtx)
	}()
	defer func() {
		stop()
		<-watchDone
	}()

	defer func() {
		if v := recover(); v != nil {
			err = &CrashError{Value: v}
		}
	}()
	return run(ctx)
}

// watch raises one alert per stall: once the loop has been silent for the
// stall timeout, and again only after it has produced an event.
func (s *Supervisor) watch(ctx context.Context) {
	if s.stallTimeout <= 0 {
		return
	}
	tick := s.stallTimeout / 4
	if tick > time.Minute {
		tick = time.Minute
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			silent := time.Since(s.lastEventAt)
			fire := silent >= s.stallTimeout && !s.stalled
			if fire {
				s.stalled = true
			}
			s.mu.Unlock()

			if fire {
				s.alert(fmt.Sprintf("Capture loop stalled — no events for %s; the recorder may be hung", silent.Round(time.Second)))
			}
		}
	}
}

// Observe resets the stall timer. Call it for every loop event. Alerts do
// not count as activity.
func (s *Supervisor) Observe(entry loop.LogEntry) {
	if entry.Kind == loop.LogAlert {
		return
	}
	s.touch()
}

func (s *Supervisor) touch() {
	s.mu.Lock()
	s.lastEventAt = time.Now()
	s.stalled = false
	s.mu.Unlock()
}

func (s *Supervisor) alert(msg string) {
	entry := loop.LogEntry{Kind: loop.LogAlert, Timestamp: time.Now(), Message: msg}
	if s.NotificationHook != nil {
		s.NotificationHook(entry)
	}
	s.send(entry)
}

func (s *Supervisor) notice(msg string) {
	s.send(loop.LogEntry{Kind: loop.LogInfo, Timestamp: time.Now(), Message: msg})
}

func (s *Supervisor) send(entry loop.LogEntry) {
	if s.Events == nil {
		return
	}
	s.Events <- entry
}
