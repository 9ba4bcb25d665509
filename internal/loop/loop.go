// Package loop implements the capture rotation cycle: measure the pool,
// record one session, then evict the oldest sessions until the pool is back
// under its ceiling.
package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/go-units"

	"github.com/LISSConsulting/bagkeeper/internal/capture"
	"github.com/LISSConsulting/bagkeeper/internal/config"
	"github.com/LISSConsulting/bagkeeper/internal/pool"
)

// Recorder records one bounded session. *capture.Recorder satisfies this
// interface.
type Recorder interface {
	Record(ctx context.Context, namespace string, duration time.Duration) (capture.Result, error)
}

// Loop runs recording sessions back to back while keeping the pool under
// the configured ceiling. Session failures are logged and never end the loop.
type Loop struct {
	Recorder Recorder
	Config   *config.Config
	Log      io.Writer // output destination when Events is nil; defaults to os.Stdout

	// Events, if set, receives every LogEntry instead of Log.
	Events chan<- LogEntry

	// NotificationHook, if set, is called with every LogEntry.
	NotificationHook func(LogEntry)

	// MaxSessions stops the loop after that many sessions. 0 = run forever.
	MaxSessions int

	session   int
	recorded  int
	failed    int
	evictions int
	ceiling   int64
}

// Run executes sessions until MaxSessions is reached or the context is
// cancelled. A cancelled context interrupts the current session, which is
// still stopped gracefully and followed by one eviction pass. Calling Run
// again on the same Loop continues the session numbering and counters;
// MaxSessions bounds the total.
func (l *Loop) Run(ctx context.Context) error {
	ceiling, err := l.Config.CeilingBytes()
	if err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	l.ceiling = ceiling
	root := l.Config.RootPath()
	interval := l.Config.Interval()
	ns := l.Config.Capture.Namespace

	l.emit(LogEntry{
		Kind:         LogInfo,
		Namespace:    ns,
		CeilingBytes: ceiling,
		Message: fmt.Sprintf("Starting capture rotation in %s (namespace %q, %s sessions, ceiling %s, max: %s)",
			root, ns, interval, units.BytesSize(float64(ceiling)), sessionLabel(l.MaxSessions)),
	})

	for n := l.session + 1; l.MaxSessions == 0 || n <= l.MaxSessions; n++ {
		select {
		case <-ctx.Done():
			l.stopped(ctx.Err())
			return ctx.Err()
		default:
		}

		l.session = n
		l.reportPool(root)

		res, recErr := l.Recorder.Record(ctx, ns, interval)
		l.finishSession(res, recErr)

		l.enforce(context.WithoutCancel(ctx), root)

		if ctx.Err() != nil {
			l.stopped(ctx.Err())
			return ctx.Err()
		}
	}

	l.emit(LogEntry{
		Kind:    LogDone,
		Message: fmt.Sprintf("Capture rotation complete — %d sessions recorded, %d failed, %d evicted", l.recorded, l.failed, l.evictions),
	})
	return nil
}

// SessionStarted reports that the capture tool is running for the current
// session. Wire it to capture.Recorder.OnStart.
func (l *Loop) SessionStarted(path string, _ []string) {
	l.emit(LogEntry{
		Kind:      LogSessionStart,
		Path:      path,
		Namespace: l.Config.Capture.Namespace,
		Message:   fmt.Sprintf("── session %d ── recording %s", l.session, path),
	})
}

func (l *Loop) finishSession(res capture.Result, err error) {
	if err != nil {
		l.failed++
		l.emit(LogEntry{
			Kind:    LogError,
			Path:    res.Path,
			Message: fmt.Sprintf("Session %d failed: %v", l.session, err),
		})
		return
	}

	l.recorded++
	dur := res.StoppedAt.Sub(res.StartedAt).Seconds()
	msg := fmt.Sprintf("Session %d complete — %s — %.0fs", l.session, res.Path, dur)
	if res.Interrupted {
		msg = fmt.Sprintf("Session %d stopped early for shutdown — %s — %.0fs", l.session, res.Path, dur)
	}
	l.emit(LogEntry{
		Kind:     LogSessionDone,
		Path:     res.Path,
		Duration: dur,
		Early:    res.Interrupted,
		Message:  msg,
	})
}

func (l *Loop) reportPool(root string) {
	size, err := pool.Size(root)
	if err != nil {
		l.emit(LogEntry{Kind: LogError, Message: fmt.Sprintf("Pool size check failed: %v", err)})
		return
	}
	l.emit(LogEntry{
		Kind:         LogPoolSize,
		PoolBytes:    size,
		CeilingBytes: l.ceiling,
		Message:      fmt.Sprintf("Pool size %s of %s", units.BytesSize(float64(size)), units.BytesSize(float64(l.ceiling))),
	})
}

// enforce runs one eviction pass. Failures are raised as LogAlert: they leave
// the pool above its ceiling until the next pass.
func (l *Loop) enforce(ctx context.Context, root string) {
	res, err := pool.Enforce(ctx, root, l.ceiling, func(s pool.Session) {
		l.evictions++
		l.emit(LogEntry{
			Kind:    LogEvict,
			Path:    s.Path,
			Bytes:   s.Size,
			Message: evictMessage(s),
		})
	})

	var fsErr *pool.FilesystemError
	switch {
	case errors.As(err, &fsErr):
		l.emit(LogEntry{
			Kind:         LogAlert,
			Path:         fsErr.Path,
			PoolBytes:    res.Size,
			CeilingBytes: l.ceiling,
			Message:      fmt.Sprintf("Cannot enforce storage ceiling: %v", fsErr),
		})
	case err != nil:
		l.emit(LogEntry{Kind: LogError, Message: fmt.Sprintf("Eviction pass aborted: %v", err)})
	case res.Empty && res.Size > l.ceiling:
		l.emit(LogEntry{
			Kind:         LogAlert,
			PoolBytes:    res.Size,
			CeilingBytes: l.ceiling,
			Message: fmt.Sprintf("Pool still %s over ceiling with no sessions left to evict",
				units.BytesSize(float64(res.Size-l.ceiling))),
		})
	case len(res.Evicted) > 0:
		l.emit(LogEntry{
			Kind:         LogPoolSize,
			PoolBytes:    res.Size,
			CeilingBytes: l.ceiling,
			Message:      fmt.Sprintf("Pool size %s of %s after eviction", units.BytesSize(float64(res.Size)), units.BytesSize(float64(l.ceiling))),
		})
	}
}

func (l *Loop) stopped(err error) {
	l.emit(LogEntry{
		Kind:    LogStopped,
		Message: fmt.Sprintf("Capture rotation stopped: %v — %d sessions recorded, %d failed", err, l.recorded, l.failed),
	})
}

func (l *Loop) emit(entry LogEntry) {
	entry.Timestamp = time.Now()
	if entry.Session == 0 {
		entry.Session = l.session
	}
	entry.Recorded = l.recorded
	entry.Failed = l.failed
	entry.Evictions = l.evictions

	if l.NotificationHook != nil {
		l.NotificationHook(entry)
	}
	if l.Events != nil {
		l.Events <- entry
		return
	}

	w := l.Log
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "[%s]  %s\n", entry.Timestamp.Format("15:04:05"), entry.Message)
}

func evictMessage(s pool.Session) string {
	size := units.BytesSize(float64(s.Size))
	if s.SizeErr != nil {
		size = fmt.Sprintf("at least %s, size scan failed: %v", size, s.SizeErr)
	}
	return fmt.Sprintf("Storage limit exceeded — deleted oldest session %s (%s)", s.Path, size)
}

func sessionLabel(max int) string {
	if max == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", max)
}
