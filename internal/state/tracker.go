package state

import (
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/LISSConsulting/bagkeeper/internal/loop"
)

// Tracker folds loop events into a State and saves it after every change
// that `status` reports on. It is not safe for concurrent use; the drain
// goroutine owns it.
type Tracker struct {
	dir   string
	state State
	err   error
}

// NewTracker starts tracking a new run. The run gets a fresh ID and the
// current PID; the state is saved immediately.
func NewTracker(dir, namespace, root string, ceiling int64) (*Tracker, error) {
	t := &Tracker{
		dir: dir,
		state: State{
			PID:          os.Getpid(),
			RunID:        uuid.NewString(),
			Namespace:    namespace,
			Root:         root,
			CeilingBytes: ceiling,
			StartedAt:    time.Now(),
		},
	}
	if err := Save(dir, t.state); err != nil {
		return nil, err
	}
	return t, nil
}

// State returns the current snapshot.
func (t *Tracker) State() State {
	return t.state
}

// SetJournal records the path of the run's journal file.
func (t *Tracker) SetJournal(path string) {
	t.state.Journal = path
	t.save()
}

// Err returns the most recent save error, if any.
func (t *Tracker) Err() error {
	return t.err
}

// Track applies entry to the state. Pool and session events are saved at
// once; plain info lines only move LastEventAt and are not written.
func (t *Tracker) Track(entry loop.LogEntry) {
	s := &t.state
	s.LastEventAt = entry.Timestamp
	// Counters ride on loop events only; supervisor alerts carry no session.
	if entry.Session > 0 {
		s.Session = entry.Session
		s.SessionsRecorded = entry.Recorded
		s.SessionsFailed = entry.Failed
		s.Evictions = entry.Evictions
	}

	switch entry.Kind {
	case loop.LogInfo:
		return
	case loop.LogPoolSize:
		s.PoolBytes = entry.PoolBytes
		if entry.CeilingBytes > 0 {
			s.CeilingBytes = entry.CeilingBytes
		}
	case loop.LogSessionStart:
		s.CurrentSession = entry.Path
		if entry.Namespace != "" {
			s.Namespace = entry.Namespace
		}
	case loop.LogSessionDone:
		s.CurrentSession = ""
	case loop.LogEvict:
		s.PoolBytes -= entry.Bytes
		if s.PoolBytes < 0 {
			s.PoolBytes = 0
		}
	case loop.LogError:
		s.CurrentSession = ""
		s.LastError = entry.Message
	case loop.LogAlert:
		s.LastAlert = entry.Message
		if entry.PoolBytes > 0 {
			s.PoolBytes = entry.PoolBytes
		}
	case loop.LogDone, loop.LogStopped:
		s.CurrentSession = ""
		s.FinishedAt = entry.Timestamp
	}
	t.save()
}

func (t *Tracker) save() {
	t.err = Save(t.dir, t.state)
}
