// Package store persists loop events to a JSONL run journal and provides
// indexed read-back of past sessions. One store instance is created per
// bagkeeper run in cmd/bagkeeper/wiring.go.
package store

import (
	"time"

	"github.com/LISSConsulting/bagkeeper/internal/loop"
)

// Writer persists loop events to durable storage.
type Writer interface {
	Append(entry loop.LogEntry) error
	Close() error
}

// Reader retrieves past session data from storage.
type Reader interface {
	Sessions() ([]SessionSummary, error)
	SessionLog(n int) ([]loop.LogEntry, error)
	RunSummary() (RunSummary, error)
}

// Store combines Writer and Reader into a single run-scoped handle.
type Store interface {
	Writer
	Reader
}

// SessionSummary summarises one finished recording session.
type SessionSummary struct {
	Number    int
	Path      string
	Namespace string
	Duration  float64
	Status    string // "ok", "early" or "error"
	StartAt   time.Time
	EndAt     time.Time
}

// RunSummary summarises the current run.
type RunSummary struct {
	RunID        string
	StartedAt    time.Time
	Namespace    string
	Sessions     int
	Failed       int
	Evictions    int
	EvictedBytes int64
	LastAlert    string
}
