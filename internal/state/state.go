// Package state persists the running manager's state to
// .bagkeeper/state.json so `bagkeeper status` can report on it from another
// process.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the persisted snapshot of one bagkeeper run.
type State struct {
	PID              int       `json:"pid"`
	RunID            string    `json:"run_id"`
	Namespace        string    `json:"namespace"`
	Root             string    `json:"root"`
	Journal          string    `json:"journal,omitempty"`
	CeilingBytes     int64     `json:"ceiling_bytes"`
	PoolBytes        int64     `json:"pool_bytes"`
	Session          int       `json:"session"`
	CurrentSession   string    `json:"current_session,omitempty"`
	SessionsRecorded int       `json:"sessions_recorded"`
	SessionsFailed   int       `json:"sessions_failed"`
	Evictions        int       `json:"evictions"`
	LastError        string    `json:"last_error,omitempty"`
	LastAlert        string    `json:"last_alert,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	LastEventAt      time.Time `json:"last_event_at"`
}

// Running reports whether the run has not recorded a finish time.
func (s State) Running() bool {
	return !s.StartedAt.IsZero() && s.FinishedAt.IsZero()
}

// FileName is the state file within DirName.
const FileName = "state.json"

// DirName is the directory that holds the state file.
const DirName = ".bagkeeper"

// Path returns the state file location for dir.
func Path(dir string) string {
	return filepath.Join(dir, DirName, FileName)
}

// Load reads the state from .bagkeeper/state.json in dir.
// Returns a zero State (not an error) if the file does not exist.
func Load(dir string) (State, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("state: read: %w", err)
	}

	var s State
	if jsonErr := json.Unmarshal(data, &s); jsonErr != nil {
		return State{}, fmt.Errorf("state: parse: %w", jsonErr)
	}
	return s, nil
}

// Save writes the state to .bagkeeper/state.json in dir, creating the
// directory if needed. The file is written to a temp name and renamed so
// readers never observe a partially-written file.
func Save(dir string, s State) error {
	stateDir := filepath.Join(dir, DirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("state: create dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(stateDir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp: %w", err)
	}
	if _, writeErr := tmp.Write(data); writeErr != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("state: write: %w", writeErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("state: close: %w", closeErr)
	}
	if renameErr := os.Rename(tmp.Name(), Path(dir)); renameErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("state: finalize: %w", renameErr)
	}
	return nil
}
