package capture

// State is the lifecycle of one recording session.
type State int

const (
	StateNotStarted State = iota
	StateRecording
	StateStopping
	StateDone
)

// String returns the display label for the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Any state may jump to Done: a failed session still ends.
func (s State) CanTransitionTo(next State) bool {
	if next == StateDone {
		return s != StateDone
	}
	return next == s+1
}
