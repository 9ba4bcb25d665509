package loop

import "time"

// LogKind identifies the type of a loop log event.
type LogKind int

const (
	LogInfo         LogKind = iota // General informational message
	LogPoolSize                    // Pool size measured against the ceiling
	LogSessionStart                // Capture tool started for a session
	LogSessionDone                 // Session stopped and flushed
	LogEvict                       // Oldest session removed
	LogError                       // Session or measurement failure
	LogAlert                       // Ceiling cannot be enforced; needs an operator
	LogDone                        // Loop finished normally
	LogStopped                     // Loop stopped (context cancelled)
)

// String returns a short lowercase label for the kind.
func (k LogKind) String() string {
	switch k {
	case LogInfo:
		return "info"
	case LogPoolSize:
		return "pool"
	case LogSessionStart:
		return "start"
	case LogSessionDone:
		return "done"
	case LogEvict:
		return "evict"
	case LogError:
		return "error"
	case LogAlert:
		return "alert"
	case LogDone:
		return "complete"
	case LogStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// LogEntry is a structured event emitted by the loop during execution.
// When the Loop.Events channel is set, entries are sent there for the
// journal, state tracker and TUI. Otherwise, they fall back to the Loop.Log
// io.Writer.
type LogEntry struct {
	Kind      LogKind
	Timestamp time.Time
	Message   string

	// Session fields
	Session   int    // 1-based session number within this run
	Path      string // session directory
	Namespace string
	Duration  float64 // seconds the session recorded
	Early     bool    // session stopped early for shutdown

	// Pool fields
	PoolBytes    int64
	CeilingBytes int64
	Bytes        int64 // size of an evicted session

	// Running totals
	Recorded  int
	Failed    int
	Evictions int
}
