package pool

import "fmt"

// FilesystemError reports a failed size scan or session removal. An eviction
// failure leaves the pool above its ceiling, so callers surface it loudly.
type FilesystemError struct {
	Op   string // "size", "list" or "evict"
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("pool: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }
