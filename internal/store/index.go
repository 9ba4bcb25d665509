package store

import "github.com/LISSConsulting/bagkeeper/internal/loop"

// sessionRange is the [start, end) byte range of one session in the JSONL
// file. start is the offset of the LogSessionStart line; end is the offset of
// the first byte after the line that finished the session.
type sessionRange struct {
	start int64
	end   int64
}

// fileIndex maintains in-memory byte-offset bookmarks per finished session.
// It is updated by onAppend as each LogEntry is written and provides O(1)
// lookup for SessionLog reads via file.ReadAt.
type fileIndex struct {
	summaries []SessionSummary     // ordered by completion time
	ranges    map[int]sessionRange // session Number → byte range
	pending   *pendingSession      // open session being recorded (nil if none)

	namespace    string
	evictions    int
	evictedBytes int64
	failed       int
	lastAlert    string
}

// pendingSession accumulates state for the session currently being written.
type pendingSession struct {
	startOffset int64
	summary     SessionSummary
}

func newFileIndex() *fileIndex {
	return &fileIndex{ranges: make(map[int]sessionRange)}
}

// onAppend updates the index when a LogEntry line has been appended.
// lineOffset is the byte offset of the first byte of the written line;
// lineLen is the total bytes written (including the trailing newline).
func (idx *fileIndex) onAppend(entry loop.LogEntry, lineOffset, lineLen int64) {
	if entry.Namespace != "" {
		idx.namespace = entry.Namespace
	}
	idx.failed = entry.Failed

	switch entry.Kind {
	case loop.LogSessionStart:
		idx.pending = &pendingSession{
			startOffset: lineOffset,
			summary: SessionSummary{
				Number:    entry.Session,
				Path:      entry.Path,
				Namespace: entry.Namespace,
				StartAt:   entry.Timestamp,
			},
		}
	case loop.LogSessionDone, loop.LogError:
		if idx.pending == nil || idx.pending.summary.Number != entry.Session {
			return
		}
		s := idx.pending.summary
		s.Duration = entry.Duration
		s.EndAt = entry.Timestamp
		switch {
		case entry.Kind == loop.LogError:
			s.Status = "error"
		case entry.Early:
			s.Status = "early"
		default:
			s.Status = "ok"
		}
		idx.ranges[s.Number] = sessionRange{
			start: idx.pending.startOffset,
			end:   lineOffset + lineLen,
		}
		idx.summaries = append(idx.summaries, s)
		idx.pending = nil
	case loop.LogEvict:
		idx.evictions++
		idx.evictedBytes += entry.Bytes
	case loop.LogAlert:
		idx.lastAlert = entry.Message
	}
}
