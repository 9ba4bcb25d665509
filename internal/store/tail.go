package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/LISSConsulting/bagkeeper/internal/loop"
)

// Latest returns the path of the newest run journal in dir, or "" if there
// is none.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: read dir %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return "", nil
	}
	sort.Strings(files)
	return filepath.Join(dir, files[len(files)-1]), nil
}

// Tail reads a journal incrementally. Each call to Next returns the complete
// lines appended since the previous call; a partially written last line is
// held back until its newline arrives.
type Tail struct {
	path string
	pos  int64
}

// NewTail starts reading path from the beginning.
func NewTail(path string) *Tail {
	return &Tail{path: path}
}

// Next returns the entries appended since the last call.
func (t *Tail) Next() ([]loop.LogEntry, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", t.path, err)
	}
	defer f.Close()

	if _, err := f.Seek(t.pos, io.SeekStart); err != nil {
		return nil, fmt.Errorf("store: seek: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("store: read %q: %w", t.path, err)
	}
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, nil
	}
	t.pos += int64(end + 1)
	return decodeLines(data[:end+1], t.path), nil
}
