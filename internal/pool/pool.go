// Package pool manages the storage pool: the set of session directories under
// one root. It measures the pool footprint and evicts the oldest sessions until
// the footprint is back under a ceiling.
package pool

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Session is one recorded session directory directly under the pool root.
type Session struct {
	Name      string
	Path      string
	CreatedAt time.Time
	Size      int64 // bytes; zero when listed without sizes

	// SizeErr is set when EvictOldest could not measure the session before
	// removing it. Size then holds the partial total.
	SizeErr error
}

// resolveRoot follows a symlinked pool root, such as bag_files pointing at a
// mounted disk. Links below the root are never followed. ok is false when
// the root does not exist.
func resolveRoot(root string) (string, bool, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return resolved, true, nil
}

// Size returns the total byte size of every regular file under root. A
// symlinked root is followed. A missing root is an empty pool. Files that disappear while the walk is
// running are skipped, since the recorder may still be writing into the
// newest session.
func Size(root string) (int64, error) {
	resolved, ok, err := resolveRoot(root)
	if err != nil {
		return 0, &FilesystemError{Op: "size", Path: root, Err: err}
	}
	if !ok {
		return 0, nil
	}

	var total int64
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			if errors.Is(infoErr, fs.ErrNotExist) {
				return nil
			}
			return infoErr
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return total, &FilesystemError{Op: "size", Path: root, Err: err}
	}
	return total, nil
}

// Sessions returns the session directories under root, oldest first, with
// their sizes filled in. A missing root yields no sessions.
func Sessions(root string) ([]Session, error) {
	sessions, err := list(root)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		size, sizeErr := Size(sessions[i].Path)
		if sizeErr != nil {
			return nil, sizeErr
		}
		sessions[i].Size = size
	}
	return sessions, nil
}

// EvictOldest removes the session directory with the earliest creation time,
// breaking ties by name. It reports false when there is nothing to evict.
func EvictOldest(root string) (Session, bool, error) {
	sessions, err := list(root)
	if err != nil {
		return Session{}, false, err
	}
	if len(sessions) == 0 {
		return Session{}, false, nil
	}

	oldest := sessions[0]
	if rel, relErr := filepath.Rel(root, oldest.Path); relErr != nil || rel != oldest.Name {
		return Session{}, false, &FilesystemError{Op: "evict", Path: oldest.Path, Err: errors.New("path escapes pool root")}
	}

	// The size only feeds the eviction report; a scan failure does not block
	// the removal.
	oldest.Size, oldest.SizeErr = Size(oldest.Path)

	if err := os.RemoveAll(oldest.Path); err != nil {
		return Session{}, false, &FilesystemError{Op: "evict", Path: oldest.Path, Err: err}
	}
	return oldest, true, nil
}

// EnforceResult describes one enforcement pass.
type EnforceResult struct {
	Evicted []Session
	Size    int64 // pool size after the pass
	Empty   bool  // stopped because no session was left to evict
}

// Enforce evicts the oldest sessions until the pool size is at or below
// ceiling, or until no session directory is left. A zero or negative ceiling
// therefore empties the pool and then stops. onEvict, if non-nil, is called
// after each removal. An eviction failure ends the pass with the error.
func Enforce(ctx context.Context, root string, ceiling int64, onEvict func(Session)) (EnforceResult, error) {
	var res EnforceResult
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		size, err := Size(root)
		if err != nil {
			return res, err
		}
		res.Size = size
		if size <= ceiling {
			return res, nil
		}

		s, ok, err := EvictOldest(root)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Empty = true
			return res, nil
		}
		res.Evicted = append(res.Evicted, s)
		if onEvict != nil {
			onEvict(s)
		}
	}
}

// list returns the immediate subdirectories of root ordered oldest first.
// Session paths stay under root as given. Symlinked entries are skipped, so
// eviction never reaches outside root.
func list(root string) ([]Session, error) {
	resolved, ok, err := resolveRoot(root)
	if err != nil {
		return nil, &FilesystemError{Op: "list", Path: root, Err: err}
	}
	if !ok {
		return nil, nil
	}
	entries, err := os.ReadDir(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &FilesystemError{Op: "list", Path: root, Err: err}
	}

	var sessions []Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, infoErr := e.Info()
		if infoErr != nil {
			// Removed between ReadDir and Info.
			continue
		}
		path := filepath.Join(root, e.Name())
		sessions = append(sessions, Session{
			Name:      e.Name(),
			Path:      path,
			CreatedAt: createdAt(filepath.Join(resolved, e.Name()), info),
		})
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		return sessions[i].Name < sessions[j].Name
	})
	return sessions, nil
}
