//go:build linux || darwin || freebsd

package pool

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// createdAt returns the inode change time of path, falling back to the
// modification time if the stat fails.
func createdAt(path string, info fs.FileInfo) time.Time {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return info.ModTime()
	}
	return time.Unix(st.Ctim.Unix())
}
