//go:build !windows

package capture

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// startGroup puts the child in a new process group so the whole tree it
// spawns can be signalled at once. The child leads the group, so its pgid
// equals its pid.
func startGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// interruptGroup sends SIGINT to every process in the child's group.
func interruptGroup(p *os.Process) error {
	return unix.Kill(-p.Pid, unix.SIGINT)
}

// killGroup sends SIGKILL to every process in the child's group. A group
// that is already gone is not an error.
func killGroup(p *os.Process) error {
	err := unix.Kill(-p.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// stoppedByInterrupt reports whether err is how the tool ended after the
// group was sent SIGINT. Any exit status counts: ros2 exits 2 after handling
// the interrupt, and a tool without a handler dies of the signal.
func stoppedByInterrupt(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
