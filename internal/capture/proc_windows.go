//go:build windows

package capture

import (
	"os"
	"os/exec"
)

func startGroup(_ *exec.Cmd) {}

// interruptGroup has no process-group interrupt on Windows; the child is
// killed instead.
func interruptGroup(p *os.Process) error {
	return p.Kill()
}

func killGroup(p *os.Process) error {
	return p.Kill()
}

func stoppedByInterrupt(_ error) bool { return false }
