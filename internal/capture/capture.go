// Package capture runs one bounded recording session against an external
// capture tool (ros2 bag record by default): start it in its own process
// group, wait out the session, then interrupt the group and wait for exit.
package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// SessionLayout is the time format of session directory names.
const SessionLayout = "2006-01-02_15-04-05"

// Recorder launches capture sessions under Root.
type Recorder struct {
	Root          string
	Executable    string   // defaults to "ros2"
	BaseArgs      []string // defaults to "bag record"
	IncludeHidden bool     // pass --include-hidden-topics
	Topics        TopicSet

	// StopTimeout bounds the wait after the stop signal. After it elapses the
	// process group is killed. Zero waits indefinitely.
	StopTimeout time.Duration

	Stdout io.Writer
	Stderr io.Writer

	// OnStart, if set, is called once the tool is running.
	OnStart func(path string, args []string)

	// Now is the clock used for session names; defaults to time.Now.
	Now func() time.Time
}

// NewRecorder creates a Recorder using the default ros2 bag invocation.
func NewRecorder(root string, topics TopicSet) *Recorder {
	return &Recorder{
		Root:          root,
		Executable:    "ros2",
		BaseArgs:      []string{"bag", "record"},
		IncludeHidden: true,
		Topics:        topics,
	}
}

// Result describes a finished session.
type Result struct {
	Path        string
	Args        []string
	State       State
	StartedAt   time.Time
	StoppedAt   time.Time
	Graceful    bool // exited after the stop signal without being killed
	Interrupted bool // stopped early because ctx was cancelled
}

// BuildArgs constructs the capture tool's argument vector. With no topics the
// tool is asked to record everything.
func (r *Recorder) BuildArgs(path string, topics []string) []string {
	base := r.BaseArgs
	if base == nil {
		base = []string{"bag", "record"}
	}
	args := append([]string{}, base...)
	args = append(args, "-o", path)
	if r.IncludeHidden {
		args = append(args, "--include-hidden-topics")
	}
	if len(topics) == 0 {
		return append(args, "-a")
	}
	return append(args, topics...)
}

// Record runs one session for duration and returns once the capture tool has
// exited. Cancelling ctx ends the wait early; the tool is still stopped
// gracefully. On any failure the process group is killed before returning.
func (r *Recorder) Record(ctx context.Context, namespace string, duration time.Duration) (Result, error) {
	now := r.now()
	res := Result{State: StateNotStarted, StartedAt: now}

	if err := os.MkdirAll(r.Root, 0o755); err != nil {
		res.State = StateDone
		return res, &ProcessStartError{Path: r.Root, Err: fmt.Errorf("create root: %w", err)}
	}

	res.Path = NextSessionPath(r.Root, now)
	res.Args = r.BuildArgs(res.Path, r.Topics.Expand(namespace))

	exe := r.Executable
	if exe == "" {
		exe = "ros2"
	}
	cmd := exec.Command(exe, res.Args...)
	// nil Stdin reads from the null device, so the tool never waits on a terminal.
	cmd.Stdin = nil
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	startGroup(cmd)

	if err := cmd.Start(); err != nil {
		res.State = StateDone
		res.StoppedAt = r.now()
		return res, &ProcessStartError{Path: res.Path, Err: err}
	}
	res.State = StateRecording
	if r.OnStart != nil {
		r.OnStart(res.Path, res.Args)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		res.Interrupted = true
	case err := <-done:
		_ = killGroup(cmd.Process)
		res.State = StateDone
		res.StoppedAt = r.now()
		if err != nil {
			return res, &ProcessWaitError{Pid: cmd.Process.Pid, Err: fmt.Errorf("%w: %w", ErrExitedEarly, err)}
		}
		return res, &ProcessWaitError{Pid: cmd.Process.Pid, Err: ErrExitedEarly}
	}

	res.State = StateStopping
	if err := interruptGroup(cmd.Process); err != nil {
		_ = killGroup(cmd.Process)
		<-done
		res.State = StateDone
		res.StoppedAt = r.now()
		return res, &SignalDeliveryError{Pid: cmd.Process.Pid, Err: err}
	}

	timedOut, waitErr := r.waitStopped(done)
	if timedOut {
		_ = killGroup(cmd.Process)
		<-done
		res.State = StateDone
		res.StoppedAt = r.now()
		return res, &ProcessWaitError{Pid: cmd.Process.Pid, Err: ErrStopTimeout}
	}
	res.State = StateDone
	res.StoppedAt = r.now()
	if waitErr != nil && !stoppedByInterrupt(waitErr) {
		_ = killGroup(cmd.Process)
		return res, &ProcessWaitError{Pid: cmd.Process.Pid, Err: waitErr}
	}
	res.Graceful = true
	return res, nil
}

// waitStopped waits for the tool to exit after the stop signal. It reports
// true if StopTimeout elapsed first.
func (r *Recorder) waitStopped(done <-chan error) (bool, error) {
	if r.StopTimeout <= 0 {
		return false, <-done
	}
	t := time.NewTimer(r.StopTimeout)
	defer t.Stop()
	select {
	case err := <-done:
		return false, err
	case <-t.C:
		return true, nil
	}
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// SessionName formats t as a session directory name.
func SessionName(t time.Time) string {
	return t.Format(SessionLayout)
}

// NextSessionPath returns the path for a session starting at t. When a
// session with the same second already exists under root, a numeric suffix
// is appended ("_1", "_2", ...) so an earlier session is never overwritten.
func NextSessionPath(root string, t time.Time) string {
	base := SessionName(t)
	path := filepath.Join(root, base)
	for i := 1; exists(path); i++ {
		path = filepath.Join(root, fmt.Sprintf("%s_%d", base, i))
	}
	return path
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
