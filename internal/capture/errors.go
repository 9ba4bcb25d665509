package capture

import (
	"errors"
	"fmt"
)

// ErrExitedEarly is wrapped by a ProcessWaitError when the capture tool exits
// before the session duration elapsed.
var ErrExitedEarly = errors.New("capture tool exited before the stop signal")

// ErrStopTimeout is wrapped by a ProcessWaitError when the capture tool did not
// exit within the stop timeout and had to be killed.
var ErrStopTimeout = errors.New("capture tool did not exit after the stop signal")

// ProcessStartError reports that the capture tool could not be launched.
type ProcessStartError struct {
	Path string
	Err  error
}

func (e *ProcessStartError) Error() string {
	return fmt.Sprintf("capture: start session %s: %v", e.Path, e.Err)
}

func (e *ProcessStartError) Unwrap() error { return e.Err }

// SignalDeliveryError reports that the stop signal could not be sent to the
// capture tool's process group.
type SignalDeliveryError struct {
	Pid int
	Err error
}

func (e *SignalDeliveryError) Error() string {
	return fmt.Sprintf("capture: signal process group %d: %v", e.Pid, e.Err)
}

func (e *SignalDeliveryError) Unwrap() error { return e.Err }

// ProcessWaitError reports a failure while waiting for the capture tool to exit.
type ProcessWaitError struct {
	Pid int
	Err error
}

func (e *ProcessWaitError) Error() string {
	return fmt.Sprintf("capture: wait for process %d: %v", e.Pid, e.Err)
}

func (e *ProcessWaitError) Unwrap() error { return e.Err }
