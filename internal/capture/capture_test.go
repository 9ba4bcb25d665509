package capture

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// init runs as a fake capture tool when _FAKE_RECORDER=1 is set. The guard
// sits in init() so recorder flags never reach the test runner's flag parser.
func init() {
	if os.Getenv("_FAKE_RECORDER") != "1" {
		return
	}
	os.Exit(fakeRecorder(os.Args[1:]))
}

// fakeRecorder mimics ros2 bag record: it creates the -o directory, records
// its argv, and on SIGINT writes a "stopped" marker and exits 0.
// _FAKE_RECORDER_MODE changes the behaviour:
//
//	exit-early   exit 3 immediately
//	ignore-int   ignore SIGINT and hang
//	no-handler   keep the default SIGINT action (terminated by the signal)
//	exit-2       handle SIGINT, then exit 2 as ros2 does after an interrupt
//	spawn-helper start a helper in the same process group and wait for it
func fakeRecorder(args []string) int {
	var out string
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			out = args[i+1]
		}
	}
	mode := os.Getenv("_FAKE_RECORDER_MODE")

	sigs := make(chan os.Signal, 1)
	switch mode {
	case "exit-early":
		return 3
	case "ignore-int":
		signal.Ignore(os.Interrupt)
	case "no-handler":
	default:
		signal.Notify(sigs, os.Interrupt)
	}

	if err := os.MkdirAll(out, 0o755); err != nil {
		return 2
	}
	_ = os.WriteFile(filepath.Join(out, "args.txt"), []byte(strings.Join(args, "\n")), 0o644)

	var helper *exec.Cmd
	if mode == "spawn-helper" {
		helper = exec.Command(os.Args[0], "-o", filepath.Join(out, "helper"))
		helper.Env = append(os.Environ(), "_FAKE_RECORDER_MODE=")
		if err := helper.Start(); err != nil {
			return 2
		}
	}

	if mode == "ignore-int" || mode == "no-handler" {
		time.Sleep(time.Minute)
		return 0
	}

	<-sigs
	if helper != nil {
		_ = helper.Wait()
	}
	_ = os.WriteFile(filepath.Join(out, "stopped"), []byte("ok"), 0o644)
	if mode == "exit-2" {
		return 2
	}
	return 0
}

func fakeRecorderFor(t *testing.T, mode string) *Recorder {
	t.Helper()
	t.Setenv("_FAKE_RECORDER", "1")
	t.Setenv("_FAKE_RECORDER_MODE", mode)
	topics, err := NewTopicSet([]string{"/{ns}/odom", "/{ns}/scan"}, nil)
	require.NoError(t, err)
	r := NewRecorder(filepath.Join(t.TempDir(), "bag_files"), topics)
	r.Executable = os.Args[0]
	r.StopTimeout = 10 * time.Second
	return r
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name   string
		rec    Recorder
		topics []string
		want   []string
	}{
		{
			name:   "topics with hidden",
			rec:    Recorder{IncludeHidden: true},
			topics: []string{"/amr7/odom", "/amr7/scan"},
			want:   []string{"bag", "record", "-o", "/b/s", "--include-hidden-topics", "/amr7/odom", "/amr7/scan"},
		},
		{
			name: "no topics records all",
			rec:  Recorder{},
			want: []string{"bag", "record", "-o", "/b/s", "-a"},
		},
		{
			name:   "custom base args",
			rec:    Recorder{BaseArgs: []string{"record", "--compression-mode", "file"}},
			topics: []string{"/x"},
			want:   []string{"record", "--compression-mode", "file", "-o", "/b/s", "/x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.BuildArgs("/b/s", tt.topics))
		})
	}
}

func TestBuildArgsKeepsUnsafeNamesIntact(t *testing.T) {
	r := Recorder{}
	path := "/tmp/bags; rm -rf /"
	args := r.BuildArgs(path, []string{"/$(whoami)/odom"})
	assert.Contains(t, args, path)
	assert.Contains(t, args, "/$(whoami)/odom")
}

func TestSessionName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 2, 999, time.Local)
	assert.Equal(t, "2024-03-09_07-05-02", SessionName(ts))
}

func TestNextSessionPath(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2024, 3, 9, 7, 5, 2, 0, time.Local)

	first := NextSessionPath(root, ts)
	assert.Equal(t, filepath.Join(root, "2024-03-09_07-05-02"), first)

	require.NoError(t, os.Mkdir(first, 0o755))
	second := NextSessionPath(root, ts)
	assert.Equal(t, filepath.Join(root, "2024-03-09_07-05-02_1"), second)

	require.NoError(t, os.Mkdir(second, 0o755))
	assert.Equal(t, filepath.Join(root, "2024-03-09_07-05-02_2"), NextSessionPath(root, ts))
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, StateNotStarted.CanTransitionTo(StateRecording))
	assert.True(t, StateRecording.CanTransitionTo(StateStopping))
	assert.True(t, StateStopping.CanTransitionTo(StateDone))
	assert.True(t, StateNotStarted.CanTransitionTo(StateDone))
	assert.True(t, StateRecording.CanTransitionTo(StateDone))
	assert.False(t, StateRecording.CanTransitionTo(StateNotStarted))
	assert.False(t, StateNotStarted.CanTransitionTo(StateStopping))
	assert.False(t, StateDone.CanTransitionTo(StateDone))
	assert.Equal(t, "recording", StateRecording.String())
}

func TestRecord(t *testing.T) {
	t.Run("graceful stop after duration", func(t *testing.T) {
		r := fakeRecorderFor(t, "")
		var started string
		r.OnStart = func(path string, _ []string) { started = path }

		const duration = 500 * time.Millisecond
		begin := time.Now()
		res, err := r.Record(context.Background(), "amr7", duration)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, time.Since(begin), duration)
		assert.Equal(t, StateDone, res.State)
		assert.True(t, res.Graceful)
		assert.False(t, res.Interrupted)
		assert.Equal(t, res.Path, started)
		assert.FileExists(t, filepath.Join(res.Path, "stopped"))

		data, err := os.ReadFile(filepath.Join(res.Path, "args.txt"))
		require.NoError(t, err)
		assert.Equal(t, []string{"bag", "record", "-o", res.Path, "--include-hidden-topics", "/amr7/odom", "/amr7/scan"},
			strings.Split(string(data), "\n"))
	})

	t.Run("interrupt reaches the whole process group", func(t *testing.T) {
		r := fakeRecorderFor(t, "spawn-helper")
		res, err := r.Record(context.Background(), "amr7", 500*time.Millisecond)
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(res.Path, "helper", "stopped"))
		assert.FileExists(t, filepath.Join(res.Path, "stopped"))
	})

	t.Run("termination by SIGINT counts as graceful", func(t *testing.T) {
		r := fakeRecorderFor(t, "no-handler")
		res, err := r.Record(context.Background(), "amr7", 500*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, res.Graceful)
	})

	t.Run("non-zero exit after SIGINT counts as graceful", func(t *testing.T) {
		r := fakeRecorderFor(t, "exit-2")
		res, err := r.Record(context.Background(), "amr7", 500*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, res.Graceful)
		assert.Equal(t, StateDone, res.State)
		assert.FileExists(t, filepath.Join(res.Path, "stopped"))
	})

	t.Run("cancelled context stops early and gracefully", func(t *testing.T) {
		r := fakeRecorderFor(t, "")
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(500*time.Millisecond, cancel)

		begin := time.Now()
		res, err := r.Record(ctx, "amr7", time.Minute)
		require.NoError(t, err)
		assert.Less(t, time.Since(begin), 30*time.Second)
		assert.True(t, res.Interrupted)
		assert.True(t, res.Graceful)
		assert.FileExists(t, filepath.Join(res.Path, "stopped"))
	})

	t.Run("missing executable is a ProcessStartError", func(t *testing.T) {
		r := fakeRecorderFor(t, "")
		r.Executable = filepath.Join(t.TempDir(), "no-such-recorder")

		res, err := r.Record(context.Background(), "amr7", time.Second)
		var startErr *ProcessStartError
		require.True(t, errors.As(err, &startErr), "got %v", err)
		assert.Equal(t, StateDone, res.State)
		assert.False(t, res.Graceful)
	})

	t.Run("stuck tool is killed after the stop timeout", func(t *testing.T) {
		r := fakeRecorderFor(t, "ignore-int")
		r.StopTimeout = 300 * time.Millisecond

		res, err := r.Record(context.Background(), "amr7", 500*time.Millisecond)
		var waitErr *ProcessWaitError
		require.True(t, errors.As(err, &waitErr), "got %v", err)
		assert.ErrorIs(t, err, ErrStopTimeout)
		assert.Equal(t, StateDone, res.State)
		assert.False(t, res.Graceful)
	})

	t.Run("early exit is a ProcessWaitError", func(t *testing.T) {
		r := fakeRecorderFor(t, "exit-early")

		res, err := r.Record(context.Background(), "amr7", 5*time.Second)
		assert.ErrorIs(t, err, ErrExitedEarly)
		assert.Equal(t, StateDone, res.State)
	})
}

func TestTopicSetExpand(t *testing.T) {
	patterns := []string{"/{ns}/odom", "/{ns}/local_costmap/costmap", "/{ns}/local_costmap/costmap_updates", "/{ns}/tf"}

	t.Run("order is preserved", func(t *testing.T) {
		ts, err := NewTopicSet(patterns, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"/amr7/odom", "/amr7/local_costmap/costmap", "/amr7/local_costmap/costmap_updates", "/amr7/tf"},
			ts.Expand("amr7"))
	})

	t.Run("exclusions apply after substitution", func(t *testing.T) {
		ts, err := NewTopicSet(patterns, []string{"/*/local_costmap/*_updates", "/amr7/tf"})
		require.NoError(t, err)
		assert.Equal(t, []string{"/amr7/odom", "/amr7/local_costmap/costmap"}, ts.Expand("amr7"))
	})

	t.Run("empty namespace", func(t *testing.T) {
		ts, err := NewTopicSet([]string{"/{ns}/odom"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"/odom"}, ts.Expand(""))
	})

	t.Run("invalid glob", func(t *testing.T) {
		_, err := NewTopicSet(patterns, []string{"/[amr"})
		assert.Error(t, err)
	})
}
