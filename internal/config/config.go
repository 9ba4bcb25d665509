// Package config parses bagkeeper.toml configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/gobwas/glob"
)

// FileName is the configuration file looked up by Load.
const FileName = "bagkeeper.toml"

// DefaultAccentColor is the default TUI accent color (indigo).
const DefaultAccentColor = "#7D56F4"

// hexColorRe matches a 6-digit hex color string like "#7D56F4".
var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Config is the top-level bagkeeper.toml configuration.
type Config struct {
	Capture       CaptureConfig       `toml:"capture"`
	Storage       StorageConfig       `toml:"storage"`
	Topics        TopicsConfig        `toml:"topics"`
	Journal       JournalConfig       `toml:"journal"`
	TUI           TUIConfig           `toml:"tui"`
	Notifications NotificationsConfig `toml:"notifications"`
	Supervisor    SupervisorConfig    `toml:"supervisor"`

	// Dir is the directory holding the loaded file. Relative paths resolve
	// against it. Empty means the working directory.
	Dir string `toml:"-"`
}

// CaptureConfig controls the capture tool invocation.
type CaptureConfig struct {
	Executable         string   `toml:"executable"`
	Args               []string `toml:"args"`
	IncludeHidden      bool     `toml:"include_hidden"`
	Namespace          string   `toml:"namespace"`
	IntervalSeconds    int      `toml:"interval_seconds"`
	StopTimeoutSeconds int      `toml:"stop_timeout_seconds"` // 0 = wait forever
}

// StorageConfig controls where sessions live and the pool ceiling.
type StorageConfig struct {
	Root         string  `toml:"root"`
	MaxStorageGB float64 `toml:"max_storage_gb"`
	MaxStorage   string  `toml:"max_storage"` // e.g. "512MiB"; overrides max_storage_gb when set
}

// TopicsConfig lists the recorded topics. "{ns}" is replaced by the namespace.
type TopicsConfig struct {
	Patterns []string `toml:"patterns"`
	Exclude  []string `toml:"exclude"`
}

// JournalConfig controls the per-run JSONL event journal.
type JournalConfig struct {
	Dir       string `toml:"dir"`
	Retention int    `toml:"retention"` // number of journals to keep; 0 = unlimited
}

// TUIConfig controls the terminal UI appearance.
type TUIConfig struct {
	AccentColor string `toml:"accent_color"`
}

// NotificationsConfig controls webhook/ntfy.sh notifications.
type NotificationsConfig struct {
	URL            string `toml:"url"`
	OnError        bool   `toml:"on_error"`
	OnEvictFailure bool   `toml:"on_evict_failure"`
	OnStop         bool   `toml:"on_stop"`
}

// SupervisorConfig controls crash recovery and stall detection of the
// capture loop.
type SupervisorConfig struct {
	MaxRestarts           int `toml:"max_restarts"`
	RestartBackoffSeconds int `toml:"restart_backoff_seconds"`
	StallTimeoutSeconds   int `toml:"stall_timeout_seconds"` // 0 = derive from the session timing; < 0 = disabled
}

// Validate checks the configuration for issues that would cause confusing
// runtime failures. It returns all found issues joined together.
func (c *Config) Validate() error {
	var errs []error

	if c.Capture.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("capture.interval_seconds must be > 0"))
	}
	if c.Capture.StopTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("capture.stop_timeout_seconds must be >= 0 (0 = wait forever)"))
	}
	if strings.ContainsAny(c.Capture.Namespace, "/ ") {
		errs = append(errs, fmt.Errorf("capture.namespace must be a single name without slashes or spaces"))
	}

	if c.Storage.Root == "" {
		errs = append(errs, fmt.Errorf("storage.root must not be empty"))
	}
	if c.Storage.MaxStorageGB < 0 {
		errs = append(errs, fmt.Errorf("storage.max_storage_gb must be >= 0"))
	}
	if c.Storage.MaxStorage != "" {
		if _, err := units.RAMInBytes(c.Storage.MaxStorage); err != nil {
			errs = append(errs, fmt.Errorf("storage.max_storage: %w", err))
		}
	}

	for _, p := range c.Topics.Exclude {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, fmt.Errorf("topics.exclude %q: %w", p, err))
		}
	}

	if c.Journal.Retention < 0 {
		errs = append(errs, fmt.Errorf("journal.retention must be >= 0 (0 = unlimited)"))
	}

	if c.Supervisor.MaxRestarts < 0 {
		errs = append(errs, fmt.Errorf("supervisor.max_restarts must be >= 0"))
	}
	if c.Supervisor.RestartBackoffSeconds < 0 {
		errs = append(errs, fmt.Errorf("supervisor.restart_backoff_seconds must be >= 0"))
	}

	if c.TUI.AccentColor != "" && !hexColorRe.MatchString(c.TUI.AccentColor) {
		errs = append(errs, fmt.Errorf("tui.accent_color must be a hex color (e.g. \"#7D56F4\")"))
	}

	if c.Notifications.URL != "" {
		u, parseErr := url.ParseRequestURI(c.Notifications.URL)
		if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("notifications.url must be a valid http or https URL"))
		}
	}

	return errors.Join(errs...)
}

// Interval is the duration of one recording session.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Capture.IntervalSeconds) * time.Second
}

// StopTimeout bounds the wait for the capture tool after the stop signal.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Capture.StopTimeoutSeconds) * time.Second
}

// CeilingBytes returns the pool ceiling in bytes. Gigabytes are binary
// (1024^3), matching max_storage's "GB" suffix.
func (c *Config) CeilingBytes() (int64, error) {
	if c.Storage.MaxStorage != "" {
		n, err := units.RAMInBytes(c.Storage.MaxStorage)
		if err != nil {
			return 0, fmt.Errorf("config: storage.max_storage: %w", err)
		}
		return n, nil
	}
	return int64(math.Round(c.Storage.MaxStorageGB * (1 << 30))), nil
}

// StallTimeout is how long the loop may go without an event before the
// supervisor raises an alert. Zero disables the check. Unset, it allows one
// full session plus its stop timeout and a minute of slack; with an unbounded
// stop timeout it allows two sessions.
func (c *Config) StallTimeout() time.Duration {
	switch {
	case c.Supervisor.StallTimeoutSeconds < 0:
		return 0
	case c.Supervisor.StallTimeoutSeconds > 0:
		return time.Duration(c.Supervisor.StallTimeoutSeconds) * time.Second
	case c.Capture.StopTimeoutSeconds == 0:
		return 2*c.Interval() + time.Minute
	default:
		return c.Interval() + c.StopTimeout() + time.Minute
	}
}

// RootPath returns storage.root resolved against the config directory.
func (c *Config) RootPath() string {
	return c.resolve(c.Storage.Root)
}

// JournalPath returns journal.dir resolved against the config directory.
func (c *Config) JournalPath() string {
	return c.resolve(c.Journal.Dir)
}

// StateDir is the directory holding the persisted run state.
func (c *Config) StateDir() string {
	if c.Dir == "" {
		return "."
	}
	return c.Dir
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// DefaultTopics is the topic list recorded when none is configured.
var DefaultTopics = []string{
	"/{ns}/motor_states",
	"/{ns}/lidar_area",
	"/{ns}/current_node",
	"/{ns}/lookahead_point",
	"/{ns}/scan",
	"/{ns}/diagnosis_code",
	"/{ns}/mot_gain",
	"/{ns}/hw_input",
	"/{ns}/cmd_vel",
	"/{ns}/amcl_pose",
	"/{ns}/odom",
	"/{ns}/speed_limit",
	"/{ns}/route_command",
	"/{ns}/state_control",
	"/{ns}/clicked_point",
	"/{ns}/downsampled_costmap",
	"/{ns}/downsampled_costmap_updates",
	"/{ns}/global_costmap/costmap",
	"/{ns}/global_costmap/costmap_updates",
	"/{ns}/global_costmap/voxel_marked_cloud",
	"/{ns}/initialpose",
	"/{ns}/local_costmap/costmap",
	"/{ns}/local_costmap/costmap_updates",
	"/{ns}/local_costmap/published_footprint",
	"/{ns}/local_costmap/voxel_marked_cloud",
	"/{ns}/local_plan",
	"/{ns}/map",
	"/{ns}/map_updates",
	"/{ns}/parameter_events",
	"/{ns}/particle_cloud",
	"/{ns}/plan",
	"/{ns}/polygon_stop",
	"/{ns}/rosout",
	"/{ns}/speed_limit_filter_mask",
	"/{ns}/speed_limit_filter_mask_updates",
	"/{ns}/tf",
	"/{ns}/tf_static",
	"/{ns}/waypoints",
	"/{ns}/clock",
}

// Defaults returns a Config with sensible defaults: ten-minute sessions
// under ./bag_files with a 30 GB ceiling.
func Defaults() Config {
	return Config{
		Capture: CaptureConfig{
			Executable:         "ros2",
			Args:               []string{"bag", "record"},
			IncludeHidden:      true,
			Namespace:          "",
			IntervalSeconds:    10 * 60,
			StopTimeoutSeconds: 60,
		},
		Storage: StorageConfig{
			Root:         "bag_files",
			MaxStorageGB: 30,
		},
		Topics: TopicsConfig{
			Patterns: append([]string(nil), DefaultTopics...),
		},
		Journal: JournalConfig{
			Dir:       ".bagkeeper/logs",
			Retention: 20,
		},
		TUI: TUIConfig{
			AccentColor: DefaultAccentColor,
		},
		Notifications: NotificationsConfig{
			URL:            "",
			OnError:        false,
			OnEvictFailure: true,
			OnStop:         true,
		},
		Supervisor: SupervisorConfig{
			MaxRestarts:           3,
			RestartBackoffSeconds: 10,
		},
	}
}

// Load reads bagkeeper.toml from the given path. If path is empty, it walks
// up from the current working directory looking for bagkeeper.toml. Returns
// an error if the file contains unknown keys (likely typos). An empty
// namespace is filled in by DetectNamespace.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := findConfig()
		if err != nil {
			return nil, err
		}
		path = found
	}

	cfg := Defaults()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s (possible typos?)", path, joinKeys(keys))
	}

	cfg.Dir = filepath.Dir(path)
	if cfg.Capture.Namespace == "" {
		cfg.Capture.Namespace = DetectNamespace(cfg.Dir)
	}

	return &cfg, nil
}

// joinKeys formats a slice of key names for display.
func joinKeys(keys []string) string {
	return strings.Join(keys, ", ")
}

// findConfig walks up from the current directory looking for bagkeeper.toml.
func findConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: get working directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("config: %s not found (searched up from %s)", FileName, dir)
		}
		dir = parent
	}
}

// InitFile writes a default bagkeeper.toml template to the given directory.
func InitFile(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config: %s already exists at %s", FileName, path)
	}

	var topics strings.Builder
	for _, t := range DefaultTopics {
		fmt.Fprintf(&topics, "  %q,\n", t)
	}

	content := `# bagkeeper.toml — capture rotation configuration
# Place this file next to the bag directory.

[capture]
executable = "ros2"
args = ["bag", "record"]
include_hidden = true        # pass --include-hidden-topics
namespace = "amr7"           # substituted for {ns}; empty = $ROS_NAMESPACE or launch.yaml
interval_seconds = 600       # length of one session
stop_timeout_seconds = 60    # kill the recorder if it has not exited by then; 0 = wait forever

[storage]
root = "bag_files"
max_storage_gb = 30          # ceiling for all sessions; fractional values allowed
# max_storage = "512MiB"     # overrides max_storage_gb

[topics]
exclude = []                 # globs matched after substitution, e.g. "/*/local_costmap/*"
patterns = [
` + topics.String() + `]

[journal]
dir = ".bagkeeper/logs"
retention = 20               # number of run journals to keep; 0 = unlimited

[tui]
accent_color = "#7D56F4"

[notifications]
url = ""                     # ntfy.sh topic URL or any HTTP webhook (empty = disabled)
on_error = false             # notify on failed sessions
on_evict_failure = true      # notify when the pool cannot be brought under the ceiling
on_stop = true               # notify when the manager stops

[supervisor]
max_restarts = 3             # consecutive crash restarts before giving up
restart_backoff_seconds = 10
stall_timeout_seconds = 0    # alert after this long without events; 0 = derived, -1 = disabled
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, nil
}
