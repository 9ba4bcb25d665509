package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScaffoldProject creates bagkeeper.toml, an example launch.yaml and the bag
// directory in dir, and makes sure .gitignore excludes recorded data and run
// state. Files that already exist are left untouched. Returns the list of
// created paths.
func ScaffoldProject(dir string) ([]string, error) {
	var created []string

	tomlPath := filepath.Join(dir, FileName)
	if _, err := os.Stat(tomlPath); os.IsNotExist(err) {
		if _, initErr := InitFile(dir); initErr != nil {
			return created, initErr
		}
		created = append(created, tomlPath)
	}

	launchPath := filepath.Join(dir, LaunchFileName)
	if _, err := os.Stat(launchPath); os.IsNotExist(err) {
		if writeErr := os.WriteFile(launchPath, []byte(LaunchTemplate), 0644); writeErr != nil {
			return created, fmt.Errorf("scaffold: write %s: %w", launchPath, writeErr)
		}
		created = append(created, launchPath)
	}

	bagDir := filepath.Join(dir, Defaults().Storage.Root)
	if _, err := os.Stat(bagDir); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(bagDir, 0755); mkErr != nil {
			return created, fmt.Errorf("scaffold: create %s: %w", bagDir, mkErr)
		}
		created = append(created, bagDir)
	}

	gitignorePath := filepath.Join(dir, ".gitignore")
	updated, err := ensureGitignore(gitignorePath, []string{".bagkeeper/", Defaults().Storage.Root + "/"})
	if err != nil {
		return created, err
	}
	if updated {
		created = append(created, gitignorePath)
	}

	return created, nil
}

// ensureGitignore appends any missing entries to the .gitignore at path,
// creating it if needed. Reports whether the file was written.
func ensureGitignore(path string, entries []string) (bool, error) {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("scaffold: read %s: %w", path, err)
	}

	content := string(existing)
	var missing []string
	for _, e := range entries {
		if !strings.Contains(content, e) {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}

	if len(content) > 0 && content[len(content)-1] != '\n' {
		content += "\n"
	}
	content += strings.Join(missing, "\n") + "\n"
	if writeErr := os.WriteFile(path, []byte(content), 0644); writeErr != nil {
		return false, fmt.Errorf("scaffold: write %s: %w", path, writeErr)
	}
	return true, nil
}

// LaunchTemplate declares the robot state-operation stack.
const LaunchTemplate = `# launch.yaml — processes started together for one robot
namespace: amr7
params_file: config/amr_params.yaml

toggles:
  use_pose_memory: true
  use_weight_check: true
  use_server_loop: true

remappings:
  /tf: /amr7/tf
  /tf_static: /amr7/tf_static

processes:
  - package: amr_state_operation
    executable: state_control
    params: true
  - name: amr_service
    package: amr_state_operation
    executable: amr_service
    params: true
  - name: pose_memory
    package: amr_state_operation
    executable: pose_memory
    condition: use_pose_memory
    remap: true
    params: true
  - name: speed_limit
    package: amr_state_operation
    executable: speed_limit
    params: true
  - name: weight_checker
    package: amr_state_operation
    executable: weight_checker
    condition: use_weight_check
    params: true
  - name: server_loop
    package: amr_state_operation
    executable: server_loop
    condition: use_server_loop
`
