package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LaunchFileName is the launch descriptor scaffolded next to bagkeeper.toml.
const LaunchFileName = "launch.yaml"

// DetectNamespace infers the robot namespace when none is configured. It
// checks $ROS_NAMESPACE, then the namespace declared by launch.yaml in dir.
// Returns "" if neither provides one. Errors are silently ignored.
func DetectNamespace(dir string) string {
	if ns := strings.Trim(os.Getenv("ROS_NAMESPACE"), "/ "); ns != "" {
		return ns
	}
	return detectFromLaunch(dir)
}

type launchYAML struct {
	Namespace string `yaml:"namespace"`
}

func detectFromLaunch(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, LaunchFileName))
	if err != nil {
		return ""
	}
	var l launchYAML
	if err := yaml.Unmarshal(data, &l); err != nil {
		return ""
	}
	return strings.Trim(l.Namespace, "/ ")
}
