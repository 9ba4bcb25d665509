// Package launch reads the robot's process launch descriptor and resolves
// which processes a deployment declares once its toggles are applied. It
// never starts a process.
package launch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultOutput is the output mode of a process that does not set one.
const DefaultOutput = "log"

// Descriptor is a parsed launch.yaml.
type Descriptor struct {
	Namespace  string          `yaml:"namespace"`
	ParamsFile string          `yaml:"params_file"`
	Toggles    map[string]bool `yaml:"toggles"`
	Remappings Remappings      `yaml:"remappings"`
	Processes  []Process       `yaml:"processes"`
}

// Process is one declared process.
type Process struct {
	Name       string `yaml:"name"` // optional; the tool picks its own node name when empty
	Package    string `yaml:"package"`
	Executable string `yaml:"executable"`
	Condition  string `yaml:"condition"` // toggle that must be true; empty = always
	Remap      bool   `yaml:"remap"`     // apply the descriptor's remappings
	Params     bool   `yaml:"params"`    // pass the descriptor's params file
	Output     string `yaml:"output"`
}

// key identifies a process for duplicate detection.
func (p Process) key() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Package + "/" + p.Executable
}

// Remapping rewrites one topic name.
type Remapping struct {
	From string
	To   string
}

// Remappings keeps remappings in declared order.
type Remappings []Remapping

// UnmarshalYAML decodes a mapping node without losing its key order.
func (r *Remappings) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: remappings must be a mapping", node.Line)
	}
	out := make(Remappings, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: remapping must map a topic to a topic", k.Line)
		}
		out = append(out, Remapping{From: k.Value, To: v.Value})
	}
	*r = out
	return nil
}

// Resolved is a process with the descriptor's settings applied.
type Resolved struct {
	Name       string
	Package    string
	Executable string
	Namespace  string
	ParamsFile string
	Remappings []Remapping
	Output     string
}

// Args returns the `ros2 run` argument vector that would start p.
func (p Resolved) Args() []string {
	args := []string{"run", p.Package, p.Executable, "--ros-args"}
	if p.Namespace != "" {
		args = append(args, "-r", "__ns:=/"+p.Namespace)
	}
	if p.Name != "" {
		args = append(args, "-r", "__node:="+p.Name)
	}
	if p.ParamsFile != "" {
		args = append(args, "--params-file", p.ParamsFile)
	}
	for _, r := range p.Remappings {
		args = append(args, "-r", r.From+":="+r.To)
	}
	return args
}

// Load parses the launch descriptor at path.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("launch: read %s: %w", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("launch: %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes a launch descriptor. Unknown fields are rejected.
func Parse(data []byte) (*Descriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	d.Namespace = strings.Trim(d.Namespace, "/ ")
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate reports every process that lacks a package or executable and every
// condition that names an undeclared toggle.
func (d *Descriptor) Validate() error {
	var errs []error
	for i, p := range d.Processes {
		if p.Package == "" || p.Executable == "" {
			errs = append(errs, fmt.Errorf("processes[%d]: package and executable are required", i))
		}
		if p.Condition != "" {
			if _, ok := d.Toggles[p.Condition]; !ok {
				errs = append(errs, fmt.Errorf("processes[%d] (%s): unknown toggle %q", i, p.key(), p.Condition))
			}
		}
	}
	return errors.Join(errs...)
}

// Resolve returns the processes enabled under the descriptor's toggles,
// overridden by overrides, in declared order. A process declared twice is
// kept once, at its first position. Overriding an undeclared toggle is an
// error.
func (d *Descriptor) Resolve(overrides map[string]bool) ([]Resolved, error) {
	toggles := make(map[string]bool, len(d.Toggles))
	for k, v := range d.Toggles {
		toggles[k] = v
	}
	var unknown []string
	for k, v := range overrides {
		if _, ok := toggles[k]; !ok {
			unknown = append(unknown, k)
			continue
		}
		toggles[k] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("launch: unknown toggle(s): %s", strings.Join(unknown, ", "))
	}

	seen := make(map[string]bool, len(d.Processes))
	var out []Resolved
	for _, p := range d.Processes {
		if seen[p.key()] {
			continue
		}
		seen[p.key()] = true

		if p.Condition != "" {
			on, ok := toggles[p.Condition]
			if !ok {
				return nil, fmt.Errorf("launch: %s: unknown toggle %q", p.key(), p.Condition)
			}
			if !on {
				continue
			}
		}

		r := Resolved{
			Name:       p.Name,
			Package:    p.Package,
			Executable: p.Executable,
			Namespace:  d.Namespace,
			Output:     p.Output,
		}
		if r.Output == "" {
			r.Output = DefaultOutput
		}
		if p.Params {
			r.ParamsFile = d.ParamsFile
		}
		if p.Remap {
			r.Remappings = append([]Remapping(nil), d.Remappings...)
		}
		out = append(out, r)
	}
	return out, nil
}

// ParseOverrides parses "name=bool" pairs as given to --set.
func ParseOverrides(pairs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(pairs))
	for _, pair := range pairs {
		name, val, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("launch: override %q: want name=true|false", pair)
		}
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			out[name] = true
		case "false", "0", "no", "off":
			out[name] = false
		default:
			return nil, fmt.Errorf("launch: override %q: %q is not a boolean", pair, val)
		}
	}
	return out, nil
}
