package target

import (
	_ "embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// RootManifestDir is the manifest directory used by most targets.
	RootManifestDir = "."

	// JNIManifestDir is where the JVM bindings keep their Cargo workspace.
	JNIManifestDir = "zenoh-jni"

	LockfileName = "Cargo.lock"
	ManifestName = "Cargo.toml"
)

// jniTargets do not keep their Cargo manifest at the repository root.
var jniTargets = map[string]bool{
	"zenoh-java":   true,
	"zenoh-kotlin": true,
}

//go:embed targets.yaml
var defaultTargetsYAML []byte

// Target is one downstream repository that receives the upstream lockfile.
type Target struct {
	Owner       string `json:"owner" yaml:"owner"`
	Name        string `json:"name" yaml:"name"`
	ManifestDir string `json:"manifest_dir" yaml:"manifest_dir"`
}

func (t Target) FullName() string {
	return t.Owner + "/" + t.Name
}

// LockfilePath is the lockfile location relative to the repository root.
func (t Target) LockfilePath() string {
	return path.Join(t.ManifestDir, LockfileName)
}

// ManifestPath is the manifest location relative to the repository root.
func (t Target) ManifestPath() string {
	return path.Join(t.ManifestDir, ManifestName)
}

// ManifestDir returns the directory holding the Cargo manifest for the named
// repository. The two JVM binding repositories are fixed exceptions; everything
// else is rooted at the repository top level.
func ManifestDir(name string) string {
	if jniTargets[strings.ToLower(strings.TrimSpace(name))] {
		return JNIManifestDir
	}
	return RootManifestDir
}

// New builds a Target with its manifest directory resolved.
func New(owner, name string) Target {
	return Target{Owner: owner, Name: name, ManifestDir: ManifestDir(name)}
}

type registryFile struct {
	Owner   string   `yaml:"owner"`
	Targets []string `yaml:"targets"`
}

// Default returns the built-in target list.
func Default() []Target {
	targets, err := Parse(defaultTargetsYAML)
	if err != nil {
		panic(fmt.Sprintf("target: embedded registry is invalid: %v", err))
	}
	return targets
}

// Parse decodes a target registry document.
func Parse(data []byte) ([]Target, error) {
	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("decode target registry: %w", err)
	}
	owner := strings.TrimSpace(rf.Owner)
	if owner == "" {
		return nil, errors.New("target registry: owner is required")
	}
	if len(rf.Targets) == 0 {
		return nil, errors.New("target registry: no targets")
	}

	out := make([]Target, 0, len(rf.Targets))
	seen := make(map[string]bool, len(rf.Targets))
	for i, raw := range rf.Targets {
		name := strings.TrimSpace(raw)
		if err := validateName(name); err != nil {
			return nil, fmt.Errorf("target registry: targets[%d]: %w", i, err)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("target registry: duplicate target %q", name)
		}
		seen[key] = true
		out = append(out, New(owner, name))
	}
	return out, nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("name is empty")
	}
	if strings.ContainsAny(name, "/ \t") {
		return fmt.Errorf("invalid repository name %q", name)
	}
	return nil
}

// Lookup finds a target by repository name (case-insensitive).
func Lookup(targets []Target, name string) (Target, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range targets {
		if strings.ToLower(t.Name) == name || strings.ToLower(t.FullName()) == name {
			return t, true
		}
	}
	return Target{}, false
}
