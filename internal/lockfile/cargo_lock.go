package lockfile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// CargoLock is the subset of a Cargo.lock document locksync inspects.
type CargoLock struct {
	Version  int       `toml:"version"`
	Packages []Package `toml:"package"`
}

type Package struct {
	Name     string `toml:"name"`
	Version  string `toml:"version"`
	Source   string `toml:"source"`
	Checksum string `toml:"checksum"`
}

// Key identifies a package independently of its version. Workspace members
// have no source.
func (p Package) Key() string {
	if p.Source == "" {
		return p.Name
	}
	return p.Name + "@" + p.Source
}

func Parse(data []byte) (*CargoLock, error) {
	var lock CargoLock
	if _, err := toml.Decode(string(data), &lock); err != nil {
		return nil, fmt.Errorf("parse Cargo.lock: %w", err)
	}
	return &lock, nil
}

// Pins maps each external package key to the sorted set of locked versions.
// Workspace members are skipped because they belong to the repository, not to
// the resolution.
func (l *CargoLock) Pins() map[string][]string {
	out := make(map[string][]string)
	if l == nil {
		return out
	}
	for _, p := range l.Packages {
		if p.Source == "" {
			continue
		}
		out[p.Key()] = append(out[p.Key()], p.Version)
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}

// Drift is a package whose locked version set moved away from the pinned one.
type Drift struct {
	Package string
	Pinned  []string
	Got     []string
}

type PinDriftError struct {
	Drifts []Drift
}

func (e *PinDriftError) Error() string {
	parts := make([]string, 0, len(e.Drifts))
	for _, d := range e.Drifts {
		parts = append(parts, fmt.Sprintf("%s pinned %s, got %s", d.Package, strings.Join(d.Pinned, ","), strings.Join(d.Got, ",")))
	}
	return fmt.Sprintf("%d pinned package(s) changed version: %s", len(e.Drifts), strings.Join(parts, "; "))
}

// CheckPinsPreserved reports a *PinDriftError when a package present in both
// lockfiles had a pinned version replaced by an unpinned one. Packages and
// versions may be pruned (unused by the downstream) or added (downstream-only,
// including a second major version of a pinned crate), but a pinned version is
// never re-resolved.
func CheckPinsPreserved(pinned, got *CargoLock) error {
	before := pinned.Pins()
	after := got.Pins()

	var drifts []Drift
	for key, gotVersions := range after {
		pinnedVersions, ok := before[key]
		if !ok {
			continue
		}
		if replaced(pinnedVersions, gotVersions) {
			drifts = append(drifts, Drift{Package: key, Pinned: pinnedVersions, Got: gotVersions})
		}
	}
	if len(drifts) == 0 {
		return nil
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].Package < drifts[j].Package })
	return &PinDriftError{Drifts: drifts}
}

// replaced is true when a pinned version is gone and an unpinned one appeared
// under the same key.
func replaced(pinned, got []string) bool {
	return len(missing(pinned, got)) > 0 && len(missing(got, pinned)) > 0
}

// missing returns the versions of want absent from have.
func missing(want, have []string) []string {
	present := make(map[string]bool, len(have))
	for _, v := range have {
		present[v] = true
	}
	var out []string
	for _, v := range want {
		if !present[v] {
			out = append(out, v)
		}
	}
	return out
}
