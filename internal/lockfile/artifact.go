package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifact is the lockfile produced by the fetch stage. Data must not be
// modified after construction; every sync reads the same bytes.
type Artifact struct {
	Name string
	Data []byte
}

func NewArtifact(name string, data []byte) (*Artifact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("artifact name is empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("artifact name must be a bare file name, got %q", name)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("artifact %s is empty", name)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Artifact{Name: name, Data: buf}, nil
}

// Digest returns the hex SHA-256 of the artifact bytes.
func (a *Artifact) Digest() string {
	sum := sha256.Sum256(a.Data)
	return hex.EncodeToString(sum[:])
}

// WriteTo replaces <dir>/<name> with the artifact bytes.
func (a *Artifact) WriteTo(dir string) (string, error) {
	if a == nil {
		return "", errors.New("artifact is nil")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	p := filepath.Join(dir, a.Name)
	if err := os.WriteFile(p, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	return p, nil
}

// Revision describes the upstream commit the artifact was read from.
type Revision struct {
	Repository string `json:"repository"`
	Ref        string `json:"ref,omitempty"`
	Hash       string `json:"hash"`
	Date       string `json:"date"`
}

// CommitURL links to the upstream commit on the given server.
func (r Revision) CommitURL(serverURL string) string {
	if serverURL == "" {
		serverURL = "https://github.com"
	}
	return strings.TrimSuffix(serverURL, "/") + "/" + r.Repository + "/commit/" + r.Hash
}

// Save writes the artifact plus a revision.env file into dir so a CI job can
// publish them. It returns the written paths.
func Save(dir string, a *Artifact, rev Revision) ([]string, error) {
	p, err := a.WriteTo(dir)
	if err != nil {
		return nil, err
	}
	envPath := filepath.Join(dir, "revision.env")
	if err := os.WriteFile(envPath, []byte(rev.OutputLines()), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", envPath, err)
	}
	return []string{p, envPath}, nil
}

// OutputLines renders the revision in key=value form, one per line, matching
// the workflow output file format.
func (r Revision) OutputLines() string {
	return fmt.Sprintf("head-hash=%s\nhead-date=%s\n", r.Hash, r.Date)
}

// AppendOutputs appends the revision outputs to a workflow output file
// (e.g. $GITHUB_OUTPUT). An empty path is a no-op.
func AppendOutputs(path string, r Revision) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open outputs file: %w", err)
	}
	if _, err := f.WriteString(r.OutputLines()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write outputs file: %w", err)
	}
	return f.Close()
}
