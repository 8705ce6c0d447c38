package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gh "locksync/internal/github"
	"locksync/internal/target"
	"locksync/internal/vcs"
)

const (
	testServerURL = "https://github.com"
	testHash      = "1a2b3c4"
	testDate      = "Tue Oct 14 09:12:45 2025 +0200"
)

const upstreamLock = `version = 3

[[package]]
name = "serde"
version = "1.0.193"
source = "registry+https://github.com/rust-lang/crates.io-index"
checksum = "25dd9975e68d0cb5aa1120c288333fc98731bd1dd12f561e468ea4728c042b89"

[[package]]
name = "zenoh"
version = "1.0.0-dev"
`

const staleLock = `version = 3

[[package]]
name = "serde"
version = "1.0.180"
source = "registry+https://github.com/rust-lang/crates.io-index"
checksum = "ea67f183f058fe88a4e3ec6e2788e003840893b91bac4559cabedd00863b3ed9"
`

// fakeGit serves repositories from memory. Each entry maps a path relative to
// the repository root to its content at HEAD.
type fakeGit struct {
	mu       sync.Mutex
	repos    map[string]map[string]string
	dirs     map[string]string
	cloneErr map[string]error
	clones   map[string]vcs.CloneOptions
	pushes   map[string][]vcs.CommitOptions
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		repos:    map[string]map[string]string{},
		dirs:     map[string]string{},
		cloneErr: map[string]error{},
		clones:   map[string]vcs.CloneOptions{},
		pushes:   map[string][]vcs.CommitOptions{},
	}
}

func (g *fakeGit) addRepo(fullName string, files map[string]string) {
	g.repos[fullName] = files
}

// addTarget seeds t with a manifest and the given lockfile.
func (g *fakeGit) addTarget(t target.Target, lock string) {
	g.addRepo(t.FullName(), map[string]string{
		t.ManifestPath(): "[package]\nname = \"" + t.Name + "\"\n",
		t.LockfilePath(): lock,
	})
}

func repoFromURL(url string) string {
	return strings.TrimSuffix(strings.TrimPrefix(url, testServerURL+"/"), ".git")
}

func (g *fakeGit) Clone(_ context.Context, url, dir string, opts vcs.CloneOptions) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := repoFromURL(url)
	if err := g.cloneErr[name]; err != nil {
		return err
	}
	files, ok := g.repos[name]
	if !ok {
		return fmt.Errorf("git clone: repository %s not found", name)
	}
	for p, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return err
		}
	}
	g.dirs[dir] = name
	g.clones[name] = opts
	return nil
}

func (g *fakeGit) HeadRevision(context.Context, string) (string, string, error) {
	return testHash, testDate, nil
}

func (g *fakeGit) CurrentBranch(context.Context, string) (string, error) {
	return "main", nil
}

func (g *fakeGit) ShowFile(_ context.Context, dir, _, path string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	content, ok := g.repos[g.dirs[dir]][path]
	if !ok {
		return nil, fmt.Errorf("git show: %s does not exist at HEAD", path)
	}
	return []byte(content), nil
}

func (g *fakeGit) Changed(_ context.Context, dir string, paths ...string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	head := g.repos[g.dirs[dir]]
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil {
			return false, err
		}
		if string(data) != head[p] {
			return true, nil
		}
	}
	return false, nil
}

func (g *fakeGit) CommitAndPush(_ context.Context, dir string, opts vcs.CommitOptions) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := g.dirs[dir]
	g.pushes[name] = append(g.pushes[name], opts)
	return nil
}

func (g *fakeGit) pushCount(fullName string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pushes[fullName])
}

// fakeCargo leaves the overwritten lockfile untouched unless rewrite is set.
type fakeCargo struct {
	mu         sync.Mutex
	checkErr   map[string]error
	rewrite    func(dir string) error
	toolchains int
	manifests  map[string]string
}

func newFakeCargo() *fakeCargo {
	return &fakeCargo{checkErr: map[string]error{}, manifests: map[string]string{}}
}

func (c *fakeCargo) PrepareToolchain(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolchains++
	return nil
}

func (c *fakeCargo) Check(_ context.Context, dir, manifestPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := filepath.Base(dir)
	c.manifests[name] = manifestPath
	if err := c.checkErr[name]; err != nil {
		return err
	}
	if c.rewrite != nil {
		return c.rewrite(dir)
	}
	return nil
}

// fakePRs keeps at most one open pull request per repository.
type fakePRs struct {
	mu         sync.Mutex
	next       int
	open       map[string]*gh.PullRequest
	specs      map[string]gh.PullRequestSpec
	calls      int
	upsertErr  map[string]error
	mergeErr   error
	autoMerged []string
	deleted    []string
}

func newFakePRs() *fakePRs {
	return &fakePRs{
		next:      100,
		open:      map[string]*gh.PullRequest{},
		specs:     map[string]gh.PullRequestSpec{},
		upsertErr: map[string]error{},
	}
}

func (p *fakePRs) DefaultBranch(context.Context, string, string) (string, error) {
	return "main", nil
}

func (p *fakePRs) UpsertPullRequest(_ context.Context, spec gh.PullRequestSpec) (*gh.PullRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	key := spec.Owner + "/" + spec.Repo
	if err := p.upsertErr[key]; err != nil {
		return nil, err
	}
	p.specs[key] = spec
	if pr, ok := p.open[key]; ok {
		updated := *pr
		updated.Operation = gh.OperationUpdated
		return &updated, nil
	}
	p.next++
	pr := &gh.PullRequest{
		Number:    p.next,
		URL:       fmt.Sprintf("%s/%s/pull/%d", testServerURL, key, p.next),
		NodeID:    fmt.Sprintf("PR_%d", p.next),
		Operation: gh.OperationCreated,
	}
	p.open[key] = pr
	return pr, nil
}

func (p *fakePRs) DeleteBranch(_ context.Context, owner, repo, branch string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := owner + "/" + repo
	p.deleted = append(p.deleted, key+":"+branch)
	if _, ok := p.open[key]; ok {
		delete(p.open, key)
		return true, nil
	}
	return false, nil
}

func (p *fakePRs) EnableAutoMerge(_ context.Context, nodeID string, method gh.MergeMethod) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mergeErr != nil {
		return p.mergeErr
	}
	if method != gh.MergeMethodSquash {
		return errors.New("unexpected merge method " + string(method))
	}
	p.autoMerged = append(p.autoMerged, nodeID)
	return nil
}

func (p *fakePRs) upsertCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
