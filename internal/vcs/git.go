package vcs

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Identity is a git author or committer.
type Identity struct {
	Name  string
	Email string
}

func (i Identity) String() string {
	return fmt.Sprintf("%s <%s>", i.Name, i.Email)
}

func (i Identity) IsZero() bool {
	return i.Name == "" && i.Email == ""
}

// ParseIdentity parses "Name <email>".
func ParseIdentity(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	open := strings.LastIndex(raw, "<")
	if open <= 0 || !strings.HasSuffix(raw, ">") {
		return Identity{}, fmt.Errorf("invalid identity %q: expected \"Name <email>\"", raw)
	}
	id := Identity{
		Name:  strings.TrimSpace(raw[:open]),
		Email: strings.TrimSpace(raw[open+1 : len(raw)-1]),
	}
	if id.Name == "" || id.Email == "" || !strings.Contains(id.Email, "@") {
		return Identity{}, fmt.Errorf("invalid identity %q: expected \"Name <email>\"", raw)
	}
	return id, nil
}

const defaultServerURL = "https://github.com"

// RemoteURL returns the HTTPS clone URL for owner/repo on serverURL.
func RemoteURL(serverURL, fullName string) string {
	return serverBase(serverURL) + fullName + ".git"
}

// serverBase is serverURL with exactly one trailing slash.
func serverBase(serverURL string) string {
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return strings.TrimSuffix(serverURL, "/") + "/"
}

type CloneOptions struct {
	// Ref is the branch to check out. Empty means the remote's default branch.
	Ref        string
	Submodules bool
	// Depth limits history; 0 clones everything.
	Depth int
}

type CommitOptions struct {
	Branch    string
	Paths     []string
	Message   string
	Author    Identity
	Committer Identity
	Remote    string
}

// Git drives the git CLI. The token, when set, is passed as an HTTP
// extra header scoped to the server URL, so it never appears in remote URLs
// or .git/config and is not sent to submodule hosts elsewhere.
type Git struct {
	binary    string
	token     string
	serverURL string
	verbose   io.Writer
}

type Option func(*Git)

func WithBinary(path string) Option {
	return func(g *Git) {
		if path != "" {
			g.binary = path
		}
	}
}

// WithServerURL sets the host the token is sent to. Defaults to github.com.
func WithServerURL(serverURL string) Option {
	return func(g *Git) {
		if serverURL != "" {
			g.serverURL = serverURL
		}
	}
}

// WithVerbose traces every git invocation (arguments only) to w.
func WithVerbose(w io.Writer) Option {
	return func(g *Git) {
		g.verbose = w
	}
}

func New(token string, opts ...Option) *Git {
	g := &Git{binary: "git", token: strings.TrimSpace(token), serverURL: defaultServerURL}
	for _, apply := range opts {
		if apply != nil {
			apply(g)
		}
	}
	return g
}

func (g *Git) authArgs() []string {
	if g.token == "" {
		return nil
	}
	cred := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + g.token))
	return []string{"-c", "http." + serverBase(g.serverURL) + ".extraheader=AUTHORIZATION: basic " + cred}
}

func (g *Git) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	if ctx == nil {
		return nil, errors.New("git: ctx is nil")
	}
	if g.verbose != nil {
		_, _ = fmt.Fprintf(g.verbose, "[verbose] git: %s\n", strings.Join(args, " "))
	}

	full := append(g.authArgs(), args...)
	cmd := exec.CommandContext(ctx, g.binary, full...)
	cmd.Dir = dir
	// Never block on credential prompts in CI.
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("git %s: %w\n%s", subcommand(args), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}

// Clone clones url into dir.
func (g *Git) Clone(ctx context.Context, url, dir string, opts CloneOptions) error {
	args := []string{"clone", "--quiet"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	if opts.Ref != "" {
		args = append(args, "--branch", opts.Ref)
	}
	if opts.Submodules {
		args = append(args, "--recurse-submodules")
		if opts.Depth > 0 {
			args = append(args, "--shallow-submodules")
		}
	}
	args = append(args, "--", url, dir)
	_, err := g.run(ctx, "", args...)
	return err
}

// HeadRevision returns the short hash and author date of HEAD.
func (g *Git) HeadRevision(ctx context.Context, dir string) (hash, date string, err error) {
	out, err := g.run(ctx, dir, "log", "-1", "--format=%h%n%ad")
	if err != nil {
		return "", "", err
	}
	hash, date, ok := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if !ok || strings.TrimSpace(hash) == "" || strings.TrimSpace(date) == "" {
		return "", "", fmt.Errorf("git log: unexpected output %q", string(out))
	}
	return strings.TrimSpace(hash), strings.TrimSpace(date), nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ShowFile returns the committed contents of path at rev.
func (g *Git) ShowFile(ctx context.Context, dir, rev, path string) ([]byte, error) {
	return g.run(ctx, dir, "show", rev+":"+path)
}

// Changed reports whether any of paths differ from HEAD in the working tree,
// including untracked files.
func (g *Git) Changed(ctx context.Context, dir string, paths ...string) (bool, error) {
	args := append([]string{"status", "--porcelain", "--"}, paths...)
	out, err := g.run(ctx, dir, args...)
	if err != nil {
		return false, err
	}
	return len(bytes.TrimSpace(out)) > 0, nil
}

// CommitAndPush commits paths on a fresh Branch (reset to HEAD) and
// force-pushes it, replacing any previous history of that branch.
func (g *Git) CommitAndPush(ctx context.Context, dir string, opts CommitOptions) error {
	if opts.Branch == "" {
		return errors.New("git commit: branch is required")
	}
	if len(opts.Paths) == 0 {
		return errors.New("git commit: no paths")
	}
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}
	committer := opts.Committer
	if committer.IsZero() {
		committer = opts.Author
	}
	if committer.IsZero() {
		return errors.New("git commit: committer identity is required")
	}

	if _, err := g.run(ctx, dir, "checkout", "--quiet", "-B", opts.Branch); err != nil {
		return err
	}
	addArgs := append([]string{"add", "--"}, opts.Paths...)
	if _, err := g.run(ctx, dir, addArgs...); err != nil {
		return err
	}

	commitArgs := []string{
		"-c", "user.name=" + committer.Name,
		"-c", "user.email=" + committer.Email,
		"commit", "--quiet", "--no-verify",
		"-m", opts.Message,
	}
	if !opts.Author.IsZero() {
		commitArgs = append(commitArgs, "--author", opts.Author.String())
	}
	if _, err := g.run(ctx, dir, commitArgs...); err != nil {
		return err
	}

	_, err := g.run(ctx, dir, "push", "--quiet", "--force", remote, "HEAD:refs/heads/"+opts.Branch)
	return err
}
