package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"locksync/internal/vcs"
)

const (
	DefaultUpstream      = "eclipse-zenoh/zenoh"
	DefaultServerURL     = "https://github.com"
	DefaultSyncBranch    = "eclipse-zenoh-bot/sync-lockfile"
	DefaultIdentity      = "eclipse-zenoh-bot <eclipse-zenoh-bot@users.noreply.github.com>"
	DefaultLabel         = "internal"
	DefaultCommitMessage = "chore: Sync Cargo lockfile with Zenoh's"
	DefaultConcurrency   = 13
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - CLI flags in internal/cli/sync.go and internal/cli/fetch.go
	// - the overlay table in internal/config/load.go
	Source      Source
	Targets     Targets
	PullRequest PullRequest
	Output      Output
	Runtime     Runtime
}

type Source struct {
	// Repository is the upstream OWNER/REPO whose lockfile is propagated (see --upstream).
	Repository string

	// Branch is checked out in the upstream and every target (see --branch).
	// Empty means each repository's default branch.
	Branch string

	// ServerURL is the web/git host (see --server-url).
	ServerURL string

	// APIURL is the REST API root for GitHub Enterprise Server (see --api-url).
	// Empty means api.github.com.
	APIURL string

	// ArtifactDir receives Cargo.lock and revision.env after the fetch stage (see --artifact-dir).
	ArtifactDir string

	// GitHubOutput is the workflow outputs file ($GITHUB_OUTPUT); head-hash and
	// head-date are appended to it when set.
	GitHubOutput string

	// Token is an explicit GitHub token (see --token). When empty it is resolved
	// from GITHUB_TOKEN, GH_TOKEN or the gh CLI.
	Token string
}

type Targets struct {
	// File replaces the embedded target registry with a YAML file (see --targets-file).
	File string

	// Include runs only targets matching these path.Match patterns (see --include).
	// A pattern containing '/' matches OWNER/REPO; otherwise it matches the name.
	Include []string

	// Exclude skips targets matching these patterns (see --exclude).
	Exclude []string
}

type PullRequest struct {
	// Branch is the fixed sync branch pushed to every target (see --sync-branch).
	Branch string

	// Labels are applied to created and updated pull requests (see --label).
	Labels []string

	// Identity is the commit author and committer as "Name <email>" (see --identity).
	Identity string

	// CommitMessage is the sync commit message (see --commit-message).
	CommitMessage string

	// AutoMerge enables auto-merge on freshly created pull requests (see --auto-merge).
	AutoMerge bool

	// MergeMethod is the auto-merge method (see --merge-method).
	// Allowed values: squash, merge, rebase.
	MergeMethod string

	// RunURL links the CI run in the pull request body. Derived from the
	// GITHUB_SERVER_URL, GITHUB_REPOSITORY and GITHUB_RUN_ID environment.
	RunURL string
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string

	// Summary writes a Markdown run summary to this path (see --summary).
	// Defaults to $GITHUB_STEP_SUMMARY when running in GitHub Actions.
	Summary string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool
}

type Runtime struct {
	// Concurrency bounds how many targets sync at once (see --concurrency).
	// Must be >= 1.
	Concurrency int

	// Timeout is the global run timeout (see --timeout). Must be > 0.
	Timeout time.Duration

	// DryRun detects lockfile changes without pushing or touching pull requests (see --dry-run).
	DryRun bool

	// WorkDir is where checkouts are created (see --work-dir). Empty means a temp dir.
	WorkDir string

	// KeepWorkDir leaves checkouts on disk after the run (see --keep-work-dir).
	KeepWorkDir bool

	// Git, Cargo and Rustup override the tool binaries (see --git, --cargo, --rustup).
	Git    string
	Cargo  string
	Rustup string

	// SkipToolchain skips `rustup show` before `cargo check` (see --skip-toolchain).
	SkipToolchain bool

	// Verbose enables [verbose] traces of API calls and subprocesses.
	Verbose bool
}

func New() *Config {
	return &Config{
		Source: Source{
			Repository: DefaultUpstream,
			ServerURL:  DefaultServerURL,
		},
		PullRequest: PullRequest{
			Branch:        DefaultSyncBranch,
			Labels:        []string{DefaultLabel},
			Identity:      DefaultIdentity,
			CommitMessage: DefaultCommitMessage,
			AutoMerge:     true,
			MergeMethod:   "squash",
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Concurrency: DefaultConcurrency,
			Timeout:     30 * time.Minute,
			Git:         "git",
			Cargo:       "cargo",
			Rustup:      "rustup",
		},
	}
}

// ApplyEnvironment fills values that GitHub Actions provides through the
// environment. Values already set are kept.
func (c *Config) ApplyEnvironment(getenv func(string) string) {
	if getenv == nil {
		return
	}
	if c.Source.GitHubOutput == "" {
		c.Source.GitHubOutput = getenv("GITHUB_OUTPUT")
	}
	if c.Output.Summary == "" {
		c.Output.Summary = getenv("GITHUB_STEP_SUMMARY")
	}
	server := strings.TrimSuffix(getenv("GITHUB_SERVER_URL"), "/")
	repo, runID := getenv("GITHUB_REPOSITORY"), getenv("GITHUB_RUN_ID")
	if c.PullRequest.RunURL == "" && server != "" && repo != "" && runID != "" {
		c.PullRequest.RunURL = fmt.Sprintf("%s/%s/actions/runs/%s", server, repo, runID)
	}
}

// Identity returns the parsed commit identity. Call after Validate.
func (c *Config) Identity() vcs.Identity {
	id, _ := vcs.ParseIdentity(c.PullRequest.Identity)
	return id
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.Targets.Include = splitCommaList(c.Targets.Include)
	c.Targets.Exclude = splitCommaList(c.Targets.Exclude)
	c.PullRequest.Labels = splitCommaList(c.PullRequest.Labels)
	c.Output.Emit = splitCommaList(c.Output.Emit)

	// Source validation
	c.Source.Repository = strings.Trim(strings.TrimSpace(c.Source.Repository), "/")
	if owner, name, ok := strings.Cut(c.Source.Repository, "/"); !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid --upstream value %q: expected OWNER/REPO", c.Source.Repository)
	}
	c.Source.Branch = strings.TrimSpace(c.Source.Branch)
	c.Source.ServerURL = strings.TrimSuffix(strings.TrimSpace(c.Source.ServerURL), "/")
	if c.Source.ServerURL == "" {
		c.Source.ServerURL = DefaultServerURL
	}
	if !strings.HasPrefix(c.Source.ServerURL, "https://") && !strings.HasPrefix(c.Source.ServerURL, "http://") && !strings.HasPrefix(c.Source.ServerURL, "file://") {
		return fmt.Errorf("invalid --server-url value %q: expected an http(s) URL", c.Source.ServerURL)
	}

	// Pull request validation
	c.PullRequest.Branch = strings.TrimSpace(c.PullRequest.Branch)
	if c.PullRequest.Branch == "" {
		return errors.New("--sync-branch must not be empty")
	}
	if _, err := vcs.ParseIdentity(c.PullRequest.Identity); err != nil {
		return fmt.Errorf("invalid --identity value: %w", err)
	}
	if strings.TrimSpace(c.PullRequest.CommitMessage) == "" {
		return errors.New("--commit-message must not be empty")
	}
	c.PullRequest.MergeMethod = normalizeEnumValue(c.PullRequest.MergeMethod)
	if c.PullRequest.MergeMethod == "" {
		c.PullRequest.MergeMethod = "squash"
	}
	if c.PullRequest.MergeMethod != "squash" && c.PullRequest.MergeMethod != "merge" && c.PullRequest.MergeMethod != "rebase" {
		return fmt.Errorf("unsupported --merge-method: %s (must be one of: squash, merge, rebase)", c.PullRequest.MergeMethod)
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for i, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", v)
		}
		c.Output.Emit[i] = v
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson":
				c.Output.OutFormat = "ndjson"
			case "":
				return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
			default:
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	for flag, bin := range map[string]*string{"git": &c.Runtime.Git, "cargo": &c.Runtime.Cargo, "rustup": &c.Runtime.Rustup} {
		*bin = strings.TrimSpace(*bin)
		if *bin == "" {
			return fmt.Errorf("--%s must not be empty", flag)
		}
	}

	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
