package flags

// Package flags defines canonical CLI flag names shared by the CLI and the
// config overlay. The overlay maps each flag to a config file key and a
// LOCKSYNC_* environment variable, so both sides must agree on the names.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Source.Branch, flags.FlagBranch, "", "...")
//	arg := "--" + flags.FlagBranch
const (
	// Global
	FlagConfig  = "config"
	FlagVerbose = "verbose"

	// Source
	FlagBranch      = "branch"
	FlagUpstream    = "upstream"
	FlagServerURL   = "server-url"
	FlagAPIURL      = "api-url"
	FlagArtifactDir = "artifact-dir"
	FlagToken       = "token"

	// Targets
	FlagInclude = "include"
	FlagExclude = "exclude"
	FlagTargets = "targets-file"

	// Pull request
	FlagSyncBranch    = "sync-branch"
	FlagLabel         = "label"
	FlagIdentity      = "identity"
	FlagCommitMessage = "commit-message"
	FlagAutoMerge     = "auto-merge"
	FlagMergeMethod   = "merge-method"

	// Output
	FlagConsoleFormat = "console-format"
	FlagSummary       = "summary"
	FlagOut           = "out"
	FlagOutFormat     = "out-format"
	FlagEmit          = "emit"
	FlagNoConsole     = "no-console"

	// Runtime
	FlagConcurrency   = "concurrency"
	FlagTimeout       = "timeout"
	FlagDryRun        = "dry-run"
	FlagWorkDir       = "work-dir"
	FlagKeepWorkDir   = "keep-work-dir"
	FlagGit           = "git"
	FlagCargo         = "cargo"
	FlagRustup        = "rustup"
	FlagSkipToolchain = "skip-toolchain"
)
