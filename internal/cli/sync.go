package cli

import (
	"os"

	"github.com/spf13/cobra"

	"locksync/internal/config"
	"locksync/internal/engine"
	"locksync/internal/flags"
	gh "locksync/internal/github"
)

const syncHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
	locksync authenticates to GitHub with one token, used for the API and for
	pushing the sync branch.

	Sources (in order):
	1) --token or LOCKSYNC_TOKEN
	2) GITHUB_TOKEN, then GH_TOKEN
	3) GitHub CLI (gh) authentication via gh auth token

  Token guidance (brief):
  - The token must be able to push branches and open pull requests in every
    target repository. A workflow's own GITHUB_TOKEN only covers the
    repository running the job; use a bot PAT for cross-repository syncs.
  - Auto-merge must be allowed in each target's repository settings.

  In GitHub Actions, $GITHUB_STEP_SUMMARY and $GITHUB_OUTPUT are picked up
  automatically, and the run URL is linked from every pull request body.

  Every flag can also be set in the --config file or as LOCKSYNC_<SECTION>_<KEY>,
  e.g. LOCKSYNC_PULL_REQUEST_SYNC_BRANCH or LOCKSYNC_RUNTIME_CONCURRENCY.

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasHelpSubCommands}}Additional help topics:
{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the upstream Cargo.lock to every target repository",
	Long: `Fetch the upstream Cargo.lock once, then sync it to every target repository.

For each target locksync checks it out with submodules, overwrites the lockfile
(in zenoh-jni/ for the JVM bindings), runs cargo check so the lockfile is
re-resolved, and verifies that no pinned version moved. When the lockfile
differs from the target's HEAD, the sync branch is force-pushed and a pull
request is opened or updated. Freshly opened pull requests get auto-merge.

Targets run concurrently and independently: one failing target never stops
the others.

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON array or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --summary: append a Markdown summary (default: $GITHUB_STEP_SUMMARY)
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, fetch.finished, target.started, target.result,
	run.finished).

Exit codes:
	0 = every target synced or already in sync
	2 = partial failure (some targets errored)
	3 = fatal error (config, auth or fetch; nothing was synced)

Examples:
  # Daily run from CI
  export GITHUB_TOKEN="<bot_token>"
  locksync sync

  # Sync against a release branch
  locksync sync --branch release/1.0

  # Only the plugins, without pushing
  locksync sync --include 'zenoh-plugin-*' --dry-run

	# Machine-readable events on stdout
	locksync sync --no-console --emit ndjson
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return fatalf("%v", err)
		}
		targets, err := resolveTargets()
		if err != nil {
			return fatalf("%v", err)
		}

		// Dry runs never touch the API or push, so public targets need no token.
		token, err := resolveToken(cmd, !cfg.Runtime.DryRun)
		if err != nil {
			return err
		}

		client, err := gh.NewClient(cmd.Context(), token,
			gh.WithVerbose(cfg.Runtime.Verbose, os.Stderr),
			gh.WithBaseURL(cfg.Source.APIURL),
		)
		if err != nil {
			return fatalf("failed to create GitHub client: %v", err)
		}

		eng := &engine.Engine{
			Git:   newGit(token),
			Cargo: newCargo(),
			PRs:   client,
		}
		return exitWith(eng.Run(cmd.Context(), cfg, targets))
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.SetHelpTemplate(syncHelpTemplate)

	// MAINTAINER NOTE: If you add/change/remove flags here, keep the overlay
	// table in internal/config/load.go in sync.

	addSourceFlags(syncCmd)
	addTargetFlags(syncCmd)

	// Pull request
	syncCmd.Flags().StringVar(&cfg.PullRequest.Branch, flags.FlagSyncBranch, config.DefaultSyncBranch, "Sync branch force-pushed to every target")
	syncCmd.Flags().StringSliceVar(&cfg.PullRequest.Labels, flags.FlagLabel, []string{config.DefaultLabel}, "Label(s) applied to sync pull requests (repeatable; comma-separated accepted)")
	syncCmd.Flags().StringVar(&cfg.PullRequest.Identity, flags.FlagIdentity, config.DefaultIdentity, "Commit author and committer as \"Name <email>\"")
	syncCmd.Flags().StringVar(&cfg.PullRequest.CommitMessage, flags.FlagCommitMessage, config.DefaultCommitMessage, "Sync commit message")
	syncCmd.Flags().BoolVar(&cfg.PullRequest.AutoMerge, flags.FlagAutoMerge, true, "Enable auto-merge on newly created pull requests")
	syncCmd.Flags().StringVar(&cfg.PullRequest.MergeMethod, flags.FlagMergeMethod, "squash", "Auto-merge method: squash|merge|rebase")

	// Output
	syncCmd.Flags().StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson")
	syncCmd.Flags().StringVar(&cfg.Output.Summary, flags.FlagSummary, "", "Append a Markdown run summary to this path (default: $GITHUB_STEP_SUMMARY)")
	syncCmd.Flags().StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	syncCmd.Flags().StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	syncCmd.Flags().StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	syncCmd.Flags().BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--summary)")

	// Runtime
	syncCmd.Flags().IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, config.DefaultConcurrency, "Targets synced concurrently")
	syncCmd.Flags().BoolVar(&cfg.Runtime.DryRun, flags.FlagDryRun, false, "Detect lockfile changes without pushing or touching pull requests")
	syncCmd.Flags().StringVar(&cfg.Runtime.Cargo, flags.FlagCargo, cfg.Runtime.Cargo, "cargo binary")
	syncCmd.Flags().StringVar(&cfg.Runtime.Rustup, flags.FlagRustup, cfg.Runtime.Rustup, "rustup binary")
	syncCmd.Flags().BoolVar(&cfg.Runtime.SkipToolchain, flags.FlagSkipToolchain, false, "Skip 'rustup show' before 'cargo check'")
	addRuntimeFlags(syncCmd)
}
