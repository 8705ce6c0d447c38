package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"locksync/internal/config"
	"locksync/internal/flags"
	"locksync/internal/telemetry"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var (
	cfg        = config.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "locksync",
	Short: "Propagate the Zenoh Cargo.lock to downstream repositories",
	Long: `locksync keeps the Cargo.lock of the Zenoh bindings, plugins and backends in
step with the upstream eclipse-zenoh/zenoh lockfile.

For each downstream repository it overwrites the lockfile, lets cargo
re-resolve, and opens (or updates) a pull request on a fixed sync branch.
Freshly opened pull requests are queued for squash auto-merge.

Examples:
	# Sync every target
	locksync sync

	# See what would change without pushing anything
	locksync sync --dry-run

	# Only fetch the upstream lockfile (CI artifact step)
	locksync fetch --artifact-dir ./lockfile

	# List the downstream repositories
	locksync targets list

	# Print build info
	locksync version`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every GitHub API call, git/cargo invocation and full error details)")
	rootCmd.PersistentFlags().StringVar(&configFile, flags.FlagConfig, "", "YAML config file; LOCKSYNC_* environment variables and flags override it")
}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code}
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// run executes the command tree and maps the outcome to an exit code.
func run(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	fmt.Fprintln(os.Stderr, "Run 'locksync --help' for usage.")
	return 1
}

func Execute() {
	ctx := context.Background()
	shutdown, err := telemetry.Init(ctx, "locksync", buildVersion, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry disabled: %v\n", err)
		shutdown = func(context.Context) error { return nil }
	}

	code := run(ctx, os.Args[1:])

	if err := shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry shutdown: %v\n", err)
	}
	os.Exit(code)
}
