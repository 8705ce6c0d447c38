package cli

import (
	"github.com/spf13/cobra"

	"locksync/internal/engine"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the upstream Cargo.lock and its revision",
	Long: `Check out the upstream repository and publish its committed Cargo.lock.

The lockfile and a revision.env (head-hash, head-date) are written to
--artifact-dir. When $GITHUB_OUTPUT is set, head-hash and head-date are also
appended to it so later workflow jobs can use them.

Exit codes:
	0 = lockfile fetched
	3 = fatal error

Examples:
  locksync fetch --artifact-dir ./lockfile
  locksync fetch --branch release/1.0 --artifact-dir ./lockfile
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return fatalf("%v", err)
		}
		// Public upstreams clone anonymously; a token is only used when present.
		token, err := resolveToken(cmd, false)
		if err != nil {
			return err
		}
		eng := &engine.Engine{Git: newGit(token)}
		return exitWith(eng.RunFetch(cmd.Context(), cfg))
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	addSourceFlags(fetchCmd)
	addRuntimeFlags(fetchCmd)
}
