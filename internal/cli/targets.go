package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"locksync/internal/flags"
	"locksync/internal/target"
)

var targetsListQuiet bool

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Inspect the downstream target registry",
	Long: `Inspect the repositories locksync syncs to.

The built-in registry can be replaced with --targets-file and narrowed with
--include/--exclude, exactly as for "locksync sync".

Examples:
  # List all targets with their manifest paths
  locksync targets list

  # Show one target
  locksync targets show zenoh-java
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List target repositories",
	Long: `List the target repositories in registry order.

Examples:
  locksync targets list
  locksync targets list -q --include 'zenoh-backend-*'

Output:
  A vertical list of targets:
    ----------------------------------------
    TARGET: {OWNER/REPO}
    ----------------------------------------
    Manifest: {PATH}
    Lockfile: {PATH}
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		targets, err := resolveTargets()
		if err != nil {
			return err
		}
		for _, t := range targets {
			if targetsListQuiet {
				fmt.Fprintln(cmd.OutOrStdout(), t.FullName())
			} else {
				printTarget(cmd.OutOrStdout(), t)
			}
		}
		return nil
	},
}

var targetsShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show details of a specific target",
	Long: `Show details of a target by repository name or OWNER/REPO.

Examples:
  locksync targets show zenoh-java
  locksync targets show eclipse-zenoh/zenoh-c
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		all, err := loadRegistry()
		if err != nil {
			return err
		}
		t, ok := target.Lookup(all, args[0])
		if !ok {
			return fmt.Errorf("target not found: %s", args[0])
		}
		printTarget(cmd.OutOrStdout(), t)
		return nil
	},
}

func printTarget(w io.Writer, t target.Target) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "TARGET: %s\n", t.FullName())
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintf(w, "Manifest: %s\n", t.ManifestPath())
	fmt.Fprintf(w, "Lockfile: %s\n", t.LockfilePath())
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(targetsCmd)
	targetsCmd.AddCommand(targetsListCmd)
	targetsListCmd.Flags().BoolVarP(&targetsListQuiet, "quiet", "q", false, "Only print OWNER/REPO")
	addTargetFlags(targetsListCmd)
	targetsCmd.AddCommand(targetsShowCmd)
	targetsShowCmd.Flags().StringVar(&cfg.Targets.File, flags.FlagTargets, "", "YAML target registry replacing the built-in list")
}
