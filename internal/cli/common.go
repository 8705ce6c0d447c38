package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"locksync/internal/cargo"
	"locksync/internal/config"
	"locksync/internal/engine"
	"locksync/internal/flags"
	gh "locksync/internal/github"
	"locksync/internal/target"
	"locksync/internal/vcs"
)

// loadConfig layers the config file and LOCKSYNC_* environment under the
// command line flags, then validates the result.
func loadConfig(cmd *cobra.Command) error {
	if err := config.Overlay(cfg, configFile, cmd.Flags().Changed); err != nil {
		return err
	}
	if cfg.Source.Token == "" {
		cfg.Source.Token = os.Getenv(config.EnvPrefix + "_TOKEN")
	}
	cfg.ApplyEnvironment(os.Getenv)
	return cfg.Validate()
}

// loadRegistry returns the embedded registry unless --targets-file is set.
func loadRegistry() ([]target.Target, error) {
	if cfg.Targets.File == "" {
		return target.Default(), nil
	}
	data, err := os.ReadFile(cfg.Targets.File)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return target.Parse(data)
}

// resolveTargets applies --include/--exclude to the registry.
func resolveTargets() ([]target.Target, error) {
	all, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	selected := target.Filter(all, cfg.Targets.Include, cfg.Targets.Exclude)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no targets match --include/--exclude (registry has %d)", len(all))
	}
	return selected, nil
}

func verboseWriter() *os.File {
	if cfg.Runtime.Verbose {
		return os.Stderr
	}
	return nil
}

func newGit(token string) *vcs.Git {
	opts := []vcs.Option{vcs.WithBinary(cfg.Runtime.Git), vcs.WithServerURL(cfg.Source.ServerURL)}
	if w := verboseWriter(); w != nil {
		opts = append(opts, vcs.WithVerbose(w))
	}
	return vcs.New(token, opts...)
}

func newCargo() *cargo.Runner {
	opts := []cargo.Option{cargo.WithCargo(cfg.Runtime.Cargo), cargo.WithRustup(cfg.Runtime.Rustup)}
	if w := verboseWriter(); w != nil {
		opts = append(opts, cargo.WithVerbose(w))
	}
	return cargo.NewRunner(opts...)
}

func fatalf(format string, args ...any) error {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return exitWith(engine.ExitFatal)
}

// resolveToken returns the GitHub token. A missing token is only an error
// when required is set.
func resolveToken(cmd *cobra.Command, required bool) (string, error) {
	token, _, err := gh.ResolveAuthToken(cmd.Context(), cfg.Source.Token)
	if err != nil {
		if required {
			return "", fatalf("failed to resolve GitHub auth token: %v", err)
		}
		return "", nil
	}
	if required && strings.TrimSpace(token) == "" {
		return "", fatalf("GitHub auth token is required (set --%s, GITHUB_TOKEN, GH_TOKEN or run 'gh auth login')", flags.FlagToken)
	}
	return token, nil
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&cfg.Source.Repository, flags.FlagUpstream, config.DefaultUpstream, "Upstream repository whose lockfile is propagated, as OWNER/REPO")
	cmd.Flags().StringVar(&cfg.Source.Branch, flags.FlagBranch, "", "Branch checked out in the upstream and every target, and used as pull request base (default: each repository's default branch)")
	cmd.Flags().StringVar(&cfg.Source.ServerURL, flags.FlagServerURL, config.DefaultServerURL, "Git server URL used for clone and push")
	cmd.Flags().StringVar(&cfg.Source.APIURL, flags.FlagAPIURL, "", "GitHub Enterprise Server API root (default: api.github.com)")
	cmd.Flags().StringVar(&cfg.Source.ArtifactDir, flags.FlagArtifactDir, "", "Write the fetched Cargo.lock and revision.env to this directory")
	cmd.Flags().StringVar(&cfg.Source.Token, flags.FlagToken, "", "GitHub token (default: LOCKSYNC_TOKEN, GITHUB_TOKEN, GH_TOKEN or gh auth token)")
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&cfg.Targets.File, flags.FlagTargets, "", "YAML target registry replacing the built-in list")
	cmd.Flags().StringSliceVar(&cfg.Targets.Include, flags.FlagInclude, nil, "Include pattern(s) (repeatable; comma-separated accepted). Go path.Match style; if pattern contains '/', matches OWNER/REPO, else matches repo name")
	cmd.Flags().StringSliceVar(&cfg.Targets.Exclude, flags.FlagExclude, nil, "Exclude pattern(s) (repeatable; comma-separated accepted). Same matching rules as --include")
}

func addRuntimeFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Global timeout")
	cmd.Flags().StringVar(&cfg.Runtime.WorkDir, flags.FlagWorkDir, "", "Directory for checkouts (default: a temporary directory)")
	cmd.Flags().BoolVar(&cfg.Runtime.KeepWorkDir, flags.FlagKeepWorkDir, false, "Keep checkouts on disk after the run")
	cmd.Flags().StringVar(&cfg.Runtime.Git, flags.FlagGit, cfg.Runtime.Git, "git binary")
}
