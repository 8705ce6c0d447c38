package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"locksync/internal/flags"
)

// EnvPrefix prefixes environment overrides, e.g. LOCKSYNC_SOURCE_BRANCH.
const EnvPrefix = "LOCKSYNC"

// binding ties a CLI flag to its config file key. The environment variable is
// derived from the key: "pull-request.sync-branch" -> LOCKSYNC_PULL_REQUEST_SYNC_BRANCH.
type binding struct {
	flag  string
	key   string
	apply func(v *viper.Viper, key string, c *Config)
}

func stringField(field func(*Config) *string) func(*viper.Viper, string, *Config) {
	return func(v *viper.Viper, key string, c *Config) { *field(c) = v.GetString(key) }
}

func listField(field func(*Config) *[]string) func(*viper.Viper, string, *Config) {
	return func(v *viper.Viper, key string, c *Config) { *field(c) = v.GetStringSlice(key) }
}

func boolField(field func(*Config) *bool) func(*viper.Viper, string, *Config) {
	return func(v *viper.Viper, key string, c *Config) { *field(c) = v.GetBool(key) }
}

var bindings = []binding{
	{flags.FlagUpstream, "source.upstream", stringField(func(c *Config) *string { return &c.Source.Repository })},
	{flags.FlagBranch, "source.branch", stringField(func(c *Config) *string { return &c.Source.Branch })},
	{flags.FlagServerURL, "source.server-url", stringField(func(c *Config) *string { return &c.Source.ServerURL })},
	{flags.FlagAPIURL, "source.api-url", stringField(func(c *Config) *string { return &c.Source.APIURL })},
	{flags.FlagArtifactDir, "source.artifact-dir", stringField(func(c *Config) *string { return &c.Source.ArtifactDir })},

	{flags.FlagTargets, "targets.file", stringField(func(c *Config) *string { return &c.Targets.File })},
	{flags.FlagInclude, "targets.include", listField(func(c *Config) *[]string { return &c.Targets.Include })},
	{flags.FlagExclude, "targets.exclude", listField(func(c *Config) *[]string { return &c.Targets.Exclude })},

	{flags.FlagSyncBranch, "pull-request.sync-branch", stringField(func(c *Config) *string { return &c.PullRequest.Branch })},
	{flags.FlagLabel, "pull-request.label", listField(func(c *Config) *[]string { return &c.PullRequest.Labels })},
	{flags.FlagIdentity, "pull-request.identity", stringField(func(c *Config) *string { return &c.PullRequest.Identity })},
	{flags.FlagCommitMessage, "pull-request.commit-message", stringField(func(c *Config) *string { return &c.PullRequest.CommitMessage })},
	{flags.FlagAutoMerge, "pull-request.auto-merge", boolField(func(c *Config) *bool { return &c.PullRequest.AutoMerge })},
	{flags.FlagMergeMethod, "pull-request.merge-method", stringField(func(c *Config) *string { return &c.PullRequest.MergeMethod })},

	{flags.FlagConsoleFormat, "output.console-format", stringField(func(c *Config) *string { return &c.Output.ConsoleFormat })},
	{flags.FlagSummary, "output.summary", stringField(func(c *Config) *string { return &c.Output.Summary })},
	{flags.FlagOut, "output.out", stringField(func(c *Config) *string { return &c.Output.Out })},
	{flags.FlagOutFormat, "output.out-format", stringField(func(c *Config) *string { return &c.Output.OutFormat })},
	{flags.FlagEmit, "output.emit", listField(func(c *Config) *[]string { return &c.Output.Emit })},
	{flags.FlagNoConsole, "output.no-console", boolField(func(c *Config) *bool { return &c.Output.NoConsole })},

	{flags.FlagConcurrency, "runtime.concurrency", func(v *viper.Viper, key string, c *Config) { c.Runtime.Concurrency = v.GetInt(key) }},
	{flags.FlagTimeout, "runtime.timeout", func(v *viper.Viper, key string, c *Config) { c.Runtime.Timeout = v.GetDuration(key) }},
	{flags.FlagDryRun, "runtime.dry-run", boolField(func(c *Config) *bool { return &c.Runtime.DryRun })},
	{flags.FlagWorkDir, "runtime.work-dir", stringField(func(c *Config) *string { return &c.Runtime.WorkDir })},
	{flags.FlagKeepWorkDir, "runtime.keep-work-dir", boolField(func(c *Config) *bool { return &c.Runtime.KeepWorkDir })},
	{flags.FlagGit, "runtime.git", stringField(func(c *Config) *string { return &c.Runtime.Git })},
	{flags.FlagCargo, "runtime.cargo", stringField(func(c *Config) *string { return &c.Runtime.Cargo })},
	{flags.FlagRustup, "runtime.rustup", stringField(func(c *Config) *string { return &c.Runtime.Rustup })},
	{flags.FlagSkipToolchain, "runtime.skip-toolchain", boolField(func(c *Config) *bool { return &c.Runtime.SkipToolchain })},
	{flags.FlagVerbose, "runtime.verbose", boolField(func(c *Config) *bool { return &c.Runtime.Verbose })},
}

// Overlay applies a YAML config file (optional) and LOCKSYNC_* environment
// variables onto c. Keys whose flag was set explicitly on the command line are
// left alone, so precedence is flag > env > file > default.
// The token is deliberately not read from the file.
func Overlay(c *Config, file string, explicit func(flag string) bool) error {
	if c == nil {
		return fmt.Errorf("config overlay: config is nil")
	}
	if explicit == nil {
		explicit = func(string) bool { return false }
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for _, b := range bindings {
		if err := v.BindEnv(b.key); err != nil {
			return fmt.Errorf("config overlay: bind %s: %w", b.key, err)
		}
	}

	if file = strings.TrimSpace(file); file != "" {
		if _, err := os.Stat(file); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	for _, b := range bindings {
		if explicit(b.flag) || !v.IsSet(b.key) {
			continue
		}
		b.apply(v, b.key, c)
	}
	return nil
}
