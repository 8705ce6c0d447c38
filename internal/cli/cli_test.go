package cli

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"locksync/internal/config"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// resetFlags clears the Changed marks left by a previous execution, which
// would otherwise shadow config file values.
func resetFlags(cmd *cobra.Command) {
	unmark := func(f *pflag.Flag) { f.Changed = false }
	cmd.Flags().VisitAll(unmark)
	cmd.PersistentFlags().VisitAll(unmark)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the command tree in-process against a fresh config.
func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	*cfg = *config.New()
	configFile = ""
	targetsListQuiet = false
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	code := run(context.Background(), args)
	return out.String(), code
}

func lines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestVersion(t *testing.T) {
	out, code := execute(t, "version")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(out, "locksync dev\n") || !strings.Contains(out, "commit: unknown") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestTargetsList(t *testing.T) {
	t.Run("quiet lists the registry in order", func(t *testing.T) {
		out, code := execute(t, "targets", "list", "-q")
		if code != 0 {
			t.Fatalf("expected exit 0, got %d: %s", code, out)
		}
		got := lines(out)
		if len(got) != 13 {
			t.Fatalf("expected 13 targets, got %d:\n%s", len(got), out)
		}
		if got[0] != "eclipse-zenoh/zenoh-c" {
			t.Fatalf("unexpected first target %q", got[0])
		}
	})

	t.Run("include and exclude", func(t *testing.T) {
		out, code := execute(t, "targets", "list", "-q", "--include", "zenoh-backend-*", "--exclude", "zenoh-backend-s3")
		if code != 0 {
			t.Fatalf("expected exit 0, got %d: %s", code, out)
		}
		got := lines(out)
		if len(got) != 3 {
			t.Fatalf("expected 3 backends, got %v", got)
		}
		for _, l := range got {
			if !strings.Contains(l, "zenoh-backend-") || strings.HasSuffix(l, "s3") {
				t.Fatalf("unexpected target %q", l)
			}
		}
	})

	t.Run("verbose form shows manifest paths", func(t *testing.T) {
		out, code := execute(t, "targets", "list", "--include", "zenoh-java")
		if code != 0 {
			t.Fatalf("expected exit 0, got %d: %s", code, out)
		}
		for _, want := range []string{"TARGET: eclipse-zenoh/zenoh-java", "Manifest: zenoh-jni/Cargo.toml", "Lockfile: zenoh-jni/Cargo.lock"} {
			if !strings.Contains(out, want) {
				t.Fatalf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "locksync.yaml")
		if err := os.WriteFile(path, []byte("targets:\n  include:\n    - zenoh-c\n    - zenoh-python\n"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		out, code := execute(t, "targets", "list", "-q", "--config", path)
		if code != 0 {
			t.Fatalf("expected exit 0, got %d: %s", code, out)
		}
		if got := lines(out); len(got) != 2 {
			t.Fatalf("expected 2 targets from config file, got %v", got)
		}
	})

	t.Run("targets file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "targets.yaml")
		if err := os.WriteFile(path, []byte("owner: example\ntargets:\n  - zenoh-java\n"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		out, code := execute(t, "targets", "list", "-q", "--targets-file", path)
		if code != 0 {
			t.Fatalf("expected exit 0, got %d: %s", code, out)
		}
		if got := lines(out); len(got) != 1 || got[0] != "example/zenoh-java" {
			t.Fatalf("unexpected targets %v", got)
		}
	})
}

func TestTargetsShow(t *testing.T) {
	out, code := execute(t, "targets", "show", "zenoh-c")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, out)
	}
	if !strings.Contains(out, "Manifest: Cargo.toml") {
		t.Fatalf("expected root manifest:\n%s", out)
	}

	if _, code := execute(t, "targets", "show", "zenoh-rust"); code != 1 {
		t.Fatalf("expected exit 1 for unknown target, got %d", code)
	}
}

func TestSync_FatalBeforeAnyWork(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"invalid merge method", []string{"sync", "--merge-method", "fast-forward"}},
		{"invalid upstream", []string{"sync", "--upstream", "zenoh"}},
		{"no matching targets", []string{"sync", "--include", "zenoh-rust"}},
		{"missing config file", []string{"sync", "--config", "/nonexistent/locksync.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, code := execute(t, tt.args...); code != 3 {
				t.Fatalf("expected exit 3, got %d", code)
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, code := execute(t, "scan"); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func gitT(t *testing.T, dir string, args ...string) {
	t.Helper()
	full := append([]string{"-c", "user.name=Fixture", "-c", "user.email=fixture@example.com", "-c", "init.defaultBranch=main"}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
}

func TestFetch_LocalUpstream(t *testing.T) {
	requireGit(t)

	src := t.TempDir()
	gitT(t, src, "init", "--quiet")
	lock := "version = 3\n\n[[package]]\nname = \"zenoh\"\nversion = \"1.0.0\"\n"
	if err := os.WriteFile(filepath.Join(src, "Cargo.lock"), []byte(lock), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	gitT(t, src, "add", ".")
	gitT(t, src, "commit", "--quiet", "-m", "initial")

	server := t.TempDir()
	if err := os.MkdirAll(filepath.Join(server, "eclipse-zenoh"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	gitT(t, server, "clone", "--quiet", "--bare", src, filepath.Join(server, "eclipse-zenoh", "zenoh.git"))

	artifacts := filepath.Join(t.TempDir(), "artifact")
	outputs := filepath.Join(t.TempDir(), "github_output")
	t.Setenv("GITHUB_OUTPUT", outputs)

	out, code := execute(t, "fetch", "--server-url", "file://"+server, "--artifact-dir", artifacts)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, out)
	}
	got, err := os.ReadFile(filepath.Join(artifacts, "Cargo.lock"))
	if err != nil || string(got) != lock {
		t.Fatalf("unexpected artifact (err=%v): %q", err, got)
	}
	env, err := os.ReadFile(outputs)
	if err != nil {
		t.Fatalf("read outputs: %v", err)
	}
	if !strings.Contains(string(env), "head-hash=") || !strings.Contains(string(env), "head-date=") {
		t.Fatalf("unexpected outputs %q", env)
	}
}
