package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"locksync/internal/config"
	"locksync/internal/target"
)

func TestExitCodeForRun(t *testing.T) {
	tests := []struct {
		fatal, partial bool
		want           int
	}{
		{false, false, 0},
		{false, true, 2},
		{true, false, 3},
		{true, true, 3},
	}
	for _, tt := range tests {
		if got := exitCodeForRun(tt.fatal, tt.partial); got != tt.want {
			t.Fatalf("exitCodeForRun(%v, %v) = %d, want %d", tt.fatal, tt.partial, got, tt.want)
		}
	}
}

type engineFixture struct {
	git     *fakeGit
	cargo   *fakeCargo
	prs     *fakePRs
	engine  *Engine
	cfg     *config.Config
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	targets []target.Target
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		git:    newFakeGit(),
		cargo:  newFakeCargo(),
		prs:    newFakePRs(),
		cfg:    config.New(),
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
	f.engine = &Engine{Git: f.git, Cargo: f.cargo, PRs: f.prs, Stdout: f.stdout, Stderr: f.stderr}
	f.cfg.Runtime.WorkDir = t.TempDir()
	f.cfg.Output.NoConsole = true
	f.cfg.Output.Emit = []string{"ndjson"}

	f.git.addRepo("eclipse-zenoh/zenoh", map[string]string{target.LockfileName: upstreamLock})
	for name, lock := range map[string]string{
		"zenoh-c":      staleLock,
		"zenoh-java":   staleLock,
		"zenoh-python": upstreamLock,
	} {
		tg := target.New("eclipse-zenoh", name)
		f.git.addTarget(tg, lock)
		f.targets = append(f.targets, tg)
	}
	return f
}

func (f *engineFixture) run(t *testing.T) int {
	t.Helper()
	f.stdout.Reset()
	return f.engine.Run(context.Background(), f.cfg, f.targets)
}

// events decodes the ndjson stream written to stdout.
func (f *engineFixture) events(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(f.stdout.Bytes()))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("invalid ndjson line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func resultsByTarget(events []map[string]any) map[string]map[string]any {
	out := map[string]map[string]any{}
	for _, e := range events {
		if e["type"] == "target.result" {
			out[e["target"].(string)] = e
		}
	}
	return out
}

func TestRun_AllTargetsSucceed(t *testing.T) {
	f := newEngineFixture(t)

	if code := f.run(t); code != 0 {
		t.Fatalf("expected exit 0, got %d\nstderr:\n%s", code, f.stderr.String())
	}
	events := f.events(t)
	if len(events) == 0 || events[0]["type"] != "run.started" || events[len(events)-1]["type"] != "run.finished" {
		t.Fatalf("unexpected event framing: %v", events)
	}

	var fetched map[string]any
	started := 0
	for _, e := range events {
		switch e["type"] {
		case "fetch.finished":
			fetched = e
		case "target.started":
			started++
		}
	}
	if fetched == nil {
		t.Fatalf("missing fetch.finished event")
	}
	if rev := fetched["revision"].(map[string]any); rev["hash"] != testHash || rev["date"] != testDate {
		t.Fatalf("unexpected revision %v", rev)
	}
	if started != 3 {
		t.Fatalf("expected 3 target.started events, got %d", started)
	}

	results := resultsByTarget(events)
	if len(results) != 3 {
		t.Fatalf("expected exactly one result per target, got %d", len(results))
	}
	if op := results["eclipse-zenoh/zenoh-c"]["operation"]; op != "created" {
		t.Fatalf("zenoh-c: expected created, got %v", op)
	}
	if op := results["eclipse-zenoh/zenoh-java"]["operation"]; op != "created" {
		t.Fatalf("zenoh-java: expected created, got %v", op)
	}
	if op := results["eclipse-zenoh/zenoh-python"]["operation"]; op != "none" {
		t.Fatalf("zenoh-python: expected none, got %v", op)
	}

	tally := events[len(events)-1]["tally"].(map[string]any)
	if tally["created"] != float64(2) || tally["unchanged"] != float64(1) || tally["failed"] != float64(0) {
		t.Fatalf("unexpected tally %v", tally)
	}
}

func TestRun_SecondRunUpdatesExistingPullRequests(t *testing.T) {
	f := newEngineFixture(t)
	if code := f.run(t); code != 0 {
		t.Fatalf("first run: exit %d", code)
	}
	if code := f.run(t); code != 0 {
		t.Fatalf("second run: exit %d", code)
	}

	results := resultsByTarget(f.events(t))
	for _, name := range []string{"eclipse-zenoh/zenoh-c", "eclipse-zenoh/zenoh-java"} {
		if op := results[name]["operation"]; op != "updated" {
			t.Fatalf("%s: expected updated on second run, got %v", name, op)
		}
		if results[name]["auto_merge"] != nil {
			t.Fatalf("%s: auto-merge must not be re-enabled on update", name)
		}
	}
	if len(f.prs.open) != 2 {
		t.Fatalf("expected two open pull requests, got %d", len(f.prs.open))
	}
	if len(f.prs.autoMerged) != 2 {
		t.Fatalf("expected auto-merge enabled twice in total, got %v", f.prs.autoMerged)
	}
}

func TestRun_IsolatedFailureIsPartial(t *testing.T) {
	f := newEngineFixture(t)
	f.cargo.checkErr["zenoh-java"] = errors.New("cargo check failed: error[E0432]: unresolved import")

	if code := f.run(t); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	results := resultsByTarget(f.events(t))
	java := results["eclipse-zenoh/zenoh-java"]
	if java["status"] != "ERROR" || java["step"] != "check" {
		t.Fatalf("unexpected zenoh-java result %v", java)
	}
	if results["eclipse-zenoh/zenoh-c"]["operation"] != "created" {
		t.Fatalf("zenoh-c should still get its pull request: %v", results["eclipse-zenoh/zenoh-c"])
	}
	if _, ok := f.prs.open["eclipse-zenoh/zenoh-c"]; !ok {
		t.Fatalf("expected an open pull request for zenoh-c")
	}
}

func TestRun_FetchFailureIsFatal(t *testing.T) {
	f := newEngineFixture(t)
	f.git.cloneErr["eclipse-zenoh/zenoh"] = errors.New("repository not found")

	if code := f.run(t); code != 3 {
		t.Fatalf("expected exit 3, got %d", code)
	}
	if f.prs.upsertCalls() != 0 || len(f.git.clones) != 0 {
		t.Fatalf("no target may be synced after a failed fetch")
	}
	events := f.events(t)
	last := events[len(events)-1]
	if last["type"] != "run.finished" || last["exit_code"] != float64(3) {
		t.Fatalf("unexpected final event %v", last)
	}
	if !strings.Contains(last["error"].(string), "repository not found") {
		t.Fatalf("expected fetch error in run.finished, got %v", last["error"])
	}
	if !strings.Contains(f.stderr.String(), "Error:") {
		t.Fatalf("expected error on stderr, got %q", f.stderr.String())
	}
}

func TestRun_InvalidUpstreamLockfileIsFatal(t *testing.T) {
	f := newEngineFixture(t)
	f.git.addRepo("eclipse-zenoh/zenoh", map[string]string{target.LockfileName: "version = [oops"})

	if code := f.run(t); code != 3 {
		t.Fatalf("expected exit 3, got %d", code)
	}
}

func TestRun_DryRun(t *testing.T) {
	f := newEngineFixture(t)
	f.cfg.Runtime.DryRun = true
	f.cfg.Output.NoConsole = false
	f.cfg.Output.Emit = nil

	if code := f.run(t); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if f.prs.upsertCalls() != 0 || len(f.git.pushes) != 0 {
		t.Fatalf("dry run must not push or open pull requests")
	}
	out := f.stdout.String()
	for _, want := range []string{"[CHANGED] eclipse-zenoh/zenoh-c", "[UNCHANGED] eclipse-zenoh/zenoh-python", "2 would change (dry run)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("console output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(f.stderr.String(), "Syncing 3 targets...") {
		t.Fatalf("expected progress on stderr, got %q", f.stderr.String())
	}
}

func TestRun_PublishesFetchOutputs(t *testing.T) {
	f := newEngineFixture(t)
	dir := t.TempDir()
	f.cfg.Source.ArtifactDir = filepath.Join(dir, "artifact")
	f.cfg.Source.GitHubOutput = filepath.Join(dir, "github_output")
	f.cfg.Output.Summary = filepath.Join(dir, "summary.md")
	f.targets = nil

	if code := f.run(t); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	lock, err := os.ReadFile(filepath.Join(f.cfg.Source.ArtifactDir, target.LockfileName))
	if err != nil || string(lock) != upstreamLock {
		t.Fatalf("unexpected artifact (err=%v):\n%s", err, lock)
	}
	outputs, err := os.ReadFile(f.cfg.Source.GitHubOutput)
	if err != nil {
		t.Fatalf("read outputs: %v", err)
	}
	if want := "head-hash=" + testHash + "\nhead-date=" + testDate + "\n"; string(outputs) != want {
		t.Fatalf("unexpected outputs %q", outputs)
	}
	summary, err := os.ReadFile(f.cfg.Output.Summary)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.Contains(string(summary), "eclipse-zenoh/zenoh@"+testHash) || !strings.Contains(string(summary), "Exit code: `0`") {
		t.Fatalf("unexpected summary:\n%s", summary)
	}
}

func TestRunFetch(t *testing.T) {
	f := newEngineFixture(t)
	f.cfg.Source.ArtifactDir = filepath.Join(t.TempDir(), "artifact")

	if code := f.engine.RunFetch(context.Background(), f.cfg); code != 0 {
		t.Fatalf("expected exit 0, got %d\nstderr:\n%s", code, f.stderr.String())
	}
	if _, err := os.Stat(filepath.Join(f.cfg.Source.ArtifactDir, "revision.env")); err != nil {
		t.Fatalf("expected revision.env: %v", err)
	}
	if len(f.git.clones) != 1 {
		t.Fatalf("expected only the upstream clone, got %v", f.git.clones)
	}
	if f.git.clones["eclipse-zenoh/zenoh"].Depth != 1 {
		t.Fatalf("expected a shallow upstream clone")
	}

	f.git.cloneErr["eclipse-zenoh/zenoh"] = errors.New("network down")
	if code := f.engine.RunFetch(context.Background(), f.cfg); code != ExitFatal {
		t.Fatalf("expected exit %d, got %d", ExitFatal, code)
	}
}

type failingMeter struct {
	noop.Meter
}

func (failingMeter) Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return noop.Int64Counter{}, errors.New("invalid instrument name")
}

func TestNewTargetCounter_ReportsInstrumentError(t *testing.T) {
	var buf bytes.Buffer
	counter := newTargetCounter(failingMeter{}, targetCounterName, &buf)
	if counter == nil {
		t.Fatalf("expected the meter's fallback instrument")
	}
	if !strings.Contains(buf.String(), "[verbose] telemetry: counter locksync.targets: invalid instrument name") {
		t.Fatalf("expected instrument error on the verbose writer, got %q", buf.String())
	}

	// Without a verbose writer the error is not printed anywhere and the run goes on.
	if newTargetCounter(failingMeter{}, targetCounterName, nil) == nil {
		t.Fatalf("expected the meter's fallback instrument")
	}
	buf.Reset()
	if newTargetCounter(noop.NewMeterProvider().Meter("test"), targetCounterName, &buf) == nil || buf.Len() != 0 {
		t.Fatalf("expected a silent counter from a healthy meter, got %q", buf.String())
	}
}
