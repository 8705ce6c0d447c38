package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"locksync/internal/lockfile"
)

// SummarySink renders a Markdown run summary on Close. The file is appended
// to, matching how $GITHUB_STEP_SUMMARY is meant to be used.
type SummarySink struct {
	path      string
	serverURL string
	mu        sync.Mutex
	revision  *lockfile.Revision
	dryRun    bool
	results   []Result
	finished  *Event
}

func NewSummarySink(path, serverURL string) (*SummarySink, error) {
	if path == "" {
		return nil, fmt.Errorf("summary path required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create summary directory: %w", err)
		}
	}
	return &SummarySink{path: path, serverURL: serverURL}, nil
}

func (s *SummarySink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case Result:
		s.results = append(s.results, t)
	case Event:
		switch t.Type {
		case EventRunStarted:
			s.dryRun = t.DryRun
		case EventFetchFinished:
			s.revision = t.Revision
		case EventRunFinished:
			ev := t
			s.finished = &ev
		}
	}
	return nil
}

func (s *SummarySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open summary file: %w", err)
	}
	if _, err := f.WriteString(s.render()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write summary: %w", err)
	}
	return f.Close()
}

func (s *SummarySink) render() string {
	var b strings.Builder
	b.WriteString("## Cargo.lock sync")
	if s.dryRun {
		b.WriteString(" (dry run)")
	}
	b.WriteString("\n\n")

	if rev := s.revision; rev != nil {
		fmt.Fprintf(&b, "Upstream: [`%s@%s`](%s) from `%s`", rev.Repository, rev.Hash, rev.CommitURL(s.serverURL), rev.Date)
		if rev.Ref != "" {
			fmt.Fprintf(&b, " (branch `%s`)", rev.Ref)
		}
		b.WriteString("\n\n")
	}

	if s.finished != nil && s.finished.Error != "" {
		fmt.Fprintf(&b, "**Run aborted:** %s\n\n", tableCell(s.finished.Error))
	}

	results := append([]Result(nil), s.results...)
	sort.Slice(results, func(i, j int) bool { return results[i].Target < results[j].Target })

	var tally Tally
	if len(results) > 0 {
		b.WriteString("| Target | Result | Pull request | Details |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, r := range results {
			tally.Add(r)
			pr := ""
			if r.PullRequest > 0 {
				pr = fmt.Sprintf("[#%d](%s)", r.PullRequest, r.URL)
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", r.Target, resultEmoji(r)+" "+strings.ToLower(r.Label()), pr, tableCell(details(r)))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "**%d targets:** %d created, %d updated, %d unchanged, %d failed", tally.Targets, tally.Created, tally.Updated, tally.Unchanged, tally.Failed)
		if tally.Changed > 0 {
			fmt.Fprintf(&b, ", %d would change", tally.Changed)
		}
		b.WriteString("\n")
	}
	if s.finished != nil {
		fmt.Fprintf(&b, "\nExit code: `%d`\n", s.finished.ExitCode)
	}
	b.WriteString("\n")
	return b.String()
}

func resultEmoji(r Result) string {
	switch r.Label() {
	case "ERROR":
		return "❌"
	case "CREATED", "UPDATED":
		return "✅"
	case "CHANGED":
		return "📝"
	default:
		return "➖"
	}
}

func details(r Result) string {
	if r.Status == StatusError {
		if r.Step != "" {
			return r.Step + ": " + r.Message
		}
		return r.Message
	}
	if r.AutoMerge {
		return "auto-merge enabled"
	}
	return r.Message
}

// tableCell collapses whitespace, escapes pipes and truncates long text so a
// message fits in one Markdown table cell.
func tableCell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	if r := []rune(s); len(r) > 160 {
		return string(r[:157]) + "..."
	}
	return s
}
