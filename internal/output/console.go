package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	labelColors = map[string]*color.Color{
		"CREATED":   color.New(color.FgGreen, color.Bold),
		"UPDATED":   color.New(color.FgCyan, color.Bold),
		"CHANGED":   color.New(color.FgYellow, color.Bold),
		"UNCHANGED": color.New(color.Faint),
		"ERROR":     color.New(color.FgRed, color.Bold),
	}
	faint = color.New(color.Faint)
)

// ConsoleSink is the human-facing sink. Text mode prints one colorized line
// per target plus a closing tally; json and ndjson behave like EmitSink.
type ConsoleSink struct {
	writer io.Writer
	format string // "text", "json", "ndjson"
	mu     sync.Mutex
	enc    *structured
}

func NewConsoleSink(w io.Writer, format string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}
	s := &ConsoleSink{writer: w, format: format}
	if format != "text" {
		// Invalid formats surface on Write/Close.
		s.enc, _ = newStructured(w, format)
	}
	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.format == "text":
		return s.writeText(v)
	case s.enc != nil:
		return s.enc.write(v)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) writeText(v any) error {
	var err error
	switch t := v.(type) {
	case Result:
		err = s.writeResultLine(t)
	case Event:
		if t.Type != EventRunFinished || t.Tally == nil {
			// Progress for other events goes to stderr from the engine.
			return nil
		}
		tl := t.Tally
		_, err = fmt.Fprintf(s.writer, "\n%d targets: %d created, %d updated, %d unchanged, %d failed",
			tl.Targets, tl.Created, tl.Updated, tl.Unchanged, tl.Failed)
		if err == nil && tl.Changed > 0 {
			_, err = fmt.Fprintf(s.writer, ", %d would change (dry run)", tl.Changed)
		}
		if err == nil {
			_, err = fmt.Fprintln(s.writer)
		}
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return flushIfPossible(s.writer)
}

func (s *ConsoleSink) writeResultLine(r Result) error {
	label := r.Label()
	c, ok := labelColors[label]
	if !ok {
		c = color.New()
	}
	line := fmt.Sprintf("%s %s", c.Sprintf("[%s]", label), r.Target)
	if r.PullRequest > 0 {
		line += fmt.Sprintf(" #%d", r.PullRequest)
	}
	if r.URL != "" {
		line += " " + r.URL
	}
	if r.AutoMerge {
		line += faint.Sprint(" (auto-merge enabled)")
	}
	if r.Status == StatusError {
		msg := r.Message
		if r.Step != "" {
			msg = r.Step + ": " + msg
		}
		line += " - " + msg
	}
	_, err := fmt.Fprintln(s.writer, line)
	return err
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.format == "text":
		return nil
	case s.enc != nil:
		return s.enc.close()
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}
