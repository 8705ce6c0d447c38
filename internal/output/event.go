package output

import "locksync/internal/lockfile"

// Lifecycle event types. In NDJSON mode sinks emit one Event per line; JSON
// mode remains an aggregate of Result values.
const (
	EventRunStarted    = "run.started"
	EventFetchFinished = "fetch.finished"
	EventTargetStarted = "target.started"
	EventTargetResult  = "target.result"
	EventRunFinished   = "run.finished"
)

type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// Result is the rendered outcome of syncing one target.
type Result struct {
	Target      string `json:"target"`
	Status      Status `json:"status"`
	Operation   string `json:"operation"`
	Changed     bool   `json:"changed"`
	Step        string `json:"step,omitempty"`
	Message     string `json:"message,omitempty"`
	PullRequest int    `json:"pull_request,omitempty"`
	URL         string `json:"url,omitempty"`
	AutoMerge   bool   `json:"auto_merge,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
}

// Label is the one-word outcome shown in console and summary output.
func (r Result) Label() string {
	switch {
	case r.Status == StatusError:
		return "ERROR"
	case r.Operation == "created":
		return "CREATED"
	case r.Operation == "updated":
		return "UPDATED"
	case r.Changed:
		// Dry run: a change was detected but nothing was pushed.
		return "CHANGED"
	default:
		return "UNCHANGED"
	}
}

// Tally counts outcomes across a run.
type Tally struct {
	Targets   int `json:"targets"`
	Unchanged int `json:"unchanged"`
	Changed   int `json:"changed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

func (t *Tally) Add(r Result) {
	t.Targets++
	switch r.Label() {
	case "ERROR":
		t.Failed++
	case "CREATED":
		t.Created++
	case "UPDATED":
		t.Updated++
	case "CHANGED":
		t.Changed++
	default:
		t.Unchanged++
	}
}

type Event struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
	*Result
	Revision *lockfile.Revision `json:"revision,omitempty"`
	Digest   string             `json:"digest,omitempty"`
	Targets  int                `json:"targets,omitempty"`
	DryRun   bool               `json:"dry_run,omitempty"`
	Tally    *Tally             `json:"tally,omitempty"`
	Error    string             `json:"error,omitempty"`
	ExitCode int                `json:"exit_code,omitempty"`
}

func eventFromResult(r Result) Event {
	return Event{Type: EventTargetResult, Target: r.Target, Result: &r}
}
