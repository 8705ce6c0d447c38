package engine

import (
	"time"

	gh "locksync/internal/github"
	"locksync/internal/output"
	"locksync/internal/target"
)

// Step names the stage of a target sync. A failed TargetResult records the
// step that failed.
type Step string

const (
	StepCheckout    Step = "checkout"
	StepResolve     Step = "resolve"
	StepOverwrite   Step = "overwrite"
	StepToolchain   Step = "toolchain"
	StepCheck       Step = "check"
	StepVerify      Step = "verify"
	StepDiff        Step = "diff"
	StepPush        Step = "push"
	StepPullRequest Step = "pull-request"
	StepAutoMerge   Step = "auto-merge"
)

// TargetResult is the outcome of syncing one target. Exactly one is produced
// per target per run.
type TargetResult struct {
	Target    target.Target
	Operation gh.Operation
	// Changed is true when the regenerated lockfile differs from HEAD.
	Changed bool
	Number  int
	URL     string
	// AutoMerge is true when auto-merge was enabled in this run.
	AutoMerge bool
	// BranchDeleted is true when a stale sync branch was removed because the
	// lockfile already matched.
	BranchDeleted bool
	Step          Step
	Err           error
	Duration      time.Duration
}

func (r TargetResult) Failed() bool {
	return r.Err != nil
}

func (r TargetResult) fail(step Step, err error) TargetResult {
	r.Step = step
	r.Err = err
	return r
}

// Output renders the result for the output sinks. GitHub request URLs are
// scrubbed from error messages unless verbose is set.
func (r TargetResult) Output(verbose bool) output.Result {
	op := r.Operation
	if op == "" {
		op = gh.OperationNone
	}
	res := output.Result{
		Target:      r.Target.FullName(),
		Status:      output.StatusOK,
		Operation:   string(op),
		Changed:     r.Changed,
		PullRequest: r.Number,
		URL:         r.URL,
		AutoMerge:   r.AutoMerge,
		DurationMS:  r.Duration.Milliseconds(),
	}
	if r.BranchDeleted {
		res.Message = "lockfile already in sync; stale sync branch deleted"
	}
	if r.Err != nil {
		res.Status = output.StatusError
		res.Step = string(r.Step)
		res.Message = gh.DescribeError(r.Err, verbose)
	}
	return res
}
