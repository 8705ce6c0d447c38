package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"
)

// Operation is what an upsert did to the pull request.
type Operation string

const (
	OperationNone    Operation = "none"
	OperationCreated Operation = "created"
	OperationUpdated Operation = "updated"
)

// MergeMethod values accepted by enablePullRequestAutoMerge.
type MergeMethod string

const (
	MergeMethodSquash MergeMethod = "SQUASH"
	MergeMethodMerge  MergeMethod = "MERGE"
	MergeMethodRebase MergeMethod = "REBASE"
)

// PullRequestSpec describes the desired sync pull request. Head is a branch in
// the same repository.
type PullRequestSpec struct {
	Owner  string
	Repo   string
	Head   string
	Base   string
	Title  string
	Body   string
	Labels []string
}

type PullRequest struct {
	Number    int
	URL       string
	NodeID    string
	Operation Operation
}

// DefaultBranch returns the repository's default branch.
func (c *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	r, _, err := c.Client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}
	if r.GetDefaultBranch() == "" {
		return "", fmt.Errorf("repository %s/%s has no default branch", owner, repo)
	}
	return r.GetDefaultBranch(), nil
}

// UpsertPullRequest edits the open pull request whose head is spec.Head, or
// opens one when none exists. Labels are applied in both cases.
func (c *Client) UpsertPullRequest(ctx context.Context, spec PullRequestSpec) (*PullRequest, error) {
	if spec.Owner == "" || spec.Repo == "" {
		return nil, errors.New("upsert pull request: owner/repo is required")
	}
	if spec.Head == "" || spec.Base == "" {
		return nil, errors.New("upsert pull request: head and base are required")
	}

	existing, err := c.findOpenPullRequest(ctx, spec.Owner, spec.Repo, spec.Head)
	if err != nil {
		return nil, err
	}

	var (
		pr *github.PullRequest
		op Operation
	)
	if existing != nil {
		pr, _, err = c.Client.PullRequests.Edit(ctx, spec.Owner, spec.Repo, existing.GetNumber(), &github.PullRequest{
			Title: github.Ptr(spec.Title),
			Body:  github.Ptr(spec.Body),
			Base:  &github.PullRequestBranch{Ref: github.Ptr(spec.Base)},
		})
		if err != nil {
			return nil, fmt.Errorf("update pull request #%d: %w", existing.GetNumber(), err)
		}
		op = OperationUpdated
	} else {
		pr, _, err = c.Client.PullRequests.Create(ctx, spec.Owner, spec.Repo, &github.NewPullRequest{
			Title:               github.Ptr(spec.Title),
			Head:                github.Ptr(spec.Head),
			Base:                github.Ptr(spec.Base),
			Body:                github.Ptr(spec.Body),
			MaintainerCanModify: github.Ptr(true),
		})
		if err != nil {
			return nil, fmt.Errorf("create pull request: %w", err)
		}
		op = OperationCreated
	}

	if labels := nonEmpty(spec.Labels); len(labels) > 0 {
		if _, _, err := c.Client.Issues.AddLabelsToIssue(ctx, spec.Owner, spec.Repo, pr.GetNumber(), labels); err != nil {
			return nil, fmt.Errorf("label pull request #%d: %w", pr.GetNumber(), err)
		}
	}

	return &PullRequest{
		Number:    pr.GetNumber(),
		URL:       pr.GetHTMLURL(),
		NodeID:    pr.GetNodeID(),
		Operation: op,
	}, nil
}

func (c *Client) findOpenPullRequest(ctx context.Context, owner, repo, head string) (*github.PullRequest, error) {
	prs, _, err := c.Client.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State:       "open",
		Head:        owner + ":" + head,
		ListOptions: github.ListOptions{PerPage: 10},
	})
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	for _, pr := range prs {
		// The head filter is applied server side; double check in case the
		// API ignored it (e.g. malformed owner).
		if pr.GetHead().GetRef() == head {
			return pr, nil
		}
	}
	return nil, nil
}

// DeleteBranch removes heads/<branch>. It reports false without error when
// the branch does not exist.
func (c *Client) DeleteBranch(ctx context.Context, owner, repo, branch string) (bool, error) {
	_, err := c.Client.Git.DeleteRef(ctx, owner, repo, "heads/"+branch)
	if err == nil {
		return true, nil
	}
	// 422 is what GitHub answers for a ref that was already deleted.
	if IsNotFound(err) || hasStatus(err, http.StatusUnprocessableEntity) {
		return false, nil
	}
	return false, fmt.Errorf("delete branch %s: %w", branch, err)
}

const enableAutoMergeMutation = `mutation($id: ID!, $method: PullRequestMergeMethod!) {
  enablePullRequestAutoMerge(input: {pullRequestId: $id, mergeMethod: $method}) {
    pullRequest { number }
  }
}`

type enableAutoMergeData struct {
	EnablePullRequestAutoMerge struct {
		PullRequest struct {
			Number int `json:"number"`
		} `json:"pullRequest"`
	} `json:"enablePullRequestAutoMerge"`
}

// EnableAutoMerge queues the pull request for automatic merge once its
// requirements pass. Auto-merge is only available through GraphQL.
func (c *Client) EnableAutoMerge(ctx context.Context, nodeID string, method MergeMethod) error {
	if nodeID == "" {
		return errors.New("enable auto-merge: pull request node id is empty")
	}
	if method == "" {
		method = MergeMethodSquash
	}
	_, err := DoGraphQL[enableAutoMergeData](ctx, c, GraphQLRequest{
		Query: enableAutoMergeMutation,
		Variables: map[string]any{
			"id":     nodeID,
			"method": string(method),
		},
	})
	if err != nil {
		return fmt.Errorf("enable auto-merge: %w", err)
	}
	return nil
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
