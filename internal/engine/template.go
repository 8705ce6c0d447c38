package engine

import (
	"fmt"
	"strings"

	"locksync/internal/lockfile"
	"locksync/internal/target"
)

// PullRequestTitle embeds the upstream revision verbatim.
func PullRequestTitle(rev lockfile.Revision) string {
	return fmt.Sprintf("Sync `%s` with `%s@%s` from `%s`", target.LockfileName, rev.Repository, rev.Hash, rev.Date)
}

// PullRequestBody describes the automation and links the upstream commit and,
// when known, the CI run that opened the pull request.
func PullRequestBody(t target.Target, rev lockfile.Revision, serverURL, runURL string) string {
	upstream := rev.Repository
	if _, name, ok := strings.Cut(upstream, "/"); ok {
		upstream = name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "This pull request synchronizes %s's `%s` with %s's.", t.FullName(), target.LockfileName, upstream)
	b.WriteString(" This keeps dependency versions, and therefore ABI, consistent between applications, plugins and backends.\n\n")
	fmt.Fprintf(&b, "- **sha**: [%s@%s](%s)\n", rev.Repository, rev.Hash, rev.CommitURL(serverURL))
	fmt.Fprintf(&b, "- **date**: %s\n", rev.Date)
	if runURL != "" {
		fmt.Fprintf(&b, "- **workflow**: %s\n", runURL)
	}
	b.WriteString("\nThe sync branch is force-pushed on every run; manual commits to it will be overwritten.\n")
	return b.String()
}
