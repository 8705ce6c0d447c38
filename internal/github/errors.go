package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"
)

// DescribeError renders err for end users. go-github errors embed the full
// request URL; unless verbose is set the URL is dropped and only the status
// and API message are kept. Context added by wrapping is preserved.
func DescribeError(err error, verbose bool) string {
	if err == nil {
		return ""
	}
	full := strings.TrimSpace(err.Error())
	if verbose {
		return full
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) {
		prefix := ""
		if inner := er.Error(); strings.HasSuffix(full, inner) {
			prefix = strings.TrimSuffix(full, inner)
		}
		msg := strings.TrimSpace(er.Message)
		if msg == "" {
			msg = "request failed"
		}
		if er.Response != nil {
			code := er.Response.StatusCode
			return fmt.Sprintf("%sGitHub API %d %s: %s", prefix, code, http.StatusText(code), msg)
		}
		return fmt.Sprintf("%sGitHub API: %s", prefix, msg)
	}

	if scrubbed := scrubRequestURL(full); scrubbed != "" {
		return scrubbed
	}
	return full
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, code int) bool {
	var er *github.ErrorResponse
	return errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == code
}

// scrubRequestURL drops a "METHOD https://...: " segment from a flattened
// error string, e.g. "list pull requests: GET https://api.github.com/x: 403 y"
// becomes "list pull requests: 403 y". It returns "" when nothing matched.
func scrubRequestURL(s string) string {
	for _, m := range []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "} {
		i := strings.Index(s, m+"http")
		if i < 0 {
			continue
		}
		rest := s[i+len(m):]
		j := strings.Index(rest, ": ")
		if j < 0 {
			return strings.TrimSpace(s[:i])
		}
		return s[:i] + strings.TrimSpace(rest[j+2:])
	}
	return ""
}
