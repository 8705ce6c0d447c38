package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

const userAgent = "locksync"

// Client bundles the REST client with the raw HTTP client used for GraphQL.
// Both share one transport chain: auth, rate-limit budget, verbose logging.
type Client struct {
	Client *github.Client
	HTTP   *http.Client
	Budget *RequestBudget
}

type options struct {
	verbose bool
	// writer controls where verbose HTTP logs are written (typically stderr) so
	// structured output on stdout (e.g. NDJSON) stays clean and tests can capture logs.
	writer  io.Writer
	baseURL string
	budget  *RequestBudget
}

type Option func(*options)

func WithVerbose(enabled bool, writer io.Writer) Option {
	return func(o *options) {
		o.verbose = enabled
		o.writer = writer
	}
}

// WithBaseURL points the client at a GitHub Enterprise Server (or test) API root.
func WithBaseURL(raw string) Option {
	return func(o *options) {
		o.baseURL = raw
	}
}

// WithBudget shares a request budget between clients.
func WithBudget(b *RequestBudget) Option {
	return func(o *options) {
		o.budget = b
	}
}

// loggingRoundTripper wraps an underlying transport and emits one line per
// request and response (including latency) when verbose logging is enabled.
type loggingRoundTripper struct {
	base http.RoundTripper
	w    io.Writer
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	if t.w != nil {
		_, _ = fmt.Fprintf(t.w, "[verbose] github api: %s %s\n", req.Method, req.URL.String())
	}
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start)
	if t.w != nil {
		if err != nil {
			_, _ = fmt.Fprintf(t.w, "[verbose] github api: error after %s: %v\n", dur.Truncate(time.Millisecond), err)
		} else {
			_, _ = fmt.Fprintf(t.w, "[verbose] github api: %d %s (%s)\n", resp.StatusCode, http.StatusText(resp.StatusCode), dur.Truncate(time.Millisecond))
		}
	}
	return resp, err
}

// budgetRoundTripper blocks requests while the rate-limit budget is exhausted
// and refreshes the budget from every response.
type budgetRoundTripper struct {
	base   http.RoundTripper
	budget *RequestBudget
}

func (t *budgetRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.budget.Acquire(req.Context(), 1); err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.budget.RequestFailed()
		return nil, err
	}
	t.budget.UpdateFromResponse(resp)
	return resp, nil
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.verbose && o.writer == nil {
		o.writer = os.Stderr
	}
	if o.budget == nil {
		o.budget = NewRequestBudget()
	}

	transport := http.DefaultTransport
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, w: o.writer}
	}
	transport = &budgetRoundTripper{base: transport, budget: o.budget}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	// Always provide an http.Client so verbose logging works even without a token.
	tc := &http.Client{Transport: transport}

	gc := github.NewClient(tc)
	gc.UserAgent = userAgent
	if base := strings.TrimSpace(o.baseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		var err error
		gc, err = gc.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("github client: invalid base url %q: %w", o.baseURL, err)
		}
	}

	return &Client{
		Client: gc,
		HTTP:   tc,
		Budget: o.budget,
	}, nil
}
