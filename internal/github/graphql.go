package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type GraphQLError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

type GraphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// GraphQLErrors is returned when the endpoint answers 200 with an errors array.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ge := range e {
		msgs = append(msgs, ge.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

func graphqlEndpoint(base *url.URL) (*url.URL, error) {
	if base == nil {
		return nil, fmt.Errorf("graphql: base url is nil")
	}

	u := *base
	u.RawQuery = ""
	u.Fragment = ""

	// GitHub.com REST base: https://api.github.com/
	// GitHub.com GraphQL:   https://api.github.com/graphql
	//
	// GHES REST base is typically: https://<host>/api/v3/
	// GHES GraphQL:               https://<host>/api/graphql
	path := strings.TrimSuffix(u.Path, "/")
	if strings.HasSuffix(path, "/api/v3") {
		u.Path = strings.TrimSuffix(path, "/v3") + "/graphql"
		return &u, nil
	}

	u.Path = "/graphql"
	return &u, nil
}

// DoGraphQL executes a GraphQL POST using the REST client's transport chain
// (auth, request budget, verbose logging).
func DoGraphQL[T any](ctx context.Context, c *Client, req GraphQLRequest) (T, error) {
	var zero T
	if ctx == nil {
		return zero, errors.New("graphql: ctx is nil")
	}
	if c == nil || c.Client == nil || c.HTTP == nil {
		return zero, errors.New("graphql: client is nil")
	}

	endpoint, err := graphqlEndpoint(c.Client.BaseURL)
	if err != nil {
		return zero, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("graphql: marshal request: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("graphql: build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")

	hresp, err := c.HTTP.Do(hreq)
	if err != nil {
		return zero, fmt.Errorf("graphql: do request: %w", err)
	}
	defer hresp.Body.Close()

	if hresp.StatusCode < 200 || hresp.StatusCode >= 300 {
		return zero, fmt.Errorf("graphql: http %d", hresp.StatusCode)
	}

	var out GraphQLResponse[T]
	if err := json.NewDecoder(hresp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("graphql: decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		return zero, GraphQLErrors(out.Errors)
	}
	return out.Data, nil
}
