// Package http builds fetchgraph.FetchFunc values around net/http,
// grounded on the teacher's own HealthChecker (examples/health-monitor/health_checker.go):
// a shared *http.Client, a uuid.New() correlation id per request, and
// request construction via http.NewRequestWithContext.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	fetchgraph "github.com/fetchgraph/fetchgraph"
)

// Client wraps an *http.Client and builds FetchFuncs against it.
type Client struct {
	http *http.Client
}

// New builds a Client. A nil http.Client falls back to
// &http.Client{Timeout: 30 * time.Second}, matching the teacher's default.
func New(client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: client}
}

// RequestBuilder produces a request method, URL, and optional body from a
// source's resolved params, letting callers parameterize requests by
// dependency-substituted values (spec.md §3's Params).
type RequestBuilder func(source *fetchgraph.ResolvedSource) (method, url string, body []byte, err error)

// JSONGet builds a RequestBuilder issuing a GET against a fixed urlTemplate
// (fmt.Sprintf-style, fed the named param values in argOrder).
func JSONGet(urlTemplate string, argOrder ...string) RequestBuilder {
	return func(source *fetchgraph.ResolvedSource) (string, string, []byte, error) {
		args := make([]any, len(argOrder))
		for i, key := range argOrder {
			args[i] = source.Params[key]
		}
		return http.MethodGet, fmt.Sprintf(urlTemplate, args...), nil, nil
	}
}

// Fetch builds a FetchFunc that issues one HTTP request per attempt via
// build, decodes a 2xx JSON response body into Result.Data, and reports
// non-2xx statuses and transport errors as retryable failures.
func (c *Client) Fetch(build RequestBuilder) fetchgraph.FetchFunc {
	return func(ctx context.Context, source *fetchgraph.ResolvedSource) (*fetchgraph.Result, error) {
		method, url, body, err := build(source)
		if err != nil {
			return fetchgraph.ErrResult(fetchgraph.ErrFetchException, err), nil
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fetchgraph.ErrResult(fetchgraph.ErrFetchException, err), nil
		}
		req.Header.Set("X-Request-ID", uuid.New().String())
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return fetchgraph.ErrResult(fetchgraph.ErrFetchException, err), nil
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fetchgraph.ErrResult(fetchgraph.ErrFetchException, err), nil
		}

		elapsed := time.Since(start).Milliseconds()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fetchgraph.Failure(string(raw),
				fetchgraph.WithRetryDelay(0),
			), nil
		}

		var decoded any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return fetchgraph.ErrResult(fetchgraph.ErrFetchException, err), nil
			}
		}

		result := fetchgraph.Success(decoded)
		result.ElapsedMS = elapsed
		return result, nil
	}
}
