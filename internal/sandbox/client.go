// Package sandbox is the HTTP client for the external code-execution
// service. The sandbox compiles and runs submitted code against stdin and
// reports stdout/stderr/exit code/time; it is never trusted to grade.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ExecRequest is one execution of source code against a stdin payload.
type ExecRequest struct {
	Language string `json:"language"`
	Source   string `json:"source"`
	Stdin    string `json:"stdin"`
}

// ExecResult is the sandbox's report for one execution.
type ExecResult struct {
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

// Runner abstracts the sandbox for the validator and its tests.
type Runner interface {
	Execute(ctx context.Context, req ExecRequest) (*ExecResult, error)
}

// Client talks to the sandbox over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a sandbox client with the given base URL and per-run
// timeout.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "sandbox_client").Logger(),
	}
}

// Execute runs source code once. A non-2xx response or transport failure is
// returned as an error; the caller decides whether that fails a test case or
// the whole operation.
func (c *Client) Execute(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal exec request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build exec request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sandbox request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sandbox returned status %d", resp.StatusCode)
	}

	var result ExecResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode exec result: %w", err)
	}
	return &result, nil
}
