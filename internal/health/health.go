// Package health probes the monitored application's HTTP health endpoint.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const DefaultTimeout = 10 * time.Second

// Result is always a value, never an error: a timeout, transport failure or
// non-2xx status becomes Unhealthy with a human-readable reason. Retry policy
// belongs to the supervisor, not here.
type Result struct {
	Healthy bool            `json:"healthy"`
	Reason  string          `json:"reason,omitempty"`
	Status  int             `json:"status,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Elapsed time.Duration   `json:"elapsed"`
}

// Checker issues bounded GET probes against {BaseURL}{Path}.
type Checker struct {
	BaseURL string
	Path    string
	client  *http.Client
}

func New(baseURL, path string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Path:    path,
		client:  &http.Client{Timeout: timeout},
	}
}

// Check probes the endpoint once. The client timeout is the hard bound; ctx
// allows the supervisor to cut the probe short on shutdown.
func (c *Checker) Check(ctx context.Context) Result {
	start := time.Now()
	url := c.BaseURL + c.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Reason: fmt.Sprintf("bad request: %v", err), Elapsed: time.Since(start)}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		reason := "request failed: " + err.Error()
		if isTimeout(err) {
			reason = "timeout"
		}
		return Result{Reason: reason, Elapsed: time.Since(start)}
	}
	defer func() { _ = resp.Body.Close() }()

	// Bound the body read so a misbehaving endpoint cannot balloon memory.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	elapsed := time.Since(start)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Reason:  fmt.Sprintf("status %d", resp.StatusCode),
			Status:  resp.StatusCode,
			Elapsed: elapsed,
		}
	}
	res := Result{Healthy: true, Status: resp.StatusCode, Elapsed: elapsed}
	if json.Valid(body) {
		res.Payload = json.RawMessage(body)
	}
	return res
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}
