// Package client is a thin HTTP client for the watchdog observation API,
// used by the CLI status command and embeddable by other tools.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thornburywn/watchdog/internal/pm"
	"github.com/thornburywn/watchdog/internal/store"
	"github.com/thornburywn/watchdog/internal/supervisor"
)

// Client talks to a running watchdog daemon.
type Client struct {
	baseURL string
	client  *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:9800/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new watchdog API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// StatusResponse is the /status body.
type StatusResponse struct {
	State   supervisor.State `json:"state"`
	Process pm.Snapshot      `json:"process"`
}

// Status fetches the supervisor state and last process snapshot.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	if err := c.get(ctx, "/status", &out); err != nil {
		return StatusResponse{}, err
	}
	return out, nil
}

// Rules fetches the enabled alert rules of the given type.
func (c *Client) Rules(ctx context.Context, typ store.RuleType) ([]store.Rule, error) {
	var out []store.Rule
	if err := c.get(ctx, "/rules?type="+string(typ), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks daemon liveness.
func (c *Client) Ping(ctx context.Context) error {
	var out map[string]string
	return c.get(ctx, "/healthz", &out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("watchdog daemon not reachable at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}
