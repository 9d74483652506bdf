// Package pm adapts the external process manager (PM2-compatible CLI) behind
// a narrow contract: probe the process list, tail stderr, restart.
package pm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBin            = "pm2"
	DefaultCommandTimeout = 30 * time.Second
	DefaultLogLines       = 50
)

// ProbeErr marks the process manager itself as unreachable. The supervisor
// treats it as "not running" but logs it distinctly from an absent process.
type ProbeErr struct{ Err error }

func (e *ProbeErr) Error() string { return "process manager unreachable: " + e.Err.Error() }
func (e *ProbeErr) Unwrap() error { return e.Err }

// Snapshot is one probe's view of the monitored process. Memory is
// normalized to MB. Not persisted.
type Snapshot struct {
	Running    bool          `json:"running"`
	Status     string        `json:"status"`
	PID        int           `json:"pid"`
	MemoryMB   float64       `json:"memory_mb"`
	CPUPercent float64       `json:"cpu_percent"`
	Restarts   int           `json:"restarts"`
	Uptime     time.Duration `json:"uptime"`
	Reason     string        `json:"reason,omitempty"` // set when Running is false
}

// Manager shells out to the process manager binary. Every invocation carries
// a context timeout so a hung manager cannot stall the supervisor.
type Manager struct {
	Bin     string
	Process string
	Timeout time.Duration
}

func New(bin, process string, timeout time.Duration) *Manager {
	if bin == "" {
		bin = DefaultBin
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Manager{Bin: bin, Process: process, Timeout: timeout}
}

// jlistEntry mirrors the fields of the manager's machine-readable process
// list that the probe needs.
type jlistEntry struct {
	Name   string `json:"name"`
	PID    int    `json:"pid"`
	PM2Env struct {
		Status      string `json:"status"`
		RestartTime int    `json:"restart_time"`
		PMUptime    int64  `json:"pm_uptime"` // epoch millis
	} `json:"pm2_env"`
	Monit struct {
		Memory float64 `json:"memory"` // bytes
		CPU    float64 `json:"cpu"`
	} `json:"monit"`
}

// Probe queries the process list and locates the configured process.
// An unreachable manager returns a *ProbeErr; an absent or stopped process
// returns Running=false with a reason and a nil error.
func (m *Manager) Probe(ctx context.Context) (Snapshot, error) {
	out, err := m.run(ctx, "jlist")
	if err != nil {
		return Snapshot{Running: false, Reason: "probe failed"}, &ProbeErr{Err: err}
	}
	var entries []jlistEntry
	if err := json.Unmarshal(findJSONArray(out), &entries); err != nil {
		return Snapshot{Running: false, Reason: "probe failed"}, &ProbeErr{Err: fmt.Errorf("parse process list: %w", err)}
	}
	for _, e := range entries {
		if e.Name != m.Process {
			continue
		}
		snap := Snapshot{
			Status:     e.PM2Env.Status,
			PID:        e.PID,
			MemoryMB:   e.Monit.Memory / (1024 * 1024),
			CPUPercent: e.Monit.CPU,
			Restarts:   e.PM2Env.RestartTime,
		}
		if e.PM2Env.PMUptime > 0 {
			snap.Uptime = time.Since(time.UnixMilli(e.PM2Env.PMUptime))
		}
		if e.PM2Env.Status == "online" {
			snap.Running = true
		} else {
			snap.Reason = "status " + e.PM2Env.Status
		}
		return snap, nil
	}
	return Snapshot{Running: false, Reason: "process not found in manager list"}, nil
}

// TailErrLog fetches the last n lines of the process's stderr stream.
func (m *Manager) TailErrLog(ctx context.Context, n int) (string, error) {
	if n <= 0 {
		n = DefaultLogLines
	}
	out, err := m.run(ctx, "logs", m.Process, "--err", "--lines", strconv.Itoa(n), "--nostream", "--raw")
	if err != nil {
		return "", fmt.Errorf("tail error log: %w", err)
	}
	return string(out), nil
}

// Restart asks the manager to restart the monitored process.
func (m *Manager) Restart(ctx context.Context) error {
	if _, err := m.run(ctx, "restart", m.Process); err != nil {
		return fmt.Errorf("restart %s: %w", m.Process, err)
	}
	return nil
}

func (m *Manager) run(ctx context.Context, args ...string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	// Bin may carry leading arguments (e.g. "npx pm2").
	parts := strings.Fields(m.Bin)
	parts = append(parts, args...)
	// #nosec G204 -- binary and process name come from operator config
	cmd := exec.CommandContext(cctx, parts[0], parts[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", parts[0], args[0], err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", parts[0], args[0], err)
	}
	return stdout.Bytes(), nil
}

// findJSONArray cuts banner noise some managers print before the JSON body.
func findJSONArray(out []byte) []byte {
	if i := bytes.IndexByte(out, '['); i >= 0 {
		return out[i:]
	}
	return out
}
