//go:build !windows

package pm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const jlistFixture = `[
  {"name":"console-web","pid":4242,
   "pm2_env":{"status":"online","restart_time":3,"pm_uptime":1700000000000},
   "monit":{"memory":157286400,"cpu":12.5}},
  {"name":"other-app","pid":11,
   "pm2_env":{"status":"stopped","restart_time":0,"pm_uptime":0},
   "monit":{"memory":0,"cpu":0}}
]`

// stubManager writes a shell script that prints fixed output for any
// subcommand, standing in for the real process manager binary.
func stubManager(t *testing.T, stdout string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakepm")
	script := "#!/bin/sh\ncat <<'EOF'\n" + stdout + "\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestProbeOnline(t *testing.T) {
	m := New(stubManager(t, jlistFixture), "console-web", 5*time.Second)
	snap, err := m.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !snap.Running {
		t.Fatalf("expected running, reason=%q", snap.Reason)
	}
	if snap.PID != 4242 {
		t.Errorf("pid = %d, want 4242", snap.PID)
	}
	// 157286400 bytes is exactly 150 MB.
	if snap.MemoryMB != 150 {
		t.Errorf("memory = %f MB, want 150", snap.MemoryMB)
	}
	if snap.CPUPercent != 12.5 {
		t.Errorf("cpu = %f, want 12.5", snap.CPUPercent)
	}
	if snap.Restarts != 3 {
		t.Errorf("restarts = %d, want 3", snap.Restarts)
	}
	if snap.Uptime <= 0 {
		t.Errorf("uptime not derived from pm_uptime: %s", snap.Uptime)
	}
}

func TestProbeStoppedStatus(t *testing.T) {
	m := New(stubManager(t, jlistFixture), "other-app", 5*time.Second)
	snap, err := m.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if snap.Running {
		t.Fatal("stopped process reported running")
	}
	if snap.Reason != "status stopped" {
		t.Errorf("reason = %q", snap.Reason)
	}
}

func TestProbeAbsentProcess(t *testing.T) {
	m := New(stubManager(t, jlistFixture), "missing", 5*time.Second)
	snap, err := m.Probe(context.Background())
	if err != nil {
		t.Fatalf("absent process is not a probe error: %v", err)
	}
	if snap.Running {
		t.Fatal("absent process reported running")
	}
}

// An unreachable manager is a ProbeErr, distinguishable from process-down.
func TestProbeManagerUnreachable(t *testing.T) {
	m := New("/nonexistent/fakepm", "console-web", time.Second)
	_, err := m.Probe(context.Background())
	var pe *ProbeErr
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProbeErr, got %v", err)
	}
}

// Banner noise before the JSON body is tolerated.
func TestProbeSkipsBanner(t *testing.T) {
	m := New(stubManager(t, "Daemon already running\n"+jlistFixture), "console-web", 5*time.Second)
	snap, err := m.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !snap.Running {
		t.Fatal("expected running")
	}
}

func TestTailErrLog(t *testing.T) {
	m := New(stubManager(t, "Error: connect ECONNREFUSED"), "console-web", 5*time.Second)
	tail, err := m.TailErrLog(context.Background(), 20)
	if err != nil {
		t.Fatalf("TailErrLog: %v", err)
	}
	if tail == "" {
		t.Fatal("expected captured stderr tail")
	}
}
