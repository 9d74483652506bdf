package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watchdog.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[process]
name = "console-web"

[health]
base_url = "http://localhost:3000"
`

func TestLoadMinimalAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "console-web", c.Process.Name)
	assert.Equal(t, "pm2", c.Process.ManagerBin)
	assert.Equal(t, 50, c.Process.LogLines)
	assert.Equal(t, "http://localhost:3000", c.Health.BaseURL)
	assert.Equal(t, "/api/health", c.Health.Path)
	assert.Equal(t, 10*time.Second, c.Health.Timeout)
	assert.Equal(t, 30*time.Second, c.Supervisor.PollInterval)
	assert.Equal(t, float64(512), c.Supervisor.MemoryThresholdMB)
	assert.Equal(t, 5, c.Supervisor.MaxRestartAttempts)
	assert.Equal(t, 5*time.Second, c.Backoff.Initial)
	assert.Equal(t, 2, c.Backoff.Multiplier)
	assert.Equal(t, 300*time.Second, c.Backoff.Max)
	assert.Equal(t, "npx prisma generate", c.Recovery.RegenerateCmd)
	assert.Equal(t, "npm install", c.Recovery.ReinstallCmd)
	assert.Equal(t, "watchdog.db", c.Alerts.StoreDSN)
	assert.Equal(t, "/api", c.Server.BasePath)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoadFullConfig(t *testing.T) {
	c, err := Load(writeConfig(t, `
[process]
name = "console-web"
manager_bin = "npx pm2"
log_lines = 100
timeout = "45s"

[health]
base_url = "http://localhost:3000"
path = "/healthz"
timeout = "5s"

[supervisor]
poll_interval = "15s"
settle_delay = "3s"
memory_threshold_mb = 1024.0
max_restart_attempts = 3

[backoff]
initial = "2s"
multiplier = 3
max = "1m"

[recovery]
regenerate_cmd = "pnpm prisma generate"
reinstall_cmd = "pnpm install"
workdir = "/srv/console"
action_timeout = "3m"

[alerts]
store_dsn = "postgres://wd:wd@localhost/wd"
webhook_url = "https://hooks.example.com/wd"

[history]
dsn = "clickhouse://localhost:9000"

[server]
listen = ":9800"
base_path = "/api"

[metrics]
listen = ":9100"
`))
	require.NoError(t, err)

	assert.Equal(t, "npx pm2", c.Process.ManagerBin)
	assert.Equal(t, 100, c.Process.LogLines)
	assert.Equal(t, 45*time.Second, c.Process.Timeout)
	assert.Equal(t, "/healthz", c.Health.Path)
	assert.Equal(t, 15*time.Second, c.Supervisor.PollInterval)
	assert.Equal(t, 3*time.Second, c.Supervisor.SettleDelay)
	assert.Equal(t, float64(1024), c.Supervisor.MemoryThresholdMB)
	assert.Equal(t, 3, c.Supervisor.MaxRestartAttempts)
	assert.Equal(t, 2*time.Second, c.Backoff.Initial)
	assert.Equal(t, 3, c.Backoff.Multiplier)
	assert.Equal(t, time.Minute, c.Backoff.Max)
	assert.Equal(t, "pnpm prisma generate", c.Recovery.RegenerateCmd)
	assert.Equal(t, "/srv/console", c.Recovery.WorkDir)
	assert.Equal(t, 3*time.Minute, c.Recovery.ActionTimeout)
	assert.Equal(t, "postgres://wd:wd@localhost/wd", c.Alerts.StoreDSN)
	assert.Equal(t, "https://hooks.example.com/wd", c.Alerts.WebhookURL)
	assert.Equal(t, "clickhouse://localhost:9000", c.History.DSN)
	assert.Equal(t, ":9800", c.Server.Listen)
	assert.Equal(t, ":9100", c.Metrics.Listen)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("WATCHDOG_SUPERVISOR_POLL_INTERVAL", "10s")
	t.Setenv("WATCHDOG_ALERTS_STORE_DSN", "/var/lib/watchdog/rules.db")

	c, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, c.Supervisor.PollInterval)
	assert.Equal(t, "/var/lib/watchdog/rules.db", c.Alerts.StoreDSN)
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing process name",
			body: "[health]\nbase_url = \"http://localhost:3000\"\n",
			want: "process.name",
		},
		{
			name: "missing health base url",
			body: "[process]\nname = \"console-web\"\n",
			want: "health.base_url",
		},
		{
			name: "poll interval too small",
			body: minimalConfig + "[supervisor]\npoll_interval = \"500ms\"\n",
			want: "poll_interval",
		},
		{
			name: "backoff max below initial",
			body: minimalConfig + "[backoff]\ninitial = \"1m\"\nmax = \"10s\"\n",
			want: "backoff.max",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
