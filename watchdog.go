// Package watchdog assembles the self-healing process supervisor: probe the
// process manager, classify failures, recover with bounded backoff, and
// dispatch rate-limited alerts.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thornburywn/watchdog/internal/alert"
	"github.com/thornburywn/watchdog/internal/backoff"
	cfg "github.com/thornburywn/watchdog/internal/config"
	"github.com/thornburywn/watchdog/internal/health"
	"github.com/thornburywn/watchdog/internal/history"
	hfactory "github.com/thornburywn/watchdog/internal/history/factory"
	"github.com/thornburywn/watchdog/internal/metrics"
	"github.com/thornburywn/watchdog/internal/pm"
	"github.com/thornburywn/watchdog/internal/recovery"
	iapi "github.com/thornburywn/watchdog/internal/server"
	"github.com/thornburywn/watchdog/internal/store"
	sfactory "github.com/thornburywn/watchdog/internal/store/factory"
	"github.com/thornburywn/watchdog/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type State = supervisor.State

type Snapshot = pm.Snapshot

type Rule = store.Rule

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Daemon is the assembled supervisor with its backing services.
type Daemon struct {
	Sup   *supervisor.Supervisor
	Rules store.Store
	hist  history.Sink
}

// New wires a Daemon from config. logger may be nil, in which case
// slog.Default is used throughout.
func New(c *Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	manager := pm.New(c.Process.ManagerBin, c.Process.Name, c.Process.Timeout)
	checker := health.New(c.Health.BaseURL, c.Health.Path, c.Health.Timeout)
	boff := backoff.New(c.Backoff.Initial, c.Backoff.Multiplier, c.Backoff.Max)

	rules, err := sfactory.New(c.Alerts.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open alert store: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rules.EnsureSchema(ctx); err != nil {
		_ = rules.Close()
		return nil, fmt.Errorf("alert store schema: %w", err)
	}

	var sender alert.Sender = alert.NopSender{}
	if c.Alerts.WebhookURL != "" {
		sender = alert.NewWebhookSender(c.Alerts.WebhookURL)
	}
	engine := alert.NewEngine(rules, sender, c.Process.Name, logger)

	runner := &recovery.ShellRunner{
		Manager:       manager,
		RegenerateCmd: c.Recovery.RegenerateCmd,
		ReinstallCmd:  c.Recovery.ReinstallCmd,
		WorkDir:       c.Recovery.WorkDir,
		Timeout:       c.Recovery.ActionTimeout,
	}
	orch := recovery.NewOrchestrator(runner, checker, c.Supervisor.SettleDelay, logger)

	opts := []supervisor.Option{}
	var hist history.Sink
	if c.History.DSN != "" {
		hist, err = hfactory.New(c.History.DSN)
		if err != nil {
			_ = rules.Close()
			return nil, fmt.Errorf("open history sink: %w", err)
		}
		opts = append(opts, supervisor.WithHistory(hist))
	}

	sup := supervisor.New(supervisor.Config{
		Process:            c.Process.Name,
		PollInterval:       c.Supervisor.PollInterval,
		MemoryThresholdMB:  c.Supervisor.MemoryThresholdMB,
		MaxRestartAttempts: c.Supervisor.MaxRestartAttempts,
		LogLines:           c.Process.LogLines,
	}, manager, checker, orch, engine, boff, logger, opts...)

	return &Daemon{Sup: sup, Rules: rules, hist: hist}, nil
}

// Run executes the polling loop until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) { d.Sup.Run(ctx) }

// Close releases the daemon's backing stores.
func (d *Daemon) Close() error {
	var firstErr error
	if d.hist != nil {
		if err := d.hist.Close(); err != nil {
			firstErr = err
		}
	}
	if d.Rules != nil {
		if err := d.Rules.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewHTTPServer starts the observation API for a running daemon.
func NewHTTPServer(addr, basePath string, d *Daemon) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, d.Sup, d.Rules)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
