package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thornburywn/watchdog"
	"github.com/thornburywn/watchdog/internal/health"
	"github.com/thornburywn/watchdog/internal/pm"
	"github.com/thornburywn/watchdog/pkg/client"
)

var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by subcommands.
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Daemonize bool
	LogFile   string
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// CheckFlags holds flags for the one-shot check command.
type CheckFlags struct {
	ProcessName string
	ManagerBin  string
	BaseURL     string
	HealthPath  string
	Timeout     time.Duration
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:     "watchdog",
		Short:   "Self-healing supervisor for a managed application process",
		Version: version,
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "watchdog.toml", "path to TOML config file")

	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(),
		createCheckCommand(globalFlags),
	)
	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the watchdog daemon",
		Long: `Start the watchdog daemon watching the configured process.

Examples:
  watchdog serve                    # Start daemon (uses --config)
  watchdog serve watchdog.toml      # Start with specific config file
  watchdog serve --daemonize        # Run in the background`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(globalFlags, serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

func runServe(globalFlags *GlobalFlags, serveFlags *ServeFlags, args []string) error {
	configPath := globalFlags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, err := watchdog.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if serveFlags.Daemonize {
		return daemonize(cfg.Server.PidFile, serveFlags.LogFile)
	}

	logger, closer := cfg.Log.NewLogger()
	slog.SetDefault(logger)
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	daemon, err := watchdog.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = daemon.Close() }()

	if cfg.Metrics.Listen != "" {
		if err := watchdog.RegisterMetricsDefault(); err != nil {
			logger.Warn("failed to register metrics", slog.String("error", err.Error()))
		}
		go func() {
			if err := watchdog.ServeMetrics(cfg.Metrics.Listen); err != nil {
				logger.Error("metrics server error", slog.String("error", err.Error()))
			}
		}()
	}

	if cfg.Server.Listen != "" {
		srv, err := watchdog.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, daemon)
		if err != nil {
			return fmt.Errorf("failed to create observation server: %w", err)
		}
		defer func() { _ = srv.Close() }()
		logger.Info("observation API listening",
			slog.String("addr", cfg.Server.Listen),
			slog.String("base_path", cfg.Server.BasePath))
	}

	// SIGINT/SIGTERM exits promptly; in-flight recovery is not drained.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon.Run(ctx)
	return nil
}

func createStatusCommand() *cobra.Command {
	statusFlags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show supervisor state from a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(statusFlags)
		},
	}
	cmd.Flags().StringVar(&statusFlags.APIUrl, "api-url", client.DefaultConfig().BaseURL, "daemon observation API URL")
	cmd.Flags().DurationVar(&statusFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return cmd
}

func runStatus(flags *StatusFlags) error {
	c := client.New(client.Config{BaseURL: flags.APIUrl, Timeout: flags.APITimeout})
	ctx, cancel := context.WithTimeout(context.Background(), flags.APITimeout)
	defer cancel()
	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s - start it with 'watchdog serve': %w", flags.APIUrl, err)
	}
	fmt.Printf("process running:       %v\n", st.Process.Running)
	if st.Process.Running {
		fmt.Printf("  pid:                 %d\n", st.Process.PID)
		fmt.Printf("  memory:              %.1f MB\n", st.Process.MemoryMB)
		fmt.Printf("  cpu:                 %.1f%%\n", st.Process.CPUPercent)
		fmt.Printf("  restarts:            %d\n", st.Process.Restarts)
	} else if st.Process.Reason != "" {
		fmt.Printf("  reason:              %s\n", st.Process.Reason)
	}
	fmt.Printf("consecutive failures:  %d\n", st.State.ConsecutiveFailures)
	fmt.Printf("current backoff:       %s\n", st.State.CurrentBackoff)
	fmt.Printf("recovering:            %v\n", st.State.IsRecovering)
	fmt.Printf("supervisor uptime:     %s\n", time.Since(st.State.StartedAt).Round(time.Second))
	return nil
}

func createCheckCommand(globalFlags *GlobalFlags) *cobra.Command {
	checkFlags := &CheckFlags{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "One-shot probe and health check (no daemon required)",
		Long:  "Probe the process manager and the health endpoint once and exit nonzero when unhealthy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(globalFlags, checkFlags)
		},
	}
	cmd.Flags().StringVar(&checkFlags.ProcessName, "name", "", "process name (defaults to config)")
	cmd.Flags().StringVar(&checkFlags.ManagerBin, "manager-bin", "", "process manager binary (defaults to config)")
	cmd.Flags().StringVar(&checkFlags.BaseURL, "base-url", "", "health base URL (defaults to config)")
	cmd.Flags().StringVar(&checkFlags.HealthPath, "health-path", "", "health endpoint path (defaults to config)")
	cmd.Flags().DurationVar(&checkFlags.Timeout, "timeout", 10*time.Second, "probe timeout")
	return cmd
}

func runCheck(globalFlags *GlobalFlags, flags *CheckFlags) error {
	// Flags override config; config is optional when all flags are given.
	name, bin, baseURL, path := flags.ProcessName, flags.ManagerBin, flags.BaseURL, flags.HealthPath
	if name == "" || baseURL == "" {
		cfg, err := watchdog.LoadConfig(globalFlags.ConfigPath)
		if err != nil {
			return fmt.Errorf("error loading config (or pass --name and --base-url): %w", err)
		}
		if name == "" {
			name = cfg.Process.Name
		}
		if bin == "" {
			bin = cfg.Process.ManagerBin
		}
		if baseURL == "" {
			baseURL = cfg.Health.BaseURL
		}
		if path == "" {
			path = cfg.Health.Path
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), flags.Timeout)
	defer cancel()

	manager := pm.New(bin, name, flags.Timeout)
	snap, err := manager.Probe(ctx)
	if err != nil {
		fmt.Printf("process manager: UNREACHABLE (%v)\n", err)
	} else if snap.Running {
		fmt.Printf("process:         ONLINE pid=%d mem=%.1fMB cpu=%.1f%% restarts=%d\n",
			snap.PID, snap.MemoryMB, snap.CPUPercent, snap.Restarts)
	} else {
		fmt.Printf("process:         DOWN (%s)\n", snap.Reason)
	}

	res := health.New(baseURL, path, flags.Timeout).Check(ctx)
	if res.Healthy {
		fmt.Printf("health endpoint: OK (%d, %s)\n", res.Status, res.Elapsed.Round(time.Millisecond))
	} else {
		fmt.Printf("health endpoint: FAIL (%s)\n", res.Reason)
	}

	if !snap.Running || !res.Healthy {
		os.Exit(1)
	}
	return nil
}
