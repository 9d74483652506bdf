// Package config loads the daemon configuration from a TOML file with
// environment-variable overrides (WATCHDOG_ prefix).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/thornburywn/watchdog/internal/backoff"
	"github.com/thornburywn/watchdog/internal/health"
	"github.com/thornburywn/watchdog/internal/logger"
	"github.com/thornburywn/watchdog/internal/pm"
	"github.com/thornburywn/watchdog/internal/recovery"
	"github.com/thornburywn/watchdog/internal/supervisor"
)

// Config is the top-level TOML structure.
type Config struct {
	Process    ProcessConfig    `toml:"process" mapstructure:"process"`
	Health     HealthConfig     `toml:"health" mapstructure:"health"`
	Supervisor SupervisorConfig `toml:"supervisor" mapstructure:"supervisor"`
	Backoff    BackoffConfig    `toml:"backoff" mapstructure:"backoff"`
	Recovery   RecoveryConfig   `toml:"recovery" mapstructure:"recovery"`
	Alerts     AlertsConfig     `toml:"alerts" mapstructure:"alerts"`
	History    HistoryConfig    `toml:"history" mapstructure:"history"`
	Log        logger.Config    `toml:"log" mapstructure:"log"`
	Server     ServerConfig     `toml:"server" mapstructure:"server"`
	Metrics    MetricsConfig    `toml:"metrics" mapstructure:"metrics"`
}

type ProcessConfig struct {
	Name       string        `toml:"name" mapstructure:"name"`
	ManagerBin string        `toml:"manager_bin" mapstructure:"manager_bin"`
	LogLines   int           `toml:"log_lines" mapstructure:"log_lines"`
	Timeout    time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type HealthConfig struct {
	BaseURL string        `toml:"base_url" mapstructure:"base_url"`
	Path    string        `toml:"path" mapstructure:"path"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type SupervisorConfig struct {
	PollInterval       time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	SettleDelay        time.Duration `toml:"settle_delay" mapstructure:"settle_delay"`
	MemoryThresholdMB  float64       `toml:"memory_threshold_mb" mapstructure:"memory_threshold_mb"`
	MaxRestartAttempts int           `toml:"max_restart_attempts" mapstructure:"max_restart_attempts"`
}

type BackoffConfig struct {
	Initial    time.Duration `toml:"initial" mapstructure:"initial"`
	Multiplier int           `toml:"multiplier" mapstructure:"multiplier"`
	Max        time.Duration `toml:"max" mapstructure:"max"`
}

type RecoveryConfig struct {
	RegenerateCmd string        `toml:"regenerate_cmd" mapstructure:"regenerate_cmd"`
	ReinstallCmd  string        `toml:"reinstall_cmd" mapstructure:"reinstall_cmd"`
	WorkDir       string        `toml:"workdir" mapstructure:"workdir"`
	ActionTimeout time.Duration `toml:"action_timeout" mapstructure:"action_timeout"`
}

type AlertsConfig struct {
	StoreDSN   string `toml:"store_dsn" mapstructure:"store_dsn"`
	WebhookURL string `toml:"webhook_url" mapstructure:"webhook_url"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	PidFile  string `toml:"pidfile" mapstructure:"pidfile"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

// Load reads a TOML config file, applies WATCHDOG_ environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("WATCHDOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("process.manager_bin", pm.DefaultBin)
	v.SetDefault("process.log_lines", pm.DefaultLogLines)
	v.SetDefault("process.timeout", pm.DefaultCommandTimeout)
	v.SetDefault("health.path", "/api/health")
	v.SetDefault("health.timeout", health.DefaultTimeout)
	v.SetDefault("supervisor.poll_interval", supervisor.DefaultPollInterval)
	v.SetDefault("supervisor.settle_delay", recovery.DefaultSettleDelay)
	v.SetDefault("supervisor.memory_threshold_mb", float64(supervisor.DefaultMemoryThresholdMB))
	v.SetDefault("supervisor.max_restart_attempts", supervisor.DefaultMaxRestartAttempts)
	v.SetDefault("backoff.initial", backoff.DefaultInitial)
	v.SetDefault("backoff.multiplier", backoff.DefaultMultiplier)
	v.SetDefault("backoff.max", backoff.DefaultMax)
	v.SetDefault("recovery.regenerate_cmd", "npx prisma generate")
	v.SetDefault("recovery.reinstall_cmd", "npm install")
	v.SetDefault("recovery.action_timeout", recovery.DefaultActionTimeout)
	v.SetDefault("alerts.store_dsn", "watchdog.db")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", true)
}

// Validate checks the settings a running daemon cannot do without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Process.Name) == "" {
		return fmt.Errorf("process.name is required")
	}
	if strings.TrimSpace(c.Health.BaseURL) == "" {
		return fmt.Errorf("health.base_url is required")
	}
	if c.Supervisor.PollInterval < time.Second {
		return fmt.Errorf("supervisor.poll_interval must be at least 1s, got %s", c.Supervisor.PollInterval)
	}
	if c.Backoff.Max < c.Backoff.Initial {
		return fmt.Errorf("backoff.max (%s) must not be less than backoff.initial (%s)", c.Backoff.Max, c.Backoff.Initial)
	}
	return nil
}
