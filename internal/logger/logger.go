package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for the event log file.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the daemon's event log output.
// Console output is always enabled; a rotating JSON file is added when Dir
// or Path is set. Rotation parameters follow lumberjack semantics.
type Config struct {
	Level      string `json:"level" mapstructure:"level"` // debug|info|warn|error
	Color      bool   `json:"color" mapstructure:"color"`
	Dir        string `json:"dir" mapstructure:"dir"`   // base directory; file becomes Dir/watchdog.log
	Path       string `json:"path" mapstructure:"path"` // explicit file path overrides Dir
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// NewLogger builds a slog.Logger from Config. The returned closer flushes the
// file writer and may be nil when no file output is configured. Failure to
// open the log file falls back to console-only output; it never fails the
// caller, so a broken log path cannot take the supervisor down.
func (c Config) NewLogger() (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: c.slogLevel()}

	var console slog.Handler
	if c.Color {
		console = NewColorTextHandler(os.Stdout, opts)
	} else {
		console = slog.NewTextHandler(os.Stdout, opts)
	}

	path := c.Path
	if path == "" && c.Dir != "" {
		path = filepath.Join(c.Dir, "watchdog.log")
	}
	if path == "" {
		return slog.New(console), nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			slog.New(console).Warn("event log directory unavailable, console only",
				slog.String("dir", dir), slog.String("error", err.Error()))
			return slog.New(console), nil
		}
	}
	fw := &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
	file := slog.NewJSONHandler(fw, opts)
	return slog.New(fanoutHandler{console, file}), fw
}

func (c Config) slogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
