package recovery

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/thornburywn/watchdog/internal/pm"
)

// Action is one discrete remediation step.
type Action string

const (
	ActionRestart    Action = "restart"    // restart the process via the process manager
	ActionRegenerate Action = "regenerate" // regenerate the ORM client artifact
	ActionReinstall  Action = "reinstall"  // reinstall application dependencies
)

// ActionResult records one action's outcome. Failures are collected, never
// propagated; restart alone sometimes clears a symptom a failed regenerate
// could not.
type ActionResult struct {
	Action  Action        `json:"action"`
	Err     error         `json:"-"`
	Detail  string        `json:"detail,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// OK reports whether the action completed without error.
func (r ActionResult) OK() bool { return r.Err == nil }

// Runner executes remediation actions against the monitored application.
type Runner interface {
	Run(ctx context.Context, a Action) error
}

// ShellRunner is the production Runner: restart goes through the process
// manager, regenerate/reinstall run operator-configured shell commands in
// the application workdir. Every invocation has a hard timeout.
type ShellRunner struct {
	Manager       *pm.Manager
	RegenerateCmd string
	ReinstallCmd  string
	WorkDir       string
	Timeout       time.Duration
}

const DefaultActionTimeout = 120 * time.Second

func (s *ShellRunner) Run(ctx context.Context, a Action) error {
	switch a {
	case ActionRestart:
		return s.Manager.Restart(ctx)
	case ActionRegenerate:
		return s.shell(ctx, s.RegenerateCmd)
	case ActionReinstall:
		return s.shell(ctx, s.ReinstallCmd)
	default:
		return fmt.Errorf("unknown recovery action %q", a)
	}
}

func (s *ShellRunner) shell(ctx context.Context, command string) error {
	cmdStr := strings.TrimSpace(command)
	if cmdStr == "" {
		return fmt.Errorf("no command configured")
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// #nosec G204 -- remediation commands come from operator config
	cmd := exec.CommandContext(cctx, "/bin/sh", "-c", cmdStr)
	cmd.Dir = s.WorkDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		tail := strings.TrimSpace(out.String())
		if len(tail) > 512 {
			tail = tail[len(tail)-512:]
		}
		if tail != "" {
			return fmt.Errorf("%s: %w: %s", cmdStr, err, tail)
		}
		return fmt.Errorf("%s: %w", cmdStr, err)
	}
	return nil
}
