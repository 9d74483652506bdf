// Package supervisor drives the watch loop: probe the process manager,
// evaluate alerts, check health, and trigger bounded recovery.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/thornburywn/watchdog/internal/backoff"
	"github.com/thornburywn/watchdog/internal/classify"
	"github.com/thornburywn/watchdog/internal/health"
	"github.com/thornburywn/watchdog/internal/history"
	"github.com/thornburywn/watchdog/internal/metrics"
	"github.com/thornburywn/watchdog/internal/pm"
	"github.com/thornburywn/watchdog/internal/recovery"
	"github.com/thornburywn/watchdog/internal/store"
)

// Defaults per the supervisor's operational profile.
const (
	DefaultPollInterval       = 30 * time.Second
	DefaultMemoryThresholdMB  = 512
	DefaultMaxRestartAttempts = 5
)

// State is the single mutable supervisor record. It is owned by the
// Supervisor and mutated only from the polling goroutine; the mutex exists
// for Snapshot readers (status API).
type State struct {
	ConsecutiveFailures   int           `json:"consecutive_failures"`
	LastHealthCheckAt     time.Time     `json:"last_health_check_at"`
	LastRecoveryAttemptAt time.Time     `json:"last_recovery_attempt_at"`
	CurrentBackoff        time.Duration `json:"current_backoff"`
	IsRecovering          bool          `json:"is_recovering"`
	CriticalAlertSent     bool          `json:"critical_alert_sent"`
	StartedAt             time.Time     `json:"started_at"`
}

// Config carries the loop's tunables.
type Config struct {
	Process            string
	PollInterval       time.Duration
	MemoryThresholdMB  float64
	MaxRestartAttempts int
	LogLines           int
}

// Prober is the process-manager contract the loop needs. *pm.Manager
// satisfies it.
type Prober interface {
	Probe(ctx context.Context) (pm.Snapshot, error)
	TailErrLog(ctx context.Context, n int) (string, error)
}

// HealthProbe re-checks the application endpoint. *health.Checker satisfies it.
type HealthProbe interface {
	Check(ctx context.Context) health.Result
}

// Recoverer runs one remediation ladder. *recovery.Orchestrator satisfies it.
type Recoverer interface {
	Run(ctx context.Context, cat classify.Category, attempt int) recovery.Outcome
}

// AlertSink evaluates threshold rules and emits the critical escalation.
// *alert.Engine satisfies it.
type AlertSink interface {
	Evaluate(ctx context.Context, typ store.RuleType, value float64, alertCtx map[string]string)
	Critical(ctx context.Context, message, errorType, action string)
}

// Supervisor ties probe, classification, backoff, recovery and alerting
// together on a fixed polling interval. Ticks run strictly sequentially; a
// recovery completes before the next probe begins.
type Supervisor struct {
	cfg     Config
	prober  Prober
	checker HealthProbe
	recov   Recoverer
	alerts  AlertSink
	boff    backoff.Controller
	hist    history.Sink // optional
	logger  *slog.Logger
	clock   func() time.Time

	mu       sync.Mutex
	state    State
	lastSnap pm.Snapshot
}

// Option tweaks Supervisor construction.
type Option func(*Supervisor)

// WithClock injects a fake clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Supervisor) { s.clock = clock }
}

// WithHistory attaches an incident-history sink.
func WithHistory(sink history.Sink) Option {
	return func(s *Supervisor) { s.hist = sink }
}

func New(cfg Config, prober Prober, checker HealthProbe, recov Recoverer, alerts AlertSink, boff backoff.Controller, logger *slog.Logger, opts ...Option) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MemoryThresholdMB <= 0 {
		cfg.MemoryThresholdMB = DefaultMemoryThresholdMB
	}
	if cfg.MaxRestartAttempts <= 0 {
		cfg.MaxRestartAttempts = DefaultMaxRestartAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		cfg:     cfg,
		prober:  prober,
		checker: checker,
		recov:   recov,
		alerts:  alerts,
		boff:    boff,
		logger:  logger,
		clock:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.state.StartedAt = s.clock()
	s.state.CurrentBackoff = boff.Initial()
	return s
}

// Snapshot returns a copy of the supervisor state and the last process
// snapshot for the observation API.
func (s *Supervisor) Snapshot() (State, pm.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.lastSnap
}

// Run executes the polling loop until ctx is cancelled. The first tick runs
// immediately. Ticks are serialized: a tick (including any recovery it
// triggers) finishes before the next begins.
func (s *Supervisor) Run(ctx context.Context) {
	s.logger.Info("supervisor started",
		slog.String("process", s.cfg.Process),
		slog.Duration("poll_interval", s.cfg.PollInterval),
		slog.Float64("memory_threshold_mb", s.cfg.MemoryThresholdMB),
		slog.Int("max_restart_attempts", s.cfg.MaxRestartAttempts))
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one full poll cycle.
func (s *Supervisor) Tick(ctx context.Context) {
	metrics.IncTick(s.cfg.Process)

	snap, err := s.prober.Probe(ctx)
	s.mu.Lock()
	s.lastSnap = snap
	s.mu.Unlock()
	metrics.SetProcessUp(s.cfg.Process, snap.Running)

	if !snap.Running {
		var pe *pm.ProbeErr
		if errors.As(err, &pe) {
			s.logger.Error("process manager unreachable", slog.String("error", pe.Error()))
		} else {
			s.logger.Warn("process not running",
				slog.String("process", s.cfg.Process),
				slog.String("reason", snap.Reason))
		}
		cat := s.classifyLogs(ctx, classify.CategoryUnknown)
		s.maybeRecover(ctx, cat)
		return
	}

	metrics.SetProcessMemoryMB(s.cfg.Process, snap.MemoryMB)
	s.alerts.Evaluate(ctx, store.RuleMemory, snap.MemoryMB, map[string]string{
		"process": s.cfg.Process,
	})
	if snap.MemoryMB > s.cfg.MemoryThresholdMB {
		s.logger.Warn("memory threshold exceeded",
			slog.Float64("memory_mb", snap.MemoryMB),
			slog.Float64("threshold_mb", s.cfg.MemoryThresholdMB))
		s.maybeRecover(ctx, classify.CategoryMemory)
		return
	}

	res := s.checker.Check(ctx)
	now := s.clock()
	s.mu.Lock()
	s.state.LastHealthCheckAt = now
	s.mu.Unlock()
	metrics.ObserveHealthDuration(s.cfg.Process, res.Elapsed.Seconds())

	if !res.Healthy {
		s.logger.Warn("health check failed", slog.String("reason", res.Reason))
		s.alerts.Evaluate(ctx, store.RuleService, 0, map[string]string{
			"process": s.cfg.Process,
			"reason":  res.Reason,
		})
		cat := s.classifyLogs(ctx, classify.CategoryUnresponsive)
		s.maybeRecover(ctx, cat)
		return
	}

	s.mu.Lock()
	recovered := s.state.ConsecutiveFailures > 0
	if recovered {
		s.state.ConsecutiveFailures = 0
		s.state.CurrentBackoff = s.boff.Initial()
		s.state.CriticalAlertSent = false
	}
	s.mu.Unlock()
	if recovered {
		metrics.SetConsecutiveFailures(s.cfg.Process, 0)
		metrics.SetBackoffSeconds(s.cfg.Process, s.boff.Initial().Seconds())
		s.logger.Info("process recovered", slog.String("process", s.cfg.Process))
	}
}

// classifyLogs tails stderr and picks the primary failure category. A tail
// failure falls through to the provided fallback.
func (s *Supervisor) classifyLogs(ctx context.Context, fallback classify.Category) classify.Category {
	tail, err := s.prober.TailErrLog(ctx, s.cfg.LogLines)
	if err != nil {
		s.logger.Warn("error log tail failed", slog.String("error", err.Error()))
		return fallback
	}
	flags := classify.Classify(tail)
	cat := flags.Primary(fallback)
	s.logger.Info("failure classified",
		slog.String("classification", string(cat)),
		slog.Bool("prisma", flags.Prisma),
		slog.Bool("module", flags.Module),
		slog.Bool("memory", flags.Memory),
		slog.Bool("connection", flags.Connection))
	return cat
}

// maybeRecover applies the single-flight and backoff gates, then runs one
// recovery and folds its outcome back into the state.
func (s *Supervisor) maybeRecover(ctx context.Context, cat classify.Category) {
	now := s.clock()

	s.mu.Lock()
	if s.state.IsRecovering {
		// At-most-one-concurrent policy: drop, never queue.
		s.mu.Unlock()
		s.logger.Warn("recovery already in progress, dropping request",
			slog.String("classification", string(cat)))
		return
	}
	if !s.boff.ShouldAttempt(s.state.LastRecoveryAttemptAt, s.state.CurrentBackoff, now) {
		wait := s.state.CurrentBackoff - now.Sub(s.state.LastRecoveryAttemptAt)
		s.mu.Unlock()
		s.logger.Debug("recovery gated by backoff",
			slog.String("classification", string(cat)),
			slog.Duration("remaining", wait))
		return
	}
	s.state.IsRecovering = true
	s.state.LastRecoveryAttemptAt = now
	attempt := s.state.ConsecutiveFailures + 1
	s.mu.Unlock()

	// Guaranteed clear so a panic mid-sequence cannot lock recovery out.
	defer func() {
		s.mu.Lock()
		s.state.IsRecovering = false
		s.mu.Unlock()
	}()

	s.record(ctx, history.Event{
		Type:           history.EventRecoveryStarted,
		OccurredAt:     now,
		Process:        s.cfg.Process,
		Classification: string(cat),
		Attempt:        attempt,
	})

	outcome := s.recov.Run(ctx, cat, attempt)
	s.recordActions(ctx, outcome)
	s.applyOutcome(ctx, outcome)
}

func (s *Supervisor) applyOutcome(ctx context.Context, outcome recovery.Outcome) {
	now := s.clock()
	s.record(ctx, history.Event{
		Type:           history.EventRecoveryVerified,
		OccurredAt:     now,
		Process:        s.cfg.Process,
		Classification: string(outcome.Classification),
		Attempt:        outcome.Attempt,
		Success:        outcome.Success,
		Detail:         outcome.Verification.Reason,
	})

	if outcome.Success {
		s.mu.Lock()
		s.state.ConsecutiveFailures = 0
		s.state.CurrentBackoff = s.boff.Initial()
		s.state.CriticalAlertSent = false
		s.mu.Unlock()
		metrics.IncRecovery(s.cfg.Process, string(outcome.Classification), "success")
		metrics.SetConsecutiveFailures(s.cfg.Process, 0)
		metrics.SetBackoffSeconds(s.cfg.Process, s.boff.Initial().Seconds())
		return
	}

	s.mu.Lock()
	s.state.ConsecutiveFailures = outcome.Attempt
	s.state.CurrentBackoff = s.boff.Next(s.state.CurrentBackoff)
	failures := s.state.ConsecutiveFailures
	newBackoff := s.state.CurrentBackoff
	critical := failures >= s.cfg.MaxRestartAttempts && !s.state.CriticalAlertSent
	if critical {
		s.state.CriticalAlertSent = true
	}
	s.mu.Unlock()

	metrics.IncRecovery(s.cfg.Process, string(outcome.Classification), "failure")
	metrics.SetConsecutiveFailures(s.cfg.Process, failures)
	metrics.SetBackoffSeconds(s.cfg.Process, newBackoff.Seconds())
	s.logger.Warn("backoff grown",
		slog.Int("consecutive_failures", failures),
		slog.Duration("backoff", newBackoff))

	if critical {
		// Fixed escape hatch, fired once per failure streak; the latch is
		// cleared when a verification succeeds.
		s.alerts.Critical(ctx,
			"recovery attempts exhausted for "+s.cfg.Process,
			string(outcome.Classification),
			"manual intervention required")
		s.record(ctx, history.Event{
			Type:           history.EventCriticalAlert,
			OccurredAt:     now,
			Process:        s.cfg.Process,
			Classification: string(outcome.Classification),
			Attempt:        failures,
		})
	}
}

func (s *Supervisor) recordActions(ctx context.Context, outcome recovery.Outcome) {
	all := make([]recovery.ActionResult, 0, len(outcome.Actions)+len(outcome.Escalation))
	all = append(all, outcome.Actions...)
	all = append(all, outcome.Escalation...)
	for _, ar := range all {
		detail := string(ar.Action)
		if ar.Detail != "" {
			detail += ": " + ar.Detail
		}
		s.record(ctx, history.Event{
			Type:           history.EventRecoveryAction,
			OccurredAt:     s.clock(),
			Process:        s.cfg.Process,
			Classification: string(outcome.Classification),
			Attempt:        outcome.Attempt,
			Success:        ar.OK(),
			Detail:         detail,
		})
	}
}

// record sends an incident event to the history sink, best-effort.
func (s *Supervisor) record(ctx context.Context, e history.Event) {
	if s.hist == nil {
		return
	}
	if err := s.hist.Send(ctx, e); err != nil {
		s.logger.Warn("incident history write failed",
			slog.String("event", string(e.Type)),
			slog.String("error", err.Error()))
	}
}
