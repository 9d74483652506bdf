// Package recovery executes the escalating remediation ladder for a
// classified failure and verifies the result.
package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/thornburywn/watchdog/internal/classify"
	"github.com/thornburywn/watchdog/internal/health"
)

const DefaultSettleDelay = 5 * time.Second

// Verifier re-checks application health after the action sequence settles.
// *health.Checker satisfies it.
type Verifier interface {
	Check(ctx context.Context) health.Result
}

// Outcome is the full record of one recovery run. Only Verification decides
// Success; individual action failures are informational.
type Outcome struct {
	Classification classify.Category `json:"classification"`
	Attempt        int               `json:"attempt"`
	Actions        []ActionResult    `json:"actions"`
	Escalation     []ActionResult    `json:"escalation,omitempty"`
	Verification   health.Result     `json:"verification"`
	Success        bool              `json:"success"`
}

// Orchestrator runs recovery sequences. It holds no mutable supervisor
// state; the caller owns the failure counter and backoff and guarantees
// at most one Run in flight.
type Orchestrator struct {
	runner   Runner
	verifier Verifier
	settle   time.Duration
	logger   *slog.Logger
	// sleep is swapped for a fake in tests.
	sleep func(ctx context.Context, d time.Duration)
}

func NewOrchestrator(runner Runner, verifier Verifier, settle time.Duration, logger *slog.Logger) *Orchestrator {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		runner:   runner,
		verifier: verifier,
		settle:   settle,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// sequenceFor selects the base action ladder for a classification. Cheapest
// action first; deeper remediation is reserved for the escalation path.
func sequenceFor(cat classify.Category) []Action {
	switch cat {
	case classify.CategoryPrisma:
		return []Action{ActionRegenerate, ActionRestart}
	case classify.CategoryModule:
		return []Action{ActionReinstall, ActionRegenerate, ActionRestart}
	default: // memory, connection, unresponsive, unknown
		return []Action{ActionRestart}
	}
}

// escalationFor adds more invasive actions as consecutive failures
// accumulate. attempt is the 1-based count including this run.
func escalationFor(cat classify.Category, attempt int) []Action {
	switch {
	case attempt >= 3:
		return []Action{ActionReinstall, ActionRegenerate, ActionRestart}
	case attempt >= 2 && cat != classify.CategoryPrisma:
		return []Action{ActionRegenerate, ActionRestart}
	default:
		return nil
	}
}

// Run executes the ladder for cat, waits the settle delay, verifies health
// once, and on failed verification applies the escalation ladder. attempt is
// the consecutive-failure count including this run.
func (o *Orchestrator) Run(ctx context.Context, cat classify.Category, attempt int) Outcome {
	out := Outcome{Classification: cat, Attempt: attempt}

	o.logger.Info("recovery started",
		slog.String("classification", string(cat)),
		slog.Int("attempt", attempt))

	out.Actions = o.execute(ctx, sequenceFor(cat))

	o.sleep(ctx, o.settle)
	out.Verification = o.verifier.Check(ctx)
	out.Success = out.Verification.Healthy

	if out.Success {
		o.logger.Info("recovery verified healthy",
			slog.String("classification", string(cat)),
			slog.Int("attempt", attempt))
		return out
	}

	o.logger.Warn("recovery verification failed",
		slog.String("classification", string(cat)),
		slog.Int("attempt", attempt),
		slog.String("reason", out.Verification.Reason))

	if esc := escalationFor(cat, attempt); len(esc) > 0 {
		o.logger.Info("escalating recovery",
			slog.Int("attempt", attempt),
			slog.Int("extra_actions", len(esc)))
		out.Escalation = o.execute(ctx, esc)
	}
	return out
}

// execute runs actions sequentially. A failed action is logged and the
// sequence continues.
func (o *Orchestrator) execute(ctx context.Context, actions []Action) []ActionResult {
	results := make([]ActionResult, 0, len(actions))
	for _, a := range actions {
		start := time.Now()
		err := o.runner.Run(ctx, a)
		res := ActionResult{Action: a, Err: err, Elapsed: time.Since(start)}
		if err != nil {
			res.Detail = err.Error()
			o.logger.Warn("recovery action failed",
				slog.String("action", string(a)),
				slog.String("error", err.Error()))
		} else {
			o.logger.Info("recovery action completed",
				slog.String("action", string(a)),
				slog.Duration("elapsed", res.Elapsed))
		}
		results = append(results, res)
	}
	return results
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
