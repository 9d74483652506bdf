// Package alert evaluates threshold rules against observed metrics and
// dispatches rate-limited webhook notifications.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thornburywn/watchdog/internal/metrics"
	"github.com/thornburywn/watchdog/internal/store"
)

// RulePayload is the rule subset embedded in a webhook alert body.
type RulePayload struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      store.RuleType  `json:"type"`
	Condition store.Condition `json:"condition"`
	Threshold float64         `json:"threshold"`
}

// Payload is the webhook body for a rule-based alert.
type Payload struct {
	Type         string            `json:"type"` // always "alert"
	Timestamp    time.Time         `json:"timestamp"`
	Rule         RulePayload       `json:"rule"`
	CurrentValue float64           `json:"currentValue"`
	Context      map[string]string `json:"context,omitempty"`
	Source       string            `json:"source"`
}

// CriticalPayload is the webhook body for the rule-independent escalation
// fired when recovery attempts are exhausted.
type CriticalPayload struct {
	Type      string    `json:"type"` // always "critical_alert"
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"` // always "critical"
	Message   string    `json:"message"`
	ErrorType string    `json:"errorType"`
	Action    string    `json:"action"`
	Source    string    `json:"source"`
}

// Engine evaluates rules of a given type against a live value. Cooldown
// suppression is checked strictly before any store write, so a suppressed
// alert never touches the rule record.
type Engine struct {
	store   store.Store
	sender  Sender
	source  string
	clock   func() time.Time
	logger  *slog.Logger
	mu      sync.Mutex
	lastRun map[string]time.Time // rule ID -> last fired
}

// Sender delivers a webhook payload. NopSender is used when no webhook URL
// is configured.
type Sender interface {
	Send(ctx context.Context, payload any) error
}

// Option tweaks Engine construction; used by tests to inject a fake clock.
type Option func(*Engine)

func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func NewEngine(st store.Store, sender Sender, source string, logger *slog.Logger, opts ...Option) *Engine {
	if sender == nil {
		sender = NopSender{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:   st,
		sender:  sender,
		source:  source,
		clock:   time.Now,
		logger:  logger,
		lastRun: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate runs every enabled rule of typ against value. For SERVICE rules
// with threshold 0 the semantics are inverted: the rule fires because the
// service was reported unhealthy, not on a numeric comparison.
func (e *Engine) Evaluate(ctx context.Context, typ store.RuleType, value float64, alertCtx map[string]string) {
	rules, err := e.store.ListEnabled(ctx, typ)
	if err != nil {
		e.logger.Error("alert rule query failed", slog.String("type", string(typ)), slog.String("error", err.Error()))
		return
	}
	for _, rule := range rules {
		fired := rule.Compare(value)
		if typ == store.RuleService && rule.Threshold == 0 {
			// Evaluate(SERVICE, ...) is only invoked on an unhealthy report.
			fired = true
		}
		if !fired {
			continue
		}
		e.fire(ctx, rule, value, alertCtx)
	}
}

func (e *Engine) fire(ctx context.Context, rule store.Rule, value float64, alertCtx map[string]string) {
	now := e.clock()

	// Cooldown gate comes first: a suppressed alert must not increment
	// trigger_count or move last_triggered.
	e.mu.Lock()
	last, seen := e.lastRun[rule.ID]
	if seen && now.Sub(last) < rule.Cooldown() {
		e.mu.Unlock()
		e.logger.Debug("alert suppressed by cooldown",
			slog.String("rule", rule.ID),
			slog.Duration("remaining", rule.Cooldown()-now.Sub(last)))
		return
	}
	e.lastRun[rule.ID] = now
	e.mu.Unlock()

	if err := e.store.MarkTriggered(ctx, rule.ID, now); err != nil {
		e.logger.Error("alert trigger bookkeeping failed",
			slog.String("rule", rule.ID), slog.String("error", err.Error()))
	}
	metrics.IncAlertFired(e.source, string(rule.Type))
	e.logger.Warn("alert fired",
		slog.String("rule", rule.ID),
		slog.String("name", rule.Name),
		slog.String("type", string(rule.Type)),
		slog.Float64("value", value),
		slog.Float64("threshold", rule.Threshold))

	payload := Payload{
		Type:      "alert",
		Timestamp: now,
		Rule: RulePayload{
			ID:        rule.ID,
			Name:      rule.Name,
			Type:      rule.Type,
			Condition: rule.Condition,
			Threshold: rule.Threshold,
		},
		CurrentValue: value,
		Context:      alertCtx,
		Source:       e.source,
	}
	if err := e.sender.Send(ctx, payload); err != nil {
		// Never retried, never blocks the polling loop.
		e.logger.Error("alert webhook failed", slog.String("rule", rule.ID), slog.String("error", err.Error()))
	}
}

// Critical dispatches the fixed, rule-independent escalation payload. It
// bypasses rules and cooldowns entirely; gating to one emission per failure
// streak is the supervisor's job.
func (e *Engine) Critical(ctx context.Context, message, errorType, action string) {
	now := e.clock()
	metrics.IncAlertFired(e.source, "CRITICAL")
	e.logger.Error("critical alert",
		slog.String("message", message),
		slog.String("error_type", errorType),
		slog.String("action", action))
	payload := CriticalPayload{
		Type:      "critical_alert",
		Timestamp: now,
		Severity:  "critical",
		Message:   message,
		ErrorType: errorType,
		Action:    action,
		Source:    e.source,
	}
	if err := e.sender.Send(ctx, payload); err != nil {
		e.logger.Error("critical webhook failed", slog.String("error", err.Error()))
	}
}
