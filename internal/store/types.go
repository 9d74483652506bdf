package store

import "time"

// RuleType selects which metric a rule is evaluated against.
type RuleType string

const (
	RuleMemory  RuleType = "MEMORY"
	RuleService RuleType = "SERVICE"
)

// Condition is the comparison applied to (currentValue, threshold).
type Condition string

const (
	CondGT  Condition = "gt"
	CondGTE Condition = "gte"
	CondLT  Condition = "lt"
	CondLTE Condition = "lte"
	CondEQ  Condition = "eq"
	CondNEQ Condition = "neq"
)

// Rule is an alert rule record. Rules are authored in the external control
// panel; the supervisor only reads them and bumps the trigger bookkeeping.
type Rule struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Type            RuleType   `json:"type"`
	Condition       Condition  `json:"condition"`
	Threshold       float64    `json:"threshold"`
	Enabled         bool       `json:"enabled"`
	CooldownMinutes int        `json:"cooldown_minutes"`
	LastTriggered   *time.Time `json:"last_triggered,omitempty"`
	TriggerCount    int64      `json:"trigger_count"`
}

// Cooldown returns the rule's cooldown as a duration.
func (r Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// Compare evaluates the rule's condition against a live value.
func (r Rule) Compare(value float64) bool {
	switch r.Condition {
	case CondGT:
		return value > r.Threshold
	case CondGTE:
		return value >= r.Threshold
	case CondLT:
		return value < r.Threshold
	case CondLTE:
		return value <= r.Threshold
	case CondEQ:
		return value == r.Threshold
	case CondNEQ:
		return value != r.Threshold
	default:
		return false
	}
}
