// Package backoff implements the exponential gate between recovery attempts.
package backoff

import "time"

// Defaults chosen so the first retries are fast while sustained outages back
// off to a five-minute ceiling.
const (
	DefaultInitial    = 5 * time.Second
	DefaultMultiplier = 2
	DefaultMax        = 300 * time.Second
)

// Controller computes backoff transitions. It holds only configuration; the
// current interval itself lives in the supervisor state, so Controller is
// safe to share and trivial to test.
type Controller struct {
	initial    time.Duration
	multiplier int
	max        time.Duration
}

// New builds a Controller, substituting defaults for non-positive values.
func New(initial time.Duration, multiplier int, max time.Duration) Controller {
	if initial <= 0 {
		initial = DefaultInitial
	}
	if multiplier < 2 {
		multiplier = DefaultMultiplier
	}
	if max < initial {
		max = DefaultMax
	}
	return Controller{initial: initial, multiplier: multiplier, max: max}
}

// Initial returns the starting interval, also used after a successful
// verification resets the ladder.
func (c Controller) Initial() time.Duration { return c.initial }

// Next grows the interval after a failed recovery: min(cur*multiplier, max).
func (c Controller) Next(cur time.Duration) time.Duration {
	if cur <= 0 {
		cur = c.initial
	}
	next := cur * time.Duration(c.multiplier)
	if next > c.max {
		next = c.max
	}
	return next
}

// ShouldAttempt reports whether enough time has elapsed since the last
// recovery attempt. A zero lastAttempt means no attempt has been made yet.
func (c Controller) ShouldAttempt(lastAttempt time.Time, cur time.Duration, now time.Time) bool {
	if lastAttempt.IsZero() {
		return true
	}
	if cur <= 0 {
		cur = c.initial
	}
	return now.Sub(lastAttempt) >= cur
}
