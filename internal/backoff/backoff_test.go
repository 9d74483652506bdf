package backoff

import (
	"testing"
	"time"
)

func TestNextDoublesUntilMax(t *testing.T) {
	c := New(5*time.Second, 2, 300*time.Second)

	// After k consecutive failures the interval is min(initial*2^k, max).
	cur := c.Initial()
	want := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		300 * time.Second, // capped
		300 * time.Second, // stays capped
	}
	for i, w := range want {
		cur = c.Next(cur)
		if cur != w {
			t.Fatalf("after %d failures: got %s, want %s", i+1, cur, w)
		}
	}
}

func TestInitialReset(t *testing.T) {
	c := New(5*time.Second, 2, 300*time.Second)
	cur := c.Next(c.Next(c.Initial()))
	if cur == c.Initial() {
		t.Fatal("expected grown backoff before reset")
	}
	if c.Initial() != 5*time.Second {
		t.Fatalf("Initial = %s, want 5s", c.Initial())
	}
}

func TestShouldAttempt(t *testing.T) {
	c := New(5*time.Second, 2, 300*time.Second)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	if !c.ShouldAttempt(time.Time{}, 5*time.Second, now) {
		t.Error("first attempt should always be allowed")
	}
	if c.ShouldAttempt(now.Add(-3*time.Second), 5*time.Second, now) {
		t.Error("attempt inside the backoff window must be gated")
	}
	if !c.ShouldAttempt(now.Add(-5*time.Second), 5*time.Second, now) {
		t.Error("attempt at exactly the backoff boundary should pass")
	}
	if !c.ShouldAttempt(now.Add(-time.Minute), 5*time.Second, now) {
		t.Error("attempt after the backoff window should pass")
	}
}

func TestDefaultsSubstituted(t *testing.T) {
	c := New(0, 0, 0)
	if c.Initial() != DefaultInitial {
		t.Errorf("initial = %s, want %s", c.Initial(), DefaultInitial)
	}
	if got := c.Next(DefaultMax); got != DefaultMax {
		t.Errorf("Next(max) = %s, want capped at %s", got, DefaultMax)
	}
}
