package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLSinkInsertAndSchema(t *testing.T) {
	sink, err := NewSQLSinkFromDSN(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	ctx := context.Background()
	events := []Event{
		{
			Type:           EventRecoveryStarted,
			OccurredAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Process:        "console-web",
			Classification: "module",
			Attempt:        1,
		},
		{
			Type:           EventRecoveryAction,
			OccurredAt:     time.Date(2026, 3, 1, 9, 0, 5, 0, time.UTC),
			Process:        "console-web",
			Classification: "module",
			Attempt:        1,
			Success:        true,
			Detail:         "reinstall",
		},
		{
			Type:           EventRecoveryVerified,
			OccurredAt:     time.Date(2026, 3, 1, 9, 0, 30, 0, time.UTC),
			Process:        "console-web",
			Classification: "module",
			Attempt:        1,
			Backoff:        10 * time.Second,
			Success:        false,
			Detail:         "status 502",
		},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}

	var n int
	if err := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incident_history;`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != len(events) {
		t.Fatalf("rows = %d, want %d", n, len(events))
	}

	var backoffMS int64
	var success bool
	err = sink.db.QueryRowContext(ctx, `
		SELECT backoff_ms, success FROM incident_history WHERE event = ?;`,
		string(EventRecoveryVerified)).Scan(&backoffMS, &success)
	if err != nil {
		t.Fatalf("select verified: %v", err)
	}
	if backoffMS != 10000 || success {
		t.Fatalf("verified row = (%d, %v), want (10000, false)", backoffMS, success)
	}
}

func TestSQLSinkRejectsEmptyDSN(t *testing.T) {
	if _, err := NewSQLSinkFromDSN("   "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestSQLSinkDSNPrefixStripped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	sink, err := NewSQLSinkFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatalf("open sink with prefix: %v", err)
	}
	if err := sink.Send(context.Background(), Event{Type: EventCriticalAlert, OccurredAt: time.Now(), Process: "console-web", Attempt: 5}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
