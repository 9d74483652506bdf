package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/thornburywn/watchdog/internal/store"
)

// startPostgresContainer starts a PostgreSQL container for tests and returns
// a DSN suitable for pgx stdlib. It skips the test if Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get host info: %v", err)
		return "", nil
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}

	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	// Containers occasionally report ready before accepting connections.
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		cancel()
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresRuleLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	dsn, terminate := startPostgresContainer(t)
	waitForPostgres(t, dsn)
	defer func() {
		if terminate != nil {
			terminate()
		}
	}()

	db, err := New(dsn)
	if err != nil {
		t.Fatalf("pg open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	r := store.Rule{
		ID:              "mem",
		Name:            "High memory",
		Type:            store.RuleMemory,
		Condition:       store.CondGT,
		Threshold:       512,
		Enabled:         true,
		CooldownMinutes: 5,
	}
	if err := db.UpsertRule(ctx, r); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.ListEnabled(ctx, store.RuleMemory)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "mem" || got[0].Threshold != 512 {
		t.Fatalf("unexpected rules: %+v", got)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := db.MarkTriggered(ctx, "mem", now); err != nil {
		t.Fatalf("mark: %v", err)
	}
	got, err = db.ListEnabled(ctx, store.RuleMemory)
	if err != nil {
		t.Fatalf("list after mark: %v", err)
	}
	if got[0].TriggerCount != 1 {
		t.Fatalf("trigger_count = %d, want 1", got[0].TriggerCount)
	}
	if got[0].LastTriggered == nil || !got[0].LastTriggered.Equal(now) {
		t.Fatalf("last_triggered = %v, want %v", got[0].LastTriggered, now)
	}

	// Disabled rules drop out of evaluation.
	r.Enabled = false
	r.TriggerCount = got[0].TriggerCount
	r.LastTriggered = got[0].LastTriggered
	if err := db.UpsertRule(ctx, r); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got, err = db.ListEnabled(ctx, store.RuleMemory)
	if err != nil {
		t.Fatalf("list disabled: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("disabled rule still listed: %+v", got)
	}

	if err := db.MarkTriggered(ctx, "missing", now); err == nil {
		t.Fatal("expected not-found error for unknown rule id")
	}
}
