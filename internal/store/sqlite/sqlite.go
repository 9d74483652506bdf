package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thornburywn/watchdog/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alert_rules(
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			condition TEXT NOT NULL,
			threshold REAL NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT 1,
			cooldown_minutes INTEGER NOT NULL DEFAULT 5,
			last_triggered TIMESTAMP NULL,
			trigger_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alert_rules_type ON alert_rules(type, enabled);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) ListEnabled(ctx context.Context, typ store.RuleType) ([]store.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, condition, threshold, enabled, cooldown_minutes, last_triggered, trigger_count
		FROM alert_rules
		WHERE enabled=1 AND type=?
		ORDER BY name;`, string(typ))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRules(rows)
}

// MarkTriggered bumps trigger_count and stamps last_triggered in one
// statement, keeping it lost-update safe.
func (s *DB) MarkTriggered(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_rules
		SET trigger_count = trigger_count + 1, last_triggered = ?
		WHERE id = ?;`, now.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.New("alert rule not found: " + id)
	}
	return err
}

func (s *DB) UpsertRule(ctx context.Context, r store.Rule) error {
	var last any
	if r.LastTriggered != nil {
		last = r.LastTriggered.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_rules(id, name, type, condition, threshold, enabled, cooldown_minutes, last_triggered, trigger_count)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			type=excluded.type,
			condition=excluded.condition,
			threshold=excluded.threshold,
			enabled=excluded.enabled,
			cooldown_minutes=excluded.cooldown_minutes,
			last_triggered=excluded.last_triggered,
			trigger_count=excluded.trigger_count;`,
		r.ID, r.Name, string(r.Type), string(r.Condition), r.Threshold, r.Enabled, r.CooldownMinutes, last, r.TriggerCount)
	return err
}

func scanRules(rows *sql.Rows) ([]store.Rule, error) {
	out := make([]store.Rule, 0)
	for rows.Next() {
		var (
			r    store.Rule
			typ  string
			cond string
			last sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Name, &typ, &cond, &r.Threshold, &r.Enabled, &r.CooldownMinutes, &last, &r.TriggerCount); err != nil {
			return nil, err
		}
		r.Type = store.RuleType(typ)
		r.Condition = store.Condition(cond)
		if last.Valid {
			t := last.Time.UTC()
			r.LastTriggered = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
