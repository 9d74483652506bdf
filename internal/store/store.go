// Package store defines the alert-rule persistence contract shared by the
// SQLite and Postgres backends.
package store

import (
	"context"
	"time"
)

// Store reads alert rules and records trigger bookkeeping.
// MarkTriggered must be a single atomic statement (increment + timestamp in
// one write) so concurrent supervisors cannot lose updates.
type Store interface {
	EnsureSchema(ctx context.Context) error
	ListEnabled(ctx context.Context, typ RuleType) ([]Rule, error)
	MarkTriggered(ctx context.Context, id string, now time.Time) error
	UpsertRule(ctx context.Context, r Rule) error
	Close() error
}
