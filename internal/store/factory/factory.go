// Package factory opens the right alert-rule store backend for a DSN.
package factory

import (
	"errors"
	"strings"

	"github.com/thornburywn/watchdog/internal/store"
	"github.com/thornburywn/watchdog/internal/store/postgres"
	"github.com/thornburywn/watchdog/internal/store/sqlite"
)

// New selects a backend by DSN prefix:
//   - postgres://... or postgresql://... -> Postgres (pgx)
//   - sqlite://path, :memory:, or a bare path -> SQLite
func New(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("empty alert store DSN")
	}
	ld := strings.ToLower(d)
	switch {
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return postgres.New(d)
	case strings.HasPrefix(ld, "sqlite://"):
		return sqlite.New(strings.TrimPrefix(d, "sqlite://"))
	default:
		return sqlite.New(d)
	}
}
