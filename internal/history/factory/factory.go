// Package factory opens an incident-history sink for a DSN.
package factory

import (
	"errors"
	"strings"

	"github.com/thornburywn/watchdog/internal/history"
	"github.com/thornburywn/watchdog/internal/history/clickhouse"
)

const defaultClickHouseTable = "incident_history"

// New selects a sink by DSN prefix:
//   - clickhouse://host:9000 -> ClickHouse
//   - postgres://..., sqlite://path, or a bare path -> SQL sink
func New(dsn string) (history.Sink, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("empty history DSN")
	}
	if strings.HasPrefix(strings.ToLower(d), "clickhouse://") {
		addr := strings.TrimPrefix(d, "clickhouse://")
		return clickhouse.New(addr, defaultClickHouseTable)
	}
	return history.NewSQLSinkFromDSN(d)
}
