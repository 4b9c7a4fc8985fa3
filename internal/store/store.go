// Package store persists readings and anomaly records and answers the
// time-windowed queries behind the history, live and anomaly views.
//
// Two backends implement Store: a Postgres/TimescaleDB backend with unbounded
// retention and a bounded in-memory ring used when no database is configured.
// The backend is chosen once by Open.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/citypulse/internal/config"
	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Query selects readings or anomaly records. An empty NodeID matches every
// node, a non-positive Since disables the time filter, and a non-positive
// Limit returns every match.
type Query struct {
	NodeID string
	Since  time.Duration
	Limit  int
}

// Store is the time-series capability shared by both backends. Query results
// are ordered newest-first.
type Store interface {
	Append(ctx context.Context, r domain.Reading) error
	AppendAnomaly(ctx context.Context, rec domain.AnomalyRecord) (domain.AnomalyRecord, error)
	LatestPerNode(ctx context.Context) ([]domain.Reading, error)
	QueryRange(ctx context.Context, q Query) ([]domain.Reading, error)
	QueryAnomalies(ctx context.Context, q Query) ([]domain.AnomalyRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open selects the backend from configuration: Postgres when DATABASE_URL is
// set and USE_MOCK is off, otherwise the in-memory ring.
func Open(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (Store, error) {
	if cfg.UseDatabase() {
		db, err := OpenPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres store", "max_conns", cfg.DBMaxConns)
		return NewPostgres(db, clock), nil
	}
	logger.Info("using in-memory store", "capacity", cfg.MemoryCapacity)
	return NewMemory(cfg.MemoryCapacity, clock), nil
}

// cutoff returns the exclusive lower bound for q, or the zero time when q
// has no window.
func cutoff(clock clockwork.Clock, q Query) time.Time {
	if q.Since <= 0 {
		return time.Time{}
	}
	return clock.Now().Add(-q.Since).UTC()
}
