package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
)

const readingColumns = "time, node_id, noise, temperature, air_quality, crowd_density, stress_index"

const anomalyColumns = "id, time, node_id, anomaly_score, signals, explanation, stress_index"

// Postgres is the durable backend over the sensor_readings hypertable and the
// anomalies table. The schema is provisioned outside this service.
type Postgres struct {
	db    *sql.DB
	clock clockwork.Clock
}

// OpenPostgres opens a connection pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgres wraps an open pool.
func NewPostgres(db *sql.DB, clock clockwork.Clock) *Postgres {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Postgres{db: db, clock: clock}
}

func (p *Postgres) Append(ctx context.Context, r domain.Reading) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (`+readingColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.Time, r.NodeID,
		nullable(r.Noise), nullable(r.Temperature), nullable(r.AirQuality), nullable(r.CrowdDensity),
		r.StressIndex,
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (p *Postgres) AppendAnomaly(ctx context.Context, rec domain.AnomalyRecord) (domain.AnomalyRecord, error) {
	signals := rec.Signals
	if signals == nil {
		signals = []string{}
	}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO anomalies (time, node_id, anomaly_score, signals, explanation, stress_index)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		rec.Time, rec.NodeID, rec.AnomalyScore, pq.Array(signals), rec.Explanation, rec.StressIndex,
	).Scan(&rec.ID)
	if err != nil {
		return domain.AnomalyRecord{}, fmt.Errorf("insert anomaly: %w", err)
	}
	return rec, nil
}

// LatestPerNode returns the newest reading of every node, sorted by node id.
func (p *Postgres) LatestPerNode(ctx context.Context) ([]domain.Reading, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT ON (node_id) `+readingColumns+`
		 FROM sensor_readings
		 ORDER BY node_id, time DESC`)
	if err != nil {
		return nil, fmt.Errorf("query latest readings: %w", err)
	}
	return scanReadings(rows)
}

func (p *Postgres) QueryRange(ctx context.Context, q Query) ([]domain.Reading, error) {
	where, args := p.filter(q)
	query := `SELECT ` + readingColumns + ` FROM sensor_readings` + where + ` ORDER BY time DESC` + limitClause(q.Limit, &args)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	return scanReadings(rows)
}

func (p *Postgres) QueryAnomalies(ctx context.Context, q Query) ([]domain.AnomalyRecord, error) {
	where, args := p.filter(q)
	query := `SELECT ` + anomalyColumns + ` FROM anomalies` + where + ` ORDER BY time DESC, id DESC` + limitClause(q.Limit, &args)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []domain.AnomalyRecord
	for rows.Next() {
		var (
			rec         domain.AnomalyRecord
			signals     pq.StringArray
			explanation sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Time, &rec.NodeID, &rec.AnomalyScore, &signals, &explanation, &rec.StressIndex); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		rec.Time = rec.Time.UTC()
		rec.Signals = []string(signals)
		rec.Explanation = explanation.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anomalies: %w", err)
	}
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// filter builds the WHERE clause for q with positional arguments.
func (p *Postgres) filter(q Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if from := cutoff(p.clock, q); !from.IsZero() {
		args = append(args, from)
		conds = append(conds, fmt.Sprintf("time > $%d", len(args)))
	}
	if q.NodeID != "" {
		args = append(args, q.NodeID)
		conds = append(conds, fmt.Sprintf("node_id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func limitClause(limit int, args *[]any) string {
	if limit <= 0 {
		return ""
	}
	*args = append(*args, limit)
	return fmt.Sprintf(" LIMIT $%d", len(*args))
}

func scanReadings(rows *sql.Rows) ([]domain.Reading, error) {
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []domain.Reading
	for rows.Next() {
		var r domain.Reading
		var noise, temperature, airQuality, crowd sql.NullFloat64
		if err := rows.Scan(&r.Time, &r.NodeID, &noise, &temperature, &airQuality, &crowd, &r.StressIndex); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.Time = r.Time.UTC()
		r.Noise = measurement(noise)
		r.Temperature = measurement(temperature)
		r.AirQuality = measurement(airQuality)
		r.CrowdDensity = measurement(crowd)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}

// nullable stores missing sensor values as SQL NULL.
func nullable(m domain.Measurement) sql.NullFloat64 {
	if m.IsMissing() {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: float64(m), Valid: true}
}

func measurement(v sql.NullFloat64) domain.Measurement {
	if !v.Valid {
		return domain.Missing()
	}
	return domain.Measurement(v.Float64)
}
