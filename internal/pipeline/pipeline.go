package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/citypulse/internal/broadcast"
	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/couchcryptid/citypulse/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Store is the subset of the time-series store used during ingestion.
type Store interface {
	Append(ctx context.Context, r domain.Reading) error
	AppendAnomaly(ctx context.Context, rec domain.AnomalyRecord) (domain.AnomalyRecord, error)
	Ping(ctx context.Context) error
}

// Classifier decides whether a reading is anomalous. A nil outcome means no
// decision was made.
type Classifier interface {
	Evaluate(ctx context.Context, r domain.Reading) *domain.AnomalyOutcome
}

// Publisher fans an event out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev broadcast.Event) error
}

// EventSink receives every processed reading after it has been acknowledged
// by the store, e.g. a Kafka topic.
type EventSink interface {
	Emit(ctx context.Context, r domain.Reading) error
}

// Pipeline runs one reading through validate, score, persist, classify,
// persist-anomaly and broadcast.
type Pipeline struct {
	store      Store
	classifier Classifier
	publisher  Publisher
	sinks      []EventSink
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used to timestamp readings.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithSinks adds downstream event sinks.
func WithSinks(sinks ...EventSink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// New creates a Pipeline with the given stages and observability.
func New(s Store, c Classifier, pub Publisher, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      s,
		classifier: c,
		publisher:  pub,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness reports whether the backing store is reachable.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	return nil
}

// Ingest processes one raw reading and returns it, annotated with its
// anomaly outcome when anomalous. Only a missing node id (ErrValidation) or a
// failed append (ErrStorage) is returned as an error; every step after the
// append degrades instead of failing.
func (p *Pipeline) Ingest(ctx context.Context, raw domain.RawReading) (domain.Reading, error) {
	if raw.NodeID == "" {
		p.metrics.IngestFailures.WithLabelValues("validate").Inc()
		return domain.Reading{}, fmt.Errorf("%w: node_id required", domain.ErrValidation)
	}

	r := domain.NewReading(raw, p.clock.Now())

	if err := p.store.Append(ctx, r); err != nil {
		p.metrics.IngestFailures.WithLabelValues("persist").Inc()
		p.metrics.StorageErrors.WithLabelValues("append").Inc()
		p.logger.Error("append reading failed", "node_id", r.NodeID, "error", err)
		return domain.Reading{}, fmt.Errorf("%w: append reading: %w", domain.ErrStorage, err)
	}
	p.metrics.StressIndex.Observe(float64(r.StressIndex))

	// Committed. Later steps ignore caller cancellation.
	ctx = context.WithoutCancel(ctx)

	if outcome := p.classifier.Evaluate(ctx, r); outcome != nil && outcome.IsAnomaly {
		r.Anomaly = outcome
		p.persistAnomaly(ctx, r, *outcome)
	}

	if err := p.publisher.Publish(ctx, broadcast.Event{Type: broadcast.EventReading, Data: r}); err != nil {
		p.metrics.IngestFailures.WithLabelValues("broadcast").Inc()
		p.logger.Warn("broadcast reading failed", "node_id", r.NodeID, "error", err)
	}

	for _, sink := range p.sinks {
		if err := sink.Emit(ctx, r); err != nil {
			p.metrics.IngestFailures.WithLabelValues("sink").Inc()
			p.logger.Warn("emit reading failed", "node_id", r.NodeID, "error", err)
		}
	}

	p.metrics.ReadingsIngested.Inc()
	return r, nil
}

func (p *Pipeline) persistAnomaly(ctx context.Context, r domain.Reading, outcome domain.AnomalyOutcome) {
	rec, err := p.store.AppendAnomaly(ctx, domain.NewAnomalyRecord(r, outcome))
	if err != nil {
		p.metrics.IngestFailures.WithLabelValues("anomaly_persist").Inc()
		p.metrics.StorageErrors.WithLabelValues("append_anomaly").Inc()
		p.logger.Warn("append anomaly failed, reading kept",
			"node_id", r.NodeID,
			"source", outcome.Source,
			"error", err,
		)
		return
	}
	p.logger.Info("anomaly recorded",
		"node_id", r.NodeID,
		"anomaly_id", rec.ID,
		"source", outcome.Source,
		"score", outcome.Score(),
		"signals", rec.Signals,
	)
}
