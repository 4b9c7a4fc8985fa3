// Package anomaly decides whether a scored reading is anomalous. The remote
// ML scorer is consulted first under a bounded timeout; any failure falls
// back to the local threshold heuristic.
package anomaly

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/couchcryptid/citypulse/internal/observability"
)

// Scorer classifies a reading remotely. A nil outcome with a nil error means
// the scorer explicitly made no decision; the heuristic still applies.
type Scorer interface {
	Detect(ctx context.Context, r domain.Reading) (*domain.AnomalyOutcome, error)
}

// Detector wraps a remote Scorer with the heuristic fallback.
type Detector struct {
	scorer  Scorer
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDetector creates a Detector. A nil scorer always uses the heuristic.
func NewDetector(scorer Scorer, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Detector {
	return &Detector{
		scorer:  scorer,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Evaluate returns the anomaly decision for r. The result is nil only when
// the remote scorer answered with no decision and no heuristic threshold
// fired.
func (d *Detector) Evaluate(ctx context.Context, r domain.Reading) *domain.AnomalyOutcome {
	if d.scorer == nil {
		return d.fallback(r)
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := d.scorer.Detect(callCtx, r)
	d.metrics.ScorerDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		d.metrics.ScorerRequests.WithLabelValues("error").Inc()
		d.logger.Warn("anomaly scorer unavailable, using heuristic",
			"node_id", r.NodeID,
			"error", err,
		)
		return d.fallback(r)
	case out == nil:
		d.metrics.ScorerRequests.WithLabelValues("no_decision").Inc()
		if h := d.fallback(r); h.IsAnomaly {
			return h
		}
		return nil
	}

	d.metrics.ScorerRequests.WithLabelValues("success").Inc()
	out.Source = domain.SourceRemote
	if out.IsAnomaly {
		d.metrics.AnomaliesDetected.WithLabelValues(string(domain.SourceRemote)).Inc()
	}
	return out
}

func (d *Detector) fallback(r domain.Reading) *domain.AnomalyOutcome {
	out := domain.FallbackOutcome(r)
	if out.IsAnomaly {
		d.metrics.AnomaliesDetected.WithLabelValues(string(domain.SourceHeuristic)).Inc()
	}
	return &out
}
