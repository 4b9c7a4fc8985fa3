// Package forecast proxies node forecasts from the external predictor.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/couchcryptid/citypulse/internal/observability"
	"github.com/patrickmn/go-cache"
)

// DefaultHorizon is the forecast horizon, in minutes, when none is requested.
const DefaultHorizon = 60

var (
	// ErrForecastUnavailable means the predictor could not be reached, timed
	// out or failed. It wraps domain.ErrRemoteUnavailable.
	ErrForecastUnavailable = fmt.Errorf("forecast %w", domain.ErrRemoteUnavailable)

	// ErrNoForecast means the predictor answered but has no forecast for the node.
	ErrNoForecast = fmt.Errorf("forecast %w", domain.ErrNotFound)
)

// Predictor fetches a forecast payload. An empty nodeID requests all nodes.
type Predictor interface {
	Forecast(ctx context.Context, nodeID string, horizonMinutes int) (json.RawMessage, error)
}

// Gateway wraps a Predictor with a bounded timeout, typed errors and a
// short-lived cache of successful payloads.
type Gateway struct {
	predictor Predictor
	timeout   time.Duration
	cache     *cache.Cache
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewGateway creates a Gateway. A zero ttl disables caching.
func NewGateway(p Predictor, timeout, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Gateway {
	g := &Gateway{
		predictor: p,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
	if ttl > 0 {
		g.cache = cache.New(ttl, 2*ttl)
	}
	return g
}

// Get returns the predictor payload for nodeID. Failures are reported as
// ErrForecastUnavailable or ErrNoForecast, never as a raw transport error.
func (g *Gateway) Get(ctx context.Context, nodeID string, horizonMinutes int) (json.RawMessage, error) {
	if horizonMinutes <= 0 {
		horizonMinutes = DefaultHorizon
	}
	key := cacheKey(nodeID, horizonMinutes)

	if g.cache != nil {
		if v, ok := g.cache.Get(key); ok {
			g.metrics.ForecastRequests.WithLabelValues("cache_hit").Inc()
			return v.(json.RawMessage), nil
		}
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	payload, err := g.predictor.Forecast(callCtx, nodeID, horizonMinutes)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		g.metrics.ForecastRequests.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: %w", ErrNoForecast, err)
	case err != nil:
		g.metrics.ForecastRequests.WithLabelValues("unavailable").Inc()
		g.logger.Warn("forecast predictor unavailable", "node_id", nodeID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrForecastUnavailable, err)
	}

	g.metrics.ForecastRequests.WithLabelValues("success").Inc()
	if g.cache != nil {
		g.cache.SetDefault(key, payload)
	}
	return payload, nil
}

func cacheKey(nodeID string, horizon int) string {
	if nodeID == "" {
		nodeID = "*"
	}
	return fmt.Sprintf("%s|%d", nodeID, horizon)
}
