package forecast_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/couchcryptid/citypulse/internal/forecast"
	"github.com/couchcryptid/citypulse/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPredictor struct {
	payload json.RawMessage
	err     error
	delay   time.Duration

	calls       int
	lastNode    string
	lastHorizon int
}

func (s *stubPredictor) Forecast(ctx context.Context, nodeID string, horizon int) (json.RawMessage, error) {
	s.calls++
	s.lastNode, s.lastHorizon = nodeID, horizon
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, ctx.Err())
		case <-time.After(s.delay):
		}
	}
	return s.payload, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const samplePayload = `{"node_id":"CP-MOH-01","trend":"stable","predictions":[{"timestamp":1773514800000,"stress_index":42}]}`

func TestGet_ReturnsPayloadVerbatim(t *testing.T) {
	p := &stubPredictor{payload: json.RawMessage(samplePayload)}
	g := forecast.NewGateway(p, time.Second, 0, discardLogger(), observability.NewMetricsForTesting())

	got, err := g.Get(context.Background(), "CP-MOH-01", 30)
	require.NoError(t, err)
	assert.Equal(t, samplePayload, string(got))
	assert.Equal(t, "CP-MOH-01", p.lastNode)
	assert.Equal(t, 30, p.lastHorizon)
}

func TestGet_DefaultHorizon(t *testing.T) {
	p := &stubPredictor{payload: json.RawMessage(`{}`)}
	g := forecast.NewGateway(p, time.Second, 0, discardLogger(), observability.NewMetricsForTesting())

	_, err := g.Get(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, forecast.DefaultHorizon, p.lastHorizon)
	assert.Empty(t, p.lastNode)
}

func TestGet_UnavailableIsDistinctFromNotFound(t *testing.T) {
	metrics := observability.NewMetricsForTesting()

	down := forecast.NewGateway(&stubPredictor{err: fmt.Errorf("%w: status 502", domain.ErrRemoteUnavailable)},
		time.Second, 0, discardLogger(), metrics)
	_, err := down.Get(context.Background(), "CP-MOH-01", 60)
	require.Error(t, err)
	assert.ErrorIs(t, err, forecast.ErrForecastUnavailable)
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.NotErrorIs(t, err, forecast.ErrNoForecast)

	missing := forecast.NewGateway(&stubPredictor{err: fmt.Errorf("%w: forecast for CP-MOH-09", domain.ErrNotFound)},
		time.Second, 0, discardLogger(), metrics)
	_, err = missing.Get(context.Background(), "CP-MOH-09", 60)
	require.Error(t, err)
	assert.ErrorIs(t, err, forecast.ErrNoForecast)
	assert.NotErrorIs(t, err, forecast.ErrForecastUnavailable)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ForecastRequests.WithLabelValues("unavailable")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ForecastRequests.WithLabelValues("not_found")), 0)
}

func TestGet_UnknownErrorTreatedAsUnavailable(t *testing.T) {
	g := forecast.NewGateway(&stubPredictor{err: errors.New("boom")}, time.Second, 0, discardLogger(), observability.NewMetricsForTesting())

	_, err := g.Get(context.Background(), "CP-MOH-01", 60)
	assert.ErrorIs(t, err, forecast.ErrForecastUnavailable)
}

func TestGet_Timeout(t *testing.T) {
	p := &stubPredictor{payload: json.RawMessage(`{}`), delay: 5 * time.Second}
	g := forecast.NewGateway(p, 20*time.Millisecond, 0, discardLogger(), observability.NewMetricsForTesting())

	start := time.Now()
	_, err := g.Get(context.Background(), "CP-MOH-01", 60)
	assert.ErrorIs(t, err, forecast.ErrForecastUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGet_CachesSuccessOnly(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	p := &stubPredictor{err: domain.ErrRemoteUnavailable}
	g := forecast.NewGateway(p, time.Second, time.Minute, discardLogger(), metrics)

	_, err := g.Get(context.Background(), "CP-MOH-01", 60)
	require.Error(t, err)

	p.err = nil
	p.payload = json.RawMessage(samplePayload)
	for range 3 {
		got, err := g.Get(context.Background(), "CP-MOH-01", 60)
		require.NoError(t, err)
		assert.Equal(t, samplePayload, string(got))
	}
	assert.Equal(t, 2, p.calls)

	// A different horizon is a different entry.
	_, err = g.Get(context.Background(), "CP-MOH-01", 120)
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.ForecastRequests.WithLabelValues("cache_hit")), 0)
}
