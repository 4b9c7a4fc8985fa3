//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/citypulse/internal/adapter/kafka"
	"github.com/couchcryptid/citypulse/internal/anomaly"
	"github.com/couchcryptid/citypulse/internal/broadcast"
	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/couchcryptid/citypulse/internal/observability"
	"github.com/couchcryptid/citypulse/internal/pipeline"
	"github.com/couchcryptid/citypulse/internal/store"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSinkTopic = "citypulse-readings-test"

// TestPipelineKafkaSink runs readings through the full ingestion pipeline and
// checks that each one lands on the sink topic keyed by node id.
func TestPipelineKafkaSink(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 19, 15, 0, 0, time.UTC))

	writer := kafka.NewWriter([]string{broker}, testSinkTopic, logger)
	p := pipeline.New(
		store.NewMemory(store.DefaultCapacity, clock),
		anomaly.NewDetector(nil, time.Second, logger, metrics),
		broadcast.NewHub(logger, metrics),
		logger, metrics,
		pipeline.WithClock(clock),
		pipeline.WithSinks(writer),
	)

	_, err := p.Ingest(ctx, domain.RawReading{NodeID: "CP-MOH-01", Noise: 96, Temperature: 31, AirQuality: 95, CrowdDensity: 22})
	require.NoError(t, err)
	_, err = p.Ingest(ctx, domain.RawReading{NodeID: "CP-MOH-02", Noise: 50, Temperature: 22, AirQuality: 60, CrowdDensity: 3})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     "citypulse-sink-test",
		StartOffset: kafkago.FirstOffset,
	})
	defer consumer.Close()

	got := make(map[string]kafkago.Message)
	for len(got) < 2 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from sink topic")
		got[string(msg.Key)] = msg
	}

	hot := got["CP-MOH-01"]
	headers := make(map[string]string, len(hot.Headers))
	for _, h := range hot.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "reading", headers["event_type"])
	assert.Equal(t, "true", headers["anomaly"])

	var r domain.Reading
	require.NoError(t, json.Unmarshal(hot.Value, &r))
	assert.Equal(t, "CP-MOH-01", r.NodeID)
	assert.Equal(t, domain.StressIndex(r.Sensors()), r.StressIndex)
	require.NotNil(t, r.Anomaly)
	assert.Equal(t, []string{domain.SignalNoise}, r.Anomaly.Signals)

	calm := got["CP-MOH-02"]
	for _, h := range calm.Headers {
		if h.Key == "anomaly" {
			assert.Equal(t, "false", string(h.Value))
		}
	}
}
