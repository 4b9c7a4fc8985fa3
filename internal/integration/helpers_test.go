//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	kafkaImage     = "confluentinc/confluent-local:7.5.0"
	timescaleImage = "timescale/timescaledb:latest-pg16"
)

// startKafka runs a single-node broker and returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("citypulse-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	}))
}

// startTimescale runs TimescaleDB with the CityPulse schema applied and
// returns its DSN.
func startTimescale(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        timescaleImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "citypulse",
				"POSTGRES_PASSWORD": "citypulse",
				"POSTGRES_DB":       "citypulse",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	require.NoError(t, err, "start timescaledb container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://citypulse:citypulse@%s/citypulse?sslmode=disable",
		net.JoinHostPort(host, port.Port()))
}

const schema = `
CREATE EXTENSION IF NOT EXISTS timescaledb;

CREATE TABLE nodes (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    latitude    DOUBLE PRECISION NOT NULL,
    longitude   DOUBLE PRECISION NOT NULL,
    sector      TEXT,
    zone_type   TEXT
);

CREATE TABLE sensor_readings (
    time          TIMESTAMPTZ NOT NULL,
    node_id       TEXT NOT NULL,
    noise         DOUBLE PRECISION,
    temperature   DOUBLE PRECISION,
    air_quality   DOUBLE PRECISION,
    crowd_density DOUBLE PRECISION,
    stress_index  INTEGER
);
SELECT create_hypertable('sensor_readings', 'time');

CREATE TABLE anomalies (
    id            SERIAL PRIMARY KEY,
    time          TIMESTAMPTZ NOT NULL,
    node_id       TEXT NOT NULL,
    anomaly_score DOUBLE PRECISION,
    signals       TEXT[],
    explanation   TEXT,
    stress_index  INTEGER
);
`
