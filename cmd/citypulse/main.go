package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/citypulse/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/citypulse/internal/adapter/kafka"
	"github.com/couchcryptid/citypulse/internal/adapter/mlservice"
	mqttadapter "github.com/couchcryptid/citypulse/internal/adapter/mqtt"
	wsadapter "github.com/couchcryptid/citypulse/internal/adapter/websocket"
	"github.com/couchcryptid/citypulse/internal/anomaly"
	"github.com/couchcryptid/citypulse/internal/broadcast"
	"github.com/couchcryptid/citypulse/internal/catalog"
	"github.com/couchcryptid/citypulse/internal/config"
	"github.com/couchcryptid/citypulse/internal/forecast"
	"github.com/couchcryptid/citypulse/internal/observability"
	"github.com/couchcryptid/citypulse/internal/pipeline"
	"github.com/couchcryptid/citypulse/internal/store"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nodes, err := catalog.Load(cfg.NodesFile)
	if err != nil {
		logger.Error("failed to load node catalog", "error", err)
		os.Exit(1)
	}

	readings, err := store.Open(ctx, cfg, clock, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	ml := mlservice.NewClient(cfg.MLServiceURL, cfg.MLTimeout)
	detector := anomaly.NewDetector(ml, cfg.MLTimeout, logger, metrics)
	forecasts := forecast.NewGateway(ml, cfg.MLTimeout, cfg.ForecastCacheTTL, logger, metrics)

	hub := broadcast.NewHub(logger, metrics)
	live := wsadapter.NewHandler(hub, cfg.WSQueueSize, cfg.WSWriteTimeout, logger)

	opts := []pipeline.Option{pipeline.WithClock(clock)}
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		opts = append(opts, pipeline.WithSinks(writer))
		logger.Info("kafka event sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(readings, detector, hub, logger, metrics, opts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Ingester:  p,
		Store:     readings,
		Forecasts: forecasts,
		Nodes:     nodes,
		Live:      live,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	var sub *mqttadapter.Subscriber
	if cfg.MQTTEnabled() {
		sub = mqttadapter.NewSubscriber(mqttadapter.Options{
			Broker:   cfg.MQTTBroker,
			Topic:    cfg.MQTTTopic,
			ClientID: cfg.MQTTClientID,
		}, p, logger)
		if err := sub.Start(ctx); err != nil {
			logger.Error("mqtt ingestion unavailable", "broker", cfg.MQTTBroker, "error", err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if sub != nil {
		sub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	hub.Close()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := readings.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
