package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Storage. An empty DatabaseURL or UseMock selects the in-memory ring.
	DatabaseURL    string
	UseMock        bool
	MemoryCapacity int
	DBMaxConns     int

	// Remote ML service (anomaly scorer and forecast predictor).
	MLServiceURL     string
	MLTimeout        time.Duration
	ForecastCacheTTL time.Duration

	NodesFile string

	// WebSocket fan-out.
	WSQueueSize    int
	WSWriteTimeout time.Duration

	// Optional Kafka event sink, enabled when KafkaBrokers is non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// Optional MQTT ingestion, enabled when MQTTBroker is set.
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mlTimeout, err := parsePositiveDuration("ML_TIMEOUT", "3s")
	if err != nil {
		return nil, err
	}

	wsWriteTimeout, err := parsePositiveDuration("WS_WRITE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cacheTTL, err := time.ParseDuration(sharedcfg.EnvOrDefault("FORECAST_CACHE_TTL", "30s"))
	if err != nil || cacheTTL < 0 {
		return nil, errors.New("invalid FORECAST_CACHE_TTL")
	}

	memoryCapacity, err := parsePositiveInt("MEMORY_CAPACITY", 2000)
	if err != nil {
		return nil, err
	}

	dbMaxConns, err := parsePositiveInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}

	wsQueueSize, err := parsePositiveInt("WS_QUEUE_SIZE", 64)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":3001"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		UseMock:        os.Getenv("USE_MOCK") == "true",
		MemoryCapacity: memoryCapacity,
		DBMaxConns:     dbMaxConns,

		MLServiceURL:     strings.TrimRight(sharedcfg.EnvOrDefault("ML_SERVICE_URL", "http://localhost:5001"), "/"),
		MLTimeout:        mlTimeout,
		ForecastCacheTTL: cacheTTL,

		NodesFile: os.Getenv("NODES_FILE"),

		WSQueueSize:    wsQueueSize,
		WSWriteTimeout: wsWriteTimeout,

		KafkaBrokers: parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "citypulse-readings"),

		MQTTBroker:   os.Getenv("MQTT_BROKER"),
		MQTTTopic:    sharedcfg.EnvOrDefault("MQTT_TOPIC", "citypulse/readings/+"),
		MQTTClientID: sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "citypulse-ingest"),
	}

	if cfg.MLServiceURL == "" {
		return nil, errors.New("ML_SERVICE_URL is required")
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.MQTTEnabled() && cfg.MQTTTopic == "" {
		return nil, errors.New("MQTT_TOPIC is required when MQTT_BROKER is set")
	}

	return cfg, nil
}

// UseDatabase reports whether the durable Postgres backend is selected.
func (c *Config) UseDatabase() bool {
	return c.DatabaseURL != "" && !c.UseMock
}

// KafkaEnabled reports whether processed readings are published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// MQTTEnabled reports whether readings are also consumed from MQTT.
func (c *Config) MQTTEnabled() bool { return c.MQTTBroker != "" }

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
