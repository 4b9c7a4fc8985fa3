// Package mqtt feeds readings published by field nodes over MQTT into the
// ingestion pipeline.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/citypulse/internal/domain"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	qosAtLeastOnce    = 1
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// Ingester runs one reading through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, raw domain.RawReading) (domain.Reading, error)
}

// Options configures the broker connection.
type Options struct {
	Broker   string
	Topic    string
	ClientID string
}

// Subscriber consumes reading payloads from a topic filter. A payload is the
// same JSON body accepted by POST /api/ingest; when it omits node_id the last
// topic segment is used instead.
type Subscriber struct {
	client   pahomqtt.Client
	topic    string
	ingester Ingester
	logger   *slog.Logger
	ctx      context.Context
}

// NewSubscriber prepares a client. Nothing is connected until Start.
func NewSubscriber(opts Options, ingester Ingester, logger *slog.Logger) *Subscriber {
	s := &Subscriber{
		topic:    opts.Topic,
		ingester: ingester,
		logger:   logger,
		ctx:      context.Background(),
	}

	co := pahomqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetConnectTimeout(connectTimeout)
	co.SetOnConnectHandler(s.subscribe)
	co.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", opts.Broker, "error", err)
	})

	s.client = pahomqtt.NewClient(co)
	return s
}

// Start connects to the broker. The subscription is (re)established on every
// successful connect. ctx bounds the ingestion of messages received later.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx = ctx
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *Subscriber) subscribe(c pahomqtt.Client) {
	token := c.Subscribe(s.topic, qosAtLeastOnce, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		s.handle(msg)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Error("mqtt subscribe failed", "topic", s.topic, "error", err)
		return
	}
	s.logger.Info("mqtt subscribed", "topic", s.topic)
}

func (s *Subscriber) handle(msg pahomqtt.Message) {
	raw, err := domain.DecodeRawReading(msg.Payload())
	if err != nil {
		s.logger.Warn("dropping malformed mqtt payload", "topic", msg.Topic(), "error", err)
		return
	}
	if raw.NodeID == "" {
		raw.NodeID = nodeFromTopic(msg.Topic())
	}

	if _, err := s.ingester.Ingest(s.ctx, raw); err != nil {
		s.logger.Error("mqtt ingest failed", "topic", msg.Topic(), "node_id", raw.NodeID, "error", err)
	}
}

// nodeFromTopic returns the last segment of a topic such as
// citypulse/readings/CP-MOH-01.
func nodeFromTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		topic = topic[i+1:]
	}
	return strings.TrimSpace(topic)
}

// Close disconnects from the broker.
func (s *Subscriber) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesce)
	}
}
