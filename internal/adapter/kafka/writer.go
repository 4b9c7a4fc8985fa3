package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/citypulse/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

const eventTypeReading = "reading"

// Writer publishes processed readings to a Kafka topic.
// It implements pipeline.EventSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates an asynchronous producer for the given topic. Readings
// are keyed by node id so each node's stream stays ordered within a
// partition. Delivery failures are reported through the logger.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
	}
	w.Completion = func(msgs []kafkago.Message, err error) {
		if err != nil {
			logger.Error("kafka delivery failed", "topic", topic, "messages", len(msgs), "error", err)
		}
	}
	return &Writer{writer: w, logger: logger}
}

// Emit enqueues one reading for delivery.
func (w *Writer) Emit(ctx context.Context, r domain.Reading) error {
	msg, err := serializeToMessage(r, time.Now())
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish reading %s: %w", r.NodeID, err)
	}
	return nil
}

// Close flushes pending messages and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(r domain.Reading, processedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize reading: %w", err)
	}
	anomalous := r.Anomaly != nil && r.Anomaly.IsAnomaly
	return kafkago.Message{
		Key:   []byte(r.NodeID),
		Value: data,
		Time:  r.Time,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventTypeReading)},
			{Key: "processed_at", Value: []byte(processedAt.UTC().Format(time.RFC3339))},
			{Key: "anomaly", Value: []byte(strconv.FormatBool(anomalous))},
		},
	}, nil
}
