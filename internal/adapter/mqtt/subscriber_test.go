package mqtt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return qosAtLeastOnce }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingIngester struct {
	mu  sync.Mutex
	got []domain.RawReading
	err error
}

func (r *recordingIngester) Ingest(_ context.Context, raw domain.RawReading) (domain.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, raw)
	return domain.Reading{NodeID: raw.NodeID}, r.err
}

func newTestSubscriber(ing Ingester) *Subscriber {
	return NewSubscriber(Options{
		Broker:   "tcp://127.0.0.1:1883",
		Topic:    "citypulse/readings/+",
		ClientID: "test",
	}, ing, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandle_PayloadNodeID(t *testing.T) {
	ing := &recordingIngester{}
	s := newTestSubscriber(ing)

	s.handle(fakeMessage{
		topic:   "citypulse/readings/CP-MOH-02",
		payload: []byte(`{"node_id":"CP-MOH-05","noise":64,"temperature":"27.5","air_quality":101,"crowd_density":9}`),
	})

	require.Len(t, ing.got, 1)
	raw := ing.got[0]
	assert.Equal(t, "CP-MOH-05", raw.NodeID)
	assert.Equal(t, domain.Measurement(64), raw.Noise)
	assert.Equal(t, domain.Measurement(27.5), raw.Temperature)
}

func TestHandle_NodeIDFromTopic(t *testing.T) {
	ing := &recordingIngester{}
	s := newTestSubscriber(ing)

	s.handle(fakeMessage{topic: "citypulse/readings/CP-MOH-04", payload: []byte(`{"noise":58}`)})

	require.Len(t, ing.got, 1)
	assert.Equal(t, "CP-MOH-04", ing.got[0].NodeID)
	assert.True(t, ing.got[0].CrowdDensity.IsMissing())
}

func TestHandle_MalformedPayloadDropped(t *testing.T) {
	ing := &recordingIngester{}
	s := newTestSubscriber(ing)

	s.handle(fakeMessage{topic: "citypulse/readings/CP-MOH-01", payload: []byte(`{"noise":`)})

	assert.Empty(t, ing.got)
}

func TestHandle_IngestErrorIsSwallowed(t *testing.T) {
	ing := &recordingIngester{err: fmt.Errorf("%w: append reading: timeout", domain.ErrStorage)}
	s := newTestSubscriber(ing)

	assert.NotPanics(t, func() {
		s.handle(fakeMessage{topic: "citypulse/readings/CP-MOH-01", payload: []byte(`{"noise":70}`)})
	})
	assert.Len(t, ing.got, 1)
}

func TestNodeFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"citypulse/readings/CP-MOH-01", "CP-MOH-01"},
		{"CP-MOH-02", "CP-MOH-02"},
		{"citypulse/readings/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, nodeFromTopic(tt.topic))
		})
	}
}
