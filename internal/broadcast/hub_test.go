package broadcast_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/couchcryptid/citypulse/internal/broadcast"
	"github.com/couchcryptid/citypulse/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errClosed = errors.New("subscriber closed")

type fakeSubscriber struct {
	id string

	mu       sync.Mutex
	closed   bool
	received [][]byte
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed
	}
	f.received = append(f.received, msg)
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSubscriber) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received
}

func newHub() (*broadcast.Hub, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return broadcast.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), metrics), metrics
}

func TestPublish_DropsClosedSubscriber(t *testing.T) {
	hub, metrics := newHub()

	open := []*fakeSubscriber{{id: "a"}, {id: "b"}}
	closed := &fakeSubscriber{id: "c", closed: true}
	for _, s := range open {
		hub.Register(s)
	}
	hub.Register(closed)
	require.Equal(t, 3, hub.Len())

	err := hub.Publish(context.Background(), broadcast.Event{Type: broadcast.EventReading, Data: map[string]int{"stress_index": 48}})
	require.NoError(t, err)

	for _, s := range open {
		msgs := s.messages()
		require.Len(t, msgs, 1, "subscriber %s", s.id)
		assert.JSONEq(t, `{"type":"reading","data":{"stress_index":48}}`, string(msgs[0]))
	}
	assert.Empty(t, closed.messages())
	assert.Equal(t, 2, hub.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SubscribersDropped), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.Subscribers), 0)
}

func TestRegister_Idempotent(t *testing.T) {
	hub, _ := newHub()
	s := &fakeSubscriber{id: "a"}

	hub.Register(s)
	hub.Register(s)
	assert.Equal(t, 1, hub.Len())

	require.NoError(t, hub.Publish(context.Background(), broadcast.Event{Type: broadcast.EventReading}))
	assert.Len(t, s.messages(), 1)
}

func TestUnregister_Absent(t *testing.T) {
	hub, _ := newHub()
	s := &fakeSubscriber{id: "a"}

	hub.Unregister(s)
	hub.Register(s)
	hub.Unregister(s)
	hub.Unregister(s)
	assert.Equal(t, 0, hub.Len())
}

func TestPublish_FIFOPerSubscriber(t *testing.T) {
	hub, _ := newHub()
	s := &fakeSubscriber{id: "a"}
	hub.Register(s)

	for i := range 5 {
		require.NoError(t, hub.Publish(context.Background(), broadcast.Event{Type: broadcast.EventReading, Data: i}))
	}

	msgs := s.messages()
	require.Len(t, msgs, 5)
	for i, raw := range msgs {
		var ev struct {
			Data int `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, i, ev.Data)
	}
}

func TestPublish_MarshalError(t *testing.T) {
	hub, _ := newHub()
	hub.Register(&fakeSubscriber{id: "a"})

	err := hub.Publish(context.Background(), broadcast.Event{Type: broadcast.EventReading, Data: make(chan int)})
	require.Error(t, err)
	assert.Equal(t, 1, hub.Len())
}

func TestPublish_ConcurrentMembershipChanges(t *testing.T) {
	hub, _ := newHub()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := &fakeSubscriber{id: fmt.Sprintf("sub-%d", i)}
			hub.Register(s)
			hub.Unregister(s)
		}()
		go func() {
			defer wg.Done()
			_ = hub.Publish(context.Background(), broadcast.Event{Type: broadcast.EventReading, Data: i})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Len())
}

func TestClose_ClosesSubscribers(t *testing.T) {
	hub, _ := newHub()
	a, b := &fakeSubscriber{id: "a"}, &fakeSubscriber{id: "b"}
	hub.Register(a)
	hub.Register(b)

	hub.Close()

	assert.Equal(t, 0, hub.Len())
	assert.ErrorIs(t, a.Send(nil), errClosed)
	assert.ErrorIs(t, b.Send(nil), errClosed)
}
