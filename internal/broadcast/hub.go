// Package broadcast fans processed readings out to live subscribers.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/citypulse/internal/observability"
)

// EventReading is the envelope type for a processed reading.
const EventReading = "reading"

// Event is the JSON envelope pushed to subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Subscriber is a live connection. Send must not block; it reports an error
// when the subscriber is closed or cannot accept more data.
type Subscriber interface {
	ID() string
	Send(msg []byte) error
	Close() error
}

// Hub tracks subscriber membership and delivers every published event to the
// subscribers registered at publish time.
type Hub struct {
	logger  *slog.Logger
	metrics *observability.Metrics

	mu   sync.RWMutex
	subs map[string]Subscriber
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		logger:  logger,
		metrics: metrics,
		subs:    make(map[string]Subscriber),
	}
}

// Register adds s. Registering the same subscriber twice is a no-op.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.ID()]; ok {
		return
	}
	h.subs[s.ID()] = s
	h.metrics.Subscribers.Set(float64(len(h.subs)))
	h.logger.Debug("subscriber registered", "subscriber", s.ID())
}

// Unregister removes s if present.
func (h *Hub) Unregister(s Subscriber) {
	h.remove(s.ID())
}

// Publish serializes ev once and sends it to a snapshot of the membership.
// Subscribers that fail to accept it are removed and closed; delivery to the
// others continues. Only a serialization failure is returned.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	for _, s := range h.snapshot() {
		if err := s.Send(msg); err != nil {
			h.logger.Debug("dropping subscriber", "subscriber", s.ID(), "error", err)
			if h.remove(s.ID()) {
				h.metrics.SubscribersDropped.Inc()
			}
			s.Close() //nolint:errcheck // already failing
		}
	}
	h.metrics.BroadcastEvents.Inc()
	return nil
}

// Len reports the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unregisters and closes every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]Subscriber)
	h.metrics.Subscribers.Set(0)
	h.mu.Unlock()

	for _, s := range subs {
		s.Close() //nolint:errcheck // shutting down
	}
}

func (h *Hub) snapshot() []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	return out
}

func (h *Hub) remove(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; !ok {
		return false
	}
	delete(h.subs, id)
	h.metrics.Subscribers.Set(float64(len(h.subs)))
	return true
}
