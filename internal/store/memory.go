package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/jonboulle/clockwork"
)

// DefaultCapacity is the number of readings the memory backend retains.
const DefaultCapacity = 2000

// Memory is a bounded in-memory backend. Readings live in a fixed-size ring
// that evicts the oldest entry once full; anomaly records are kept without a
// cap. It is safe for concurrent use.
type Memory struct {
	clock clockwork.Clock

	mu        sync.RWMutex
	ring      []domain.Reading
	head      int // next write position
	size      int
	anomalies []domain.AnomalyRecord // append order
	nextID    int64
}

// NewMemory creates a memory backend holding up to capacity readings.
func NewMemory(capacity int, clock clockwork.Clock) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock: clock,
		ring:  make([]domain.Reading, capacity),
	}
}

func (m *Memory) Append(_ context.Context, r domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ring[m.head] = r
	m.head = (m.head + 1) % len(m.ring)
	if m.size < len(m.ring) {
		m.size++
	}
	return nil
}

func (m *Memory) AppendAnomaly(_ context.Context, rec domain.AnomalyRecord) (domain.AnomalyRecord, error) {
	rec.Signals = slices.Clone(rec.Signals)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	rec.ID = m.nextID
	m.anomalies = append(m.anomalies, rec)
	return rec, nil
}

// LatestPerNode returns the newest reading of every node, sorted by node id.
func (m *Memory) LatestPerNode(_ context.Context) ([]domain.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []domain.Reading
	m.each(func(r domain.Reading) bool {
		if _, ok := seen[r.NodeID]; !ok {
			seen[r.NodeID] = struct{}{}
			out = append(out, r)
		}
		return true
	})
	slices.SortFunc(out, func(a, b domain.Reading) int {
		return strings.Compare(a.NodeID, b.NodeID)
	})
	return out, nil
}

func (m *Memory) QueryRange(_ context.Context, q Query) ([]domain.Reading, error) {
	from := cutoff(m.clock, q)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Reading
	m.each(func(r domain.Reading) bool {
		if matches(r.NodeID, r.Time, q.NodeID, from) {
			out = append(out, r)
		}
		return q.Limit <= 0 || len(out) < q.Limit
	})
	return out, nil
}

func (m *Memory) QueryAnomalies(_ context.Context, q Query) ([]domain.AnomalyRecord, error) {
	from := cutoff(m.clock, q)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.AnomalyRecord
	for _, rec := range m.anomalies {
		if !matches(rec.NodeID, rec.Time, q.NodeID, from) {
			continue
		}
		rec.Signals = slices.Clone(rec.Signals)
		out = append(out, rec)
	}
	// Records can be appended out of time order by concurrent ingestions.
	slices.SortFunc(out, func(a, b domain.AnomalyRecord) int {
		if c := b.Time.Compare(a.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Len reports how many readings are retained.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// each visits readings newest-first until fn returns false. Callers hold mu.
func (m *Memory) each(fn func(domain.Reading) bool) {
	n := len(m.ring)
	for i := 1; i <= m.size; i++ {
		if !fn(m.ring[(m.head-i+n)%n]) {
			return
		}
	}
}

func matches(nodeID string, at time.Time, wantNode string, from time.Time) bool {
	if wantNode != "" && nodeID != wantNode {
		return false
	}
	return from.IsZero() || at.After(from)
}
