// Package publish fans pipeline output out to live stream subscribers and
// to the configured sinks.
package publish

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/sink"
)

const subscriberBuffer = 256

// Message types on the live stream.
const (
	TypeEvent = "event"
	TypeGroup = "group"
	TypeScore = "score"
)

// Message is one item of the live stream.
type Message struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Hub broadcasts messages to subscribers. A subscriber that falls behind
// loses messages rather than slowing the pipeline.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan Message]struct{}
	dropped atomic.Int64
	metrics *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{subs: map[chan Message]struct{}{}, metrics: m}
}

// Subscribe returns a buffered channel of messages and a func that removes
// the subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast delivers msg to every subscriber that has room for it.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.dropped.Add(1)
			h.metrics.StreamDropped()
		}
	}
}

// BroadcastBatch streams every item of b, events first.
func (h *Hub) BroadcastBatch(b sink.Batch) {
	now := time.Now().UTC()
	for _, e := range b.Events {
		h.Broadcast(Message{Type: TypeEvent, At: now, Data: e})
	}
	for _, g := range b.Groups {
		h.Broadcast(Message{Type: TypeGroup, At: now, Data: g})
	}
	for _, s := range b.Scores {
		h.Broadcast(Message{Type: TypeScore, At: now, Data: s})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts messages lost to slow subscribers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
