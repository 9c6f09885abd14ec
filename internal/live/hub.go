// Package live fans poll change events out to websocket subscribers.
package live

import (
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/pollbox/internal/model"
)

const sendBuffer = 16

// Subscription receives events for one poll until cancelled.
type Subscription struct {
	pollID uuid.UUID
	ch     chan model.PollEvent
}

// C is closed when the subscription is cancelled.
func (s *Subscription) C() <-chan model.PollEvent { return s.ch }

// Hub keeps subscribers per poll. Publish never blocks: a subscriber whose
// buffer is full misses that event.
type Hub struct {
	log *zap.Logger

	mu   sync.Mutex
	subs map[uuid.UUID]map[*Subscription]struct{}

	gauge func(delta float64)
}

// NewHub constructs an empty hub. gauge, if not nil, tracks subscriber count.
func NewHub(log *zap.Logger, gauge func(delta float64)) *Hub {
	if gauge == nil {
		gauge = func(float64) {}
	}
	return &Hub{log: log, subs: make(map[uuid.UUID]map[*Subscription]struct{}), gauge: gauge}
}

// Subscribe registers interest in a poll.
func (h *Hub) Subscribe(pollID uuid.UUID) *Subscription {
	s := &Subscription{pollID: pollID, ch: make(chan model.PollEvent, sendBuffer)}
	h.mu.Lock()
	set, ok := h.subs[pollID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[pollID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	h.gauge(1)
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	set := h.subs[s.pollID]
	if _, ok := set[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.pollID)
	}
	close(s.ch)
	h.mu.Unlock()
	h.gauge(-1)
}

// Publish delivers ev to the poll's subscribers.
func (h *Hub) Publish(ev model.PollEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[ev.PollID] {
		select {
		case s.ch <- ev:
		default:
			h.log.Debug("live: subscriber lagging, event dropped", zap.Stringer("poll", ev.PollID))
		}
	}
}

// Subscribers returns the number of subscribers for a poll.
func (h *Hub) Subscribers(pollID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[pollID])
}
