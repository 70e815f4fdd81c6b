package notify

import (
	"context"
	"sync"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

type subscriber struct {
	ch chan Event
}

// Hub delivers events to the subscribers of each order. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer: buffer,
		subs:   map[string]map[*subscriber]struct{}{},
	}
}

// Subscribe registers for events of orderID. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(orderID string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[orderID]
	if !ok {
		set = map[*subscriber]struct{}{}
		h.subs[orderID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, orderID)
			}
			close(s.ch)
		})
	}
}

// Publish sends ev to the current subscribers of ev.OrderID and reports how
// many received it.
func (h *Hub) Publish(ctx context.Context, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var sent, dropped int
	for s := range h.subs[ev.OrderID] {
		select {
		case s.ch <- ev:
			sent++
		default:
			dropped++
		}
	}
	if dropped > 0 {
		zctx.From(ctx).Debug("Dropped order event for slow subscribers",
			zap.String("order_id", ev.OrderID),
			zap.String("type", string(ev.Type)),
			zap.Int("dropped", dropped),
		)
	}
	return sent
}

// Subscribers returns the number of subscribers of orderID.
func (h *Hub) Subscribers(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[orderID])
}
