package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ordersfe/livefeed/internal/model"
)

// Hub broadcasts snapshots from one source sequence to any number of
// subscribers, each observing every snapshot in publish order.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[uuid.UUID]*subscriber
	closed bool
}

type subscriber struct {
	buf  *fifo[[]model.Order]
	out  chan []model.Order
	gone chan struct{}
}

// New creates an empty hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[uuid.UUID]*subscriber),
	}
}

// Run consumes snapshots until the context ends or the channel closes, then
// closes every subscriber channel.
func (h *Hub) Run(ctx context.Context, snapshots <-chan []model.Order) error {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			h.publish(snap)
		}
	}
}

// Subscribe registers a new observer. The returned channel closes when the
// hub shuts down or the id is unsubscribed.
func (h *Hub) Subscribe() (uuid.UUID, <-chan []model.Order) {
	sub := &subscriber{
		buf:  newFIFO[[]model.Order](8),
		out:  make(chan []model.Order),
		gone: make(chan struct{}),
	}

	id := uuid.New()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.out)
		return id, sub.out
	}
	h.subs[id] = sub
	h.mu.Unlock()

	go sub.pump()

	h.logger.Debug("observer subscribed", "id", id)
	return id, sub.out
}

// Unsubscribe removes an observer. Its channel is closed once pending
// snapshots have been abandoned.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		close(sub.gone)
		sub.buf.close()
		h.logger.Debug("observer unsubscribed", "id", id)
	}
}

// Subscribers returns the current observer count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) publish(snap []model.Order) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		sub.buf.push(snap)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[uuid.UUID]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.gone)
		sub.buf.close()
	}
}

// pump moves snapshots from the subscriber's queue to its channel.
func (s *subscriber) pump() {
	defer close(s.out)
	for {
		snap, ok := s.buf.pop()
		if !ok {
			return
		}
		select {
		case s.out <- snap:
		case <-s.gone:
			return
		}
	}
}
