package orders

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ordersfe/livefeed/internal/model"
)

// Feed owns the order collection. Stream events and full-list replacements
// both funnel through its run loop, so the read-modify-write on the
// collection has exactly one writer. Snapshots are fresh slices; consumers
// may hold them indefinitely.
//
// When a replacement and a live event race, last write wins. A replacement
// carrying a stale status is corrected by the next event for that order;
// this is accepted staleness, not something the client coordinates away.
type Feed struct {
	logger *slog.Logger

	events  <-chan model.OrderEvent
	replace chan []model.Order

	// snapshots is a latest-wins channel: a consumer that falls behind skips
	// straight to the newest collection instead of stalling the loop.
	snapshots chan []model.Order

	mu      sync.RWMutex
	current []model.Order

	done chan struct{}
}

// NewFeed creates a feed consuming the given event sequence. The collection
// starts empty; seed it with Replace once the initial full fetch returns.
func NewFeed(events <-chan model.OrderEvent, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		logger:    logger,
		events:    events,
		replace:   make(chan []model.Order),
		snapshots: make(chan []model.Order, 1),
		done:      make(chan struct{}),
	}
}

// Run applies events until the context is cancelled or the event channel
// closes. It is the only goroutine that touches the collection.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case orders := <-f.replace:
			f.set(Normalize(orders))

		case evt, ok := <-f.events:
			if !ok {
				return nil
			}
			f.set(Apply(f.snapshot(), evt))
			f.logger.Debug("order reconciled",
				"order_id", evt.OrderID,
				"status", evt.Status,
			)
		}
	}
}

// Replace swaps the entire collection, used for the initial load and
// explicit refresh. Blocks until the run loop accepts it or ctx ends.
func (f *Feed) Replace(ctx context.Context, orders []model.Order) error {
	select {
	case f.replace <- orders:
		return nil
	case <-f.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Orders returns the latest snapshot.
func (f *Feed) Orders() []model.Order {
	return f.snapshot()
}

// Snapshots returns the latest-wins snapshot channel. Every receive observes
// the newest collection; intermediate states may be skipped.
func (f *Feed) Snapshots() <-chan []model.Order {
	return f.snapshots
}

// Done is closed when the run loop has stopped.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

func (f *Feed) snapshot() []model.Order {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *Feed) set(next []model.Order) {
	f.mu.Lock()
	f.current = next
	f.mu.Unlock()

	// Latest-wins publish: displace a pending older snapshot if needed.
	for {
		select {
		case f.snapshots <- next:
			return
		default:
		}
		select {
		case <-f.snapshots:
		default:
		}
	}
}
