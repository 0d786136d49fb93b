package orders

import (
	"github.com/ordersfe/livefeed/internal/model"
)

// Apply folds one stream event into the collection and returns the next
// collection. The input slice is never mutated.
//
// Upsert semantics: an order id not yet in the collection is prepended
// (newest arrivals surface first); an existing order is overwritten in place
// with every mapped field, keeping its position. Applying the same event
// twice yields the same collection as applying it once.
func Apply(current []model.Order, evt model.OrderEvent) []model.Order {
	incoming := model.OrderFromEvent(evt)

	for i := range current {
		if current[i].OrderID == incoming.OrderID {
			next := make([]model.Order, len(current))
			copy(next, current)
			next[i] = incoming
			return next
		}
	}

	next := make([]model.Order, 0, len(current)+1)
	next = append(next, incoming)
	return append(next, current...)
}

// Normalize returns orders with duplicate order ids removed, keeping the
// first occurrence. Full-fetch responses should not contain duplicates, but
// the at-most-one-per-id invariant holds for every collection this package
// hands out, so it is enforced at the replacement boundary too.
func Normalize(orders []model.Order) []model.Order {
	seen := make(map[string]struct{}, len(orders))
	next := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if _, dup := seen[o.OrderID]; dup {
			continue
		}
		seen[o.OrderID] = struct{}{}
		next = append(next, o)
	}
	return next
}
