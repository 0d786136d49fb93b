// Package orders reconciles incoming stream events into the customer's
// order collection.
//
// The reconciler:
//   - Applies events through a pure reducer (collection, event) -> collection
//   - Upserts: unseen orders prepend, known orders update in place
//   - Serializes all writes through one goroutine (single-writer discipline)
//   - Emits an immutable snapshot of the collection on every change
package orders
