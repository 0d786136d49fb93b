// Package hub fans order-collection snapshots out to multiple observers.
//
// The stream core delivers to exactly one listener; anything that wants more
// than one (several widgets, a logger, a metrics probe) subscribes here.
// Each subscriber gets an unbounded FIFO so a slow observer never blocks the
// reconciler or its peers.
package hub
