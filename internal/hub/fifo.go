package hub

import (
	"sync"
)

// fifo is an unbounded thread-safe queue backed by a ring that doubles its
// capacity when full. Receive blocks until an item arrives or the queue is
// closed; a closed queue still drains its remaining items.
type fifo[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int
	tail   int
	count  int
	closed bool
}

func newFIFO[T any](initialCapacity int) *fifo[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	f := &fifo[T]{buf: make([]T, initialCapacity)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// push adds an item. Returns false if the queue is closed.
func (f *fifo[T]) push(item T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if f.count == len(f.buf) {
		f.grow()
	}

	f.buf[f.tail] = item
	f.tail = (f.tail + 1) % len(f.buf)
	f.count++

	f.cond.Signal()
	return true
}

// pop removes and returns the oldest item, blocking until one is available.
// Returns false only when the queue is closed and empty.
func (f *fifo[T]) pop() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.count == 0 && !f.closed {
		f.cond.Wait()
	}

	var zero T
	if f.count == 0 {
		return zero, false
	}

	item := f.buf[f.head]
	f.buf[f.head] = zero // release for GC
	f.head = (f.head + 1) % len(f.buf)
	f.count--

	return item, true
}

// close stops accepting items and wakes all waiters.
func (f *fifo[T]) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fifo[T]) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// grow doubles capacity. Caller holds the lock.
func (f *fifo[T]) grow() {
	next := make([]T, len(f.buf)*2)
	if f.head < f.tail {
		copy(next, f.buf[f.head:f.tail])
	} else {
		n := copy(next, f.buf[f.head:])
		copy(next[n:], f.buf[:f.tail])
	}
	f.buf = next
	f.head = 0
	f.tail = f.count
}
