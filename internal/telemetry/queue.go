package telemetry

import "sync"

// Queue is a bounded FIFO with overwrite-oldest semantics. Producers never
// block: when the buffer is full the oldest element is discarded.
//
// Readers loop on Recv until it reports false, which happens once the queue
// is closed and drained.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int
	size   int
	closed bool
}

// NewQueue creates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("telemetry: queue capacity must be > 0")
	}
	q := &Queue[T]{buf: make([]T, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send inserts v and reports whether an older element had to be dropped.
// Sends after Close are ignored.
func (q *Queue[T]) Send(v T) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	// readers take mu too, so a full buffer here is really full
	if q.size == len(q.buf) {
		var zero T
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		dropped = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = v
	q.size++
	q.cond.Signal()
	return dropped
}

// Recv blocks until an element is available and returns it. It returns false
// once the queue is closed and empty.
func (q *Queue[T]) Recv() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed {
		q.cond.Wait()
	}
	var zero T
	if q.size == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v, true
}

// Len returns the number of buffered elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Close stops accepting new elements. Buffered elements remain readable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
}
