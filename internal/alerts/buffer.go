package alerts

import "sync"

// DefaultCapacity is the number of alerts the dashboard keeps.
const DefaultCapacity = 3

// Buffer is a fixed-capacity, newest-first list of formatted alerts.
// Only display strings are kept; the structured event is not recoverable.
// Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	items    []string
	capacity int
}

// NewBuffer creates a buffer holding at most capacity entries.
// A non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		items:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Push inserts s at the front, evicting the oldest entry when full.
func (b *Buffer) Push(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == b.capacity {
		b.items = b.items[:b.capacity-1]
	}
	b.items = append(b.items, "")
	copy(b.items[1:], b.items)
	b.items[0] = s
}

// Snapshot returns a copy of the current contents, newest first.
func (b *Buffer) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of buffered alerts.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Capacity returns the maximum number of buffered alerts.
func (b *Buffer) Capacity() int {
	return b.capacity
}
