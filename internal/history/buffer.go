// Package history provides the bounded, oldest-first-evicting buffers used for
// per-metric chart history and the raw message log.
package history

import "sync"

// DefaultCapacity is used when a non-positive capacity is requested
const DefaultCapacity = 1000

// Buffer keeps at most capacity items in insertion order.
type Buffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
}

// New creates a buffer holding at most capacity items
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{
		items:    make([]T, 0, min(capacity, 64)),
		capacity: capacity,
	}
}

// Append adds v and evicts from the front until the buffer fits its capacity.
func (b *Buffer[T]) Append(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, v)
	if over := len(b.items) - b.capacity; over > 0 {
		// Reslicing keeps append amortized O(1); the dropped head is released
		// the next time append reallocates.
		clear(b.items[:over])
		b.items = b.items[over:]
	}
}

// Len returns the number of stored items
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Cap returns the configured capacity
func (b *Buffer[T]) Cap() int {
	return b.capacity
}

// Items returns a copy of all items, oldest first
func (b *Buffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Last returns a copy of the n most recent items, oldest first.
// n <= 0 or n larger than the buffer returns everything.
func (b *Buffer[T]) Last(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > len(b.items) {
		n = len(b.items)
	}
	out := make([]T, n)
	copy(out, b.items[len(b.items)-n:])
	return out
}

// Filter returns the items for which keep reports true, oldest first
func (b *Buffer[T]) Filter(keep func(T) bool) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []T
	for _, item := range b.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Clear drops all items
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.items)
	b.items = b.items[:0]
}
