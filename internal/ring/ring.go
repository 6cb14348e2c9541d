// Package ring provides a small bounded FIFO used for rolling history.
package ring

import "sync"

// Buffer is a fixed-capacity FIFO. Pushing onto a full buffer evicts the
// oldest element. It is safe for concurrent use.
type Buffer[T any] struct {
	mutex  sync.RWMutex
	values []T
	start  int // index of the oldest element
	count  int
}

// New creates a buffer holding at most size elements. A size below one is
// treated as one.
func New[T any](size int) *Buffer[T] {
	if size < 1 {
		size = 1
	}
	return &Buffer[T]{values: make([]T, size)}
}

// Push appends elems, evicting the oldest elements once the buffer is full.
func (b *Buffer[T]) Push(elems ...T) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	n := len(b.values)
	for _, e := range elems {
		if b.count < n {
			b.values[(b.start+b.count)%n] = e
			b.count++
			continue
		}
		b.values[b.start] = e
		b.start = (b.start + 1) % n
	}
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.count
}

// Cap returns the maximum number of elements.
func (b *Buffer[T]) Cap() int {
	return len(b.values)
}

// Snapshot copies the stored elements, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	out := make([]T, b.count)
	n := len(b.values)
	for i := 0; i < b.count; i++ {
		out[i] = b.values[(b.start+i)%n]
	}
	return out
}

// Last returns the most recently pushed element.
func (b *Buffer[T]) Last() (T, bool) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	var zero T
	if b.count == 0 {
		return zero, false
	}
	return b.values[(b.start+b.count-1)%len(b.values)], true
}

// Clear drops every element.
func (b *Buffer[T]) Clear() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var zero T
	for i := range b.values {
		b.values[i] = zero
	}
	b.start = 0
	b.count = 0
}
