// Package hitqueue carries hit events from the real-time producer (audio
// callback or controller listener) to the matcher goroutine.
package hitqueue

import (
	"fmt"
	"sync/atomic"
)

// Ring is a bounded single-producer/single-consumer queue. TryPush belongs
// to the producer, TryPop and Ready to the consumer. Neither side blocks or
// allocates.
type Ring[T any] struct {
	buf  []T
	mask uint64

	head    atomic.Uint64 // next slot to read, written by the consumer
	tail    atomic.Uint64 // next slot to write, written by the producer
	dropped atomic.Uint64

	ready chan struct{}
}

// New returns a ring holding at least capacity items, rounded up to a
// power of two.
func New[T any](capacity int) (*Ring[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("hitqueue: capacity must be positive, got %d", capacity)
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring[T]{
		buf:   make([]T, size),
		mask:  uint64(size - 1),
		ready: make(chan struct{}, 1),
	}, nil
}

// TryPush enqueues v and wakes the consumer. It reports false and counts a
// drop when the ring is full.
func (r *Ring[T]) TryPush(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == uint64(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[tail&r.mask] = v
	r.tail.Store(tail + 1)

	select {
	case r.ready <- struct{}{}:
	default:
	}
	return true
}

// TryPop dequeues the oldest item.
func (r *Ring[T]) TryPop() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.buf[head&r.mask]
	r.buf[head&r.mask] = zero
	r.head.Store(head + 1)
	return v, true
}

// Ready fires at least once after items were pushed.
func (r *Ring[T]) Ready() <-chan struct{} { return r.ready }

func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

func (r *Ring[T]) Cap() int { return len(r.buf) }

// Dropped is the number of pushes rejected because the ring was full.
func (r *Ring[T]) Dropped() uint64 { return r.dropped.Load() }
