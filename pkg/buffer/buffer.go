// Package buffer provides a generic, thread-safe bounded buffer with
// configurable overflow policies. Station channels use it for backpressure:
// a slow kitchen display drops its oldest undelivered frames instead of
// stalling the dispatcher.
package buffer

import (
	"sync"

	"github.com/GetwithitMan/gwi-pos-sub005/errors"
)

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest

	// Block causes Write operations to block until space is available.
	Block
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item dropped due to the overflow policy.
type DropCallback[T any] func(item T)

// Option configures a Ring.
type Option[T any] func(*Ring[T])

// WithOverflowPolicy sets the overflow policy (default DropOldest).
func WithOverflowPolicy[T any](p OverflowPolicy) Option[T] {
	return func(r *Ring[T]) { r.policy = p }
}

// WithDropCallback registers a callback invoked for every dropped item.
func WithDropCallback[T any](cb DropCallback[T]) Option[T] {
	return func(r *Ring[T]) { r.dropCallback = cb }
}

// Ring is a thread-safe circular buffer with a fixed capacity.
type Ring[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position

	policy       OverflowPolicy
	dropCallback DropCallback[T]

	// For Block policy
	notEmpty *sync.Cond
	notFull  *sync.Cond
	closed   bool

	stats Statistics
}

// NewRing creates a bounded circular buffer with the given capacity.
func NewRing[T any](capacity int, opts ...Option[T]) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	r := &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		policy:   DropOldest,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.notEmpty = sync.NewCond(&r.mu)
	r.notFull = sync.NewCond(&r.mu)
	return r
}

// Write adds an item according to the overflow policy.
func (r *Ring[T]) Write(item T) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Ring", "Write", "buffer closed")
	}

	var dropped *T
	if r.size == r.capacity {
		switch r.policy {
		case DropOldest:
			old := r.items[r.tail]
			dropped = &old
			r.tail = (r.tail + 1) % r.capacity
			r.size--
			r.stats.drop()

		case DropNewest:
			r.stats.drop()
			cb := r.dropCallback
			r.mu.Unlock()
			if cb != nil {
				cb(item)
			}
			return nil

		case Block:
			for r.size == r.capacity && !r.closed {
				r.notFull.Wait()
			}
			if r.closed {
				r.mu.Unlock()
				return errors.WrapInvalid(errors.ErrAlreadyStopped, "Ring", "Write",
					"buffer closed during blocking wait")
			}
		}
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++
	r.stats.write(r.size)
	r.notEmpty.Signal()

	cb := r.dropCallback
	r.mu.Unlock()

	// Invoke callback outside the lock to avoid deadlock.
	if dropped != nil && cb != nil {
		cb(*dropped)
	}
	return nil
}

// Read retrieves and removes one item. Returns false if the buffer is empty.
func (r *Ring[T]) Read() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}

	item := r.items[r.tail]
	r.items[r.tail] = zero // release reference
	r.tail = (r.tail + 1) % r.capacity
	r.size--
	r.stats.read(r.size)
	r.notFull.Signal()
	return item, true
}

// ReadBlocking waits until an item is available or the buffer is closed.
func (r *Ring[T]) ReadBlocking() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for r.size == 0 && !r.closed {
		r.notEmpty.Wait()
	}
	if r.size == 0 {
		return zero, false
	}

	item := r.items[r.tail]
	r.items[r.tail] = zero
	r.tail = (r.tail + 1) % r.capacity
	r.size--
	r.stats.read(r.size)
	r.notFull.Signal()
	return item, true
}

// ReadBatch retrieves and removes up to max items.
func (r *Ring[T]) ReadBatch(max int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if max <= 0 || r.size == 0 {
		return nil
	}
	n := max
	if n > r.size {
		n = r.size
	}
	var zero T
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.items[r.tail])
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % r.capacity
		r.size--
	}
	r.stats.read(r.size)
	r.notFull.Broadcast()
	return out
}

// Size returns the current number of buffered items.
func (r *Ring[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum number of items the buffer can hold.
func (r *Ring[T]) Capacity() int { return r.capacity }

// IsFull reports whether the buffer is at capacity.
func (r *Ring[T]) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size == r.capacity
}

// Stats returns a copy of the buffer statistics.
func (r *Ring[T]) Stats() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close shuts the buffer down and wakes all blocked readers and writers.
func (r *Ring[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.notEmpty.Broadcast()
	r.notFull.Broadcast()
	return nil
}

// Statistics tracks buffer activity. Guarded by the owning Ring's mutex.
type Statistics struct {
	Writes  int64
	Reads   int64
	Dropped int64
	MaxSize int
}

func (s *Statistics) write(size int) {
	s.Writes++
	if size > s.MaxSize {
		s.MaxSize = size
	}
}

func (s *Statistics) read(_ int) { s.Reads++ }
func (s *Statistics) drop()      { s.Dropped++ }
