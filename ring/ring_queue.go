// Package ring implements a fixed-capacity, wait-free single-producer/
// single-consumer FIFO queue of pointer-sized handles.
//
// HOT PATH: the router's priority lanes (router -> session and router ->
// sender) and the gap manager's own gap deque are Queues. Push and Pop never
// allocate, never block and never take a lock; the only synchronization is
// an atomic store/load pair on the head and tail cursors, matching the
// acquire/release discipline of original_source/include/utils/lockfree_queue.h.
//
// Design:
// This is strictly single-producer/single-consumer per spec.md's fix of the
// original's ambiguous "lock-free but not MPSC-safe" queue: the router is
// the sole producer for a given lane and that lane's sender is the sole
// consumer. Head and tail are isolated on separate cache lines to avoid
// false sharing between the producer and consumer goroutines.
package ring

import "sync/atomic"

const cacheLinePad = 64 - 8

// Queue is a bounded, wait-free SPSC ring buffer of T, where T is expected
// to be a pointer-sized, trivially-copyable handle (typically a pointer
// into a message pool).
type Queue[T any] struct {
	head uint64
	_    [cacheLinePad]byte

	tail uint64
	_    [cacheLinePad]byte

	mask    uint64
	slots   []T
	name    string
	pushed  uint64
	popped  uint64
	dropped uint64
	closed  uint32
}

// New rounds capacityHint up to a power of two (minimum 2, since one slot
// is always kept empty to distinguish full from empty) and pre-initializes
// every slot to T's zero value. name is used only for diagnostics.
func New[T any](capacityHint int, name string) *Queue[T] {
	capacity := nextPowerOfTwo(capacityHint)
	if capacity < 2 {
		capacity = 2
	}
	return &Queue[T]{
		mask:  uint64(capacity - 1),
		slots: make([]T, capacity),
		name:  name,
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Capacity returns the queue's (power-of-two) slot count. Because one slot
// is always kept empty, at most Capacity()-1 handles can be queued at once.
func (q *Queue[T]) Capacity() int {
	return int(q.mask) + 1
}

// Name returns the diagnostic name supplied at construction.
func (q *Queue[T]) Name() string {
	return q.name
}

// Push stores handle at the tail if the queue is not full and has not been
// shut down, advancing tail with a release store. Returns false on a full
// queue (incrementing the drop counter) or after Shutdown (without counting
// a drop); the caller owns handle's lifetime in that case (typically: return it to the
// pool).
func (q *Queue[T]) Push(handle T) bool {
	if atomic.LoadUint32(&q.closed) != 0 {
		return false
	}

	tail := atomic.LoadUint64(&q.tail)
	next := (tail + 1) & q.mask
	if next == atomic.LoadUint64(&q.head) {
		atomic.AddUint64(&q.dropped, 1)
		return false
	}

	q.slots[tail] = handle
	atomic.StoreUint64(&q.tail, next)
	atomic.AddUint64(&q.pushed, 1)
	return true
}

// TryPop reads and removes the head slot, advancing head with a release
// store. Returns the zero value and false if the queue is empty or has been
// shut down.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	if atomic.LoadUint32(&q.closed) != 0 {
		return zero, false
	}

	head := atomic.LoadUint64(&q.head)
	if head == atomic.LoadUint64(&q.tail) {
		return zero, false
	}

	handle := q.slots[head]
	q.slots[head] = zero
	atomic.StoreUint64(&q.head, (head+1)&q.mask)
	atomic.AddUint64(&q.popped, 1)
	return handle, true
}

// Size returns the current number of queued handles. It is a monitoring
// aid: a concurrently running producer or consumer can make the value stale
// the instant it is read.
func (q *Queue[T]) Size() int {
	head := atomic.LoadUint64(&q.head)
	tail := atomic.LoadUint64(&q.tail)
	return int((tail - head + q.mask + 1) & q.mask)
}

// Empty reports whether the queue currently holds no handles.
func (q *Queue[T]) Empty() bool {
	return atomic.LoadUint64(&q.head) == atomic.LoadUint64(&q.tail)
}

// Shutdown flips the closed flag; subsequent Push/TryPop calls return false.
// Handles still resident in the queue become unreachable through this
// queue — returning them to the message pool is the caller's responsibility.
func (q *Queue[T]) Shutdown() {
	atomic.StoreUint32(&q.closed, 1)
}

// IsShutdown reports whether Shutdown has been called.
func (q *Queue[T]) IsShutdown() bool {
	return atomic.LoadUint32(&q.closed) != 0
}

// Stats is a point-in-time snapshot of queue counters for monitoring.
type Stats struct {
	Name     string
	Capacity int
	Size     int
	Pushed   uint64
	Popped   uint64
	Dropped  uint64
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Name:     q.name,
		Capacity: q.Capacity(),
		Size:     q.Size(),
		Pushed:   atomic.LoadUint64(&q.pushed),
		Popped:   atomic.LoadUint64(&q.popped),
		Dropped:  atomic.LoadUint64(&q.dropped),
	}
}
