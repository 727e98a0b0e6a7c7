// Package pool implements the fixed-capacity message pool (spec C2): a
// pre-allocated array of message.FixMessage slots recycled through a
// lock-free intrusive free list, so the hot path never calls into the
// allocator after construction.
//
// Grounded on original_source/src/common/message_pool.cpp: the
// initializeFreeList/allocateRaw/deallocateRaw trio, the pointer-range
// validation in deallocateRaw, and the prewarm page-touch loop are all
// ported from there, with C's raw-pointer-as-index-pair reimagined as a
// slice of FixMessage plus a parallel slice of atomic next-indices. Pool
// hands out *FixMessage and recovers a slot index from it by unsafe
// address-range arithmetic over the backing array, confirmed by a pointer ==
// comparison against that slot.
package pool

import (
	"fmt"
	"log"
	"sync/atomic"
	"unsafe"

	"fix-gateway-go/constants"
	"fix-gateway-go/message"
)

const freeListEnd = -1

// Pool owns a fixed number of message.FixMessage slots and an intrusive
// free-list of their indices. Allocate/Deallocate never allocate once
// construction has finished.
type Pool struct {
	name string

	slots    []message.FixMessage
	nextFree []int32
	head     atomic.Int32

	allocated          atomic.Int64
	totalAllocations   atomic.Int64
	totalDeallocations atomic.Int64
	allocationFailures atomic.Int64

	shutdown atomic.Bool

	logger *log.Logger
}

// Stats is a point-in-time snapshot of pool counters for monitoring.
type Stats struct {
	Name               string
	Capacity           int
	Allocated          int64
	Available          int64
	TotalAllocations   int64
	TotalDeallocations int64
	AllocationFailures int64
}

// New builds a pool of capacity pre-allocated slots, links the free list
// 0->1->...->capacity-1->end, and touches every slot once (prewarm) to avoid
// first-use page faults on the hot path. Panics if capacity is zero, matching
// the C++ original's invalid_argument-at-construction-time policy (spec.md
// §7: "Construction-time errors... are fatal").
func New(capacity int, name string) *Pool {
	if capacity <= 0 {
		panic(fmt.Sprintf("pool %q: capacity must be positive, got %d", name, capacity))
	}

	p := &Pool{
		name:     name,
		slots:    make([]message.FixMessage, capacity),
		nextFree: make([]int32, capacity),
		logger:   log.New(log.Writer(), fmt.Sprintf("[pool:%s] ", name), log.LstdFlags|log.Lmicroseconds),
	}
	p.initializeFreeList()
	p.prewarm()

	p.logger.Printf("created with %d pre-allocated messages", capacity)
	return p
}

func (p *Pool) initializeFreeList() {
	n := len(p.slots)
	for i := 0; i < n-1; i++ {
		p.nextFree[i] = int32(i + 1)
	}
	p.nextFree[n-1] = freeListEnd
	p.head.Store(0)
	p.allocated.Store(0)
}

// prewarm touches every slot once so the first real allocation on the hot
// path doesn't take a page fault.
func (p *Pool) prewarm() {
	for i := range p.slots {
		p.slots[i].Reset()
	}
}

// Capacity returns the fixed slot count.
func (p *Pool) Capacity() int {
	return len(p.slots)
}

// Allocate CAS-pops a slot off the free list and returns it in its
// previously-used state (Reset is not called here — per spec.md §4.2, the
// pool hands back a slot whose contents are not cleared; Deallocate does not
// clear it either, so a recycled slot still holds the fields of its last use
// and a caller that needs an empty message calls FixMessage.Reset). Returns
// nil on exhaustion or after Shutdown.
func (p *Pool) Allocate() *message.FixMessage {
	if p.shutdown.Load() {
		p.allocationFailures.Add(1)
		return nil
	}

	for {
		head := p.head.Load()
		if head == freeListEnd {
			p.allocationFailures.Add(1)
			return nil
		}
		next := p.nextFree[head]
		if p.head.CompareAndSwap(head, next) {
			p.allocated.Add(1)
			p.totalAllocations.Add(1)
			return &p.slots[head]
		}
		// CAS lost the race with a concurrent Allocate/Deallocate; retry
		// with the updated head value.
	}
}

// AllocateAndInit is the allocate-and-populate convenience constructor
// spec.md §4.2 names alongside Allocate/Deallocate: the original
// MessagePool::allocate(message_id, payload, priority, message_type,
// session_id, destination) placement-news a Message in one call instead of
// making the caller Allocate then set every field by hand. priority is
// returned to the caller unchanged rather than stored on the slot: Pool has
// no dependency on the router package (router already depends on pool), so
// it cannot reference router.Priority directly; callers pass priority
// straight through to whichever Router.RouteWithPriority call follows.
// Returns (nil, false) on pool exhaustion, matching Allocate.
func (p *Pool) AllocateAndInit(msgID string, payload map[uint32]string, priority int, kind, session, dest string) (msg *message.FixMessage, ok bool) {
	msg = p.Allocate()
	if msg == nil {
		return nil, false
	}
	msg.SetString(constants.TagBeginString, constants.FixBeginString44)
	msg.SetString(constants.TagMsgType, kind)
	msg.SetString(constants.TagSenderCompID, session)
	msg.SetString(constants.TagTargetCompID, dest)
	if msgID != "" {
		msg.SetString(constants.TagClOrdID, msgID)
	}
	for tag, value := range payload {
		msg.SetString(tag, value)
	}
	return msg, true
}

// slotIndex returns the index of msg within p.slots via the same
// pointer-range check the C++ original performs in deallocateRaw, or -1 if
// msg does not belong to this pool's backing array.
func (p *Pool) slotIndex(msg *message.FixMessage) int {
	if len(p.slots) == 0 {
		return -1
	}

	var zero message.FixMessage
	slotSize := unsafe.Sizeof(zero)

	base := uintptr(unsafe.Pointer(&p.slots[0]))
	end := base + slotSize*uintptr(len(p.slots))
	addr := uintptr(unsafe.Pointer(msg))

	if addr < base || addr >= end {
		return -1
	}

	idx := int((addr - base) / slotSize)
	if &p.slots[idx] != msg {
		return -1
	}
	return idx
}

// Deallocate validates msg belongs to this pool's slot array and CAS-pushes
// its index back onto the free list. Foreign pointers are logged and ignored
// rather than corrupting the free list. A second Deallocate of a handle that
// is already free is not detected: its index is pushed onto the free list
// again.
func (p *Pool) Deallocate(msg *message.FixMessage) {
	if msg == nil {
		return
	}

	idx := p.slotIndex(msg)
	if idx < 0 {
		p.logger.Printf("ERROR: attempting to deallocate message not from pool %q", p.name)
		return
	}

	for {
		current := p.head.Load()
		p.nextFree[idx] = current
		if p.head.CompareAndSwap(current, int32(idx)) {
			break
		}
	}

	p.allocated.Add(-1)
	p.totalDeallocations.Add(1)
}

// Reset reinitializes the free list to contain every index. The caller must
// ensure no handles are outstanding; Reset does not itself verify this
// (matching the C++ original's documented precondition).
func (p *Pool) Reset() {
	p.logger.Printf("resetting")
	p.initializeFreeList()
}

// Shutdown flips a flag causing subsequent Allocate calls to fail. Slots
// already allocated remain valid until individually deallocated.
func (p *Pool) Shutdown() {
	p.shutdown.Store(true)
	p.logger.Printf("shutdown initiated")
}

// Available returns the number of free slots.
func (p *Pool) Available() int64 {
	return int64(len(p.slots)) - p.allocated.Load()
}

// Allocated returns the number of slots currently in use.
func (p *Pool) Allocated() int64 {
	return p.allocated.Load()
}

// GetStats returns a snapshot of the pool's counters.
func (p *Pool) GetStats() Stats {
	return Stats{
		Name:               p.name,
		Capacity:           len(p.slots),
		Allocated:          p.allocated.Load(),
		Available:          p.Available(),
		TotalAllocations:   p.totalAllocations.Load(),
		TotalDeallocations: p.totalDeallocations.Load(),
		AllocationFailures: p.allocationFailures.Load(),
	}
}

func (s Stats) String() string {
	utilization := float64(0)
	if s.Capacity > 0 {
		utilization = float64(s.Allocated) * 100.0 / float64(s.Capacity)
	}
	return fmt.Sprintf(
		"Pool{name=%s, capacity=%d, allocated=%d, available=%d, total_allocs=%d, total_deallocs=%d, failures=%d, utilization=%.1f%%}",
		s.Name, s.Capacity, s.Allocated, s.Available, s.TotalAllocations, s.TotalDeallocations, s.AllocationFailures, utilization,
	)
}
