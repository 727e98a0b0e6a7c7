package pool

import (
	"testing"

	"fix-gateway-go/message"
)

func TestAllocateExhaustionReturnsNil(t *testing.T) {
	p := New(4, "test")

	var handles []*message.FixMessage
	for i := 0; i < 4; i++ {
		m := p.Allocate()
		if m == nil {
			t.Fatalf("Allocate() #%d returned nil before exhaustion", i)
		}
		handles = append(handles, m)
	}

	if m := p.Allocate(); m != nil {
		t.Fatal("Allocate() on exhausted pool should return nil")
	}
	if stats := p.GetStats(); stats.AllocationFailures != 1 {
		t.Errorf("AllocationFailures = %d, want 1", stats.AllocationFailures)
	}

	p.Deallocate(handles[0])
	if m := p.Allocate(); m == nil {
		t.Fatal("Allocate() after a Deallocate on an exhausted pool should succeed")
	}
}

func TestInUseCountMatchesAllocationsMinusDeallocations(t *testing.T) {
	p := New(16, "test")

	var handles []*message.FixMessage
	for i := 0; i < 10; i++ {
		handles = append(handles, p.Allocate())
	}
	if got := p.Allocated(); got != 10 {
		t.Fatalf("Allocated() = %d, want 10", got)
	}

	for i := 0; i < 4; i++ {
		p.Deallocate(handles[i])
	}
	if got := p.Allocated(); got != 6 {
		t.Fatalf("Allocated() = %d, want 6", got)
	}
	if got := p.Allocated(); got > int64(p.Capacity()) {
		t.Fatalf("Allocated() = %d exceeds capacity %d", got, p.Capacity())
	}
}

func TestDeallocateForeignPointerIsIgnored(t *testing.T) {
	p := New(4, "test")
	foreign := message.New()

	before := p.GetStats()
	p.Deallocate(foreign)
	after := p.GetStats()

	if before.TotalDeallocations != after.TotalDeallocations {
		t.Error("Deallocate of a foreign pointer should not be counted")
	}
	if before.Allocated != after.Allocated {
		t.Error("Deallocate of a foreign pointer should not change Allocated()")
	}
}

func TestDeallocateNilIsNoOp(t *testing.T) {
	p := New(4, "test")
	p.Deallocate(nil)
	if p.Allocated() != 0 {
		t.Error("Deallocate(nil) should be a no-op")
	}
}

func TestShutdownRejectsFurtherAllocations(t *testing.T) {
	p := New(4, "test")
	p.Shutdown()
	if m := p.Allocate(); m != nil {
		t.Error("Allocate() after Shutdown should return nil")
	}
}

func TestAllocatedSlotsAreDistinct(t *testing.T) {
	p := New(8, "test")
	seen := make(map[*message.FixMessage]bool)
	for i := 0; i < 8; i++ {
		m := p.Allocate()
		if seen[m] {
			t.Fatalf("Allocate() returned the same slot twice: %p", m)
		}
		seen[m] = true
	}
}

func TestResetReinitializesFreeList(t *testing.T) {
	p := New(4, "test")
	for i := 0; i < 4; i++ {
		p.Allocate()
	}
	if p.Available() != 0 {
		t.Fatal("precondition: pool should be exhausted")
	}
	p.Reset()
	if p.Available() != 4 {
		t.Errorf("Available() after Reset() = %d, want 4", p.Available())
	}
}
