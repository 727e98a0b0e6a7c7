package router

import (
	"testing"

	"fix-gateway-go/constants"
	"fix-gateway-go/message"
	"fix-gateway-go/pool"
)

func TestClassifyMatchesPriorityTable(t *testing.T) {
	cases := []struct {
		msgType message.MsgType
		want    Priority
	}{
		{message.MsgExecutionReport, Critical},
		{message.MsgNewOrderSingle, Critical},
		{message.MsgLogon, Critical},
		{message.MsgLogout, Critical},
		{message.MsgMarketDataSnapshot, High},
		{message.MsgTestRequest, Medium},
		{message.MsgResendRequest, Medium},
		{message.MsgReject, Medium},
		{message.MsgSequenceReset, Medium},
		{message.MsgHeartbeat, Low},
		{message.MsgUnknown, Low},
	}
	for _, tc := range cases {
		if got := Classify(tc.msgType); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.msgType, got, tc.want)
		}
	}
}

func newMessageOfType(t *testing.T, msgType string) *message.FixMessage {
	t.Helper()
	m := message.New()
	m.SetString(constants.TagMsgType, msgType)
	return m
}

func TestRoutePushesToClassifiedLane(t *testing.T) {
	p := pool.New(16, "test")
	r := New(p, [numPriorities]int{})

	msg := newMessageOfType(t, constants.MsgTypeNewOrderSingle)
	if !r.Route(msg) {
		t.Fatal("Route should succeed on a non-full lane")
	}
	if got := r.Lane(Critical).Queue.Size(); got != 1 {
		t.Errorf("Critical lane size = %d, want 1", got)
	}
	if got := r.Lane(Low).Queue.Size(); got != 0 {
		t.Errorf("Low lane size = %d, want 0", got)
	}
}

func TestRouteDropsAndReclaimsOnFullLane(t *testing.T) {
	p := pool.New(8, "test")
	r := New(p, [numPriorities]int{Low: 2})

	first := newMessageOfType(t, constants.MsgTypeHeartbeat)
	r.Route(first)

	before := p.Allocated()
	second := newMessageOfType(t, constants.MsgTypeHeartbeat)
	if r.Route(second) {
		t.Fatal("Route should fail once the Low lane (capacity 2, usable 1) is full")
	}
	after := p.Allocated()
	if after != before {
		t.Errorf("dropped message should be returned to the pool: before=%d after=%d", before, after)
	}

	stats := r.Stats()
	if stats[Low].Dropped != 1 {
		t.Errorf("Low lane Dropped = %d, want 1", stats[Low].Dropped)
	}
}

func TestRouteWithPriorityOverridesClassification(t *testing.T) {
	p := pool.New(8, "test")
	r := New(p, [numPriorities]int{})

	resendRequest := newMessageOfType(t, constants.MsgTypeResendRequest)
	if !r.RouteWithPriority(resendRequest, Critical) {
		t.Fatal("RouteWithPriority should succeed")
	}
	if got := r.Lane(Critical).Queue.Size(); got != 1 {
		t.Errorf("Critical lane size = %d, want 1 (gap-manager-originated ResendRequest)", got)
	}
	if got := r.Lane(Medium).Queue.Size(); got != 0 {
		t.Errorf("Medium lane size = %d, want 0", got)
	}
}

func TestRouteNilIsNoOp(t *testing.T) {
	p := pool.New(4, "test")
	r := New(p, [numPriorities]int{})
	if r.Route(nil) {
		t.Error("Route(nil) should return false")
	}
}
