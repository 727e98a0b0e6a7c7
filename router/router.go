// Package router implements the priority classifier and fan-out (spec C5):
// it maps a parsed message's cached MsgType to one of four priority lanes
// and pushes it onto the corresponding ring.Queue, returning dropped
// messages to the pool so nothing leaks.
//
// Grounded on original_source/include/application/priority_queue_container.h
// (fixed four-lane array, the 2048/2048/1024/512 default capacities) and
// src/manager/message_router.cpp (routeMessage's validate-then-enqueue
// shape, the direct MsgType-to-Priority switch with no intermediate
// allocation). The MsgType-to-Priority mapping itself follows spec.md §4.5
// rather than the original's table, since spec.md explicitly redefines
// Logon/Logout as CRITICAL and makes ResendRequest/Heartbeat
// priority context-dependent on whether they are gap-manager-originated or
// a direct TestRequest reply, which a pure MsgType switch cannot express —
// see RouteWithPriority for how callers that know that context route
// explicitly.
package router

import (
	"log"
	"sync/atomic"

	"fix-gateway-go/message"
	"fix-gateway-go/pool"
	"fix-gateway-go/ring"
)

// Lane is one priority-partitioned queue of pooled FixMessage handles.
type Lane struct {
	Priority Priority
	Queue    *ring.Queue[*message.FixMessage]
	dropped  atomic.Uint64
}

// Router classifies and fans out messages across four Lanes. It is the sole
// producer for each Lane's queue, per spec.md §5's SPSC contract.
type Router struct {
	lanes  [numPriorities]*Lane
	pool   *pool.Pool
	logger *log.Logger
}

// New builds a Router with one Lane per Priority, sized from capacities (or
// DefaultCapacities if capacities is the zero value).
func New(p *pool.Pool, capacities [numPriorities]int) *Router {
	if capacities == ([numPriorities]int{}) {
		capacities = DefaultCapacities
	}
	r := &Router{
		pool:   p,
		logger: log.New(log.Writer(), "[router] ", log.LstdFlags|log.Lmicroseconds),
	}
	for i := 0; i < numPriorities; i++ {
		pr := Priority(i)
		r.lanes[i] = &Lane{
			Priority: pr,
			Queue:    ring.New[*message.FixMessage](capacities[i], pr.String()+"_queue"),
		}
	}
	return r
}

// Lane returns the queue backing priority p.
func (r *Router) Lane(p Priority) *Lane {
	return r.lanes[p]
}

// Classify is the pure MsgType->Priority mapping from spec.md §4.5's table,
// used for inbound messages and for any outbound message whose priority is
// not contextually overridden.
func Classify(t message.MsgType) Priority {
	switch t {
	case message.MsgExecutionReport,
		message.MsgOrderCancelReject,
		message.MsgNewOrderSingle,
		message.MsgOrderCancelRequest,
		message.MsgOrderCancelReplaceRequest,
		message.MsgOrderStatusRequest,
		message.MsgLogon,
		message.MsgLogout:
		return Critical

	case message.MsgMarketDataRequest,
		message.MsgMarketDataSnapshot,
		message.MsgMarketDataIncrementalRefresh,
		message.MsgMarketDataRequestReject:
		return High

	case message.MsgTestRequest,
		message.MsgResendRequest,
		message.MsgReject,
		message.MsgBusinessReject,
		message.MsgSequenceReset:
		return Medium

	case message.MsgHeartbeat:
		return Low

	default:
		return Low
	}
}

// Route classifies msg via Classify and pushes it to the matching lane. On a
// full lane the message is returned to the pool and the lane's drop counter
// is incremented; the router never leaks a handle.
func (r *Router) Route(msg *message.FixMessage) bool {
	if msg == nil {
		return false
	}
	return r.RouteWithPriority(msg, Classify(msg.MsgType()))
}

// RouteWithPriority pushes msg directly to priority, bypassing Classify.
// Used by the gap manager (ResendRequest it emits is always CRITICAL, per
// spec.md §4.5, unlike a received ResendRequest which is MEDIUM) and by the
// session manager (a Heartbeat sent in direct reply to a TestRequest is
// HIGH, unlike a spontaneous one which is LOW).
func (r *Router) RouteWithPriority(msg *message.FixMessage, priority Priority) bool {
	if msg == nil {
		return false
	}
	lane := r.lanes[priority]
	if lane.Queue.Push(msg) {
		return true
	}
	lane.dropped.Add(1)
	r.logger.Printf("WARN: lane %s full, dropping message (msgType=%v)", lane.Priority, msg.MsgType())
	r.pool.Deallocate(msg)
	return false
}

// LaneStats is a snapshot of one lane's counters for monitoring.
type LaneStats struct {
	Priority Priority
	Queue    ring.Stats
	Dropped  uint64
}

// Stats returns a snapshot of every lane.
func (r *Router) Stats() [numPriorities]LaneStats {
	var out [numPriorities]LaneStats
	for i, lane := range r.lanes {
		out[i] = LaneStats{
			Priority: lane.Priority,
			Queue:    lane.Queue.Stats(),
			Dropped:  lane.dropped.Load(),
		}
	}
	return out
}
