// Package sender implements the outbound send path (spec C8): four
// independent single-goroutine senders, one per priority lane, each popping
// a message, serialising it, writing it to the transport, and returning the
// handle to the pool.
//
// Grounded on original_source/src/manager/outbound_message_manager.cpp
// (one AsyncSender per priority lane, core-pinned where configured, the
// per-priority queue-size table, PerformanceStats aggregation across
// senders) — the original's AsyncSender implementation itself was not part
// of the retained original_source set, so the send-retry/backoff loop body
// here follows spec.md §4.8 directly. Core pinning is wired through
// gateway/affinity rather than duplicated per-sender, matching the
// original's pinThreadToCore call from the owning manager rather than from
// each sender.
package sender

import (
	"log"
	"sync/atomic"
	"time"

	"fix-gateway-go/message"
	"fix-gateway-go/pool"
	"fix-gateway-go/router"
	"fix-gateway-go/transport"
)

// SendRetry is how many times sendWithRetry retries a failed transport write
// of a single message before dropping it. Retries happen in place, with a
// short sleep between attempts; the message is not put back on its lane.
const SendRetry = 3

// maxBackoff caps the empty-lane exponential backoff.
const maxBackoff = time.Millisecond

// Stats is a snapshot of one Sender's counters.
type Stats struct {
	Sent    uint64
	Failed  uint64
	Retried uint64
	Dropped uint64
}

// Sender drains one priority lane and writes each message to a shared
// Transport. Four Senders, one per Priority, form the complete C8 component.
type Sender struct {
	priority  router.Priority
	lane      *router.Lane
	pool      *pool.Pool
	transport transport.Transport

	sent, failed, retried, dropped atomic.Uint64

	logger   *log.Logger
	dropHook func(msgType string)
	onStart  func()

	stop chan struct{}
	done chan struct{}
}

// SetOnStart installs a callback run once, synchronously, at the top of
// this sender's own goroutine before it enters its drain loop. Used by the
// gateway facade to pin this lane's goroutine to a configured core without
// this package taking a dependency on an OS-specific affinity API.
func (s *Sender) SetOnStart(fn func()) { s.onStart = fn }

// SetDropHook installs a callback fired whenever a message is dropped after
// exhausting SendRetry attempts, so a caller (the gateway facade) can route
// this CRITICAL-severity event to an audit sink without this package taking
// a dependency on one.
func (s *Sender) SetDropHook(fn func(msgType string)) { s.dropHook = fn }

// New builds a Sender for one lane. Call Start to launch its goroutine.
func New(priority router.Priority, lane *router.Lane, p *pool.Pool, t transport.Transport) *Sender {
	return &Sender{
		priority:  priority,
		lane:      lane,
		pool:      p,
		transport: t,
		logger:    log.New(log.Writer(), "[sender:"+priority.String()+"] ", log.LstdFlags|log.Lmicroseconds),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sender's loop goroutine.
func (s *Sender) Start() { go s.loop() }

// Stop signals the loop to exit, drains the lane once more, and waits.
func (s *Sender) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sender) loop() {
	defer close(s.done)
	if s.onStart != nil {
		s.onStart()
	}
	backoff := time.Microsecond
	for {
		select {
		case <-s.stop:
			s.drainOnce()
			return
		default:
		}

		msg, ok := s.lane.Queue.TryPop()
		if !ok {
			time.Sleep(backoff)
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = time.Microsecond
		s.sendWithRetry(msg)
	}
}

// drainOnce empties whatever remains in the lane at shutdown, releasing each
// handle to the pool without attempting to send it (spec.md §4.8: "messages
// still in the lane at hard shutdown are released to the pool").
func (s *Sender) drainOnce() {
	for {
		msg, ok := s.lane.Queue.TryPop()
		if !ok {
			return
		}
		s.pool.Deallocate(msg)
	}
}

// sendWithRetry writes msg to the transport, retrying up to SendRetry times
// on failure before dropping it, per spec.md §4.8.
func (s *Sender) sendWithRetry(msg *message.FixMessage) {
	defer s.pool.Deallocate(msg)

	payload := msg.Bytes()
	for attempt := 0; attempt <= SendRetry; attempt++ {
		if s.transport.Send(payload) {
			s.sent.Add(1)
			return
		}
		if attempt < SendRetry {
			s.retried.Add(1)
			time.Sleep(time.Duration(attempt+1) * time.Millisecond)
			continue
		}
		s.failed.Add(1)
		s.dropped.Add(1)
		s.logger.Printf("ERROR: dropping message after %d failed send attempts (msgType=%v)", SendRetry+1, msg.MsgType())
		if s.dropHook != nil {
			s.dropHook(msg.MsgType().String())
		}
	}
}

// GetStats returns a point-in-time snapshot of this sender's counters.
func (s *Sender) GetStats() Stats {
	return Stats{
		Sent:    s.sent.Load(),
		Failed:  s.failed.Load(),
		Retried: s.retried.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Pool is a fixed set of four Senders, one per Priority, wired against a
// single Router and Transport — the concrete C8 component the gateway
// facade starts and stops as a unit.
type Pool struct {
	senders [4]*Sender
}

// NewPool builds one Sender per priority lane of r, all writing to t.
func NewPool(r *router.Router, p *pool.Pool, t transport.Transport) *Pool {
	sp := &Pool{}
	for i := 0; i < 4; i++ {
		pr := router.Priority(i)
		sp.senders[i] = New(pr, r.Lane(pr), p, t)
	}
	return sp
}

// SetDropHook installs fn on all four senders.
func (sp *Pool) SetDropHook(fn func(msgType string)) {
	for _, s := range sp.senders {
		s.SetDropHook(fn)
	}
}

// SetOnStart installs fn on all four senders, called with each sender's own
// Priority so the caller can assign a distinct core per lane.
func (sp *Pool) SetOnStart(fn func(priority router.Priority)) {
	for _, s := range sp.senders {
		p := s.priority
		s.SetOnStart(func() { fn(p) })
	}
}

// Start launches all four senders.
func (sp *Pool) Start() {
	for _, s := range sp.senders {
		s.Start()
	}
}

// Stop stops all four senders and waits for them to drain.
func (sp *Pool) Stop() {
	for _, s := range sp.senders {
		s.Stop()
	}
}

// Stats returns a snapshot of every sender, indexed by Priority.
func (sp *Pool) Stats() [4]Stats {
	var out [4]Stats
	for i, s := range sp.senders {
		out[i] = s.GetStats()
	}
	return out
}
