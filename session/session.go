// Package session implements the FIX session state machine (spec C6): it
// consumes parsed inbound messages across the four priority lanes,
// validates sequence-number continuity, answers session-layer (admin)
// messages itself, forwards application messages to a caller-supplied
// callback, and schedules heartbeats/test-requests on a wall-clock timer.
//
// Grounded on original_source/include/manager/fix_session_manager.h
// (SessionState enum, SessionConfig/SessionStats shape, the
// handleLogon/handleLogout/handleHeartbeat/handleTestRequest/
// handleResendRequest/handleSequenceReset/handleReject handler set, the
// sendX response generators, validateSequenceNumber/handleSequenceNumberGap,
// startHeartbeatTimer/shouldSendHeartbeat/shouldSendTestRequest) and
// original_source/include/manager/inbound_message_manager.h (the
// poll-inbound-lane/dispatch/route-response shape, now collapsed into a
// single concrete type instead of an abstract base class, which is the
// idiomatic Go rendition of a one-implementation class hierarchy). The
// message-type-to-callback-handler switch also follows teacher's
// fixclient/fixapp.go's FromApp/OnLogon/OnLogout dispatch style.
package session

import (
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"fix-gateway-go/constants"
	"fix-gateway-go/gap"
	"fix-gateway-go/message"
	"fix-gateway-go/pool"
	"fix-gateway-go/router"
)

// Config configures a session (original SessionConfig).
type Config struct {
	SenderCompID         string
	TargetCompID         string
	HeartBtInt           int // seconds
	ResetSeqNumOnLogon   bool
	LogonTimeoutSeconds  int
	ValidateSequenceNums bool
}

// DefaultConfig mirrors the original's SessionConfig default member
// initializers.
func DefaultConfig(senderCompID, targetCompID string) Config {
	return Config{
		SenderCompID:         senderCompID,
		TargetCompID:         targetCompID,
		HeartBtInt:           30,
		LogonTimeoutSeconds:  30,
		ValidateSequenceNums: true,
	}
}

// Stats is a snapshot of session counters (original SessionStats).
type Stats struct {
	HeartbeatsSent       uint64
	HeartbeatsReceived   uint64
	TestRequestsSent     uint64
	TestRequestsReceived uint64
	LogonsSent           uint64
	LogoutsSent          uint64
	SequenceResetsSent   uint64
	RejectsSent          uint64
	RejectsReceived      uint64
	SessionStartTime     time.Time
	LastHeartbeatTime    time.Time
	State                State
}

// inboundLanes is the subset of a Router's lanes the session drains, in
// priority order, every tick of the processing loop.
var inboundLanes = [...]router.Priority{router.Critical, router.High, router.Medium, router.Low}

// Manager owns the session state machine. It is the sole consumer of each
// inbound lane (spec.md §5's SPSC contract: the router is sole producer,
// Manager the sole consumer) and routes every response it generates through
// outboundRouter.
type Manager struct {
	config Config
	pool   *pool.Pool

	inbound        *router.Router // classified inbound messages (Critical..Low)
	outboundRouter *router.Router // where session-generated responses are routed
	gapMgr         *gap.Manager

	state atomic.Int32

	outgoingSeqNum         atomic.Int32
	expectedIncomingSeqNum atomic.Int32

	heartbeatIntervalSec atomic.Int32
	lastHeartbeatSentNs  atomic.Int64
	lastMessageRecvNs    atomic.Int64
	logonSentNs          atomic.Int64
	logoutSentNs         atomic.Int64

	pendingTestReqID    atomic.Pointer[string]
	testRequestSentNs   atomic.Int64
	testReqIDCounter    atomic.Int64

	stats statsCounters

	onApplicationMessage func(*message.FixMessage)
	onLogon              func()
	onLogout             func(reason string)
	onSeqTooLow          func(got, expected int32)
	onMessageProcessed   func(*message.FixMessage)

	logger *log.Logger

	stop chan struct{}
	done chan struct{}
}

type statsCounters struct {
	heartbeatsSent       atomic.Uint64
	heartbeatsReceived   atomic.Uint64
	testRequestsSent     atomic.Uint64
	testRequestsReceived atomic.Uint64
	logonsSent           atomic.Uint64
	logoutsSent          atomic.Uint64
	sequenceResetsSent   atomic.Uint64
	rejectsSent          atomic.Uint64
	rejectsReceived      atomic.Uint64
}

// New builds a Manager. inbound is the Router whose four lanes carry
// classified messages destined for this session (and for the gap manager /
// application callback); outboundResponses is the Router session-generated
// admin responses are pushed onto for the sender to drain.
func New(config Config, p *pool.Pool, inbound, outboundResponses *router.Router, gapMgr *gap.Manager) *Manager {
	m := &Manager{
		config:         config,
		pool:           p,
		inbound:        inbound,
		outboundRouter: outboundResponses,
		gapMgr:         gapMgr,
		logger:         log.New(log.Writer(), "[session] ", log.LstdFlags|log.Lmicroseconds),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	m.outgoingSeqNum.Store(1)
	m.expectedIncomingSeqNum.Store(1)
	m.heartbeatIntervalSec.Store(int32(config.HeartBtInt))
	m.testReqIDCounter.Store(1)
	m.stats.heartbeatsSent.Store(0)
	return m
}

// SenderCompID/TargetCompID/NextOutgoingSeqNum satisfy gap.SeqNumSource, so a
// *Manager can be passed directly to gap.New.
func (m *Manager) SenderCompID() string { return m.config.SenderCompID }
func (m *Manager) TargetCompID() string { return m.config.TargetCompID }
// NextOutgoingSeqNum is an atomic fetch-and-add over outgoingSeqNum,
// matching spec.md §3's SessionContext.getNextSeqNum contract (returns the
// pre-increment value; the first call after construction returns 1).
func (m *Manager) NextOutgoingSeqNum() int32 {
	return m.outgoingSeqNum.Add(1) - 1
}

// SetApplicationMessageHandler installs the callback invoked for every
// inbound message the session does not itself consume (non-admin types),
// after sequence validation. Mirrors the gateway facade's
// set_message_callback (spec.md §6).
func (m *Manager) SetApplicationMessageHandler(fn func(*message.FixMessage)) {
	m.onApplicationMessage = fn
}

// SetLogonHandler/SetLogoutHandler install lifecycle callbacks for the
// gateway facade.
func (m *Manager) SetLogonHandler(fn func())                { m.onLogon = fn }
func (m *Manager) SetLogoutHandler(fn func(reason string))   { m.onLogout = fn }

// SetGapManager wires the gap tracker in after construction, since gap.New
// itself requires a SeqNumSource (satisfied by *Manager) — the two
// constructors would otherwise need each other simultaneously.
func (m *Manager) SetGapManager(g *gap.Manager) { m.gapMgr = g }

// SetSeqTooLowHandler installs a callback fired when an inbound message's
// sequence number is below expected without PossDupFlag=Y, immediately
// before the session logs out and disconnects. Lets a caller (the gateway
// facade) route this CRITICAL-severity event to an audit sink without the
// session package itself taking a dependency on one.
func (m *Manager) SetSeqTooLowHandler(fn func(got, expected int32)) { m.onSeqTooLow = fn }

// SetMessageProcessedHook installs a callback fired for every inbound
// message (admin or application) immediately after MarkProcessingEnd, while
// its processing-latency timestamps are still valid and before the handle
// is returned to the pool. Used by the gateway facade to feed per-message
// latency into a running LatencyStats accumulator.
func (m *Manager) SetMessageProcessedHook(fn func(*message.FixMessage)) { m.onMessageProcessed = fn }

// State returns the current SessionState.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.logger.Printf("state %s -> %s", old, s)
	}
}

// GetStats returns a point-in-time snapshot of session counters.
func (m *Manager) GetStats() Stats {
	return Stats{
		HeartbeatsSent:       m.stats.heartbeatsSent.Load(),
		HeartbeatsReceived:   m.stats.heartbeatsReceived.Load(),
		TestRequestsSent:     m.stats.testRequestsSent.Load(),
		TestRequestsReceived: m.stats.testRequestsReceived.Load(),
		LogonsSent:           m.stats.logonsSent.Load(),
		LogoutsSent:          m.stats.logoutsSent.Load(),
		SequenceResetsSent:   m.stats.sequenceResetsSent.Load(),
		RejectsSent:          m.stats.rejectsSent.Load(),
		RejectsReceived:      m.stats.rejectsReceived.Load(),
		State:                m.State(),
	}
}

// Start launches the inbound-processing loop and the heartbeat timer, each
// as its own goroutine, per spec.md §5's thread table.
func (m *Manager) Start() {
	go m.processLoop()
	go m.heartbeatLoop()
}

// Stop signals both loops to exit and waits for them.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

// Connect transitions Disconnected -> Connecting and immediately sends the
// initial Logon, transitioning to LogonSent, per the state diagram in
// spec.md §4.6.
func (m *Manager) Connect() bool {
	if m.State() != Disconnected {
		return false
	}
	m.setState(Connecting)
	return m.initiateLogon()
}

func (m *Manager) initiateLogon() bool {
	msg := m.pool.Allocate()
	if msg == nil {
		m.logger.Printf("failed to allocate Logon message from pool")
		return false
	}
	m.buildLogon(msg)
	if !m.outboundRouter.RouteWithPriority(msg, router.Critical) {
		m.pool.Deallocate(msg)
		return false
	}
	m.stats.logonsSent.Add(1)
	m.logonSentNs.Store(time.Now().UnixNano())
	m.setState(LogonSent)
	return true
}

// InitiateLogout sends a Logout with the given reason (may be empty) and
// transitions LoggedOn -> LogoutSent.
func (m *Manager) InitiateLogout(reason string) bool {
	if m.State() != LoggedOn {
		return false
	}
	if !m.sendLogout(reason) {
		return false
	}
	m.logoutSentNs.Store(time.Now().UnixNano())
	m.setState(LogoutSent)
	return true
}

// OnTransportDisconnect drives the "any -> Disconnected" transition from
// spec.md's state diagram; the gateway facade calls this from its
// transport's OnDisconnect callback.
func (m *Manager) OnTransportDisconnect() {
	m.setState(Disconnected)
}

func (m *Manager) processLoop() {
	defer close(m.done)
	idle := 0
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		msg, ok := m.pollInboundLanes()
		if !ok {
			idle++
			if idle > 64 {
				time.Sleep(100 * time.Microsecond)
			}
			continue
		}
		idle = 0
		m.handleMessage(msg)
	}
}

// pollInboundLanes drains CRITICAL before HIGH before MEDIUM before LOW each
// tick, so a backlog in a lower lane never delays a CRITICAL admin message.
func (m *Manager) pollInboundLanes() (*message.FixMessage, bool) {
	for _, p := range inboundLanes {
		if msg, ok := m.inbound.Lane(p).Queue.TryPop(); ok {
			return msg, true
		}
	}
	return nil, false
}

func (m *Manager) handleMessage(msg *message.FixMessage) {
	msg.MarkProcessingStart()
	defer func() {
		msg.MarkProcessingEnd()
		if m.onMessageProcessed != nil {
			m.onMessageProcessed(msg)
		}
		m.pool.Deallocate(msg)
	}()

	m.lastMessageRecvNs.Store(time.Now().UnixNano())

	if m.config.ValidateSequenceNums && !m.validateSequenceNumber(msg) {
		return // sequence-too-low already triggered Logout+Disconnecting
	}

	switch msg.MsgType() {
	case message.MsgLogon:
		m.handleLogon(msg)
	case message.MsgLogout:
		m.handleLogout(msg)
	case message.MsgHeartbeat:
		m.handleHeartbeat(msg)
	case message.MsgTestRequest:
		m.handleTestRequest(msg)
	case message.MsgResendRequest:
		m.handleResendRequest(msg)
	case message.MsgSequenceReset:
		m.handleSequenceReset(msg)
	case message.MsgReject:
		m.handleReject(msg)
	default:
		if m.onApplicationMessage != nil {
			m.onApplicationMessage(msg)
		}
	}
}

// validateSequenceNumber implements spec.md §4.6's per-message sequence
// rules, returning false if the message must not be processed further
// (sequence too low, session torn down).
func (m *Manager) validateSequenceNumber(msg *message.FixMessage) bool {
	seq := int32(msg.GetInt(constants.TagMsgSeqNum))
	expected := m.expectedIncomingSeqNum.Load()

	switch {
	case seq == expected:
		m.expectedIncomingSeqNum.Store(expected + 1)
		if m.gapMgr != nil {
			m.gapMgr.ResolveGap(seq)
		}
		return true

	case seq > expected:
		if m.gapMgr != nil {
			for s := expected; s < seq; s++ {
				m.gapMgr.AddGap(s)
			}
		}
		m.expectedIncomingSeqNum.Store(seq + 1)
		return true

	default: // seq < expected
		if msg.HasField(constants.TagPossDupFlag) && msg.GetString(constants.TagPossDupFlag) == "Y" {
			if m.gapMgr != nil {
				m.gapMgr.ResolveGap(seq)
			}
			return true
		}
		m.logger.Printf("MsgSeqNum too low: got %d, expected %d", seq, expected)
		if m.onSeqTooLow != nil {
			m.onSeqTooLow(seq, expected)
		}
		m.sendLogout("MsgSeqNum too low")
		m.setState(Disconnecting)
		return false
	}
}

func (m *Manager) handleLogon(msg *message.FixMessage) {
	switch m.State() {
	case Connecting, LogonSent:
		if !m.validateSessionMessage(msg) {
			m.logger.Printf("Logon rejected: SenderCompID/TargetCompID mismatch (got sender=%s target=%s, want sender=%s target=%s)",
				msg.GetString(constants.TagSenderCompID), msg.GetString(constants.TagTargetCompID),
				m.config.TargetCompID, m.config.SenderCompID)
			m.sendLogout("SenderCompID/TargetCompID mismatch")
			m.setState(Disconnecting)
			return
		}
		m.expectedIncomingSeqNum.Store(int32(msg.GetInt(constants.TagMsgSeqNum)) + 1)
		if hbi := msg.GetInt(constants.TagHeartBtInt); hbi > 0 {
			m.heartbeatIntervalSec.Store(int32(hbi))
		}
		m.setState(LoggedOn)
		if m.onLogon != nil {
			m.onLogon()
		}
	case LoggedOn:
		// Duplicate Logon while already logged on: ignored per original's
		// "accept, or ignore duplicate" branch.
	default:
		m.logger.Printf("unexpected Logon in state %s", m.State())
	}
}

// validateSessionMessage checks the inbound Logon's SenderCompID/TargetCompID
// mirror our configured pair (its SenderCompID is our counterparty, so it
// must equal our configured TargetCompID, and vice versa). Mirrors the
// original's validateSessionMessage/isValidSenderCompId/isValidTargetCompId.
func (m *Manager) validateSessionMessage(msg *message.FixMessage) bool {
	return m.isValidSenderCompID(msg.GetString(constants.TagSenderCompID)) &&
		m.isValidTargetCompID(msg.GetString(constants.TagTargetCompID))
}

func (m *Manager) isValidSenderCompID(senderCompID string) bool {
	return senderCompID == m.config.TargetCompID
}

func (m *Manager) isValidTargetCompID(targetCompID string) bool {
	return targetCompID == m.config.SenderCompID
}

func (m *Manager) handleLogout(msg *message.FixMessage) {
	reason := msg.GetString(constants.TagText)
	if m.State() != LogoutSent {
		m.sendLogout(reason)
	}
	m.setState(Disconnecting)
	if m.onLogout != nil {
		m.onLogout(reason)
	}
}

func (m *Manager) handleHeartbeat(msg *message.FixMessage) {
	m.stats.heartbeatsReceived.Add(1)
	if testReqID := msg.GetString(constants.TagTestReqID); testReqID != "" {
		if pending := m.pendingTestReqID.Load(); pending != nil && *pending == testReqID {
			m.pendingTestReqID.Store(nil)
		}
	}
}

func (m *Manager) handleTestRequest(msg *message.FixMessage) {
	m.stats.testRequestsReceived.Add(1)
	m.sendHeartbeat(msg.GetString(constants.TagTestReqID), router.High)
}

// handleResendRequest emits a SequenceReset-GapFill covering the requested
// range; per spec.md §4.6 this implementation is admin-only (application
// replay is a non-goal).
func (m *Manager) handleResendRequest(msg *message.FixMessage) {
	endSeqNo := msg.GetInt(constants.TagEndSeqNo)
	if endSeqNo == 0 {
		endSeqNo = int(m.outgoingSeqNum.Load())
	}
	m.sendSequenceReset(endSeqNo+1, true)
}

func (m *Manager) handleSequenceReset(msg *message.FixMessage) {
	newSeqNo := msg.GetInt(constants.TagNewSeqNo)
	if newSeqNo <= 0 {
		m.sendReject(msg.GetInt(constants.TagMsgSeqNum), "NewSeqNo missing or non-positive")
		return
	}
	gapFill := msg.GetString(constants.TagGapFillFlag) == "Y"
	if gapFill {
		if int32(newSeqNo) > m.expectedIncomingSeqNum.Load() {
			m.expectedIncomingSeqNum.Store(int32(newSeqNo))
		}
	} else {
		m.expectedIncomingSeqNum.Store(int32(newSeqNo))
	}
}

func (m *Manager) handleReject(msg *message.FixMessage) {
	m.stats.rejectsReceived.Add(1)
	m.logger.Printf("received Reject: refSeqNum=%d reason=%s text=%s",
		msg.GetInt(constants.TagRefSeqNum), msg.GetString(constants.TagSessionRejectReason), msg.GetString(constants.TagText))
}

// --- Heartbeat scheduling (original startHeartbeatTimer/heartbeatTimerFunction) ---

func (m *Manager) heartbeatLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.heartbeatTick()
		}
	}
}

func (m *Manager) heartbeatTick() {
	state := m.State()

	if state == LogonSent {
		elapsed := time.Since(time.Unix(0, m.logonSentNs.Load()))
		if elapsed > time.Duration(m.config.LogonTimeoutSeconds)*time.Second {
			m.logger.Printf("Logon timed out after %s", elapsed)
			m.setState(Disconnecting)
		}
		return
	}

	if state == LogoutSent {
		elapsed := time.Since(time.Unix(0, m.logoutSentNs.Load()))
		if elapsed > time.Duration(m.config.LogonTimeoutSeconds)*time.Second {
			m.setState(Disconnected)
		}
		return
	}

	if state != LoggedOn {
		return
	}

	interval := time.Duration(m.heartbeatIntervalSec.Load()) * time.Second
	now := time.Now()

	if m.shouldSendHeartbeat(now, interval) {
		m.sendHeartbeat("", router.Low)
	}

	if m.shouldSendTestRequest(now, interval) {
		m.sendTestRequest()
	} else if pending := m.pendingTestReqID.Load(); pending != nil {
		sentAt := time.Unix(0, m.testRequestSentNs.Load())
		if now.Sub(sentAt) > interval {
			m.logger.Printf("TestRequest %s unanswered after %s, logging out", *pending, interval)
			m.sendLogout("TestRequest not answered")
			m.setState(Disconnecting)
		}
	}
}

func (m *Manager) shouldSendHeartbeat(now time.Time, interval time.Duration) bool {
	last := m.lastHeartbeatSentNs.Load()
	return last == 0 || now.Sub(time.Unix(0, last)) >= interval
}

func (m *Manager) shouldSendTestRequest(now time.Time, interval time.Duration) bool {
	if m.pendingTestReqID.Load() != nil {
		return false
	}
	lastRecv := m.lastMessageRecvNs.Load()
	if lastRecv == 0 {
		return false
	}
	threshold := time.Duration(float64(interval) * 1.2)
	return now.Sub(time.Unix(0, lastRecv)) >= threshold
}

// --- Response builders (original createXMessage/sendX) ---

func (m *Manager) buildHeader(msg *message.FixMessage, msgType string) {
	msg.SetString(constants.TagBeginString, constants.FixBeginString44)
	msg.SetString(constants.TagMsgType, msgType)
	msg.SetString(constants.TagSenderCompID, m.config.SenderCompID)
	msg.SetString(constants.TagTargetCompID, m.config.TargetCompID)
	msg.SetInt(constants.TagMsgSeqNum, int(m.NextOutgoingSeqNum()))
	msg.SetString(constants.TagSendingTime, time.Now().UTC().Format(constants.FixTimeFormat))
}

func (m *Manager) buildLogon(msg *message.FixMessage) {
	m.buildHeader(msg, constants.MsgTypeLogon)
	msg.SetString(constants.TagEncryptMethod, constants.EncryptMethodNone)
	msg.SetInt(constants.TagHeartBtInt, int(m.heartbeatIntervalSec.Load()))
	if m.config.ResetSeqNumOnLogon {
		msg.SetString(constants.TagResetSeqNumFlag, "Y")
	}
	msg.UpdateLengthAndChecksum()
}

func (m *Manager) sendLogout(reason string) bool {
	msg := m.pool.Allocate()
	if msg == nil {
		return false
	}
	m.buildHeader(msg, constants.MsgTypeLogout)
	if reason != "" {
		msg.SetString(constants.TagText, reason)
	}
	msg.UpdateLengthAndChecksum()
	if !m.outboundRouter.RouteWithPriority(msg, router.Critical) {
		m.pool.Deallocate(msg)
		return false
	}
	m.stats.logoutsSent.Add(1)
	return true
}

func (m *Manager) sendHeartbeat(testReqID string, priority router.Priority) bool {
	msg := m.pool.Allocate()
	if msg == nil {
		return false
	}
	m.buildHeader(msg, constants.MsgTypeHeartbeat)
	if testReqID != "" {
		msg.SetString(constants.TagTestReqID, testReqID)
	}
	msg.UpdateLengthAndChecksum()
	if !m.outboundRouter.RouteWithPriority(msg, priority) {
		m.pool.Deallocate(msg)
		return false
	}
	m.stats.heartbeatsSent.Add(1)
	m.lastHeartbeatSentNs.Store(time.Now().UnixNano())
	return true
}

func (m *Manager) sendTestRequest() bool {
	msg := m.pool.Allocate()
	if msg == nil {
		return false
	}
	id := m.createTestRequestID()
	m.buildHeader(msg, constants.MsgTypeTestRequest)
	msg.SetString(constants.TagTestReqID, id)
	msg.UpdateLengthAndChecksum()
	if !m.outboundRouter.RouteWithPriority(msg, router.High) {
		m.pool.Deallocate(msg)
		return false
	}
	m.stats.testRequestsSent.Add(1)
	m.pendingTestReqID.Store(&id)
	m.testRequestSentNs.Store(time.Now().UnixNano())
	return true
}

func (m *Manager) sendSequenceReset(newSeqNo int, gapFill bool) bool {
	msg := m.pool.Allocate()
	if msg == nil {
		return false
	}
	m.buildHeader(msg, constants.MsgTypeSequenceReset)
	msg.SetInt(constants.TagNewSeqNo, newSeqNo)
	if gapFill {
		msg.SetString(constants.TagGapFillFlag, "Y")
	}
	msg.UpdateLengthAndChecksum()
	if !m.outboundRouter.RouteWithPriority(msg, router.Medium) {
		m.pool.Deallocate(msg)
		return false
	}
	m.stats.sequenceResetsSent.Add(1)
	return true
}

// sendReject builds and routes a session-level Reject (35=3) citing
// refSeqNum and a free-text reason, incrementing the sent-side reject
// counter. Mirrors the original's sendReject(ref_seq_num, reason).
func (m *Manager) sendReject(refSeqNum int, reason string) bool {
	msg := m.pool.Allocate()
	if msg == nil {
		return false
	}
	m.buildHeader(msg, constants.MsgTypeReject)
	msg.SetInt(constants.TagRefSeqNum, refSeqNum)
	if reason != "" {
		msg.SetString(constants.TagText, reason)
	}
	msg.UpdateLengthAndChecksum()
	if !m.outboundRouter.RouteWithPriority(msg, router.Medium) {
		m.pool.Deallocate(msg)
		return false
	}
	m.stats.rejectsSent.Add(1)
	return true
}

func (m *Manager) createTestRequestID() string {
	n := m.testReqIDCounter.Add(1)
	return "TEST" + strconv.FormatInt(n, 10)
}
