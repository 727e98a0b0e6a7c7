// Package gateway wires every component (C1-C8) into the single facade
// spec.md §6 describes: Connect/Disconnect, message/error callbacks,
// SendMessage/SendRaw, and the parser/pool stats passthrough.
//
// Grounded on original_source/include/application/fix_gateway.h and
// src/application/fix_gateway.cpp: the constructor's pool->parser->
// tcp_connection wiring with inline callback closures, the
// onTcpDataReceived parse-status switch driving processParsedMessage /
// error_callback_, and the sendMessage/sendRawMessage/getParserStats/
// getPoolStats/setMaxMessageSize/setValidateChecksum/setStrictValidation
// surface. The session/gap/router/sender layer the original splits across
// FixSessionManager, InboundMessageManager and OutboundMessageManager is
// wired in here rather than left to the caller, since spec.md folds all of
// C1-C8 under one external interface (§6's "Gateway facade").
package gateway

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"fix-gateway-go/audit"
	"fix-gateway-go/constants"
	"fix-gateway-go/gap"
	"fix-gateway-go/message"
	"fix-gateway-go/parser"
	"fix-gateway-go/pool"
	"fix-gateway-go/router"
	"fix-gateway-go/sender"
	"fix-gateway-go/session"
	"fix-gateway-go/transport"
)

// Config holds the facade's tunable knobs, defaulting exactly per spec.md
// §6: max_message_size=8192, validate_checksum=true, strict_validation=true,
// message_pool_size=8192.
type Config struct {
	SenderCompID     string
	TargetCompID     string
	HeartBtInt       int
	MaxMessageSize   int
	ValidateChecksum bool
	StrictValidation bool
	MessagePoolSize  int

	// ShutdownTimeout bounds how long Disconnect waits for the sender pool
	// and session loops to drain before returning, per spec.md §5.
	ShutdownTimeout time.Duration

	// GapManagerCoreID, if non-nil, pins the gap manager's goroutine to that
	// core on platforms PinCurrentGoroutineToCore supports. Advisory only —
	// a failed pin is logged, never fatal, per spec.md §9.
	GapManagerCoreID *int

	// SenderCoreIDs, if non-nil, maps a router.Priority to the core its
	// drain goroutine should be pinned to. Missing entries are left
	// unpinned.
	SenderCoreIDs map[router.Priority]int
}

// DefaultConfig returns the spec.md §6 defaults for the given session
// identities.
func DefaultConfig(senderCompID, targetCompID string) Config {
	return Config{
		SenderCompID:     senderCompID,
		TargetCompID:     targetCompID,
		HeartBtInt:       30,
		MaxMessageSize:   8192,
		ValidateChecksum: true,
		StrictValidation: true,
		MessagePoolSize:  8192,
		ShutdownTimeout:  5 * time.Second,
	}
}

// MessageCallback receives every inbound application (non-admin) message,
// mirroring the original's MessageCallback alias.
type MessageCallback func(msg *message.FixMessage)

// ErrorCallback receives a human-readable description of any parse,
// transport, or session-layer error.
type ErrorCallback func(reason string)

// Gateway is the single entry point a caller (CLI, test harness, or another
// service) uses to run one FIX session end to end.
type Gateway struct {
	config Config

	pool           *pool.Pool
	parser         *parser.Parser
	inboundRouter  *router.Router
	outboundRouter *router.Router
	gapMgr         *gap.Manager
	sessionMgr     *session.Manager
	senderPool     *sender.Pool
	transport      transport.Transport

	mu        sync.Mutex
	messageCb MessageCallback
	errorCb   ErrorCallback
	connected bool
	auditSink *audit.Sink
	latency   LatencyStats

	logger *log.Logger
}

// New builds a Gateway and wires every component together, but does not yet
// connect. Mirrors FixGateway's constructor (pool -> parser -> tcp_connection
// wiring with inline callback closures), generalized to also assemble the
// router/session/gap/sender layer spec.md §6 folds under one facade.
func New(config Config) *Gateway {
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = 8192
	}
	if config.MessagePoolSize <= 0 {
		config.MessagePoolSize = 8192
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}

	p := pool.New(config.MessagePoolSize, "gateway")
	parserConfig := parser.DefaultConfig()
	parserConfig.MaxMessageSize = config.MaxMessageSize
	parserConfig.ValidateChecksum = config.ValidateChecksum
	prs := parser.New(p, parserConfig)

	inboundRouter := router.New(p, router.DefaultCapacities)
	outboundRouter := router.New(p, router.DefaultCapacities)

	tcp := transport.New(0)

	g := &Gateway{
		config:         config,
		pool:           p,
		parser:         prs,
		inboundRouter:  inboundRouter,
		outboundRouter: outboundRouter,
		transport:      tcp,
		logger:         log.New(log.Writer(), "[gateway] ", log.LstdFlags|log.Lmicroseconds),
	}

	sessionConfig := session.DefaultConfig(config.SenderCompID, config.TargetCompID)
	sessionConfig.HeartBtInt = config.HeartBtInt
	sessionConfig.ValidateSequenceNums = config.StrictValidation

	// gap.New needs the session as its SeqNumSource, but session.New needs a
	// *gap.Manager; build the session first with a nil gap manager reference
	// swapped in immediately after, since neither constructor dereferences
	// the other synchronously.
	g.sessionMgr = session.New(sessionConfig, p, inboundRouter, outboundRouter, nil)
	g.gapMgr = gap.New(p, outboundRouter, g.sessionMgr)
	g.sessionMgr.SetGapManager(g.gapMgr)
	g.gapMgr.SetGiveUpHook(g.onGapGiveUp)
	g.sessionMgr.SetSeqTooLowHandler(g.onSeqTooLow)

	g.senderPool = sender.NewPool(outboundRouter, p, tcp)
	g.senderPool.SetDropHook(g.onSendDropped)
	if config.SenderCoreIDs != nil {
		g.senderPool.SetOnStart(func(priority router.Priority) {
			if core, ok := config.SenderCoreIDs[priority]; ok {
				g.pinOrLog(core, "sender:"+priority.String())
			}
		})
	}
	if config.GapManagerCoreID != nil {
		core := *config.GapManagerCoreID
		g.gapMgr.SetOnStart(func() { g.pinOrLog(core, "gap") })
	}

	g.sessionMgr.SetApplicationMessageHandler(g.onApplicationMessage)
	g.sessionMgr.SetMessageProcessedHook(g.onMessageProcessed)

	tcp.SetOnData(g.onTransportData)
	tcp.SetOnError(g.onTransportError)
	tcp.SetOnDisconnect(g.onTransportDisconnect)

	return g
}

// SetMessageCallback installs the callback invoked for every inbound
// application message (original's setMessageCallback).
func (g *Gateway) SetMessageCallback(fn MessageCallback) {
	g.mu.Lock()
	g.messageCb = fn
	g.mu.Unlock()
}

// SetErrorCallback installs the callback invoked on parse, transport, or
// session errors (original's setErrorCallback).
func (g *Gateway) SetErrorCallback(fn ErrorCallback) {
	g.mu.Lock()
	g.errorCb = fn
	g.mu.Unlock()
}

// SetAuditSink wires a persistent sink for CRITICAL-severity datapath
// events (gap give-up, sequence-too-low disconnect, checksum error, pool
// exhaustion, outbound message dropped after send retries), per spec.md §7's
// error-handling table. Not present on the
// original facade, which had no durable audit trail of its own; optional —
// a nil sink (the default) means these events are logged but not persisted.
func (g *Gateway) SetAuditSink(sink *audit.Sink) {
	g.mu.Lock()
	g.auditSink = sink
	g.mu.Unlock()
}

// Connect dials host:port, starts the sender pool and session loops, and
// sends the initial Logon. Mirrors FixGateway::connect.
func (g *Gateway) Connect(host string, port int) bool {
	if !g.transport.Connect(host, port) {
		return false
	}

	g.mu.Lock()
	g.connected = true
	g.mu.Unlock()

	g.gapMgr.Start()
	g.senderPool.Start()
	g.sessionMgr.Start()
	if !g.sessionMgr.Connect() {
		g.logger.Printf("failed to initiate logon")
		g.Disconnect()
		return false
	}
	return true
}

// Disconnect tears the session down in the reverse order it was brought up:
// stop the session loops, stop the sender pool (draining each lane to the
// pool), then close the socket. Bounded by config.ShutdownTimeout so a wedged
// component can never hang the caller forever.
func (g *Gateway) Disconnect() {
	if !g.markDisconnected() {
		return
	}
	g.stopComponents()
	g.transport.Disconnect()
}

// markDisconnected flips connected to false and reports whether this call
// was the one that did so (so both Disconnect and the peer-initiated
// onTransportDisconnect path can share the same teardown without racing).
func (g *Gateway) markDisconnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return false
	}
	g.connected = false
	return true
}

// stopComponents stops the session loops, sender pool, and gap tracker,
// bounded by config.ShutdownTimeout. It never touches the transport: callers
// that reach this from the transport's own read loop (a peer-initiated
// disconnect) would deadlock waiting on a socket close they are themselves
// in the middle of handling.
func (g *Gateway) stopComponents() {
	done := make(chan struct{})
	go func() {
		g.sessionMgr.Stop()
		g.senderPool.Stop()
		g.gapMgr.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(g.config.ShutdownTimeout):
		g.logger.Printf("ERROR: shutdown exceeded %s, abandoning component teardown", g.config.ShutdownTimeout)
	}
}

// IsConnected reports whether the transport believes it is connected.
func (g *Gateway) IsConnected() bool { return g.transport.IsConnected() }

// SendMessage stamps msg with the next session MsgSeqNum, recomputes its
// BodyLength/CheckSum, and hands it to the sender pool via the outbound
// router, classified by message type. Builder-constructed order-entry
// messages arrive here with no MsgSeqNum of their own (builder has no access
// to the session's sequencing authority, per spec.md §4.3's required-header-
// fields list), so this is the one place that assignment can happen before
// the message reaches the wire. Mirrors FixGateway::sendMessage's
// toString()-then-transport-send, generalized to route through a priority
// lane instead of writing directly.
func (g *Gateway) SendMessage(msg *message.FixMessage) error {
	if !g.IsConnected() {
		return errors.New("gateway: not connected")
	}
	msg.SetInt(constants.TagMsgSeqNum, int(g.sessionMgr.NextOutgoingSeqNum()))
	msg.UpdateLengthAndChecksum()
	if !g.outboundRouter.Route(msg) {
		return errors.New("gateway: outbound lane full, message dropped")
	}
	return nil
}

// SendRaw hands a pre-built byte frame directly to the transport, bypassing
// the pool and sender lanes entirely. Mirrors FixGateway::sendRawMessage.
func (g *Gateway) SendRaw(data []byte) error {
	if !g.transport.Send(data) {
		return errors.New("gateway: raw send failed")
	}
	return nil
}

// ParserStats returns the parser's running counters (original's
// getParserStats).
func (g *Gateway) ParserStats() parser.Stats { return g.parser.GetStats() }

// ResetParserStats zeroes the parser's running counters (original's
// resetParserStats).
func (g *Gateway) ResetParserStats() { g.parser.ResetStats() }

// PoolStats returns the message pool's running counters (original's
// getPoolStats).
func (g *Gateway) PoolStats() pool.Stats { return g.pool.GetStats() }

// Pool returns the message pool backing this gateway, so a caller can build
// outbound messages (via the builder package) before handing them to
// SendMessage.
func (g *Gateway) Pool() *pool.Pool { return g.pool }

// SessionStats returns the session state machine's running counters. Not
// present on the original facade (which had no session layer of its own);
// added because spec.md's session module exposes stats the caller needs a
// way to reach.
func (g *Gateway) SessionStats() session.Stats { return g.sessionMgr.GetStats() }

// LatencyStats returns a snapshot of per-message processing latency
// (FixMessage.MarkProcessingStart/MarkProcessingEnd), the Go counterpart of
// the original's PerformanceStats report.
func (g *Gateway) LatencyStats() LatencySnapshot { return g.latency.Snapshot() }

// ResetLatencyStats zeroes the latency accumulator.
func (g *Gateway) ResetLatencyStats() { g.latency.Reset() }

// onTransportData is wired to transport.SetOnData: it feeds every inbound
// chunk through the parser and routes each resulting message onto the
// inbound router's priority lanes, per spec.md §5's receiver-goroutine data
// flow. Mirrors FixGateway::onTcpDataReceived's parse-status switch.
func (g *Gateway) onTransportData(buf []byte) {
	msgs, status := g.parser.Feed(buf)
	for _, msg := range msgs {
		// Router.Route already returns the handle to the pool on a full lane.
		if !g.inboundRouter.Route(msg) {
			g.logger.Printf("ERROR: inbound lane full, dropped message")
		}
	}

	switch status {
	case parser.StatusSuccess, parser.StatusNeedMoreData:
		// nothing further to report
	case parser.StatusInvalidFormat:
		g.reportError("parse: invalid message format")
	case parser.StatusChecksumError:
		g.reportError("parse: checksum mismatch")
		g.recordCritical(audit.ChecksumErrorCategory, "checksum mismatch while framing inbound data", 0)
	case parser.StatusAllocationFailed:
		g.reportError("parse: message pool exhausted")
		g.recordCritical(audit.PoolExhaustedCategory, "message pool exhausted while framing inbound data", 0)
	case parser.StatusMessageTooLarge:
		g.reportError("parse: message exceeded max_message_size")
	case parser.StatusUnsupportedVersion:
		g.reportError("parse: unsupported BeginString")
	}
}

// recordCritical writes a CRITICAL event to the audit sink if one is
// installed; a no-op otherwise.
func (g *Gateway) recordCritical(category, detail string, seqNum int32) {
	g.mu.Lock()
	sink := g.auditSink
	g.mu.Unlock()
	if sink != nil {
		sink.Record(category, detail, seqNum)
	}
}

// onApplicationMessage is wired to session.SetApplicationMessageHandler: it
// forwards every non-admin inbound message to the caller's MessageCallback.
// Mirrors FixGateway::processParsedMessage's try/catch-wrapped
// message_callback_ invocation (Go achieves the "one bad handler cannot take
// down the receiver" property with recover instead of catch).
func (g *Gateway) onApplicationMessage(msg *message.FixMessage) {
	g.mu.Lock()
	cb := g.messageCb
	g.mu.Unlock()
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.reportError("message callback panicked: " + formatRecover(r))
		}
	}()
	cb(msg)
}

// onMessageProcessed is wired to session.SetMessageProcessedHook: it folds
// one message's processing latency into the running LatencyStats
// accumulator. Runs for every inbound message, admin or application.
func (g *Gateway) onMessageProcessed(msg *message.FixMessage) {
	g.latency.record(msg.ProcessingLatencyNanos())
}

func (g *Gateway) onTransportError(reason string) {
	g.reportError("transport: " + reason)
}

// onTransportDisconnect handles a peer-initiated (or read-error) close,
// wired to transport.SetOnDisconnect. It runs on the transport's own read
// goroutine, so it must never call transport.Disconnect() itself — that
// would deadlock waiting for the read loop it is currently running on to
// exit. Per spec.md §7's error table: TransportDisconnected drives the
// session to Disconnected and stops every other loop, draining all lanes.
func (g *Gateway) onTransportDisconnect() {
	if !g.markDisconnected() {
		return
	}
	g.sessionMgr.OnTransportDisconnect()
	g.stopComponents()
	g.reportError("transport disconnected")
}

func (g *Gateway) onGapGiveUp(entry gap.GapEntry, age time.Duration) {
	g.reportError("gap: gave up waiting for resend of a missing sequence number")
	g.recordCritical(audit.GapGiveUpCategory, fmt.Sprintf("gave up after %s waiting for a resend", age), entry.SeqNum)
}

// onSeqTooLow is wired to session.SetSeqTooLowHandler: fired immediately
// before the session logs out and disconnects over an inbound sequence
// number below expected without PossDupFlag=Y.
func (g *Gateway) onSeqTooLow(got, expected int32) {
	g.reportError("session: sequence number too low, disconnecting")
	g.recordCritical(audit.SequenceTooLowCategory, fmt.Sprintf("got %d, expected %d", got, expected), got)
}

// onSendDropped is wired to sender.Pool.SetDropHook: fired when a message
// exhausts SendRetry transport write attempts and is dropped, per spec.md
// §7's TransportWriteFailed row.
func (g *Gateway) onSendDropped(msgType string) {
	g.reportError("sender: dropped message after exhausting retries, msgType=" + msgType)
	g.recordCritical(audit.TransportFailureCategory, "dropped outbound message after exhausting send retries: msgType="+msgType, 0)
}

// pinOrLog attempts to pin the calling goroutine to core, logging (never
// propagating) a failure — core placement is advisory per spec.md §9 and
// must never affect correctness.
func (g *Gateway) pinOrLog(core int, label string) {
	if err := PinCurrentGoroutineToCore(core); err != nil {
		g.logger.Printf("core pinning unavailable for %s: %v", label, err)
	}
}

func (g *Gateway) reportError(reason string) {
	g.logger.Printf("ERROR: %s", reason)
	g.mu.Lock()
	cb := g.errorCb
	g.mu.Unlock()
	if cb != nil {
		cb(reason)
	}
}

func formatRecover(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "unknown panic"
}
