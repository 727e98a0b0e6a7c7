package session

import (
	"testing"
	"time"

	"fix-gateway-go/constants"
	"fix-gateway-go/gap"
	"fix-gateway-go/message"
	"fix-gateway-go/pool"
	"fix-gateway-go/router"
)

func newTestManager(t *testing.T) (*Manager, *router.Router, *router.Router) {
	t.Helper()
	p := pool.New(64, "session-test")
	inbound := router.New(p, [4]int{})
	outbound := router.New(p, [4]int{})
	cfg := DefaultConfig("GATEWAY", "COUNTERPARTY")
	m := New(cfg, p, inbound, outbound, nil)
	m.Start()
	t.Cleanup(m.Stop)
	return m, inbound, outbound
}

func adminMessage(msgType string, seqNum int) *message.FixMessage {
	msg := message.New()
	msg.SetString(constants.TagMsgType, msgType)
	msg.SetInt(constants.TagMsgSeqNum, seqNum)
	msg.SetString(constants.TagSenderCompID, "COUNTERPARTY")
	msg.SetString(constants.TagTargetCompID, "GATEWAY")
	msg.SetString(constants.TagSendingTime, time.Now().UTC().Format(constants.FixTimeFormat))
	return msg
}

func pushInbound(t *testing.T, inbound *router.Router, msg *message.FixMessage) {
	t.Helper()
	if !inbound.Route(msg) {
		t.Fatalf("failed to route %s into inbound router", msg.MsgType())
	}
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.After(time.Second)
	for m.State() != want {
		select {
		case <-deadline:
			t.Fatalf("State() never reached %s, stuck at %s", want, m.State())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestConnectSendsLogonAndTransitionsToLogonSent(t *testing.T) {
	m, _, outbound := newTestManager(t)

	if !m.Connect() {
		t.Fatal("Connect() should succeed from Disconnected")
	}
	waitForState(t, m, LogonSent)

	if got := outbound.Lane(router.Critical).Queue.Size(); got != 1 {
		t.Errorf("CRITICAL outbound lane size = %d, want 1 (the Logon)", got)
	}
	if m.Connect() {
		t.Error("Connect() should fail once already Connecting/LogonSent")
	}
}

func TestReceivingLogonTransitionsToLoggedOn(t *testing.T) {
	m, inbound, _ := newTestManager(t)
	m.Connect()
	waitForState(t, m, LogonSent)

	pushInbound(t, inbound, adminMessage(constants.MsgTypeLogon, 1))
	waitForState(t, m, LoggedOn)

	if got := m.expectedIncomingSeqNum.Load(); got != 2 {
		t.Errorf("expectedIncomingSeqNum after Logon(seq=1) = %d, want 2", got)
	}
}

func TestInitiateLogoutTransitionsToLogoutSent(t *testing.T) {
	m, inbound, outbound := newTestManager(t)
	m.Connect()
	waitForState(t, m, LogonSent)
	pushInbound(t, inbound, adminMessage(constants.MsgTypeLogon, 1))
	waitForState(t, m, LoggedOn)

	if !m.InitiateLogout("done for today") {
		t.Fatal("InitiateLogout should succeed from LoggedOn")
	}
	waitForState(t, m, LogoutSent)

	stats := outbound.Lane(router.Critical).Queue.Stats()
	if stats.Pushed < 2 {
		t.Errorf("CRITICAL outbound pushes = %d, want at least 2 (Logon + Logout)", stats.Pushed)
	}
}

func TestInOrderSequenceNeverGapsAndAdvancesByOne(t *testing.T) {
	// spec.md §8 testable property: for a strictly increasing, gap-free
	// inbound stream, no ResendRequest is emitted and
	// expected_incoming_seq_num tracks last+1.
	m, inbound, _ := newTestManager(t)
	gapMgr := gap.New(pool.New(8, "gap"), router.New(pool.New(8, "gap"), [4]int{}), m)
	gapMgr.Start()
	defer gapMgr.Stop()
	m.gapMgr = gapMgr

	m.Connect()
	waitForState(t, m, LogonSent)
	pushInbound(t, inbound, adminMessage(constants.MsgTypeLogon, 1))
	waitForState(t, m, LoggedOn)

	for seq := 2; seq <= 10; seq++ {
		pushInbound(t, inbound, adminMessage(constants.MsgTypeHeartbeat, seq))
	}

	deadline := time.After(time.Second)
	for m.expectedIncomingSeqNum.Load() != 11 {
		select {
		case <-deadline:
			t.Fatalf("expectedIncomingSeqNum never reached 11, stuck at %d", m.expectedIncomingSeqNum.Load())
		case <-time.After(time.Millisecond):
		}
	}

	if gapMgr.Count() != 0 {
		t.Errorf("gap count after a gap-free stream = %d, want 0", gapMgr.Count())
	}
}

func TestSkippedSequenceNumberRecordsGapsForEachMissingSeq(t *testing.T) {
	p := pool.New(32, "session-gap-test")
	inbound := router.New(p, [4]int{})
	outbound := router.New(p, [4]int{})
	gapRouter := router.New(p, [4]int{})
	cfg := DefaultConfig("GATEWAY", "COUNTERPARTY")
	m := New(cfg, p, inbound, outbound, nil)
	gapMgr := gap.New(p, gapRouter, m)
	m.gapMgr = gapMgr
	gapMgr.Start()
	defer gapMgr.Stop()
	m.Start()
	defer m.Stop()

	m.Connect()
	waitForState(t, m, LogonSent)
	pushInbound(t, inbound, adminMessage(constants.MsgTypeLogon, 1))
	waitForState(t, m, LoggedOn)

	// Jump straight from seq 2 to seq 5: seqs 2,3,4 should be recorded as gaps.
	pushInbound(t, inbound, adminMessage(constants.MsgTypeHeartbeat, 5))

	deadline := time.After(time.Second)
	for m.expectedIncomingSeqNum.Load() != 6 {
		select {
		case <-deadline:
			t.Fatalf("expectedIncomingSeqNum never advanced to 6, stuck at %d", m.expectedIncomingSeqNum.Load())
		case <-time.After(time.Millisecond):
		}
	}

	for _, seq := range []int32{2, 3, 4} {
		if !gapMgr.HasGap(seq) {
			t.Errorf("expected a recorded gap for seq %d", seq)
		}
	}
}

func TestTooLowSequenceWithoutPossDupTriggersLogout(t *testing.T) {
	m, inbound, outbound := newTestManager(t)
	m.Connect()
	waitForState(t, m, LogonSent)
	pushInbound(t, inbound, adminMessage(constants.MsgTypeLogon, 5))
	waitForState(t, m, LoggedOn)

	pushInbound(t, inbound, adminMessage(constants.MsgTypeHeartbeat, 3))
	waitForState(t, m, Disconnecting)

	stats := outbound.Lane(router.Critical).Queue.Stats()
	if stats.Pushed < 2 {
		t.Errorf("CRITICAL outbound pushes = %d, want at least 2 (Logon + too-low Logout)", stats.Pushed)
	}
}

func TestTooLowSequenceWithPossDupResolvesGapInsteadOfDisconnecting(t *testing.T) {
	p := pool.New(32, "session-possdup-test")
	inbound := router.New(p, [4]int{})
	outbound := router.New(p, [4]int{})
	gapRouter := router.New(p, [4]int{})
	cfg := DefaultConfig("GATEWAY", "COUNTERPARTY")
	m := New(cfg, p, inbound, outbound, nil)
	gapMgr := gap.New(p, gapRouter, m)
	m.gapMgr = gapMgr
	gapMgr.Start()
	defer gapMgr.Stop()
	m.Start()
	defer m.Stop()

	m.Connect()
	waitForState(t, m, LogonSent)
	pushInbound(t, inbound, adminMessage(constants.MsgTypeLogon, 1))
	waitForState(t, m, LoggedOn)

	pushInbound(t, inbound, adminMessage(constants.MsgTypeHeartbeat, 5))
	deadline := time.After(time.Second)
	for !gapMgr.HasGap(3) {
		select {
		case <-deadline:
			t.Fatal("gap for seq 3 never registered")
		case <-time.After(time.Millisecond):
		}
	}

	resend := adminMessage(constants.MsgTypeHeartbeat, 3)
	resend.SetString(constants.TagPossDupFlag, "Y")
	pushInbound(t, inbound, resend)

	deadline = time.After(time.Second)
	for gapMgr.HasGap(3) {
		select {
		case <-deadline:
			t.Fatal("gap for seq 3 was never resolved by the PossDup resend")
		case <-time.After(time.Millisecond):
		}
	}
	if m.State() != LoggedOn {
		t.Errorf("State() after PossDup resend = %s, want LOGGED_ON (no disconnect)", m.State())
	}
}

func TestTestRequestElicitsHeartbeatEchoAtHighPriority(t *testing.T) {
	m, inbound, outbound := newTestManager(t)
	m.Connect()
	waitForState(t, m, LogonSent)
	pushInbound(t, inbound, adminMessage(constants.MsgTypeLogon, 1))
	waitForState(t, m, LoggedOn)

	testReq := adminMessage(constants.MsgTypeTestRequest, 2)
	testReq.SetString(constants.TagTestReqID, "PING-1")
	pushInbound(t, inbound, testReq)

	deadline := time.After(time.Second)
	for outbound.Lane(router.High).Queue.Size() == 0 {
		select {
		case <-deadline:
			t.Fatal("no Heartbeat was routed to HIGH in reply to TestRequest")
		case <-time.After(time.Millisecond):
		}
	}
	echoed, _ := outbound.Lane(router.High).Queue.TryPop()
	if echoed.GetString(constants.TagTestReqID) != "PING-1" {
		t.Errorf("echoed TestReqID = %q, want PING-1", echoed.GetString(constants.TagTestReqID))
	}
}

func TestResendRequestProducesGapFillSequenceReset(t *testing.T) {
	m, inbound, outbound := newTestManager(t)
	m.Connect()
	waitForState(t, m, LogonSent)
	pushInbound(t, inbound, adminMessage(constants.MsgTypeLogon, 1))
	waitForState(t, m, LoggedOn)

	resendReq := adminMessage(constants.MsgTypeResendRequest, 2)
	resendReq.SetInt(constants.TagBeginSeqNo, 2)
	resendReq.SetInt(constants.TagEndSeqNo, 4)
	pushInbound(t, inbound, resendReq)

	deadline := time.After(time.Second)
	for outbound.Lane(router.Medium).Queue.Size() == 0 {
		select {
		case <-deadline:
			t.Fatal("no SequenceReset was routed to MEDIUM in reply to ResendRequest")
		case <-time.After(time.Millisecond):
		}
	}
	reset, _ := outbound.Lane(router.Medium).Queue.TryPop()
	if reset.GetString(constants.TagGapFillFlag) != "Y" {
		t.Error("SequenceReset in reply to ResendRequest should set GapFillFlag=Y")
	}
	if got := reset.GetInt(constants.TagNewSeqNo); got != 5 {
		t.Errorf("NewSeqNo = %d, want 5 (EndSeqNo+1)", got)
	}
}

func TestSequenceResetGapFillOnlyAdvancesForward(t *testing.T) {
	m, inbound, _ := newTestManager(t)
	m.expectedIncomingSeqNum.Store(10)

	backwards := adminMessage(constants.MsgTypeSequenceReset, 10)
	backwards.SetInt(constants.TagNewSeqNo, 3)
	backwards.SetString(constants.TagGapFillFlag, "Y")
	pushInbound(t, inbound, backwards)

	time.Sleep(20 * time.Millisecond)
	// The reset's own MsgSeqNum 10 is accepted by sequence validation
	// (expected becomes 11); NewSeqNo 3 must not pull it back below that.
	if got := m.expectedIncomingSeqNum.Load(); got != 11 {
		t.Errorf("a gap-fill SequenceReset with NewSeqNo < expected should not move it backwards, got %d", got)
	}

	forward := adminMessage(constants.MsgTypeSequenceReset, 11)
	forward.SetInt(constants.TagNewSeqNo, 20)
	forward.SetString(constants.TagGapFillFlag, "Y")
	pushInbound(t, inbound, forward)

	deadline := time.After(time.Second)
	for m.expectedIncomingSeqNum.Load() != 20 {
		select {
		case <-deadline:
			t.Fatalf("expectedIncomingSeqNum never advanced to 20, stuck at %d", m.expectedIncomingSeqNum.Load())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestShouldSendHeartbeatAndTestRequestTiming(t *testing.T) {
	m, _, _ := newTestManager(t)
	interval := 100 * time.Millisecond
	now := time.Now()

	if !m.shouldSendHeartbeat(now, interval) {
		t.Error("shouldSendHeartbeat should be true before any heartbeat has ever been sent")
	}
	m.lastHeartbeatSentNs.Store(now.UnixNano())
	if m.shouldSendHeartbeat(now, interval) {
		t.Error("shouldSendHeartbeat should be false immediately after sending one")
	}
	if m.shouldSendHeartbeat(now.Add(interval+time.Millisecond), interval) != true {
		t.Error("shouldSendHeartbeat should be true once a full interval has elapsed")
	}

	if m.shouldSendTestRequest(now, interval) {
		t.Error("shouldSendTestRequest should be false with no prior received message")
	}
	m.lastMessageRecvNs.Store(now.UnixNano())
	if m.shouldSendTestRequest(now, interval) {
		t.Error("shouldSendTestRequest should be false immediately after a receive")
	}
	past := now.Add(time.Duration(float64(interval) * 1.3))
	if !m.shouldSendTestRequest(past, interval) {
		t.Error("shouldSendTestRequest should be true once 1.2x the interval has elapsed silently")
	}
}
