package message

import (
	"strings"
	"testing"

	"fix-gateway-go/constants"
)

func buildValidLogon() *FixMessage {
	m := New()
	m.SetString(constants.TagBeginString, constants.FixBeginString44)
	m.SetString(constants.TagMsgType, constants.MsgTypeLogon)
	m.SetString(constants.TagSenderCompID, "CLIENT")
	m.SetString(constants.TagTargetCompID, "SERVER")
	m.SetInt(constants.TagMsgSeqNum, 1)
	m.SetString(constants.TagSendingTime, "20231215-10:30:00")
	m.SetInt(constants.TagHeartBtInt, 30)
	m.UpdateLengthAndChecksum()
	return m
}

func TestMsgTypeCachingInvalidatesOnWrite(t *testing.T) {
	m := New()
	if got := m.MsgType(); got != MsgUnknown {
		t.Fatalf("MsgType() on empty message = %v, want Unknown", got)
	}

	m.SetString(constants.TagMsgType, constants.MsgTypeLogon)
	if got := m.MsgType(); got != MsgLogon {
		t.Fatalf("MsgType() = %v, want Logon", got)
	}

	m.SetString(constants.TagMsgType, constants.MsgTypeLogout)
	if got := m.MsgType(); got != MsgLogout {
		t.Fatalf("MsgType() after rewrite = %v, want Logout", got)
	}
}

func TestIsAdminMessage(t *testing.T) {
	m := New()
	m.SetString(constants.TagMsgType, constants.MsgTypeNewOrderSingle)
	if m.IsAdminMessage() {
		t.Error("NewOrderSingle should not be an admin message")
	}
	m.SetString(constants.TagMsgType, constants.MsgTypeLogon)
	if !m.IsAdminMessage() {
		t.Error("Logon should be an admin message")
	}
}

func TestStringProducesCanonicalTagOrder(t *testing.T) {
	m := buildValidLogon()
	s := m.String()

	mustBefore := func(a, b string) {
		t.Helper()
		ia := strings.Index(s, a)
		ib := strings.Index(s, b)
		if ia == -1 || ib == -1 || ia > ib {
			t.Errorf("expected %q before %q in %q", a, b, s)
		}
	}
	mustBefore("8=", "9=")
	mustBefore("9=", "35=")
	mustBefore("35=", "49=")
	mustBefore("49=", "56=")
	if !strings.HasSuffix(s, "\x01") {
		t.Error("serialized message should end in SOH")
	}
	idx := strings.LastIndex(s, "10=")
	if idx == -1 {
		t.Fatal("missing checksum field")
	}
}

func TestChecksumRoundTrips(t *testing.T) {
	m := buildValidLogon()
	s := m.String()

	idx := strings.LastIndex(s, "10=")
	checksum := s[idx+3 : len(s)-1]
	if len(checksum) != 3 {
		t.Fatalf("checksum field should be exactly 3 digits, got %q", checksum)
	}

	var sum int
	for i := 0; i < idx; i++ {
		sum += int(s[i])
	}
	want := sum % 256
	if got := checksum; got != pad3(want) {
		t.Errorf("checksum = %s, want %s", got, pad3(want))
	}
}

func pad3(n int) string {
	s := "000" + itoa(n)
	return s[len(s)-3:]
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestValidateDetectsMissingRequiredFields(t *testing.T) {
	m := New()
	m.SetString(constants.TagMsgType, constants.MsgTypeLogon)
	violations := m.Validate()
	if len(violations) == 0 {
		t.Fatal("expected violations for a message missing required header fields")
	}
}

func TestValidateAcceptsWellFormedMessage(t *testing.T) {
	m := buildValidLogon()
	if violations := m.Validate(); len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
}

func TestResetClearsFieldsAndCaches(t *testing.T) {
	m := buildValidLogon()
	if m.FieldCount() == 0 {
		t.Fatal("precondition: message should have fields")
	}
	m.String() // populate string cache
	m.Reset()
	if m.FieldCount() != 0 {
		t.Errorf("FieldCount() after Reset = %d, want 0", m.FieldCount())
	}
	if got := m.MsgType(); got != MsgUnknown {
		t.Errorf("MsgType() after Reset = %v, want Unknown", got)
	}
}

func TestStringCacheInvalidatedByMutation(t *testing.T) {
	m := buildValidLogon()
	first := m.String()
	m.SetInt(constants.TagMsgSeqNum, 2)
	second := m.String()
	if first == second {
		t.Error("String() should reflect the updated MsgSeqNum, cache was not invalidated")
	}
}
