package parser

import (
	"fmt"
	"testing"

	"fix-gateway-go/constants"
	"fix-gateway-go/message"
	"fix-gateway-go/pool"
)

// buildFIXBytes assembles a well-formed FIX message from (tag, value) body
// fields (everything after MsgType, before CheckSum), computing BodyLength
// and CheckSum independently of the package under test — mirroring the
// teacher's generateFIXMessage helper in fixclient/parser_benchmark_test.go.
func buildFIXBytes(beginString, msgType string, fields [][2]string) []byte {
	body := fmt.Sprintf("35=%s\x01", msgType)
	for _, f := range fields {
		body += fmt.Sprintf("%s=%s\x01", f[0], f[1])
	}
	header := fmt.Sprintf("8=%s\x019=%d\x01", beginString, len(body))
	withoutChecksum := header + body

	var sum int
	for i := 0; i < len(withoutChecksum); i++ {
		sum += int(withoutChecksum[i])
	}
	checksum := fmt.Sprintf("%03d", sum%256)
	return []byte(withoutChecksum + "10=" + checksum + "\x01")
}

func newOrderSingleBytes() []byte {
	return buildFIXBytes(constants.FixBeginString44, constants.MsgTypeNewOrderSingle, [][2]string{
		{"49", "CLIENT"},
		{"56", "SERVER"},
		{"34", "2"},
		{"52", "20231215-10:30:00"},
		{"11", "ORD1"},
		{"55", "AAPL"},
		{"54", "1"},
		{"38", "100"},
	})
}

func TestFeedParsesWellFormedMessage(t *testing.T) {
	p := New(pool.New(16, "test"), DefaultConfig())
	raw := newOrderSingleBytes()

	msgs, status := p.Feed(raw)
	if status != StatusSuccess {
		t.Fatalf("status = %v, want Success", status)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	if got := msgs[0].GetString(constants.TagClOrdID); got != "ORD1" {
		t.Errorf("ClOrdID = %q, want ORD1", got)
	}
	if got := msgs[0].GetString(constants.TagSymbol); got != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", got)
	}
}

func TestFeedChunkedDeliveryReturnsNeedMoreDataUntilLastChunk(t *testing.T) {
	p := New(pool.New(16, "test"), DefaultConfig())
	raw := newOrderSingleBytes()

	const chunkSize = 7
	var total int
	var lastStatus Status
	for i := 0; i < len(raw); i += chunkSize {
		end := i + chunkSize
		if end > len(raw) {
			end = len(raw)
		}
		msgs, status := p.Feed(raw[i:end])
		lastStatus = status
		total += len(msgs)

		isLastChunk := end == len(raw)
		if !isLastChunk && status != StatusNeedMoreData {
			t.Errorf("chunk ending at %d: status = %v, want NeedMoreData", end, status)
		}
	}
	if lastStatus != StatusSuccess {
		t.Fatalf("final status = %v, want Success", lastStatus)
	}
	if total != 1 {
		t.Fatalf("total messages parsed across all chunks = %d, want 1", total)
	}
}

func TestFeedDetectsChecksumError(t *testing.T) {
	p := New(pool.New(16, "test"), DefaultConfig())
	raw := newOrderSingleBytes()

	// Corrupt a digit of the checksum trailer.
	idx := len(raw) - 4
	if raw[idx] == '0' {
		raw[idx] = '9'
	} else {
		raw[idx] = '0'
	}

	msgs, status := p.Feed(raw)
	if status != StatusChecksumError {
		t.Fatalf("status = %v, want ChecksumError", status)
	}
	if len(msgs) != 0 {
		t.Fatalf("len(msgs) = %d, want 0", len(msgs))
	}
}

func TestFeedResyncsAfterGarbagePrefix(t *testing.T) {
	p := New(pool.New(16, "test"), DefaultConfig())
	raw := append([]byte("garbage-not-a-fix-message"), newOrderSingleBytes()...)

	msgs, status := p.Feed(raw)
	if status != StatusSuccess {
		t.Fatalf("status = %v, want Success", status)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
}

func TestFeedPoolExhaustionReturnsAllocationFailedThenRetries(t *testing.T) {
	pl := pool.New(4, "tiny")
	p := New(pl, DefaultConfig())

	var allocatedMsgs []*message.FixMessage
	for i := 0; i < 4; i++ {
		msgs, status := p.Feed(newOrderSingleBytes())
		if status != StatusSuccess || len(msgs) != 1 {
			t.Fatalf("message %d: status=%v len=%d, want Success/1", i, status, len(msgs))
		}
		allocatedMsgs = append(allocatedMsgs, msgs[0])
	}

	msgs, status := p.Feed(newOrderSingleBytes())
	if status != StatusAllocationFailed {
		t.Fatalf("status = %v, want AllocationFailed", status)
	}
	if len(msgs) != 0 {
		t.Fatalf("len(msgs) = %d, want 0", len(msgs))
	}

	// Freeing one of the previously parsed messages should let the retried
	// fifth message through on the next Feed, per spec.md scenario 5.
	pl.Deallocate(allocatedMsgs[0])

	msgs, status = p.Feed(nil)
	if status != StatusSuccess || len(msgs) != 1 {
		t.Fatalf("retry after freeing a slot: status=%v len=%d, want Success/1", status, len(msgs))
	}
}

func TestExtractMsgTypeFastPath(t *testing.T) {
	raw := newOrderSingleBytes()
	got, ok := ExtractMsgType(raw)
	if !ok || got != constants.MsgTypeNewOrderSingle {
		t.Fatalf("ExtractMsgType = %q, %v; want %q, true", got, ok, constants.MsgTypeNewOrderSingle)
	}
}

func TestExtractFieldFastPath(t *testing.T) {
	raw := newOrderSingleBytes()
	got, ok := ExtractField(raw, constants.TagSymbol)
	if !ok || got != "AAPL" {
		t.Fatalf("ExtractField(55) = %q, %v; want AAPL, true", got, ok)
	}
}

func BenchmarkFeedNewOrderSingle(b *testing.B) {
	raw := newOrderSingleBytes()
	p := New(pool.New(1024, "bench"), DefaultConfig())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Feed(raw)
	}
}
