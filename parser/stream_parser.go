// Package parser implements the streaming FIX parser (spec C4): it turns
// successive, possibly-partial byte chunks from the transport into
// fully-formed messages pulled from a pool.Pool, validating framing, body
// length and checksum as it goes.
//
// Grounded on original_source/include/protocol/fix_parser.h for the overall
// shape (ParseResult variants, streaming buffer, statistics struct) and on
// the teacher's fixclient/parser.go for the actual field-splitting style:
// parseTradeFromSegmentFast's single pass over a segment, switching on the
// tag string and slicing out values with IndexByte, is reused almost
// verbatim as fieldSplitter below — the difference is we split the whole
// message instead of a market-data repeating-group entry, and we write into
// a pooled message.FixMessage instead of a Trade struct.
package parser

import (
	"bytes"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"fix-gateway-go/constants"
	"fix-gateway-go/message"
	"fix-gateway-go/pool"
)

// Status is the outcome of one Feed call or one message extraction within
// it, per spec.md §4.4.
type Status int

const (
	StatusSuccess Status = iota
	StatusNeedMoreData
	StatusInvalidFormat
	StatusChecksumError
	StatusAllocationFailed
	StatusMessageTooLarge
	StatusUnsupportedVersion
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusNeedMoreData:
		return "NeedMoreData"
	case StatusInvalidFormat:
		return "InvalidFormat"
	case StatusChecksumError:
		return "ChecksumError"
	case StatusAllocationFailed:
		return "AllocationFailed"
	case StatusMessageTooLarge:
		return "MessageTooLarge"
	case StatusUnsupportedVersion:
		return "UnsupportedVersion"
	default:
		return "Unknown"
	}
}

const beginStringTag = "8=FIX"

// Config holds the parser's tunable knobs, mirroring
// gateway.Config's max_message_size/validate_checksum fields from spec.md §6,
// plus the accepted BeginString values.
type Config struct {
	MaxMessageSize       int
	ValidateChecksum     bool
	BeginStringWhitelist []string
}

// DefaultConfig matches spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:       constants.DefaultMaxMessageSize,
		ValidateChecksum:     true,
		BeginStringWhitelist: []string{constants.FixBeginString42, constants.FixBeginString44},
	}
}

func (c Config) allowsBeginString(v []byte) bool {
	for _, allowed := range c.BeginStringWhitelist {
		if string(v) == allowed {
			return true
		}
	}
	return false
}

// Stats is a snapshot of the parser's running counters, all incremented
// atomically per spec.md §4.4.
type Stats struct {
	MessagesParsed         uint64
	ParseErrors            uint64
	BytesConsumed          uint64
	PartialBuffersCarried  uint64
	GarbageBytesDiscarded  uint64
	MeanParseTimeNanos     uint64
}

// Parser is the streaming framer. It is not safe for concurrent use — the
// gateway's receiver goroutine is its sole caller, per spec.md §5.
type Parser struct {
	pool   *pool.Pool
	config Config
	logger *log.Logger

	buf []byte

	messagesParsed        atomic.Uint64
	parseErrors           atomic.Uint64
	bytesConsumed         atomic.Uint64
	partialBuffersCarried atomic.Uint64
	garbageBytesDiscarded atomic.Uint64
	totalParseTimeNanos   atomic.Uint64
}

// New builds a Parser drawing messages from p.
func New(p *pool.Pool, config Config) *Parser {
	return &Parser{
		pool:   p,
		config: config,
		logger: log.New(log.Writer(), "[parser] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// ResetStreamingState discards any partial message carried across calls,
// per spec.md §4.4's "parser is restartable via reset_streaming_state".
func (p *Parser) ResetStreamingState() {
	p.buf = p.buf[:0]
}

// StreamingBufferSize returns the number of bytes currently buffered
// awaiting more data.
func (p *Parser) StreamingBufferSize() int {
	return len(p.buf)
}

// Feed appends chunk to the internal buffer and extracts as many complete
// messages as are now available. It returns every successfully parsed
// message and the status of the last event encountered: StatusSuccess if
// everything in the buffer parsed cleanly (including "nothing left to do"),
// StatusNeedMoreData if a partial message remains buffered, or the most
// recent error status if a framing/checksum/allocation problem was hit
// (parsing still continues past framing errors by resyncing to the next
// "8=FIX", but stops immediately on StatusAllocationFailed so the failed
// message can be retried once the pool has room).
func (p *Parser) Feed(chunk []byte) ([]*message.FixMessage, Status) {
	p.buf = append(p.buf, chunk...)

	var out []*message.FixMessage
	status := StatusSuccess

	for {
		msg, st, consumed := p.extractOne()
		if msg != nil {
			out = append(out, msg)
		}
		if st == StatusNeedMoreData && len(p.buf) == 0 {
			// Everything buffered has been consumed: nothing left to do, so
			// the status of the last extracted message stands.
			break
		}
		status = st

		if !consumed {
			break
		}
		if st == StatusAllocationFailed {
			break
		}
	}

	if status == StatusNeedMoreData && len(p.buf) > 0 {
		p.partialBuffersCarried.Add(1)
	}
	return out, status
}

// extractOne attempts to pull a single message out of the front of p.buf.
// consumed reports whether the loop in Feed should keep iterating (true
// means either a message was produced or bytes were discarded and another
// attempt is worthwhile; false means the buffer genuinely needs more data
// or a retry of the exact same bytes).
func (p *Parser) extractOne() (msg *message.FixMessage, status Status, consumed bool) {
	start := bytes.Index(p.buf, []byte(beginStringTag))
	if start == -1 {
		// No frame start anywhere in the buffer. Keep at most
		// len(beginStringTag)-1 trailing bytes in case "8=FIX" is split
		// across this call and the next.
		keep := len(beginStringTag) - 1
		if len(p.buf) > keep {
			p.garbageBytesDiscarded.Add(uint64(len(p.buf) - keep))
			p.buf = p.buf[len(p.buf)-keep:]
		}
		return nil, StatusNeedMoreData, false
	}
	if start > 0 {
		p.garbageBytesDiscarded.Add(uint64(start))
		p.buf = p.buf[start:]
	}

	start0 := bytes.IndexByte(p.buf, constants.SOH)
	if start0 == -1 {
		if len(p.buf) > p.config.MaxMessageSize {
			return p.resyncAfterError(StatusInvalidFormat)
		}
		return nil, StatusNeedMoreData, false
	}

	bodyLenStart := start0 + 1
	if !bytes.HasPrefix(p.buf[bodyLenStart:], []byte("9=")) {
		return p.resyncAfterError(StatusInvalidFormat)
	}
	sohAfterBodyLen := bytes.IndexByte(p.buf[bodyLenStart:], constants.SOH)
	if sohAfterBodyLen == -1 {
		if len(p.buf) > p.config.MaxMessageSize {
			return p.resyncAfterError(StatusInvalidFormat)
		}
		return nil, StatusNeedMoreData, false
	}
	sohAfterBodyLen += bodyLenStart

	bodyLenDigits := p.buf[bodyLenStart+2 : sohAfterBodyLen]
	bodyLen, err := strconv.Atoi(string(bodyLenDigits))
	if err != nil || bodyLen < 0 {
		return p.resyncAfterError(StatusInvalidFormat)
	}

	headerLen := sohAfterBodyLen + 1 // bytes from "8=" through the SOH after BodyLength
	expectedTotal := headerLen + bodyLen + 7 // + literal "10=NNN\x01"

	if expectedTotal > p.config.MaxMessageSize {
		return p.resyncAfterError(StatusMessageTooLarge)
	}

	if len(p.buf) < expectedTotal {
		return nil, StatusNeedMoreData, false
	}

	frame := p.buf[:expectedTotal]
	trailerStart := expectedTotal - 7
	if !bytes.HasPrefix(frame[trailerStart:], []byte("10=")) || frame[expectedTotal-1] != constants.SOH {
		return p.resyncAfterError(StatusInvalidFormat)
	}
	checksumDigits := frame[trailerStart+3 : expectedTotal-1]
	if len(checksumDigits) != 3 || !isAllDigits(checksumDigits) {
		return p.resyncAfterError(StatusInvalidFormat)
	}

	if p.config.ValidateChecksum {
		want := checksumOf(frame[:trailerStart])
		if want != string(checksumDigits) {
			return p.resyncAfterError(StatusChecksumError)
		}
	}

	pooled := p.pool.Allocate()
	if pooled == nil {
		p.parseErrors.Add(1)
		// Do not advance past this message: the caller can retry Feed with
		// an empty chunk once the pool has room.
		return nil, StatusAllocationFailed, false
	}
	pooled.Reset()
	pooled.MarkProcessingStart()

	startedAt := time.Now()
	beginString := frame[2:start0]
	if !p.config.allowsBeginString(beginString) {
		p.pool.Deallocate(pooled)
		return p.resyncAfterError(StatusUnsupportedVersion)
	}

	fieldSplitter(frame[:trailerStart], pooled)
	pooled.SetString(constants.TagCheckSum, string(checksumDigits))
	pooled.MarkProcessingEnd()

	p.buf = p.buf[expectedTotal:]
	p.bytesConsumed.Add(uint64(expectedTotal))
	p.messagesParsed.Add(1)
	p.recordParseTime(time.Since(startedAt))

	return pooled, StatusSuccess, true
}

// resyncAfterError discards up to and including the current frame-start
// marker and advances to the next "8=FIX" occurrence, per spec.md §4.4's
// "resync to next 8=FIX" policy.
func (p *Parser) resyncAfterError(status Status) (*message.FixMessage, Status, bool) {
	p.parseErrors.Add(1)
	next := bytes.Index(p.buf[len(beginStringTag):], []byte(beginStringTag))
	if next == -1 {
		p.garbageBytesDiscarded.Add(uint64(len(p.buf)))
		p.buf = p.buf[:0]
		return nil, status, false
	}
	next += len(beginStringTag)
	p.garbageBytesDiscarded.Add(uint64(next))
	p.buf = p.buf[next:]
	return nil, status, true
}

func (p *Parser) recordParseTime(d time.Duration) {
	p.totalParseTimeNanos.Add(uint64(d.Nanoseconds()))
}

// GetStats returns a snapshot of the parser's counters.
func (p *Parser) GetStats() Stats {
	count := p.messagesParsed.Load()
	var mean uint64
	if count > 0 {
		mean = p.totalParseTimeNanos.Load() / count
	}
	return Stats{
		MessagesParsed:        count,
		ParseErrors:           p.parseErrors.Load(),
		BytesConsumed:         p.bytesConsumed.Load(),
		PartialBuffersCarried: p.partialBuffersCarried.Load(),
		GarbageBytesDiscarded: p.garbageBytesDiscarded.Load(),
		MeanParseTimeNanos:    mean,
	}
}

// ResetStats zeroes every counter.
func (p *Parser) ResetStats() {
	p.messagesParsed.Store(0)
	p.parseErrors.Store(0)
	p.bytesConsumed.Store(0)
	p.partialBuffersCarried.Store(0)
	p.garbageBytesDiscarded.Store(0)
	p.totalParseTimeNanos.Store(0)
}

// fieldSplitter walks frame (everything from "8=" through the SOH preceding
// "10=") once, splitting on SOH and on '=' within each field, and writes
// the resulting (tag, value) pairs into msg. Duplicate tags: last
// occurrence wins, per spec.md §4.4's explicit fix of that ambiguity.
//
// This loop is ported field-for-field from the teacher's
// parseTradeFromSegmentFast in fixclient/parser.go, generalized from a
// fixed set of market-data tags to every tag present in the frame.
func fieldSplitter(frame []byte, msg *message.FixMessage) {
	pos := 0
	n := len(frame)
	for pos < n {
		eq := bytes.IndexByte(frame[pos:], '=')
		if eq == -1 {
			break
		}
		eq += pos

		tagBytes := frame[pos:eq]
		valueStart := eq + 1
		soh := bytes.IndexByte(frame[valueStart:], constants.SOH)
		var value []byte
		var next int
		if soh == -1 {
			value = frame[valueStart:]
			next = n
		} else {
			value = frame[valueStart : valueStart+soh]
			next = valueStart + soh + 1
		}

		if tag, err := strconv.Atoi(string(tagBytes)); err == nil && tag >= 0 {
			msg.SetField(uint32(tag), value)
		}

		pos = next
	}
}

func isAllDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func checksumOf(b []byte) string {
	var sum int
	for _, c := range b {
		sum += int(c)
	}
	return fmt.Sprintf("%03d", sum%256)
}

// ExtractMsgType tag-skims raw for "35=" without allocating or running the
// full parser, per spec.md §4.4's extract_msg_type fast path.
func ExtractMsgType(raw []byte) (string, bool) {
	return extractFieldString(raw, "35=")
}

// ExtractField tag-skims raw for the given tag without allocating or
// running the full parser, per spec.md §4.4's extract_field fast path.
func ExtractField(raw []byte, tag uint32) (string, bool) {
	return extractFieldString(raw, strconv.Itoa(int(tag))+"=")
}

func extractFieldString(raw []byte, prefix string) (string, bool) {
	start := bytes.Index(raw, []byte(prefix))
	if start == -1 {
		return "", false
	}
	// Guard against matching a tag number that is a suffix of another
	// (e.g. "135=" containing "35="): require the prefix begins at the
	// message start or immediately follows a SOH.
	if start > 0 && raw[start-1] != constants.SOH {
		rest := raw[start+1:]
		return extractFieldString(rest, prefix)
	}
	start += len(prefix)
	end := bytes.IndexByte(raw[start:], constants.SOH)
	if end == -1 {
		return string(raw[start:]), true
	}
	return string(raw[start : start+end]), true
}
