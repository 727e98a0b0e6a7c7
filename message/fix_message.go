// Package message implements FixMessage (spec C3): an in-place tag->value
// container with a lazily-cached MsgType classification, designed to live
// inside a pool.Pool slot and be recycled without ever running a destructor.
//
// Grounded on original_source/include/protocol/fix_message.h: the field map,
// the mutable cachedMsgType_/msgTypeCached_ pair, the
// toString/calculateChecksum/updateLengthAndChecksum trio, and the
// steady-clock creation/lastModified/processingStart/processingEnd
// timestamps all come from there. Header tag numbers are reused from the
// teacher's constants/constants.go, retargeted to this package's own field
// map instead of quickfix.FieldMap.
package message

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"fix-gateway-go/constants"
)

// headerOrder lists the session-header tags, in wire order, that follow
// BeginString/BodyLength/MsgType and precede the body. Tags not present on a
// given message are simply skipped.
var headerOrder = []uint32{
	constants.TagSenderCompID,
	constants.TagTargetCompID,
	constants.TagMsgSeqNum,
	constants.TagPossDupFlag,
	constants.TagPossResend,
	constants.TagSendingTime,
	constants.TagOrigSendingTime,
}

// requiredHeaderTags are checked by Validate per spec.md §4.3.
var requiredHeaderTags = []uint32{
	constants.TagBeginString,
	constants.TagBodyLength,
	constants.TagMsgType,
	constants.TagMsgSeqNum,
	constants.TagSenderCompID,
	constants.TagTargetCompID,
	constants.TagSendingTime,
	constants.TagCheckSum,
}

// FixMessage is a mutable tag->value container. The zero value has no field
// map and must be Reset before fields are written; New and pool.New both
// Reset every message they create. pool.Pool.Allocate does not Reset a
// recycled slot.
type FixMessage struct {
	fields map[uint32][]byte

	creationTime    int64
	lastModified    int64
	processingStart int64
	processingEnd   int64

	cachedMsgType MsgType
	msgTypeCached bool

	stringCache      []byte
	stringCacheValid bool
}

// New constructs a standalone FixMessage outside of any pool. Production
// code on the hot path should prefer pool.Pool.Allocate; New exists for
// tests and for building one-off messages.
func New() *FixMessage {
	m := &FixMessage{}
	m.Reset()
	return m
}

// Reset clears all fields and stamps a fresh creation time. pool.New calls
// it on every slot at construction; pool.Pool.Allocate does not, since the
// pool hands back a previously-used slot with its contents not cleared
// (spec.md §4.2), so a caller that needs an empty message (e.g. the parser)
// calls Reset on the slot it allocated.
func (m *FixMessage) Reset() {
	if m.fields == nil {
		m.fields = make(map[uint32][]byte, 24)
	} else {
		for k := range m.fields {
			delete(m.fields, k)
		}
	}
	now := time.Now().UnixNano()
	m.creationTime = now
	m.lastModified = now
	m.processingStart = 0
	m.processingEnd = 0
	m.cachedMsgType = MsgUnknown
	m.msgTypeCached = false
	m.stringCache = nil
	m.stringCacheValid = false
}

func (m *FixMessage) touchModified() {
	m.lastModified = time.Now().UnixNano()
	m.stringCacheValid = false
}

// SetField stores value under tag, invalidating the serialization cache and,
// if tag is MsgType, the cached classification.
func (m *FixMessage) SetField(tag uint32, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.fields[tag] = cp
	if tag == constants.TagMsgType {
		m.msgTypeCached = false
	}
	m.touchModified()
}

// SetString is a convenience wrapper over SetField for string values.
func (m *FixMessage) SetString(tag uint32, value string) {
	m.SetField(tag, []byte(value))
}

// SetInt is a convenience wrapper over SetField for integer values.
func (m *FixMessage) SetInt(tag uint32, value int) {
	m.SetString(tag, strconv.Itoa(value))
}

// GetField returns the raw bytes stored under tag and whether it is present.
// The returned slice aliases internal storage and must not be mutated by the
// caller.
func (m *FixMessage) GetField(tag uint32) ([]byte, bool) {
	v, ok := m.fields[tag]
	return v, ok
}

// GetString is a convenience wrapper over GetField.
func (m *FixMessage) GetString(tag uint32) string {
	v, ok := m.fields[tag]
	if !ok {
		return ""
	}
	return string(v)
}

// GetInt parses the field at tag as a base-10 integer, returning 0 if absent
// or malformed.
func (m *FixMessage) GetInt(tag uint32) int {
	v, ok := m.fields[tag]
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(string(v))
	return n
}

// HasField reports whether tag is present.
func (m *FixMessage) HasField(tag uint32) bool {
	_, ok := m.fields[tag]
	return ok
}

// RemoveField deletes tag if present, invalidating caches as SetField does.
func (m *FixMessage) RemoveField(tag uint32) {
	if _, ok := m.fields[tag]; !ok {
		return
	}
	delete(m.fields, tag)
	if tag == constants.TagMsgType {
		m.msgTypeCached = false
	}
	m.touchModified()
}

// FieldCount returns the number of distinct tags currently stored.
func (m *FixMessage) FieldCount() int {
	return len(m.fields)
}

// MsgType returns the cached classification of tag 35, computing and caching
// it on first access after a write. Per spec.md §4.3, this is the only place
// the raw MsgType bytes are ever decoded into the enum.
func (m *FixMessage) MsgType() MsgType {
	if m.msgTypeCached {
		return m.cachedMsgType
	}
	raw, ok := m.fields[constants.TagMsgType]
	if !ok {
		m.cachedMsgType = MsgUnknown
	} else {
		m.cachedMsgType = classify(raw)
	}
	m.msgTypeCached = true
	return m.cachedMsgType
}

// IsAdminMessage reports whether the cached MsgType is a session-layer type.
func (m *FixMessage) IsAdminMessage() bool {
	return m.MsgType().IsAdmin()
}

// MarkProcessingStart stamps the processing-start timestamp, used by
// gateway.LatencyStats to compute per-message latency.
func (m *FixMessage) MarkProcessingStart() {
	m.processingStart = time.Now().UnixNano()
}

// MarkProcessingEnd stamps the processing-end timestamp.
func (m *FixMessage) MarkProcessingEnd() {
	m.processingEnd = time.Now().UnixNano()
}

// ProcessingLatencyNanos returns processingEnd-processingStart, or 0 if
// either timestamp has not been stamped.
func (m *FixMessage) ProcessingLatencyNanos() int64 {
	if m.processingStart == 0 || m.processingEnd == 0 {
		return 0
	}
	return m.processingEnd - m.processingStart
}

// CreationTime returns the monotonic-ish creation timestamp (nanoseconds
// since the Unix epoch, per time.Now().UnixNano()).
func (m *FixMessage) CreationTime() int64 { return m.creationTime }

// LastModified returns the last-write timestamp.
func (m *FixMessage) LastModified() int64 { return m.lastModified }

// Validate checks the required header fields and recomputes body length and
// checksum, returning a list of human-readable violations (empty = valid),
// per spec.md §4.3.
func (m *FixMessage) Validate() []string {
	var violations []string

	for _, tag := range requiredHeaderTags {
		if !m.HasField(tag) {
			violations = append(violations, fmt.Sprintf("missing required tag %d", tag))
		}
	}

	if bodyLenField, ok := m.fields[constants.TagBodyLength]; ok {
		want := m.calculateBodyLength()
		got, err := strconv.Atoi(string(bodyLenField))
		if err != nil || got != want {
			violations = append(violations, fmt.Sprintf("body length mismatch: field=%s computed=%d", bodyLenField, want))
		}
	}

	if checksumField, ok := m.fields[constants.TagCheckSum]; ok {
		want := m.calculateChecksum()
		if string(checksumField) != want {
			violations = append(violations, fmt.Sprintf("checksum mismatch: field=%s computed=%s", checksumField, want))
		}
	}

	return violations
}

// orderedBodyTags returns every field tag except the header/trailer tags
// that String renders explicitly, sorted ascending for deterministic
// serialization.
func (m *FixMessage) orderedBodyTags() []uint32 {
	excluded := map[uint32]bool{
		constants.TagBeginString: true,
		constants.TagBodyLength:  true,
		constants.TagMsgType:     true,
		constants.TagCheckSum:    true,
	}
	for _, tag := range headerOrder {
		excluded[tag] = true
	}

	tags := make([]uint32, 0, len(m.fields))
	for tag := range m.fields {
		if !excluded[tag] {
			tags = append(tags, tag)
		}
	}
	// Insertion sort: body field counts are small (tens, not thousands) on
	// this hot path, and this avoids pulling in sort for a handful of tags.
	for i := 1; i < len(tags); i++ {
		for j := i; j > 0 && tags[j-1] > tags[j]; j-- {
			tags[j-1], tags[j] = tags[j], tags[j-1]
		}
	}
	return tags
}

// toStringWithoutChecksum renders BeginString..body (everything up to but
// not including the CheckSum field), recomputing BodyLength along the way.
func (m *FixMessage) toStringWithoutChecksum() []byte {
	var body bytes.Buffer
	body.WriteString(strconv.Itoa(int(constants.TagMsgType)))
	body.WriteByte('=')
	body.Write(m.fields[constants.TagMsgType])
	body.WriteByte(constants.SOH)

	for _, tag := range headerOrder {
		v, ok := m.fields[tag]
		if !ok {
			continue
		}
		body.WriteString(strconv.Itoa(int(tag)))
		body.WriteByte('=')
		body.Write(v)
		body.WriteByte(constants.SOH)
	}

	for _, tag := range m.orderedBodyTags() {
		body.WriteString(strconv.Itoa(int(tag)))
		body.WriteByte('=')
		body.Write(m.fields[tag])
		body.WriteByte(constants.SOH)
	}

	var out bytes.Buffer
	beginString := m.fields[constants.TagBeginString]
	out.WriteString(strconv.Itoa(int(constants.TagBeginString)))
	out.WriteByte('=')
	out.Write(beginString)
	out.WriteByte(constants.SOH)
	out.WriteString(strconv.Itoa(int(constants.TagBodyLength)))
	out.WriteByte('=')
	out.WriteString(strconv.Itoa(body.Len()))
	out.WriteByte(constants.SOH)
	out.Write(body.Bytes())
	return out.Bytes()
}

// calculateBodyLength returns the byte count from the character after
// "9=<len>\x01" through and including the SOH preceding "10=", per spec.md
// §3's BodyLength invariant.
func (m *FixMessage) calculateBodyLength() int {
	withoutChecksum := m.toStringWithoutChecksum()
	sohAfterBodyLength := bytes.IndexByte(withoutChecksum, constants.SOH)
	sohAfterBodyLength = bytes.IndexByte(withoutChecksum[sohAfterBodyLength+1:], constants.SOH) + sohAfterBodyLength + 1
	return len(withoutChecksum) - sohAfterBodyLength - 1
}

// calculateChecksum returns the modulo-256 sum of all bytes in
// toStringWithoutChecksum, rendered as exactly three ASCII decimal digits,
// per spec.md §3's CheckSum invariant.
func (m *FixMessage) calculateChecksum() string {
	withoutChecksum := m.toStringWithoutChecksum()
	var sum int
	for _, b := range withoutChecksum {
		sum += int(b)
	}
	return fmt.Sprintf("%03d", sum%256)
}

// UpdateLengthAndChecksum recomputes and writes tags 9 and 10 into the
// field map. String() does not call it: String computes BodyLength and
// CheckSum for its own output only, without storing them as fields.
func (m *FixMessage) UpdateLengthAndChecksum() {
	m.SetInt(constants.TagBodyLength, m.calculateBodyLength())
	m.SetString(constants.TagCheckSum, m.calculateChecksum())
}

// String serializes the message in canonical FIX tag order
// (BeginString, BodyLength, MsgType, session header, body, CheckSum),
// recomputing BodyLength and CheckSum just-in-time and caching the result
// until the next mutation, per spec.md §4.3.
func (m *FixMessage) String() string {
	if m.stringCacheValid {
		return string(m.stringCache)
	}

	withoutChecksum := m.toStringWithoutChecksum()
	var sum int
	for _, b := range withoutChecksum {
		sum += int(b)
	}
	checksum := fmt.Sprintf("%03d", sum%256)

	var out bytes.Buffer
	out.Write(withoutChecksum)
	out.WriteString(strconv.Itoa(int(constants.TagCheckSum)))
	out.WriteByte('=')
	out.WriteString(checksum)
	out.WriteByte(constants.SOH)

	m.stringCache = out.Bytes()
	m.stringCacheValid = true
	return string(m.stringCache)
}

// Bytes returns the same serialization as String without the string copy,
// for callers (the sender) that write directly to a transport.
func (m *FixMessage) Bytes() []byte {
	m.String()
	return m.stringCache
}
