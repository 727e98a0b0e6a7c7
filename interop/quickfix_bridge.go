// Package interop cross-checks this repo's own wire encoding against
// quickfixgo/quickfix, the FIX engine the original fixclient used for its
// live session. The gateway never depends on this package at runtime — it
// exists so interop_test.go can assert that a message built and serialized
// by builder/message round-trips through an independent FIX implementation
// with the same tag order, BodyLength and CheckSum.
//
// Grounded on the teacher's builder/messages.go (buildHeader building a
// *quickfix.Message via quickfix.NewMessage/SetField) and
// fixclient/fixapp.go (ToAdmin/FromApp reading a *quickfix.Message's
// Header/Body through quickfix.FIXString fields) — this package keeps
// quickfix wired as a conformance oracle rather than as the session engine,
// since that role is now owned by this repo's own session package.
package interop

import (
	"bytes"
	"fmt"

	"fix-gateway-go/message"
	"fix-gateway-go/parser"
	"fix-gateway-go/pool"

	"github.com/quickfixgo/quickfix"
)

// ToQuickfix serializes msg to its canonical wire form and hands it to
// quickfix's own parser, returning the *quickfix.Message it produces. An
// error here means quickfix itself rejected a frame this repo considers
// well-formed.
func ToQuickfix(msg *message.FixMessage) (*quickfix.Message, error) {
	qm := quickfix.NewMessage()
	if err := quickfix.ParseMessage(qm, bytes.NewBuffer(msg.Bytes())); err != nil {
		return nil, fmt.Errorf("interop: quickfix rejected message: %w", err)
	}
	return qm, nil
}

// FromQuickfix re-frames a quickfix.Message's own wire string through this
// repo's stream parser, returning the *message.FixMessage it produces. An
// error here means this repo's parser rejected a frame quickfix considers
// well-formed.
func FromQuickfix(qm *quickfix.Message) (*message.FixMessage, error) {
	p := parser.New(pool.New(1, "interop"), parser.DefaultConfig())
	msgs, status := p.Feed([]byte(qm.String()))
	if status != parser.StatusSuccess || len(msgs) != 1 {
		return nil, fmt.Errorf("interop: parser rejected quickfix message (status=%v, count=%d)", status, len(msgs))
	}
	return msgs[0], nil
}

// FieldsMatch reports whether quickfix and this repo's message agree on the
// string value of tag, treating "field absent in both" as a match.
func FieldsMatch(msg *message.FixMessage, qm *quickfix.Message, tag quickfix.Tag) bool {
	ours := msg.GetString(uint32(tag))

	var field quickfix.FIXString
	err := qm.Body.GetField(tag, &field)
	if err != nil {
		err = qm.Header.GetField(tag, &field)
	}
	if err != nil {
		return ours == ""
	}
	return ours == string(field)
}
