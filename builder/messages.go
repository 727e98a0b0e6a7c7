// Package builder provides factory functions for the order-entry messages
// the gateway sends: New Order Single, Order Cancel Request, Order
// Cancel/Replace Request, and Order Status Request. Each factory allocates
// from the caller-supplied pool and sets the header's SenderCompID and
// TargetCompID from the caller-supplied identities, but never MsgSeqNum or
// CheckSum/BodyLength: this package has no access to a session.Manager, so
// those are left for gateway.Gateway.SendMessage to stamp once it assigns
// the next sequence number.
//
// Grounded on the teacher's builder/messages.go: the
// setString/setStringIfNotEmpty helper pair, the params-struct-per-message
// convention (NewOrderParams/CancelOrderParams/ReplaceOrderParams), and the
// buildHeader-then-fields layout are carried over directly, retargeted from
// *quickfix.Message field setters onto *message.FixMessage. The
// Prime-specific fields (TargetStrategy, QuoteID, RFQ accept/quote-request
// builders, market data request) are dropped: they have no equivalent tag
// in this repo's constants package, which covers standard FIX 4.4 order
// entry rather than a venue-specific dialect.
package builder

import (
	"time"

	"fix-gateway-go/constants"
	"fix-gateway-go/message"
	"fix-gateway-go/pool"
)

func setString(msg *message.FixMessage, tag uint32, value string) {
	msg.SetString(tag, value)
}

// setStringIfNotEmpty sets a field only if the value is non-empty, matching
// the teacher's handling of FIX's conditional (not-always-present) fields.
func setStringIfNotEmpty(msg *message.FixMessage, tag uint32, value string) {
	if value != "" {
		msg.SetString(tag, value)
	}
}

// buildHeader sets the header fields every order-entry message shares,
// leaving MsgSeqNum for the caller to set once it has been assigned by the
// session (this package runs outside the session's sequencing authority).
func buildHeader(msg *message.FixMessage, msgType, senderCompID, targetCompID string) {
	setString(msg, constants.TagBeginString, constants.FixBeginString44)
	setString(msg, constants.TagMsgType, msgType)
	setString(msg, constants.TagSenderCompID, senderCompID)
	setString(msg, constants.TagTargetCompID, targetCompID)
	setString(msg, constants.TagSendingTime, time.Now().UTC().Format(constants.FixTimeFormat))
}

// --- New Order Single (D) ---

// NewOrderParams contains parameters for creating a new order.
type NewOrderParams struct {
	Account     string // Portfolio/account identifier (required)
	ClOrdID     string // Client order ID (required)
	Symbol      string // Instrument symbol (required)
	Side        string // constants.SideBuy / constants.SideSell (required)
	OrdType     string // Order type (required)
	TimeInForce string // Time in force (required)
	OrderQty    string // Size in base units (conditional)
	Price       string // Limit price (conditional)
}

// BuildNewOrderSingle allocates a New Order Single (D) from p and populates
// it from params. MsgSeqNum and the trailer checksum are left unset;
// gateway.Gateway.SendMessage fills both in before routing it.
//
// Example:
//
//	params := builder.NewOrderParams{
//	    Account: "acct-1", ClOrdID: "order-1", Symbol: "BTC-USD",
//	    Side: constants.SideBuy, OrdType: "2", TimeInForce: "1",
//	    OrderQty: "0.01", Price: "50000.00",
//	}
//	msg := builder.BuildNewOrderSingle(p, params, "GATEWAY", "COUNTERPARTY")
func BuildNewOrderSingle(p *pool.Pool, params NewOrderParams, senderCompID, targetCompID string) *message.FixMessage {
	msg := p.Allocate()
	if msg == nil {
		return nil
	}
	buildHeader(msg, constants.MsgTypeNewOrderSingle, senderCompID, targetCompID)

	setString(msg, constants.TagAccount, params.Account)
	setString(msg, constants.TagClOrdID, params.ClOrdID)
	setString(msg, constants.TagSymbol, params.Symbol)
	setString(msg, constants.TagSide, params.Side)
	setString(msg, constants.TagOrdType, params.OrdType)
	setString(msg, constants.TagTimeInForce, params.TimeInForce)
	setString(msg, constants.TagTransactTime, time.Now().UTC().Format(constants.FixTimeFormat))

	setStringIfNotEmpty(msg, constants.TagOrderQty, params.OrderQty)
	setStringIfNotEmpty(msg, constants.TagPrice, params.Price)

	return msg
}

// --- Order Cancel Request (F) ---

// CancelOrderParams contains parameters for canceling an order.
type CancelOrderParams struct {
	Account     string // Portfolio/account identifier (required)
	ClOrdID     string // Cancel request ID (required)
	OrigClOrdID string // Original order's ClOrdID (required)
	OrderID     string // Venue-assigned order ID (required)
	Symbol      string // Instrument symbol (required)
	Side        string // Must match original (required)
	OrderQty    string // Original order quantity (conditional)
}

// BuildOrderCancelRequest allocates an Order Cancel Request (F) from p.
func BuildOrderCancelRequest(p *pool.Pool, params CancelOrderParams, senderCompID, targetCompID string) *message.FixMessage {
	msg := p.Allocate()
	if msg == nil {
		return nil
	}
	buildHeader(msg, constants.MsgTypeOrderCancelRequest, senderCompID, targetCompID)

	setString(msg, constants.TagAccount, params.Account)
	setString(msg, constants.TagClOrdID, params.ClOrdID)
	setString(msg, constants.TagOrigClOrdID, params.OrigClOrdID)
	setString(msg, constants.TagOrderID, params.OrderID)
	setString(msg, constants.TagSymbol, params.Symbol)
	setString(msg, constants.TagSide, params.Side)
	setString(msg, constants.TagTransactTime, time.Now().UTC().Format(constants.FixTimeFormat))

	setStringIfNotEmpty(msg, constants.TagOrderQty, params.OrderQty)

	return msg
}

// --- Order Cancel/Replace Request (G) ---

// ReplaceOrderParams contains parameters for modifying an order.
type ReplaceOrderParams struct {
	Account     string // Portfolio/account identifier (required)
	ClOrdID     string // New request ID, must differ from OrigClOrdID (required)
	OrigClOrdID string // Original order's ClOrdID (required)
	OrderID     string // Venue-assigned order ID (required)
	Symbol      string // Instrument symbol (required)
	Side        string // Must match original (required)
	OrdType     string // Must match original (required)
	OrderQty    string // Total intended quantity including filled (conditional)
	Price       string // New limit price (required)
}

// BuildOrderCancelReplaceRequest allocates an Order Cancel/Replace Request
// (G) from p.
func BuildOrderCancelReplaceRequest(p *pool.Pool, params ReplaceOrderParams, senderCompID, targetCompID string) *message.FixMessage {
	msg := p.Allocate()
	if msg == nil {
		return nil
	}
	buildHeader(msg, constants.MsgTypeOrderCancelReplace, senderCompID, targetCompID)

	setString(msg, constants.TagAccount, params.Account)
	setString(msg, constants.TagClOrdID, params.ClOrdID)
	setString(msg, constants.TagOrigClOrdID, params.OrigClOrdID)
	setString(msg, constants.TagOrderID, params.OrderID)
	setString(msg, constants.TagSymbol, params.Symbol)
	setString(msg, constants.TagSide, params.Side)
	setString(msg, constants.TagOrdType, params.OrdType)
	setString(msg, constants.TagTransactTime, time.Now().UTC().Format(constants.FixTimeFormat))
	setString(msg, constants.TagPrice, params.Price)

	setStringIfNotEmpty(msg, constants.TagOrderQty, params.OrderQty)

	return msg
}

// --- Order Status Request (H) ---

// BuildOrderStatusRequest allocates an Order Status Request (H) from p.
func BuildOrderStatusRequest(p *pool.Pool, orderID, clOrdID, symbol, side, senderCompID, targetCompID string) *message.FixMessage {
	msg := p.Allocate()
	if msg == nil {
		return nil
	}
	buildHeader(msg, constants.MsgTypeOrderStatusRequest, senderCompID, targetCompID)

	setString(msg, constants.TagOrderID, orderID)
	setStringIfNotEmpty(msg, constants.TagClOrdID, clOrdID)
	setStringIfNotEmpty(msg, constants.TagSymbol, symbol)
	setStringIfNotEmpty(msg, constants.TagSide, side)

	return msg
}
