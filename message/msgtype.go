package message

import "fix-gateway-go/constants"

// MsgType is the cached, classified form of tag 35. It exists so the router
// and session manager never re-parse the raw MsgType bytes on the hot path;
// FixMessage computes it once per write to tag 35 and reuses it until the
// next write.
type MsgType int

const (
	MsgUnknown MsgType = iota
	MsgLogon
	MsgLogout
	MsgHeartbeat
	MsgTestRequest
	MsgResendRequest
	MsgSequenceReset
	MsgReject
	MsgNewOrderSingle
	MsgOrderCancelRequest
	MsgOrderCancelReplaceRequest
	MsgOrderStatusRequest
	MsgExecutionReport
	MsgOrderCancelReject
	MsgMarketDataRequest
	MsgMarketDataSnapshot
	MsgMarketDataIncrementalRefresh
	MsgMarketDataRequestReject
	MsgBusinessReject
)

var msgTypeNames = map[MsgType]string{
	MsgUnknown:                      "Unknown",
	MsgLogon:                        "Logon",
	MsgLogout:                       "Logout",
	MsgHeartbeat:                    "Heartbeat",
	MsgTestRequest:                  "TestRequest",
	MsgResendRequest:                "ResendRequest",
	MsgSequenceReset:                "SequenceReset",
	MsgReject:                       "Reject",
	MsgNewOrderSingle:               "NewOrderSingle",
	MsgOrderCancelRequest:           "OrderCancelRequest",
	MsgOrderCancelReplaceRequest:    "OrderCancelReplaceRequest",
	MsgOrderStatusRequest:           "OrderStatusRequest",
	MsgExecutionReport:              "ExecutionReport",
	MsgOrderCancelReject:            "OrderCancelReject",
	MsgMarketDataRequest:            "MarketDataRequest",
	MsgMarketDataSnapshot:           "MarketDataSnapshot",
	MsgMarketDataIncrementalRefresh: "MarketDataIncrementalRefresh",
	MsgMarketDataRequestReject:      "MarketDataRequestReject",
	MsgBusinessReject:               "BusinessReject",
}

func (m MsgType) String() string {
	if name, ok := msgTypeNames[m]; ok {
		return name
	}
	return "Unknown"
}

// classify maps the raw wire value of tag 35 to its enum. Unrecognized
// literals classify as MsgUnknown rather than erroring — an unknown MsgType
// is routed to the LOW lane, not rejected by the parser.
func classify(raw []byte) MsgType {
	switch string(raw) {
	case constants.MsgTypeLogon:
		return MsgLogon
	case constants.MsgTypeLogout:
		return MsgLogout
	case constants.MsgTypeHeartbeat:
		return MsgHeartbeat
	case constants.MsgTypeTestRequest:
		return MsgTestRequest
	case constants.MsgTypeResendRequest:
		return MsgResendRequest
	case constants.MsgTypeSequenceReset:
		return MsgSequenceReset
	case constants.MsgTypeReject:
		return MsgReject
	case constants.MsgTypeBusinessReject:
		return MsgBusinessReject
	case constants.MsgTypeNewOrderSingle:
		return MsgNewOrderSingle
	case constants.MsgTypeOrderCancelRequest:
		return MsgOrderCancelRequest
	case constants.MsgTypeOrderCancelReplace:
		return MsgOrderCancelReplaceRequest
	case constants.MsgTypeOrderStatusRequest:
		return MsgOrderStatusRequest
	case constants.MsgTypeExecutionReport:
		return MsgExecutionReport
	case constants.MsgTypeOrderCancelReject:
		return MsgOrderCancelReject
	case constants.MsgTypeMarketDataRequest:
		return MsgMarketDataRequest
	case constants.MsgTypeMarketDataSnapshot:
		return MsgMarketDataSnapshot
	case constants.MsgTypeMarketDataIncremental:
		return MsgMarketDataIncrementalRefresh
	case constants.MsgTypeMarketDataRequestReject:
		return MsgMarketDataRequestReject
	default:
		return MsgUnknown
	}
}

// IsAdmin reports whether m is a session-layer (as opposed to application)
// message type.
func (m MsgType) IsAdmin() bool {
	switch m {
	case MsgLogon, MsgLogout, MsgHeartbeat, MsgTestRequest, MsgResendRequest, MsgSequenceReset, MsgReject:
		return true
	default:
		return false
	}
}
