/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package constants holds the FIX tag numbers, message-type literals and
// protocol constants shared across the gateway's packages.
package constants

// --- Message Types (Tag 35) ---
const (
	// Admin Messages
	MsgTypeLogon         = "A"
	MsgTypeLogout        = "5"
	MsgTypeHeartbeat     = "0"
	MsgTypeTestRequest   = "1"
	MsgTypeResendRequest = "2"
	MsgTypeSequenceReset = "4"
	MsgTypeReject        = "3"
	MsgTypeBusinessReject = "j"

	// Order Entry Messages
	MsgTypeNewOrderSingle     = "D"
	MsgTypeOrderCancelRequest = "F"
	MsgTypeOrderCancelReplace = "G"
	MsgTypeOrderStatusRequest = "H"
	MsgTypeExecutionReport    = "8"
	MsgTypeOrderCancelReject  = "9"

	// Market Data Messages
	MsgTypeMarketDataRequest       = "V"
	MsgTypeMarketDataSnapshot      = "W"
	MsgTypeMarketDataIncremental   = "X"
	MsgTypeMarketDataRequestReject = "Y"
)

// --- Protocol Constants ---
const (
	FixTimeFormat    = "20060102-15:04:05.000"
	FixBeginString42 = "FIX.4.2"
	FixBeginString44 = "FIX.4.4"
	EncryptMethodNone = "0"
	MsgSeqNumInit     = "1"

	// SOH is the FIX field delimiter (0x01).
	SOH = byte(0x01)

	// DefaultMaxMessageSize bounds a single framed message (spec.md §4.4).
	DefaultMaxMessageSize = 8192

	// DefaultMessagePoolSize is the gateway's default pool capacity.
	DefaultMessagePoolSize = 8192
)

// --- Session Reject Reason (Tag 373) ---
const (
	SessionRejectReasonInvalidTag         = "0"
	SessionRejectReasonRequiredTagMissing  = "1"
	SessionRejectReasonTagNotDefined       = "2"
	SessionRejectReasonUndefinedTag        = "3"
	SessionRejectReasonTagWithoutValue     = "4"
	SessionRejectReasonValueOutOfRange     = "5"
	SessionRejectReasonIncorrectDataFormat = "6"
	SessionRejectReasonCompIDProblem       = "9"
	SessionRejectReasonSendingTimeAccuracy = "10"
	SessionRejectReasonInvalidMsgType      = "11"
)

// --- Side (Tag 54) ---
const (
	SideBuy  = "1"
	SideSell = "2"
)

// --- Standard FIX Tags ---
// Values and grouping are carried over from the teacher's constants.go; only
// the type changes (plain uint32 instead of quickfix.Tag), since the parser
// and FixMessage in this repo own field storage directly instead of
// delegating to the quickfix FieldMap.
const (
	TagAccount      uint32 = 1
	TagAvgPx        uint32 = 6
	TagBeginSeqNo   uint32 = 7
	TagBeginString  uint32 = 8
	TagBodyLength   uint32 = 9
	TagCheckSum     uint32 = 10
	TagClOrdID      uint32 = 11
	TagCumQty       uint32 = 14
	TagEndSeqNo     uint32 = 16
	TagExecID       uint32 = 17
	TagLastPx       uint32 = 31
	TagLastShares   uint32 = 32
	TagMsgSeqNum    uint32 = 34
	TagMsgType      uint32 = 35
	TagNewSeqNo     uint32 = 36
	TagOrderID      uint32 = 37
	TagOrderQty     uint32 = 38
	TagOrdStatus    uint32 = 39
	TagOrdType      uint32 = 40
	TagOrigClOrdID  uint32 = 41
	TagPossDupFlag  uint32 = 43
	TagPrice        uint32 = 44
	TagRefSeqNum    uint32 = 45
	TagSenderCompID uint32 = 49
	TagSendingTime  uint32 = 52
	TagSide         uint32 = 54
	TagSymbol       uint32 = 55
	TagTargetCompID uint32 = 56
	TagText         uint32 = 58
	TagTimeInForce  uint32 = 59
	TagTransactTime uint32 = 60
	TagPossResend   uint32 = 97
	TagEncryptMethod uint32 = 98
	TagCxlRejReason uint32 = 102
	TagOrdRejReason uint32 = 103
	TagHeartBtInt   uint32 = 108
	TagTestReqID    uint32 = 112
	TagGapFillFlag  uint32 = 123
	TagOrigSendingTime uint32 = 122
	TagExecType     uint32 = 150
	TagLeavesQty    uint32 = 151
	TagResetSeqNumFlag uint32 = 141

	// Reject tags
	TagRefTagID             uint32 = 371
	TagRefMsgType           uint32 = 372
	TagSessionRejectReason  uint32 = 373
	TagBusinessRejectReason uint32 = 380

	// Order Cancel Reject
	TagCxlRejResponseTo uint32 = 434

	// Market data tags
	TagMdReqId                 uint32 = 262
	TagSubscriptionRequestType uint32 = 263
	TagMarketDepth             uint32 = 264
	TagMdUpdateType            uint32 = 265
	TagNoMdEntryTypes          uint32 = 267
	TagNoMdEntries             uint32 = 268
	TagMdEntryType             uint32 = 269
	TagMdEntryPx               uint32 = 270
	TagMdEntrySize             uint32 = 271
	TagMdEntryTime             uint32 = 273
	TagMdReqRejReason          uint32 = 281
	TagMdEntryPositionNo       uint32 = 290
	TagNoRelatedSym            uint32 = 146
)
