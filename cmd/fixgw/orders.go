// Order tracking for the operator console: a thread-safe map from ClOrdID
// to the order's last-known state, updated as ExecutionReports arrive.
//
// Grounded on the teacher's fixclient/orderstore.go (Order/OrderStore,
// AddOrder/GetOrder/GetOrderByOrderID/UpdateOrderFromExecReport/
// GetOpenOrders), trimmed to the order-entry fields this repo's builder
// package actually produces — the market-data and RFQ/quote fields
// (CashOrderQty, TargetStrategy, Commission, NetAvgPx, quote tracking) are
// dropped along with the message types that would have populated them.
package main

import (
	"sync"
	"time"

	"fix-gateway-go/constants"
	"fix-gateway-go/message"
)

// Order is the console's local view of one order's lifecycle.
type Order struct {
	ClOrdID   string
	OrderID   string
	Symbol    string
	Side      string
	OrdType   string
	OrdStatus string
	ExecType  string
	OrderQty  string
	Price     string
	CumQty    string
	LeavesQty string
	AvgPx     string
	LastPx    string
	LastShares string
	ExecID       string
	OrdRejReason string
	Text         string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderStore is a thread-safe, in-memory order book for the console
// session. It is not persisted — restarting fixgw starts with an empty
// book, same as the teacher's client.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

// NewOrderStore builds an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*Order)}
}

// AddOrder records a locally-submitted order before any ExecutionReport for
// it has arrived.
func (s *OrderStore) AddOrder(o *Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.UpdatedAt = time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = o.UpdatedAt
	}
	s.orders[o.ClOrdID] = o
}

// GetOrder looks an order up by ClOrdID, returning a copy.
func (s *OrderStore) GetOrder(clOrdID string) *Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.orders[clOrdID]; ok {
		cp := *o
		return &cp
	}
	return nil
}

// GetOrderByOrderID looks an order up by the exchange-assigned OrderID.
func (s *OrderStore) GetOrderByOrderID(orderID string) *Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.OrderID == orderID {
			cp := *o
			return &cp
		}
	}
	return nil
}

// GetAllOrders returns a snapshot of every tracked order.
func (s *OrderStore) GetAllOrders() []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Order, 0, len(s.orders))
	for _, o := range s.orders {
		cp := *o
		out = append(out, &cp)
	}
	return out
}

// isOpenStatus reports whether an OrdStatus value (tag 39) indicates the
// order still has working quantity.
func isOpenStatus(status string) bool {
	switch status {
	case "0", "1", "6", "9", "A", "E":
		return true
	default:
		return false
	}
}

// UpdateFromExecutionReport merges an inbound ExecutionReport (MsgType "8")
// into the tracked order, creating one if this is the first report seen for
// its ClOrdID (e.g. a fill reported against an order placed before fixgw
// started).
func (s *OrderStore) UpdateFromExecutionReport(msg *message.FixMessage) {
	clOrdID := msg.GetString(constants.TagClOrdID)
	if clOrdID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[clOrdID]
	if !ok {
		o = &Order{ClOrdID: clOrdID}
		s.orders[clOrdID] = o
	}

	o.UpdatedAt = time.Now()
	o.OrderID = msg.GetString(constants.TagOrderID)
	o.Symbol = msg.GetString(constants.TagSymbol)
	o.Side = msg.GetString(constants.TagSide)
	o.OrdType = msg.GetString(constants.TagOrdType)
	o.OrdStatus = msg.GetString(constants.TagOrdStatus)
	o.ExecType = msg.GetString(constants.TagExecType)
	o.ExecID = msg.GetString(constants.TagExecID)

	if v := msg.GetString(constants.TagOrderQty); v != "" {
		o.OrderQty = v
	}
	if v := msg.GetString(constants.TagPrice); v != "" {
		o.Price = v
	}
	if v := msg.GetString(constants.TagCumQty); v != "" {
		o.CumQty = v
	}
	if v := msg.GetString(constants.TagLeavesQty); v != "" {
		o.LeavesQty = v
	}
	if v := msg.GetString(constants.TagAvgPx); v != "" {
		o.AvgPx = v
	}
	if v := msg.GetString(constants.TagLastPx); v != "" {
		o.LastPx = v
	}
	if v := msg.GetString(constants.TagLastShares); v != "" {
		o.LastShares = v
	}
	if v := msg.GetString(constants.TagOrdRejReason); v != "" {
		o.OrdRejReason = v
	}
	if v := msg.GetString(constants.TagText); v != "" {
		o.Text = v
	}
}
