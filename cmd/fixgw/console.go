// Operator console: a readline REPL for driving a gateway.Gateway
// interactively, order entry only (no market data / RFQ commands, since
// this repo's builder and constants packages never carry those tags).
//
// Grounded on the teacher's fixclient/repl.go: the readline.NewEx setup
// (prompt, history file, completer, interrupt/EOF prompts), the
// command-loop switch over strings.Fields(line), and the
// handleOrderCommand/handleCancelCommand/handleReplaceCommand/
// handleOrdStatusCommand flag-parsing style (trailing --flag value pairs,
// ClOrdID generated from time.Now().UnixNano()).
package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fix-gateway-go/builder"
	"fix-gateway-go/constants"
	"fix-gateway-go/gateway"

	"github.com/chzyer/readline"
)

const ordTypeHelp = "market, limit, stop, stoplimit"

func parseOrdType(s string) string {
	switch strings.ToLower(s) {
	case "market", "m":
		return "1"
	case "limit", "l":
		return "2"
	case "stop", "s":
		return "3"
	case "stoplimit", "sl":
		return "4"
	default:
		return "2"
	}
}

func parseTif(s string) string {
	switch strings.ToLower(s) {
	case "day":
		return "0"
	case "gtc":
		return "1"
	case "ioc":
		return "3"
	case "fok":
		return "4"
	default:
		return "1"
	}
}

// console holds everything a command handler needs.
type console struct {
	gw           *gateway.Gateway
	store        *OrderStore
	senderCompID string
	targetCompID string
}

// Run starts the interactive loop. It returns when the user exits or stdin
// is closed.
func (c *console) Run() {
	completer := readline.NewPrefixCompleter(
		readline.PcItem("order",
			readline.PcItem("buy"),
			readline.PcItem("sell"),
		),
		readline.PcItem("cancel"),
		readline.PcItem("replace"),
		readline.PcItem("ordstatus"),
		readline.PcItem("orders"),
		readline.PcItem("status"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fixgw> ",
		HistoryFile:     "/tmp/fixgw_history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("failed to start console: %v\n", err)
		return
	}
	defer rl.Close()

	c.displayHelp()

	for {
		line, err := rl.Readline()
		if err != nil {
			return
		}

		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(parts[0]) {
		case "order":
			c.handleOrder(parts)
		case "cancel":
			c.handleCancel(parts)
		case "replace":
			c.handleReplace(parts)
		case "ordstatus":
			c.handleOrdStatus(parts)
		case "orders":
			c.handleOrders()
		case "status":
			c.handleStatus()
		case "help":
			c.displayHelp()
		case "exit", "quit":
			return
		default:
			fmt.Println("unknown command, type 'help' for the command list")
		}
	}
}

func (c *console) displayHelp() {
	fmt.Print(`Commands:
  order <buy|sell> <symbol> <qty> [price] [--type T] [--tif TIF]
  cancel <clOrdId>
  replace <clOrdId> [--qty Q] [--price P]
  ordstatus <clOrdId>
  orders
  status
  help
  exit
`)
}

func (c *console) handleOrder(parts []string) {
	if len(parts) < 4 {
		fmt.Printf("usage: order <buy|sell> <symbol> <qty> [price] [--type %s] [--tif day|gtc|ioc|fok]\n", ordTypeHelp)
		return
	}

	var side string
	switch strings.ToLower(parts[1]) {
	case "buy":
		side = constants.SideBuy
	case "sell":
		side = constants.SideSell
	default:
		fmt.Println("side must be 'buy' or 'sell'")
		return
	}

	symbol := strings.ToUpper(parts[2])
	qty := parts[3]

	var price, ordType, tif string
	for i := 4; i < len(parts); i++ {
		switch parts[i] {
		case "--type":
			if i+1 < len(parts) {
				i++
				ordType = parseOrdType(parts[i])
			}
		case "--tif":
			if i+1 < len(parts) {
				i++
				tif = parseTif(parts[i])
			}
		default:
			if !strings.HasPrefix(parts[i], "--") && price == "" {
				price = parts[i]
			}
		}
	}
	if ordType == "" {
		if price != "" {
			ordType = "2"
		} else {
			ordType = "1"
		}
	}
	if tif == "" {
		tif = "1"
	}

	clOrdID := "ord_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	msg := builder.BuildNewOrderSingle(c.gw.Pool(), builder.NewOrderParams{
		ClOrdID:     clOrdID,
		Symbol:      symbol,
		Side:        side,
		OrdType:     ordType,
		TimeInForce: tif,
		OrderQty:    qty,
		Price:       price,
	}, c.senderCompID, c.targetCompID)
	if msg == nil {
		fmt.Println("message pool exhausted, order not sent")
		return
	}

	if err := c.gw.SendMessage(msg); err != nil {
		fmt.Printf("error sending order: %v\n", err)
		return
	}

	c.store.AddOrder(&Order{
		ClOrdID:   clOrdID,
		Symbol:    symbol,
		Side:      side,
		OrdType:   ordType,
		OrderQty:  qty,
		Price:     price,
		OrdStatus: "A", // PendingNew
	})
	fmt.Printf("order submitted: %s %s %s @ %s (ClOrdID: %s)\n", parts[1], qty, symbol, price, clOrdID)
}

func (c *console) handleCancel(parts []string) {
	if len(parts) < 2 {
		fmt.Println("usage: cancel <clOrdId>")
		return
	}
	orig := c.store.GetOrder(parts[1])
	if orig == nil {
		fmt.Printf("order not found: %s\n", parts[1])
		return
	}

	clOrdID := "cxl_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	msg := builder.BuildOrderCancelRequest(c.gw.Pool(), builder.CancelOrderParams{
		ClOrdID:     clOrdID,
		OrigClOrdID: orig.ClOrdID,
		OrderID:     orig.OrderID,
		Symbol:      orig.Symbol,
		Side:        orig.Side,
		OrderQty:    orig.OrderQty,
	}, c.senderCompID, c.targetCompID)
	if msg == nil {
		fmt.Println("message pool exhausted, cancel not sent")
		return
	}

	if err := c.gw.SendMessage(msg); err != nil {
		fmt.Printf("error sending cancel: %v\n", err)
		return
	}
	fmt.Printf("cancel request sent for %s (new ClOrdID: %s)\n", orig.ClOrdID, clOrdID)
}

func (c *console) handleReplace(parts []string) {
	if len(parts) < 2 {
		fmt.Println("usage: replace <clOrdId> [--qty Q] [--price P]")
		return
	}
	orig := c.store.GetOrder(parts[1])
	if orig == nil {
		fmt.Printf("order not found: %s\n", parts[1])
		return
	}

	qty, price := orig.OrderQty, orig.Price
	for i := 2; i < len(parts); i++ {
		switch parts[i] {
		case "--qty":
			if i+1 < len(parts) {
				i++
				qty = parts[i]
			}
		case "--price":
			if i+1 < len(parts) {
				i++
				price = parts[i]
			}
		}
	}

	clOrdID := "rep_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	msg := builder.BuildOrderCancelReplaceRequest(c.gw.Pool(), builder.ReplaceOrderParams{
		ClOrdID:     clOrdID,
		OrigClOrdID: orig.ClOrdID,
		OrderID:     orig.OrderID,
		Symbol:      orig.Symbol,
		Side:        orig.Side,
		OrdType:     orig.OrdType,
		OrderQty:    qty,
		Price:       price,
	}, c.senderCompID, c.targetCompID)
	if msg == nil {
		fmt.Println("message pool exhausted, replace not sent")
		return
	}

	if err := c.gw.SendMessage(msg); err != nil {
		fmt.Printf("error sending replace: %v\n", err)
		return
	}
	fmt.Printf("replace request sent for %s (new ClOrdID: %s)\n", orig.ClOrdID, clOrdID)
}

func (c *console) handleOrdStatus(parts []string) {
	if len(parts) < 2 {
		fmt.Println("usage: ordstatus <clOrdId>")
		return
	}
	orig := c.store.GetOrder(parts[1])
	if orig == nil {
		fmt.Printf("order not found: %s\n", parts[1])
		return
	}

	msg := builder.BuildOrderStatusRequest(c.gw.Pool(), orig.OrderID, orig.ClOrdID, orig.Symbol, orig.Side, c.senderCompID, c.targetCompID)
	if msg == nil {
		fmt.Println("message pool exhausted, status request not sent")
		return
	}
	if err := c.gw.SendMessage(msg); err != nil {
		fmt.Printf("error sending status request: %v\n", err)
	}
}

func (c *console) handleOrders() {
	orders := c.store.GetAllOrders()
	if len(orders) == 0 {
		fmt.Println("no tracked orders")
		return
	}
	for _, o := range orders {
		fmt.Printf("%-20s %-10s %-4s %-10s status=%-2s cum=%-8s leaves=%-8s avgpx=%s\n",
			o.ClOrdID, o.Symbol, o.Side, o.OrderQty, o.OrdStatus, o.CumQty, o.LeavesQty, o.AvgPx)
	}
}

func (c *console) handleStatus() {
	fmt.Printf("connected: %v, session state: %s\n", c.gw.IsConnected(), c.gw.SessionStats().State)
	p := c.gw.PoolStats()
	fmt.Printf("pool: capacity=%d allocated=%d available=%d allocation-failures=%d\n", p.Capacity, p.Allocated, p.Available, p.AllocationFailures)
	ps := c.gw.ParserStats()
	fmt.Printf("parser: messages=%d parse-errors=%d\n", ps.MessagesParsed, ps.ParseErrors)
	lat := c.gw.LatencyStats()
	fmt.Printf("latency: count=%d min=%dns max=%dns mean=%.0fns\n", lat.Count, lat.MinNanos, lat.MaxNanos, lat.MeanNanos)
}
