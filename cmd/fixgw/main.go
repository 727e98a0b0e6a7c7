// Command fixgw is the operator console for the gateway: it dials one FIX
// session, reports inbound ExecutionReports into a local order book, and
// lets the operator drive order entry from a readline REPL.
//
// Grounded on the teacher's entrypoint shape (config flags feeding
// fixclient.NewConfig/NewFixApp, then Repl(app)) — no cmd/ package was
// retained from the original repo, so the flag surface here follows
// spec.md §6's Gateway/Config fields directly.
package main

import (
	"flag"
	"fmt"
	"log"

	"fix-gateway-go/audit"
	"fix-gateway-go/gateway"
	"fix-gateway-go/message"
)

func main() {
	host := flag.String("host", "127.0.0.1", "FIX counterparty host")
	port := flag.Int("port", 9878, "FIX counterparty port")
	senderCompID := flag.String("sender-comp-id", "FIXGW", "outbound SenderCompID")
	targetCompID := flag.String("target-comp-id", "COUNTERPARTY", "outbound TargetCompID")
	heartBtInt := flag.Int("heartbeat", 30, "HeartBtInt in seconds")
	poolSize := flag.Int("pool-size", 8192, "message pool capacity")
	auditDB := flag.String("audit-db", "", "path to a SQLite file for CRITICAL-event audit logging (disabled if empty)")
	flag.Parse()

	config := gateway.DefaultConfig(*senderCompID, *targetCompID)
	config.HeartBtInt = *heartBtInt
	config.MessagePoolSize = *poolSize

	gw := gateway.New(config)

	if *auditDB != "" {
		sink, err := audit.Open(*auditDB)
		if err != nil {
			log.Fatalf("failed to open audit database %s: %v", *auditDB, err)
		}
		defer sink.Close()
		gw.SetAuditSink(sink)
	}

	store := NewOrderStore()
	gw.SetMessageCallback(func(msg *message.FixMessage) {
		if msg.MsgType() == message.MsgExecutionReport {
			store.UpdateFromExecutionReport(msg)
		}
		fmt.Printf("<- %s ClOrdID=%s OrderID=%s OrdStatus=%s\n",
			msg.MsgType(), msg.GetString(11), msg.GetString(37), msg.GetString(39))
	})
	gw.SetErrorCallback(func(reason string) {
		fmt.Printf("! %s\n", reason)
	})

	fmt.Printf("connecting to %s:%d as %s -> %s ...\n", *host, *port, *senderCompID, *targetCompID)
	if !gw.Connect(*host, *port) {
		log.Fatalf("failed to connect to %s:%d", *host, *port)
	}

	c := &console{gw: gw, store: store, senderCompID: *senderCompID, targetCompID: *targetCompID}
	c.Run()

	gw.Disconnect()
}
