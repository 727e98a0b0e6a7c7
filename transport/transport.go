// Package transport implements the bidirectional byte-stream collaborator
// (spec.md §6): connect/send/disconnect over a raw socket, with callbacks for
// inbound data, errors, and disconnection. No message framing happens here —
// the parser alone frames tag=value SOH-delimited messages out of whatever
// bytes on_data hands it.
//
// Grounded on original_source's TcpConnection collaborator (referenced from
// src/manager/outbound_message_manager.cpp's create/connect/disconnect calls,
// though its own source was not part of the retained original_source set) and
// on this repo's own parser.Parser, whose Feed method is the natural sink for
// on_data. Go's net package is the only option here: nothing in the pack
// wraps raw TCP with this connect/send/disconnect/callback shape, and a
// hand-rolled socket layer is exactly what net.Conn already is.
package transport

import (
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Transport is the external collaborator contract from spec.md §6.
type Transport interface {
	Connect(host string, port int) bool
	Send(data []byte) bool
	Disconnect()
	IsConnected() bool
	SetOnData(fn func(buf []byte))
	SetOnError(fn func(reason string))
	SetOnDisconnect(fn func())
}

// TCPTransport is a net.Conn-backed Transport. A single goroutine owns the
// read loop; Send may be called concurrently from multiple sender goroutines
// (spec.md §5's "Sender x4"), serialized by writeMu.
type TCPTransport struct {
	mu   sync.Mutex
	conn net.Conn

	connected atomic.Bool

	onData       func(buf []byte)
	onError      func(reason string)
	onDisconnect func(reason string)

	writeMu sync.Mutex

	readBufSize int
	dialTimeout time.Duration

	logger *log.Logger

	stopRead chan struct{}
	readDone chan struct{}
}

// New builds a TCPTransport. readBufSize bounds the single-read chunk size
// handed to on_data; 0 uses a 64KiB default.
func New(readBufSize int) *TCPTransport {
	if readBufSize <= 0 {
		readBufSize = 64 * 1024
	}
	return &TCPTransport{
		readBufSize: readBufSize,
		dialTimeout: 5 * time.Second,
		logger:      log.New(log.Writer(), "[transport] ", log.LstdFlags|log.Lmicroseconds),
	}
}

func (t *TCPTransport) SetOnData(fn func(buf []byte))          { t.onData = fn }
func (t *TCPTransport) SetOnError(fn func(reason string))      { t.onError = fn }
func (t *TCPTransport) SetOnDisconnect(fn func())              { t.onDisconnect = func(string) { fn() } }
func (t *TCPTransport) SetOnDisconnectReason(fn func(string))  { t.onDisconnect = fn }

// Connect dials host:port and starts the read loop. Mirrors the original's
// connectToServer/createTcpConnection pair collapsed into one call, since Go
// has no separate "create the socket object" step distinct from dialing.
func (t *TCPTransport) Connect(host string, port int) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, t.dialTimeout)
	if err != nil {
		t.reportError("dial " + addr + ": " + err.Error())
		return false
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.connected.Store(true)

	t.stopRead = make(chan struct{})
	t.readDone = make(chan struct{})
	go t.readLoop(conn)

	t.logger.Printf("connected to %s", addr)
	return true
}

// UseConn adopts an already-established net.Conn (e.g. accepted by a
// listener), for gateway-as-acceptor deployments.
func (t *TCPTransport) UseConn(conn net.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.connected.Store(true)

	t.stopRead = make(chan struct{})
	t.readDone = make(chan struct{})
	go t.readLoop(conn)
}

func (t *TCPTransport) readLoop(conn net.Conn) {
	defer close(t.readDone)
	buf := make([]byte, t.readBufSize)
	for {
		select {
		case <-t.stopRead:
			return
		default:
		}
		n, err := conn.Read(buf)
		if n > 0 && t.onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.onData(chunk)
		}
		if err != nil {
			if err == io.EOF {
				t.handleDisconnect("peer closed connection")
			} else {
				select {
				case <-t.stopRead:
					// Disconnect() closed the socket; this is expected, not an error.
				default:
					t.reportError("read: " + err.Error())
					t.handleDisconnect(err.Error())
				}
			}
			return
		}
	}
}

// Send writes data in full, serialized against concurrent senders. Returns
// false without partial-write recovery attempts — the caller (sender) owns
// the retry policy per spec.md §4.8.
func (t *TCPTransport) Send(data []byte) bool {
	if !t.connected.Load() {
		return false
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return false
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := conn.Write(data)
	if err != nil {
		t.reportError("write: " + err.Error())
		return false
	}
	return true
}

// Disconnect closes the socket, unblocking any in-flight Read/Write, and
// waits for the read loop to exit.
func (t *TCPTransport) Disconnect() {
	if !t.connected.Swap(false) {
		return
	}
	close(t.stopRead)

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	<-t.readDone
	t.logger.Printf("disconnected")
}

func (t *TCPTransport) handleDisconnect(reason string) {
	if !t.connected.Swap(false) {
		return
	}
	if t.onDisconnect != nil {
		t.onDisconnect(reason)
	}
}

func (t *TCPTransport) IsConnected() bool { return t.connected.Load() }

func (t *TCPTransport) reportError(reason string) {
	t.logger.Printf("ERROR: %s", reason)
	if t.onError != nil {
		t.onError(reason)
	}
}

