package transport

import (
	"net"
	"sync"
	"testing"
	"time"
)

func listenLoopback(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen on loopback: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	return ln, port
}

func TestConnectAndSendRoundTrip(t *testing.T) {
	ln, port := listenLoopback(t)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		received <- append([]byte(nil), buf[:n]...)
	}()

	tr := New(0)
	if !tr.Connect("127.0.0.1", port) {
		t.Fatal("Connect should succeed against a listening loopback server")
	}
	defer tr.Disconnect()

	if !tr.IsConnected() {
		t.Error("IsConnected should be true after a successful Connect")
	}

	payload := []byte("8=FIX.4.4\x019=5\x0135=0\x0110=000\x01")
	if !tr.Send(payload) {
		t.Fatal("Send should succeed on a connected transport")
	}

	select {
	case got := <-received:
		if string(got) != string(payload) {
			t.Errorf("server received %q, want %q", got, payload)
		}
	case <-time.After(time.Second):
		t.Fatal("server never received the sent payload")
	}
}

func TestConnectToClosedPortFails(t *testing.T) {
	ln, port := listenLoopback(t)
	ln.Close() // nothing listening now

	var errMsg string
	tr := New(0)
	tr.SetOnError(func(reason string) { errMsg = reason })

	if tr.Connect("127.0.0.1", port) {
		t.Fatal("Connect should fail against a closed port")
	}
	if errMsg == "" {
		t.Error("SetOnError callback should have been invoked on a failed connect")
	}
}

func TestOnDataReceivesServerBytes(t *testing.T) {
	ln, port := listenLoopback(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("8=FIX.4.4\x01"))
	}()

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})

	tr := New(0)
	tr.SetOnData(func(buf []byte) {
		mu.Lock()
		got = append(got, buf...)
		mu.Unlock()
		close(done)
	})
	if !tr.Connect("127.0.0.1", port) {
		t.Fatal("Connect failed")
	}
	defer tr.Disconnect()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("on_data was never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(got) != "8=FIX.4.4\x01" {
		t.Errorf("on_data received %q, want the server's bytes", got)
	}
}

func TestServerCloseInvokesOnDisconnect(t *testing.T) {
	ln, port := listenLoopback(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	disconnected := make(chan struct{})
	tr := New(0)
	tr.SetOnDisconnect(func() { close(disconnected) })
	if !tr.Connect("127.0.0.1", port) {
		t.Fatal("Connect failed")
	}

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("on_disconnect was never invoked after the peer closed")
	}
	if tr.IsConnected() {
		t.Error("IsConnected should be false after the peer closes the connection")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	ln, port := listenLoopback(t)
	defer ln.Close()
	go ln.Accept()

	tr := New(0)
	tr.Connect("127.0.0.1", port)
	tr.Disconnect()
	tr.Disconnect() // must not block or panic
	if tr.IsConnected() {
		t.Error("IsConnected should be false after Disconnect")
	}
}

func TestSendOnDisconnectedTransportFails(t *testing.T) {
	tr := New(0)
	if tr.Send([]byte("x")) {
		t.Error("Send on a never-connected transport should return false")
	}
}
