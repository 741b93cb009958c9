package transport

import (
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/anglebert-dev/print-relay/internal/registry"
)

// fakePrinter listens on a loopback port and behaves like a port-9100
// printer: read everything, then close to signal completion.
func fakePrinter(t *testing.T, handle func(net.Conn)) (addr string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handle(conn)
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	return tcpAddr.IP.String(), tcpAddr.Port
}

func networkPrinter(id, addr string) registry.Printer {
	return registry.Printer{ID: id, Name: id, ConnectionType: registry.ConnectionTypeNetwork, Address: addr}
}

func TestSend_Success(t *testing.T) {
	received := make(chan []byte, 1)
	addr, port := fakePrinter(t, func(conn net.Conn) {
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	})

	tr := New(port, 5*time.Second, zerolog.Nop())
	if err := tr.Send(networkPrinter("printer1", addr), []byte("X"), "a.pdf"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "X" {
			t.Errorf("printer received %q, want X", data)
		}
	case <-time.After(time.Second):
		t.Fatal("printer never received the document")
	}
}

func TestSend_Timeout(t *testing.T) {
	// A printer that accepts but never reads or closes must trip the
	// send budget, and Send must give up close to the deadline.
	addr, port := fakePrinter(t, func(conn net.Conn) {
		time.Sleep(5 * time.Second)
		conn.Close()
	})

	tr := New(port, 200*time.Millisecond, zerolog.Nop())

	start := time.Now()
	err := tr.Send(networkPrinter("printer1", addr), []byte("X"), "a.pdf")
	elapsed := time.Since(start)

	var sendErr *Error
	if !errors.As(err, &sendErr) {
		t.Fatalf("got err=%v, want transport Error", err)
	}
	if !sendErr.Timeout {
		t.Errorf("Timeout = false, want true: %v", err)
	}
	if !sendErr.Retryable() {
		t.Error("timeout must be retryable")
	}
	if elapsed > 2*time.Second {
		t.Errorf("Send took %v, want to abort near the 200ms budget", elapsed)
	}
}

func TestSend_ConnectionRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	tr := New(port, time.Second, zerolog.Nop())
	err = tr.Send(networkPrinter("printer1", "127.0.0.1"), []byte("X"), "a.pdf")

	var sendErr *Error
	if !errors.As(err, &sendErr) {
		t.Fatalf("got err=%v, want transport Error", err)
	}
	if sendErr.Timeout {
		t.Errorf("connection refused classified as timeout: %v", err)
	}
	if !sendErr.Retryable() {
		t.Error("connection error must be retryable")
	}
}

func TestSend_UnsupportedType(t *testing.T) {
	tr := New(9100, time.Second, zerolog.Nop())

	err := tr.Send(registry.Printer{
		ID:             "printer1",
		ConnectionType: "usb",
		Address:        "10.0.0.5",
	}, []byte("X"), "a.pdf")

	if !errors.Is(err, registry.ErrUnsupportedType) {
		t.Fatalf("got err=%v, want ErrUnsupportedType", err)
	}

	var sendErr *Error
	if errors.As(err, &sendErr) {
		t.Error("unsupported type must not be a transient transport Error")
	}
}

func TestSend_AddressFormatting(t *testing.T) {
	addr, port := fakePrinter(t, func(conn net.Conn) {
		io.Copy(io.Discard, conn)
		conn.Close()
	})

	tr := New(port, 5*time.Second, zerolog.Nop())
	p := networkPrinter("printer1", addr)

	if err := tr.Send(p, []byte("doc"), ""); err != nil {
		t.Fatalf("Send to %s: %v", net.JoinHostPort(addr, strconv.Itoa(port)), err)
	}
}
