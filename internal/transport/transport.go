// Package transport streams documents to network printers over raw TCP.
// Port 9100 socket printing: no handshake, write the document, half-close,
// and treat the peer closing the connection as completion.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/anglebert-dev/print-relay/internal/registry"
)

// Error reports a failed transmission attempt. All transport errors are
// transient: the printer may simply be offline, so the delivery is requeued.
type Error struct {
	Printer string
	Addr    string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	kind := "connection error"
	if e.Timeout {
		kind = "timeout"
	}
	return fmt.Sprintf("transport: %s printing to %s (%s): %v", kind, e.Printer, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable always reports true; transport failures never burn a job.
func (e *Error) Retryable() bool { return true }

// Transport sends documents to printers. Safe for use by the single
// dispatch worker; it holds no connection state between sends.
type Transport struct {
	port    int
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a Transport that dials port and bounds every send by timeout,
// measured from the start of the connection attempt.
func New(port int, timeout time.Duration, log zerolog.Logger) *Transport {
	return &Transport{port: port, timeout: timeout, log: log}
}

// Send streams the document to the printer: dial, write fully, close the
// write side, then wait for the peer to close, which signals the printer
// accepted the whole document. On timeout the socket is forcibly closed.
//
// A non-network registry entry fails with registry.ErrUnsupportedType
// before any dialing happens; that one is permanent.
func (t *Transport) Send(printer registry.Printer, document []byte, fileName string) error {
	if printer.ConnectionType != registry.ConnectionTypeNetwork {
		return fmt.Errorf("%w: printer %s has type %q", registry.ErrUnsupportedType, printer.ID, printer.ConnectionType)
	}

	addr := net.JoinHostPort(printer.Address, strconv.Itoa(t.port))
	deadline := time.Now().Add(t.timeout)

	conn, err := net.DialTimeout("tcp", addr, t.timeout)
	if err != nil {
		return t.classify(printer, addr, err)
	}
	defer conn.Close()

	// One budget for the whole exchange, not per operation.
	if err := conn.SetDeadline(deadline); err != nil {
		return t.classify(printer, addr, err)
	}

	t.log.Info().
		Str("printer", printer.Name).
		Str("printer_id", printer.ID).
		Str("file_name", fileName).
		Int("bytes", len(document)).
		Msg("printing document")

	if _, err := conn.Write(document); err != nil {
		return t.classify(printer, addr, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return t.classify(printer, addr, err)
		}
	}

	// The printer signals completion by closing its side.
	if _, err := io.Copy(io.Discard, conn); err != nil {
		return t.classify(printer, addr, err)
	}

	return nil
}

// classify wraps a network failure as a transport Error, flagging timeouts.
func (t *Transport) classify(printer registry.Printer, addr string, err error) error {
	timeout := errors.Is(err, os.ErrDeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &Error{Printer: printer.ID, Addr: addr, Timeout: timeout, Err: err}
}
