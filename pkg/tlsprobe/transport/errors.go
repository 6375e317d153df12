package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	stringsutil "github.com/projectdiscovery/utils/strings"
)

// FailureKind classifies transport failures.
type FailureKind uint8

const (
	// ConnectionError covers refused, reset and unresolvable targets. A
	// reset while reading the response counts too.
	ConnectionError FailureKind = iota + 1
	// Timeout means connect or read exceeded the configured timeout.
	Timeout
	// ProxyRejected means the proxy refused or botched the CONNECT.
	ProxyRejected
	// Closed means the peer closed the connection without sending a byte,
	// which servers commonly do instead of alerting.
	Closed
)

func (k FailureKind) String() string {
	switch k {
	case ConnectionError:
		return "connection_error"
	case Timeout:
		return "timeout"
	case ProxyRejected:
		return "proxy_rejected"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("failure(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is returned by every failing transport operation.
type Error struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reason describes the failure without the socket addresses of the
// connection, so the same failure reads the same on every probe.
func (e *Error) Reason() string {
	switch e.Kind {
	case Timeout:
		return e.Op + ": i/o timeout"
	case Closed:
		return e.Op + ": connection closed"
	}
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + causeOf(e.Err)
}

// ReasonOf returns the address free description of err.
func ReasonOf(err error) string {
	var transportErr *Error
	if errors.As(err, &transportErr) {
		return transportErr.Reason()
	}
	return causeOf(err)
}

func causeOf(err error) string {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset by peer"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "lookup " + dnsErr.Name + ": " + dnsErr.Err
	}
	// net.OpError prefixes the local and remote address
	var opErr *net.OpError
	for errors.As(err, &opErr) && opErr.Err != nil {
		err = opErr.Err
	}
	return err.Error()
}

// KindOf returns the failure kind carried by err, or 0 when err is not a
// transport error.
func KindOf(err error) FailureKind {
	var transportErr *Error
	if errors.As(err, &transportErr) {
		return transportErr.Kind
	}
	return 0
}

func classify(op string, err error) error {
	var transportErr *Error
	if errors.As(err, &transportErr) {
		return err
	}
	if isTimeout(err) {
		return &Error{Kind: Timeout, Op: op, Err: err}
	}
	return &Error{Kind: ConnectionError, Op: op, Err: err}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// some dialers flatten the cause into the message
	return stringsutil.ContainsAny(err.Error(), "i/o timeout", "deadline exceeded")
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}
