package transport

// Byte-stream transport abstraction between the ECR engine and a terminal

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	zvterrors "github.com/payterm/zvtsim/internal/errors"
)

// Transport is a connected byte stream to a payment terminal. Reads are
// blocking with a per-call timeout; a timed-out read returns ErrReadTimeout.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Write(data []byte) error
	Read(buf []byte, timeout time.Duration) (int, error)
	IsConnected() bool
}

// ErrReadTimeout marks a read that hit its deadline without data. The
// engine distinguishes this from hard I/O failures.
var ErrReadTimeout = fmt.Errorf("read timeout")

// TCPTransport connects to a terminal over TCP.
type TCPTransport struct {
	addr           string
	connectTimeout time.Duration
	conn           *net.TCPConn
	connMu         sync.RWMutex
}

var _ Transport = (*TCPTransport)(nil)

// NewTCP creates a TCP transport for addr ("host:port").
func NewTCP(addr string, connectTimeout time.Duration) *TCPTransport {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &TCPTransport{addr: addr, connectTimeout: connectTimeout}
}

// Connect establishes the TCP connection.
func (t *TCPTransport) Connect(ctx context.Context) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		return zvterrors.Connection("connect", fmt.Errorf("already connected"))
	}

	dialer := net.Dialer{Timeout: t.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return zvterrors.Timeout("connect", err)
		}
		return zvterrors.Connection("connect", err)
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return zvterrors.Connection("connect", fmt.Errorf("not a TCP connection"))
	}

	if err := tcpConn.SetKeepAlive(true); err != nil {
		tcpConn.Close()
		return zvterrors.Connection("connect", err)
	}

	t.conn = tcpConn
	return nil
}

// Disconnect closes the connection. Safe to call in any state; a close
// from another goroutine is the only way to unblock a stuck read.
func (t *TCPTransport) Disconnect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Write sends data on the connection.
func (t *TCPTransport) Write(data []byte) error {
	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()

	if conn == nil {
		return zvterrors.Connection("write", fmt.Errorf("not connected"))
	}
	if _, err := conn.Write(data); err != nil {
		return zvterrors.Connection("write", err)
	}
	return nil
}

// Read fills buf with available bytes, waiting up to timeout.
func (t *TCPTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()

	if conn == nil {
		return 0, zvterrors.Connection("read", fmt.Errorf("not connected"))
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, zvterrors.Connection("read", err)
	}
	n, err := conn.Read(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return n, ErrReadTimeout
		}
		return n, zvterrors.Connection("read", err)
	}
	return n, nil
}

// IsConnected reports whether the transport holds an open connection.
func (t *TCPTransport) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}
