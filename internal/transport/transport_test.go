package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	zvterrors "github.com/payterm/zvtsim/internal/errors"
)

func startEchoListener(t *testing.T) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestTCPRoundTrip(t *testing.T) {
	addr, stop := startEchoListener(t)
	defer stop()

	tr := NewTCP(addr, time.Second)
	if tr.IsConnected() {
		t.Fatalf("IsConnected before Connect")
	}
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	if !tr.IsConnected() {
		t.Fatalf("IsConnected = false after Connect")
	}

	msg := []byte{0x06, 0x01, 0x02, 0x04, 0x00}
	if err := tr.Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 64)
	n, err := tr.Read(buf, time.Second)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(msg) {
		t.Errorf("Read %d bytes, want %d", n, len(msg))
	}
}

func TestTCPReadTimeout(t *testing.T) {
	// Listener that accepts but never writes.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}()

	tr := NewTCP(ln.Addr().String(), time.Second)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	buf := make([]byte, 16)
	_, err = tr.Read(buf, 50*time.Millisecond)
	if !errors.Is(err, ErrReadTimeout) {
		t.Errorf("Read error = %v, want ErrReadTimeout", err)
	}
}

func TestTCPConnectRefused(t *testing.T) {
	// Grab then release a port so nothing listens on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	tr := NewTCP(addr, 500*time.Millisecond)
	err = tr.Connect(context.Background())
	if err == nil {
		tr.Disconnect()
		t.Fatalf("Connect to closed port succeeded")
	}

	var ce *zvterrors.ConnectionError
	var te *zvterrors.TimeoutError
	if !errors.As(err, &ce) && !errors.As(err, &te) {
		t.Errorf("Connect error = %T, want ConnectionError or TimeoutError", err)
	}
}

func TestWriteWithoutConnect(t *testing.T) {
	tr := NewTCP("127.0.0.1:9", time.Second)
	if err := tr.Write([]byte{0x80, 0x00, 0x00}); err == nil {
		t.Errorf("Write on disconnected transport succeeded")
	}
}
