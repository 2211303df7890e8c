package transport

// Serial transport for terminals attached over RS-232

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	zvterrors "github.com/payterm/zvtsim/internal/errors"
)

// SerialTransport connects to a terminal over a serial device.
type SerialTransport struct {
	device   string
	baudRate int
	port     serial.Port
	portMu   sync.RWMutex
}

var _ Transport = (*SerialTransport)(nil)

// NewSerial creates a serial transport for the given device (e.g.
// "/dev/ttyUSB0" or "COM3").
func NewSerial(device string, baudRate int) *SerialTransport {
	if baudRate <= 0 {
		baudRate = 9600
	}
	return &SerialTransport{device: device, baudRate: baudRate}
}

// Connect opens the serial device. ZVT over serial is fixed at 8N2.
func (t *SerialTransport) Connect(ctx context.Context) error {
	t.portMu.Lock()
	defer t.portMu.Unlock()

	if t.port != nil {
		return zvterrors.Connection("connect", fmt.Errorf("already connected"))
	}

	mode := &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}
	port, err := serial.Open(t.device, mode)
	if err != nil {
		return zvterrors.Connection("connect", err)
	}

	t.port = port
	return nil
}

// Disconnect closes the serial device.
func (t *SerialTransport) Disconnect() error {
	t.portMu.Lock()
	defer t.portMu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// Write sends data on the device.
func (t *SerialTransport) Write(data []byte) error {
	t.portMu.RLock()
	port := t.port
	t.portMu.RUnlock()

	if port == nil {
		return zvterrors.Connection("write", fmt.Errorf("not connected"))
	}
	if _, err := port.Write(data); err != nil {
		return zvterrors.Connection("write", err)
	}
	return nil
}

// Read fills buf with available bytes, waiting up to timeout. The serial
// library signals a timed-out read as a zero-byte success.
func (t *SerialTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	t.portMu.RLock()
	port := t.port
	t.portMu.RUnlock()

	if port == nil {
		return 0, zvterrors.Connection("read", fmt.Errorf("not connected"))
	}

	if err := port.SetReadTimeout(timeout); err != nil {
		return 0, zvterrors.Connection("read", err)
	}
	n, err := port.Read(buf)
	if err != nil {
		return n, zvterrors.Connection("read", err)
	}
	if n == 0 {
		return 0, ErrReadTimeout
	}
	return n, nil
}

// IsConnected reports whether the device is open.
func (t *SerialTransport) IsConnected() bool {
	t.portMu.RLock()
	defer t.portMu.RUnlock()
	return t.port != nil
}
