package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/payterm/zvtsim/internal/config"
	zvterrors "github.com/payterm/zvtsim/internal/errors"
	"github.com/payterm/zvtsim/internal/zvt/apdu"
	"github.com/payterm/zvtsim/internal/zvt/bcd"
	"github.com/payterm/zvtsim/internal/zvt/bmp"
	"github.com/payterm/zvtsim/internal/zvt/response"
	"github.com/payterm/zvtsim/internal/zvt/spec"
)

// scriptedTerminal answers the first command packet on a connection with
// a canned response sequence and silently drains everything else
// (auto-acks, aborts).
type scriptedTerminal struct {
	t        *testing.T
	ln       net.Listener
	script   []apdu.Packet
	mu       sync.Mutex
	received []apdu.Packet
}

func newScriptedTerminal(t *testing.T, script []apdu.Packet) *scriptedTerminal {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	st := &scriptedTerminal{t: t, ln: ln, script: script}
	go st.serve()
	t.Cleanup(func() { ln.Close() })
	return st
}

func (st *scriptedTerminal) serve() {
	for {
		conn, err := st.ln.Accept()
		if err != nil {
			return
		}
		go st.handle(conn)
	}
}

func (st *scriptedTerminal) handle(conn net.Conn) {
	defer conn.Close()
	var buf []byte
	replied := false
	chunk := make([]byte, 4096)

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, err := conn.Read(chunk)
		if err != nil {
			return
		}
		buf = append(buf, chunk[:n]...)

		packets, rest := apdu.ParseStream(buf)
		buf = rest
		for _, pkt := range packets {
			st.mu.Lock()
			st.received = append(st.received, pkt)
			st.mu.Unlock()

			if pkt.IsAck() || replied {
				continue
			}
			replied = true
			for _, out := range st.script {
				if _, err := conn.Write(out.Bytes()); err != nil {
					return
				}
			}
		}
	}
}

func (st *scriptedTerminal) commands() []apdu.CommandCode {
	st.mu.Lock()
	defer st.mu.Unlock()
	var cmds []apdu.CommandCode
	for _, pkt := range st.received {
		cmds = append(cmds, pkt.Cmd)
	}
	return cmds
}

func testConfig(addr string) config.ClientConfig {
	cfg := config.DefaultClient()
	host, port, _ := net.SplitHostPort(addr)
	cfg.Host = host
	cfg.Port = atoiOrFail(port)
	cfg.ReadTimeoutMs = 300
	cfg.ConnectTimeoutMs = 1000
	return cfg
}

func atoiOrFail(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

func statusInfoPacket(t *testing.T, amountCents int64, trace, receipt uint32) apdu.Packet {
	t.Helper()
	amount, err := bcd.FromAmount(amountCents)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	traceBCD, err := bcd.FromTrace(trace)
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	receiptBCD, err := bcd.FromReceipt(receipt)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}

	data := []byte{0x00}
	for _, f := range []struct {
		tag   byte
		value []byte
	}{
		{bmp.TagAmount, amount},
		{bmp.TagTrace, traceBCD},
		{bmp.TagReceipt, receiptBCD},
	} {
		data, err = bmp.AppendField(data, f.tag, f.value)
		if err != nil {
			t.Fatalf("field %02X: %v", f.tag, err)
		}
	}
	return apdu.Packet{Cmd: spec.RespStatusInfo, Data: data}
}

func TestAuthorizeHappyPath(t *testing.T) {
	script := []apdu.Packet{
		apdu.Ack(),
		{Cmd: spec.RespIntermediate, Data: []byte{spec.StatusInsertCard}},
		{Cmd: spec.RespIntermediate, Data: []byte{spec.StatusWatchPINPad}},
		{Cmd: spec.RespIntermediate, Data: []byte{spec.StatusPleaseWait}},
		statusInfoPacket(t, 1250, 1, 1),
		{Cmd: spec.RespCompletion},
	}
	st := newScriptedTerminal(t, script)

	var statuses []byte
	e := NewEngine(testConfig(st.ln.Addr().String()), WithCallbacks(Callbacks{
		OnIntermediateStatus: func(s response.IntermediateStatus) { statuses = append(statuses, s.StatusCode) },
	}))

	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	result, err := e.Authorize(1250)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !result.Success {
		t.Errorf("Success = false: %+v", result)
	}
	if result.AmountCents != 1250 {
		t.Errorf("AmountCents = %d, want 1250", result.AmountCents)
	}
	if result.TraceNumber == 0 || result.ReceiptNumber == 0 {
		t.Errorf("counters not populated: %+v", result)
	}
	if len(statuses) != 3 {
		t.Errorf("intermediate statuses seen = %v, want 3", statuses)
	}
	if e.CurrentStatus() != nil {
		t.Errorf("intermediate status not cleared after command")
	}
}

func TestNackFailsBeforeResponseLoop(t *testing.T) {
	st := newScriptedTerminal(t, []apdu.Packet{apdu.Nack()})

	e := NewEngine(testConfig(st.ln.Addr().String()))
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	_, err := e.Authorize(100)
	var pe *zvterrors.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("Authorize error = %v, want ProtocolError", err)
	}
}

func TestMissingAckIsTimeoutError(t *testing.T) {
	st := newScriptedTerminal(t, nil) // never replies

	cfg := testConfig(st.ln.Addr().String())
	cfg.ReadTimeoutMs = 100
	e := NewEngine(cfg)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	_, err := e.Authorize(100)
	if !zvterrors.IsTimeout(err) {
		t.Fatalf("Authorize error = %v, want TimeoutError", err)
	}
}

func TestResponseLoopTimeoutReturnsPartial(t *testing.T) {
	// Status Information but no Completion: the loop must end quietly
	// with the accumulated result.
	script := []apdu.Packet{
		apdu.Ack(),
		statusInfoPacket(t, 500, 2, 2),
	}
	st := newScriptedTerminal(t, script)

	cfg := testConfig(st.ln.Addr().String())
	cfg.ReadTimeoutMs = 150
	e := NewEngine(cfg)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	result, err := e.Authorize(500)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !result.Success || result.AmountCents != 500 {
		t.Errorf("partial result = %+v", result)
	}
}

func TestSilentLoopYieldsNoResponseFailure(t *testing.T) {
	script := []apdu.Packet{apdu.Ack()}
	st := newScriptedTerminal(t, script)

	cfg := testConfig(st.ln.Addr().String())
	cfg.ReadTimeoutMs = 100
	e := NewEngine(cfg)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	result, err := e.Authorize(500)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if result.Success {
		t.Errorf("empty loop should yield a failed result")
	}
	if result.ResultMessage != "no response received" {
		t.Errorf("ResultMessage = %q", result.ResultMessage)
	}
}

func TestDirectResponseWithoutAck(t *testing.T) {
	script := []apdu.Packet{
		{Cmd: spec.RespCompletion, Data: []byte{0x00}},
	}
	st := newScriptedTerminal(t, script)

	e := NewEngine(testConfig(st.ln.Addr().String()))
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	result, err := e.Authorize(100)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !result.Success {
		t.Errorf("direct completion parsed as failure: %+v", result)
	}
}

func TestTerminalInitiatedAbort(t *testing.T) {
	script := []apdu.Packet{
		apdu.Ack(),
		{Cmd: spec.RespIntermediate, Data: []byte{spec.StatusInsertCard}},
		{Cmd: spec.RespAbort, Data: []byte{0x6C}},
	}
	st := newScriptedTerminal(t, script)

	e := NewEngine(testConfig(st.ln.Addr().String()))
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	result, err := e.Authorize(100)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if result.Success || result.ResultCode != 0x6C {
		t.Errorf("abort result = %+v", result)
	}
}

func TestAbortDuringResponseLoop(t *testing.T) {
	// ACK then silence: the read loop blocks, and a concurrent Abort
	// must still get its write through.
	script := []apdu.Packet{apdu.Ack()}
	st := newScriptedTerminal(t, script)

	cfg := testConfig(st.ln.Addr().String())
	cfg.ReadTimeoutMs = 500
	e := NewEngine(cfg)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Authorize(100)
	}()

	time.Sleep(100 * time.Millisecond)
	if err := e.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("execution loop did not finish after abort")
	}

	found := false
	for _, cmd := range st.commands() {
		if cmd == spec.CmdAbort {
			found = true
		}
	}
	if !found {
		t.Errorf("terminal never received the abort command; got %v", st.commands())
	}
}

func TestConnectionStateMachine(t *testing.T) {
	script := []apdu.Packet{
		apdu.Ack(),
		{Cmd: spec.RespCompletion},
	}
	st := newScriptedTerminal(t, script)

	var states []ConnectionState
	e := NewEngine(testConfig(st.ln.Addr().String()), WithCallbacks(Callbacks{
		OnConnectionState: func(s ConnectionState) { states = append(states, s) },
	}))

	if e.State() != StateDisconnected {
		t.Fatalf("initial state = %v", e.State())
	}
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := e.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if e.State() != StateRegistered {
		t.Errorf("state after Register = %v", e.State())
	}
	if err := e.Disconnect(); err != nil {
		t.Errorf("Disconnect: %v", err)
	}
	if e.State() != StateDisconnected {
		t.Errorf("state after Disconnect = %v", e.State())
	}

	want := []ConnectionState{StateConnecting, StateConnected, StateRegistering, StateRegistered, StateDisconnected}
	if len(states) != len(want) {
		t.Fatalf("state transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestDisconnectDuringAuthorizeUnblocksRead(t *testing.T) {
	// Closing the connection from another goroutine is the supported
	// way to unblock a stuck read; the buffered-read state must stay
	// consistent under that interleaving.
	script := []apdu.Packet{apdu.Ack()}
	st := newScriptedTerminal(t, script)

	cfg := testConfig(st.ln.Addr().String())
	cfg.ReadTimeoutMs = 2000
	e := NewEngine(cfg)

	for i := 0; i < 50; i++ {
		if err := e.Connect(context.Background()); err != nil {
			t.Fatalf("Connect %d: %v", i, err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = e.Authorize(100)
		}()

		time.Sleep(time.Millisecond)
		if err := e.Disconnect(); err != nil {
			t.Fatalf("Disconnect %d: %v", i, err)
		}

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("iteration %d: read loop still blocked after disconnect", i)
		}
	}
}

func TestRegisterRejectedStaysUnregistered(t *testing.T) {
	script := []apdu.Packet{
		apdu.Ack(),
		{Cmd: spec.RespStatusInfo, Data: []byte{0x6B}},
		{Cmd: spec.RespCompletion},
	}
	st := newScriptedTerminal(t, script)

	e := NewEngine(testConfig(st.ln.Addr().String()))
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	result, err := e.Register()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Success {
		t.Fatalf("rejected registration reported success: %+v", result)
	}
	if e.State() == StateRegistered {
		t.Errorf("engine registered despite result code 0x%02X", result.ResultCode)
	}
	if e.State() != StateConnected {
		t.Errorf("state after rejected registration = %v, want %v", e.State(), StateConnected)
	}
}

func TestConnectFailureEntersErrorState(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	e := NewEngine(testConfig(addr))
	if err := e.Connect(context.Background()); err == nil {
		t.Fatalf("Connect to closed port succeeded")
	}
	if e.State() != StateError {
		t.Errorf("state after failed connect = %v", e.State())
	}
}

func TestLogOff(t *testing.T) {
	st := newScriptedTerminal(t, []apdu.Packet{apdu.Ack()})

	e := NewEngine(testConfig(st.ln.Addr().String()))
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	if err := e.LogOff(); err != nil {
		t.Errorf("LogOff: %v", err)
	}
}
