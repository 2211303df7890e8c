package simulator

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/payterm/zvtsim/internal/capture"
	"github.com/payterm/zvtsim/internal/config"
	"github.com/payterm/zvtsim/internal/logging"
	"github.com/payterm/zvtsim/internal/zvt/apdu"
	"github.com/payterm/zvtsim/internal/zvt/spec"
)

// Engine is the terminal simulator: a TCP listener whose sessions all
// share one State and one transaction Store, plus an optional HTTP
// control plane.
type Engine struct {
	state  *State
	store  *Store
	faults *faultClock
	logger *logging.Logger
	tracer *capture.Tracer

	handlers map[apdu.CommandCode]handlerFunc
	now      func() time.Time

	tcpListener *net.TCPListener
	control     *controlServer

	// sessionsMu guards sessions so Stop can close every live
	// connection instead of waiting out their read deadlines.
	sessionsMu sync.Mutex
	sessions   map[*net.TCPConn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// EngineOption configures a simulator Engine.
type EngineOption func(*Engine)

// WithLogger sets the simulator logger.
func WithLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithTracer records all traffic to a pcap trace.
func WithTracer(t *capture.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithClock overrides the transaction timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a simulator for the given configuration.
func NewEngine(cfg config.SimulatorConfig, opts ...EngineOption) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		state:    NewState(cfg),
		store:    NewStore(),
		faults:   &faultClock{},
		now:      time.Now,
		sessions: make(map[*net.TCPConn]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger, _ = logging.NewLogger(logging.LogLevelSilent, "")
	}
	e.handlers = newRegistry()
	return e
}

// State exposes the shared terminal state (control plane, tests).
func (e *Engine) State() *State { return e.state }

// Store exposes the transaction batch (control plane, tests).
func (e *Engine) Store() *Store { return e.store }

// Start binds the TCP listener (and the control plane when configured)
// and begins accepting sessions.
func (e *Engine) Start() error {
	cfg := e.state.Config()

	tcpAddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", cfg.ListenIP, cfg.ListenPort))
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}
	e.tcpListener, err = net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	e.logger.Info("terminal simulator listening on %s", e.tcpListener.Addr())

	if cfg.ControlAddr != "" {
		e.control = newControlServer(e)
		if err := e.control.start(cfg.ControlAddr); err != nil {
			e.tcpListener.Close()
			return fmt.Errorf("start control plane: %w", err)
		}
		e.logger.Info("control plane listening on %s", e.control.addr())
	}

	e.wg.Add(1)
	go e.acceptLoop()
	return nil
}

// Addr returns the bound terminal address after Start.
func (e *Engine) Addr() net.Addr {
	if e.tcpListener == nil {
		return nil
	}
	return e.tcpListener.Addr()
}

// ControlAddr returns the bound control plane address, if running.
func (e *Engine) ControlAddr() string {
	if e.control == nil {
		return ""
	}
	return e.control.addr()
}

// Stop shuts the listeners down, closes every live session connection
// and waits for all sessions to finish.
func (e *Engine) Stop() error {
	e.cancel()
	if e.tcpListener != nil {
		e.tcpListener.Close()
	}
	if e.control != nil {
		e.control.stop()
	}

	e.sessionsMu.Lock()
	for conn := range e.sessions {
		conn.Close()
	}
	e.sessionsMu.Unlock()

	e.wg.Wait()
	_ = e.tracer.Close()
	e.logger.Info("terminal simulator stopped")
	return nil
}

func (e *Engine) acceptLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		e.tcpListener.SetDeadline(time.Now().Add(1 * time.Second))
		conn, err := e.tcpListener.AcceptTCP()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if e.ctx.Err() != nil {
				return
			}
			e.logger.Error("accept: %v", err)
			continue
		}

		e.wg.Add(1)
		go e.handleSession(conn)
	}
}

// handleSession serves one ECR connection: reassemble the byte stream
// into packets, consume ACKs silently, dispatch everything else.
func (e *Engine) handleSession(conn *net.TCPConn) {
	defer e.wg.Done()

	e.sessionsMu.Lock()
	e.sessions[conn] = struct{}{}
	e.sessionsMu.Unlock()
	defer func() {
		e.sessionsMu.Lock()
		delete(e.sessions, conn)
		e.sessionsMu.Unlock()
		conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	e.logger.Info("session opened by %s", remote)

	var buffer []byte
	chunk := make([]byte, 4096)

	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		n, err := conn.Read(chunk)
		if err != nil {
			if err == io.EOF {
				e.logger.Info("session closed by %s", remote)
			} else if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			} else if e.ctx.Err() == nil {
				e.logger.Error("read from %s: %v", remote, err)
			}
			return
		}

		buffer = append(buffer, chunk[:n]...)
		packets, rest := apdu.ParseStream(buffer)
		buffer = rest

		for _, pkt := range packets {
			raw := pkt.Bytes()
			e.logger.LogHex("ECR->PT "+spec.CommandName(pkt.Cmd), raw)
			_ = e.tracer.Record(capture.DirECRToPT, raw)

			if pkt.IsAck() {
				continue
			}

			r := e.dispatch(pkt)
			for _, out := range r.packets {
				if err := e.writePacket(conn, out); err != nil {
					e.logger.Error("write to %s: %v", remote, err)
					return
				}
			}
			if r.closeConn {
				e.logger.Info("session to %s closed by fault policy", remote)
				return
			}
		}
	}
}

func (e *Engine) dispatch(pkt apdu.Packet) reply {
	handler, ok := e.handlers[pkt.Cmd]
	if !ok {
		e.logger.Verbose("unknown command %s, replying NACK", spec.CommandName(pkt.Cmd))
		return reply{packets: []apdu.Packet{apdu.Nack()}}
	}
	return handler(e, pkt)
}

func (e *Engine) writePacket(conn *net.TCPConn, pkt apdu.Packet) error {
	raw := pkt.Bytes()
	e.logger.LogHex("PT->ECR "+spec.CommandName(pkt.Cmd), raw)
	_ = e.tracer.Record(capture.DirPTToECR, raw)
	_, err := conn.Write(raw)
	return err
}
