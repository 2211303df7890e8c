package client

// The ECR-side protocol engine: connection state machine and the
// per-command execution loop.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/payterm/zvtsim/internal/capture"
	"github.com/payterm/zvtsim/internal/config"
	zvterrors "github.com/payterm/zvtsim/internal/errors"
	"github.com/payterm/zvtsim/internal/logging"
	"github.com/payterm/zvtsim/internal/transport"
	"github.com/payterm/zvtsim/internal/zvt/apdu"
	"github.com/payterm/zvtsim/internal/zvt/command"
	"github.com/payterm/zvtsim/internal/zvt/response"
	"github.com/payterm/zvtsim/internal/zvt/spec"
)

// Engine drives one terminal connection. One command execution loop runs
// at a time; Abort is the only call safe to issue concurrently with a
// running command.
type Engine struct {
	cfg       config.ClientConfig
	transport transport.Transport
	logger    *logging.Logger
	tracer    *capture.Tracer
	parser    *response.Parser
	callbacks Callbacks

	// writeMu serializes packet writes so an out-of-band Abort can
	// interleave with the read loop of an in-flight command.
	writeMu sync.Mutex

	stateMu sync.Mutex
	state   ConnectionState

	statusMu sync.Mutex
	status   *response.IntermediateStatus

	// bufMu guards readBuf: Disconnect and Connect clear it from
	// outside the goroutine that runs the read loop.
	bufMu   sync.Mutex
	readBuf []byte
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransport overrides the transport built from the config.
func WithTransport(t transport.Transport) Option {
	return func(e *Engine) { e.transport = t }
}

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer records all traffic to a pcap trace.
func WithTracer(t *capture.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithCallbacks installs the event hooks.
func WithCallbacks(c Callbacks) Option {
	return func(e *Engine) { e.callbacks = c }
}

// NewEngine creates an engine for the given configuration.
func NewEngine(cfg config.ClientConfig, opts ...Option) *Engine {
	e := &Engine{
		cfg:   cfg,
		state: StateDisconnected,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.transport == nil {
		switch cfg.Transport {
		case config.TransportSerial:
			e.transport = transport.NewSerial(cfg.SerialDevice, cfg.BaudRate)
		default:
			addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
			e.transport = transport.NewTCP(addr, time.Duration(cfg.ConnectTimeoutMs)*time.Millisecond)
		}
	}

	var codePage *charmap.Charmap
	switch cfg.CodePage {
	case "cp1252":
		codePage = charmap.Windows1252
	default:
		codePage = charmap.CodePage437
	}
	e.parser = &response.Parser{
		CodePage: codePage,
		Debug:    e.debugf,
	}

	return e
}

func (e *Engine) debugf(format string, v ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(format, v...)
	}
	e.callbacks.debug(format, v...)
}

// State returns the current connection state.
func (e *Engine) State() ConnectionState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) setState(s ConnectionState) {
	e.stateMu.Lock()
	changed := e.state != s
	e.state = s
	e.stateMu.Unlock()
	if changed {
		e.callbacks.connectionState(s)
	}
}

// CurrentStatus returns the intermediate status of the command in
// progress, or nil.
func (e *Engine) CurrentStatus() *response.IntermediateStatus {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s *response.IntermediateStatus) {
	e.statusMu.Lock()
	e.status = s
	e.statusMu.Unlock()
	if s != nil {
		e.callbacks.intermediateStatus(*s)
	}
}

// Connect establishes the transport connection.
func (e *Engine) Connect(ctx context.Context) error {
	e.setState(StateConnecting)
	if err := e.transport.Connect(ctx); err != nil {
		e.setState(StateError)
		e.callbacks.error(err)
		return err
	}
	e.resetReadBuf()
	e.setState(StateConnected)
	return nil
}

func (e *Engine) resetReadBuf() {
	e.bufMu.Lock()
	e.readBuf = nil
	e.bufMu.Unlock()
}

// Register runs the Registration command and moves the engine into the
// registered state on success.
func (e *Engine) Register() (*response.TransactionResult, error) {
	pkt, err := command.Registration(e.cfg.Password, e.cfg.ConfigByte, e.cfg.Currency, 0x00, nil)
	if err != nil {
		return nil, err
	}

	e.setState(StateRegistering)
	result, err := e.execute(pkt)
	if err != nil {
		e.setState(StateError)
		e.callbacks.error(err)
		return nil, err
	}
	if !result.Success {
		// The terminal rejected the registration; the connection stays
		// usable for another attempt.
		e.setState(StateConnected)
		return result, nil
	}
	e.setState(StateRegistered)
	return result, nil
}

// Disconnect unconditionally releases the connection and returns the
// engine to the disconnected state.
func (e *Engine) Disconnect() error {
	err := e.transport.Disconnect()
	e.resetReadBuf()
	e.setState(StateDisconnected)
	return err
}

// Authorize runs a payment for the given amount in cents.
func (e *Engine) Authorize(amountCents int64) (*response.TransactionResult, error) {
	pkt, err := command.Authorization(amountCents, e.cfg.Currency, e.cfg.PaymentType)
	if err != nil {
		return nil, err
	}
	return e.execute(pkt)
}

// Refund runs a refund for the given amount in cents.
func (e *Engine) Refund(amountCents int64) (*response.TransactionResult, error) {
	pkt, err := command.Refund(e.cfg.Password, amountCents, e.cfg.Currency)
	if err != nil {
		return nil, err
	}
	return e.execute(pkt)
}

// Reversal cancels the transaction identified by receiptNo.
func (e *Engine) Reversal(receiptNo uint32) (*response.TransactionResult, error) {
	pkt, err := command.Reversal(e.cfg.Password, receiptNo)
	if err != nil {
		return nil, err
	}
	return e.execute(pkt)
}

// PreAuthorize reserves the given amount.
func (e *Engine) PreAuthorize(amountCents int64) (*response.TransactionResult, error) {
	pkt, err := command.PreAuthorization(amountCents, e.cfg.Currency, e.cfg.PaymentType)
	if err != nil {
		return nil, err
	}
	return e.execute(pkt)
}

// BookTotal books the final amount of a pre-authorization.
func (e *Engine) BookTotal(receiptNo uint32, amountCents int64) (*response.TransactionResult, error) {
	pkt, err := command.BookTotal(e.cfg.Password, receiptNo, amountCents)
	if err != nil {
		return nil, err
	}
	return e.execute(pkt)
}

// PartialReversal releases part of a pre-authorized amount.
func (e *Engine) PartialReversal(receiptNo uint32, amountCents int64) (*response.TransactionResult, error) {
	pkt, err := command.PartialReversal(receiptNo, amountCents, e.cfg.Currency)
	if err != nil {
		return nil, err
	}
	return e.execute(pkt)
}

// RepeatReceipt asks the terminal to resend the last receipt.
func (e *Engine) RepeatReceipt() (*response.TransactionResult, error) {
	pkt, err := command.RepeatReceipt(e.cfg.Password)
	if err != nil {
		return nil, err
	}
	return e.execute(pkt)
}

// EndOfDay closes the terminal's current batch.
func (e *Engine) EndOfDay() (*response.EndOfDayResult, error) {
	pkt, err := command.EndOfDay(e.cfg.Password)
	if err != nil {
		return nil, err
	}
	result, err := e.execute(pkt)
	if err != nil {
		return nil, err
	}
	return &response.EndOfDayResult{
		Success:       result.Success,
		ResultCode:    result.ResultCode,
		ResultMessage: result.ResultMessage,
		TotalCents:    result.AmountCents,
		TraceNumber:   result.TraceNumber,
		ReceiptLines:  result.ReceiptLines,
	}, nil
}

// Diagnosis probes the terminal's host connection.
func (e *Engine) Diagnosis() (*response.DiagnosisResult, error) {
	result, err := e.execute(command.Diagnosis())
	if err != nil {
		return nil, err
	}
	return &response.DiagnosisResult{
		Success:       result.Success,
		ResultCode:    result.ResultCode,
		ResultMessage: result.ResultMessage,
		TerminalID:    result.TerminalID,
		Date:          result.Date,
		Time:          result.Time,
	}, nil
}

// StatusEnquiry asks for the terminal's current status.
func (e *Engine) StatusEnquiry() (*response.TerminalStatus, error) {
	pkt, err := command.StatusEnquiry(e.cfg.Password, 0x00)
	if err != nil {
		return nil, err
	}
	result, err := e.execute(pkt)
	if err != nil {
		return nil, err
	}
	return &response.TerminalStatus{
		Success:       result.Success,
		ResultCode:    result.ResultCode,
		ResultMessage: result.ResultMessage,
		TerminalID:    result.TerminalID,
	}, nil
}

// Abort fires the abort command without waiting for a response. It may
// be called from a different goroutine than the one blocked inside a
// command execution; the write lock makes the interleaved send safe.
func (e *Engine) Abort() error {
	return e.send(command.Abort())
}

// LogOff is the only command that expects a bare ACK with no response
// loop after it.
func (e *Engine) LogOff() error {
	if err := e.send(command.LogOff()); err != nil {
		return err
	}

	pkt, err := e.readPacket(e.readTimeout())
	if err != nil {
		if err == transport.ErrReadTimeout {
			return zvterrors.Timeout("log off", nil)
		}
		return err
	}
	if pkt.IsNack() {
		return zvterrors.Protocol("Log Off", "terminal rejected the command")
	}
	return nil
}

func (e *Engine) readTimeout() time.Duration {
	if e.cfg.ReadTimeoutMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(e.cfg.ReadTimeoutMs) * time.Millisecond
}

func (e *Engine) send(pkt apdu.Packet) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	raw := pkt.Bytes()
	if e.logger != nil {
		e.logger.LogHex("ECR->PT "+spec.CommandName(pkt.Cmd), raw)
	}
	if err := e.transport.Write(raw); err != nil {
		return err
	}
	_ = e.tracer.Record(capture.DirECRToPT, raw)
	return nil
}

// readPacket returns the next complete packet, pulling more bytes from
// the transport as needed. transport.ErrReadTimeout passes through
// untouched so callers can tell a quiet line from a broken one.
func (e *Engine) readPacket(timeout time.Duration) (apdu.Packet, error) {
	for {
		e.bufMu.Lock()
		pkt, consumed, ok := apdu.Decode(e.readBuf)
		if ok {
			e.readBuf = e.readBuf[consumed:]
		}
		e.bufMu.Unlock()

		if ok {
			raw := pkt.Bytes()
			if e.logger != nil {
				e.logger.LogHex("PT->ECR "+spec.CommandName(pkt.Cmd), raw)
			}
			_ = e.tracer.Record(capture.DirPTToECR, raw)
			return pkt, nil
		}

		chunk := make([]byte, 4096)
		n, err := e.transport.Read(chunk, timeout)
		if err != nil {
			return apdu.Packet{}, err
		}

		e.bufMu.Lock()
		e.readBuf = append(e.readBuf, chunk[:n]...)
		e.bufMu.Unlock()
	}
}

// execute runs one command: send, await the mandatory ACK, then drain
// the terminal's response sequence into a TransactionResult.
func (e *Engine) execute(pkt apdu.Packet) (*response.TransactionResult, error) {
	e.setStatus(nil)
	commandName := spec.CommandName(pkt.Cmd)

	started := time.Now()
	if err := e.send(pkt); err != nil {
		return nil, err
	}

	first, err := e.readPacket(e.readTimeout())
	if err != nil {
		if err == transport.ErrReadTimeout {
			// The initial acknowledgement is mandatory.
			return nil, zvterrors.Timeout("await ACK for "+commandName, nil)
		}
		return nil, err
	}

	if first.IsNack() {
		return nil, zvterrors.Protocol(commandName, "terminal rejected the command")
	}

	var result *response.TransactionResult
	var receiptLines []string

	if !first.IsAck() {
		// Some terminals skip the ACK and answer directly.
		result, receiptLines, err = e.handleDirect(first)
		if err != nil {
			return nil, err
		}
	} else {
		result, receiptLines, err = e.responseLoop()
		if err != nil {
			return nil, err
		}
	}

	if result == nil {
		result = &response.TransactionResult{
			Success:       false,
			ResultMessage: "no response received",
		}
	}
	result.ReceiptLines = receiptLines

	e.setStatus(nil)
	if e.logger != nil {
		e.logger.LogTransaction(commandName, result.Success, result.ResultCode, result.AmountCents, time.Since(started))
	}
	return result, nil
}

// handleDirect parses a packet the terminal sent in place of an ACK.
func (e *Engine) handleDirect(pkt apdu.Packet) (*response.TransactionResult, []string, error) {
	switch pkt.Cmd {
	case spec.RespStatusInfo:
		result, err := e.parser.ParseStatusInfo(pkt)
		if err != nil {
			return nil, nil, err
		}
		e.ackIfConfigured()
		// The terminal still terminates the sequence with Completion.
		_, lines, loopErr := e.responseLoop()
		if loopErr != nil {
			return nil, nil, loopErr
		}
		return result, lines, nil
	case spec.RespCompletion:
		result, err := e.parser.ParseCompletion(pkt)
		return result, nil, err
	case spec.RespAbort:
		result, err := e.parser.ParseAbort(pkt)
		return result, nil, err
	default:
		e.debugf("unexpected direct response %s", spec.CommandName(pkt.Cmd))
		result, err := e.parser.ParseCompletion(apdu.Packet{Cmd: spec.RespCompletion, Data: pkt.Data})
		return result, nil, err
	}
}

// responseLoop drains the terminal's packet sequence until Completion,
// a terminal-initiated abort, or a quiet line.
func (e *Engine) responseLoop() (*response.TransactionResult, []string, error) {
	var result *response.TransactionResult
	var receiptLines []string

	for {
		pkt, err := e.readPacket(e.readTimeout())
		if err != nil {
			if err == transport.ErrReadTimeout {
				// A quiet line ends the loop; whatever accumulated
				// so far is the outcome.
				e.debugf("response loop ended by read timeout")
				return result, receiptLines, nil
			}
			return nil, nil, err
		}

		switch pkt.Cmd {
		case spec.RespIntermediate:
			status, perr := e.parser.ParseIntermediateStatus(pkt)
			if perr == nil {
				e.setStatus(status)
			}
			e.ackIfConfigured()

		case spec.RespPrintLine:
			line, perr := e.parser.ParsePrintLine(pkt)
			if perr == nil {
				e.callbacks.printLine(*line)
				receiptLines = append(receiptLines, line.Text)
			}
			e.ackIfConfigured()

		case spec.RespPrintTextBlock:
			// Text blocks carry TLV-wrapped receipt text; recorded raw.
			receiptLines = append(receiptLines, string(pkt.Data))
			e.ackIfConfigured()

		case spec.RespStatusInfo:
			parsed, perr := e.parser.ParseStatusInfo(pkt)
			if perr == nil {
				result = parsed
			}
			e.ackIfConfigured()

		case spec.RespCompletion:
			if result == nil {
				parsed, perr := e.parser.ParseCompletion(pkt)
				if perr != nil {
					return nil, nil, perr
				}
				result = parsed
			}
			e.ackIfConfigured()
			return result, receiptLines, nil

		case spec.RespAbort:
			parsed, perr := e.parser.ParseAbort(pkt)
			if perr != nil {
				return nil, nil, perr
			}
			e.ackIfConfigured()
			return parsed, receiptLines, nil

		default:
			e.debugf("ignoring packet %s inside response loop", spec.CommandName(pkt.Cmd))
			e.ackIfConfigured()
		}
	}
}

func (e *Engine) ackIfConfigured() {
	if !e.cfg.AutoAck {
		return
	}
	if err := e.send(apdu.Ack()); err != nil {
		e.debugf("auto-ack failed: %v", err)
	}
}
