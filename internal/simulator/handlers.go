package simulator

import (
	"fmt"
	"time"

	"github.com/payterm/zvtsim/internal/config"
	"github.com/payterm/zvtsim/internal/zvt/apdu"
	"github.com/payterm/zvtsim/internal/zvt/bcd"
	"github.com/payterm/zvtsim/internal/zvt/bmp"
	"github.com/payterm/zvtsim/internal/zvt/spec"
)

// reply is the ordered packet sequence a handler produces for one ECR
// command, plus whether the connection is torn down afterwards.
type reply struct {
	packets   []apdu.Packet
	closeConn bool
}

// handlerFunc maps one incoming command to its scripted response
// sequence.
type handlerFunc func(e *Engine, pkt apdu.Packet) reply

// newRegistry builds the dispatch table. One fixed handler per command
// code; everything else is NACKed by the session loop.
func newRegistry() map[apdu.CommandCode]handlerFunc {
	return map[apdu.CommandCode]handlerFunc{
		spec.CmdRegistration:    (*Engine).handleRegistration,
		spec.CmdAuthorization:   transactionHandler("Authorization"),
		spec.CmdPreAuth:         transactionHandler("Pre-Authorization"),
		spec.CmdRefund:          transactionHandler("Refund"),
		spec.CmdBookTotal:       referencingHandler("Book Total"),
		spec.CmdPartialReversal: referencingHandler("Partial Reversal"),
		spec.CmdReversal:        referencingHandler("Reversal"),
		spec.CmdRepeatReceipt:   (*Engine).handleRepeatReceipt,
		spec.CmdEndOfDay:        (*Engine).handleEndOfDay,
		spec.CmdDiagnosis:       (*Engine).handleDiagnosis,
		spec.CmdStatusEnquiry:   (*Engine).handleStatusEnquiry,
		spec.CmdLogOff:          (*Engine).handleLogOff,
		spec.CmdAbort:           (*Engine).handleAbort,
	}
}

// parseFields walks tag-prefixed command data into a tag-to-value map,
// stopping at the first unknown tag the same way the response parser
// does.
func parseFields(data []byte) map[byte][]byte {
	fields := make(map[byte][]byte)
	offset := 0
	for offset < len(data) {
		def, ok := bmp.Lookup(data[offset])
		if !ok {
			return fields
		}
		value, consumed, ok := bmp.ConsumeValue(def, data[offset+1:])
		if !ok {
			return fields
		}
		fields[def.Tag] = value
		offset += 1 + consumed
	}
	return fields
}

// passwordLen is the leading fixed password width of administrative
// commands.
const passwordLen = 3

func skipPassword(data []byte) []byte {
	if len(data) < passwordLen {
		return nil
	}
	return data[passwordLen:]
}

func (e *Engine) handleRegistration(pkt apdu.Packet) reply {
	configByte := byte(0)
	currency := 0
	rest := skipPassword(pkt.Data)
	if len(rest) >= 1 {
		configByte = rest[0]
	}
	if len(rest) >= 3 {
		if code, err := bcd.ToCounter(rest[1:3]); err == nil {
			currency = int(code)
		}
	}
	e.state.Register(configByte, currency)

	cfg := e.state.Config()
	data, err := registrationCompletion(cfg, currency)
	if err != nil {
		e.logger.Error("registration completion build: %v", err)
		return reply{packets: []apdu.Packet{apdu.Nack()}}
	}
	return reply{packets: []apdu.Packet{
		apdu.Ack(),
		{Cmd: spec.RespCompletion, Data: data},
	}}
}

func registrationCompletion(cfg config.SimulatorConfig, currency int) ([]byte, error) {
	terminalID, err := bcd.FromDigits(cfg.TerminalID)
	if err != nil {
		return nil, err
	}
	if currency == 0 {
		currency = spec.CurrencyEUR
	}
	currencyBCD, err := bcd.FromCurrency(currency)
	if err != nil {
		return nil, err
	}
	data := []byte{spec.ResultSuccess}
	return appendFields(data, []field{
		{bmp.TagTerminalID, terminalID},
		{bmp.TagCurrency, currencyBCD},
	})
}

// transactionHandler covers the commands that start a fresh payment:
// Authorization, Pre-Authorization and Refund. The amount comes from
// BMP 04 of the command (Refund carries a leading password first).
func transactionHandler(operation string) handlerFunc {
	return func(e *Engine, pkt apdu.Packet) reply {
		data := pkt.Data
		if operation == "Refund" {
			data = skipPassword(data)
		}
		fields := parseFields(data)

		amount, err := bcd.ToAmount(fields[bmp.TagAmount])
		if err != nil || amount <= 0 {
			return reply{packets: errorSequence(0x66, false)}
		}
		currency := currencyOrDefault(fields[bmp.TagCurrency])

		return e.runTransaction(operation, amount, currency, 0)
	}
}

// referencingHandler covers the commands that point back at a stored
// transaction through its receipt number: Reversal, Partial Reversal
// and Book Total.
func referencingHandler(operation string) handlerFunc {
	return func(e *Engine, pkt apdu.Packet) reply {
		data := pkt.Data
		if operation != "Partial Reversal" {
			data = skipPassword(data)
		}
		fields := parseFields(data)

		receipt, err := bcd.ToCounter(fields[bmp.TagReceipt])
		if err != nil {
			return reply{packets: errorSequence(0xB5, false)}
		}
		original, found := e.store.FindByReceipt(receipt)
		if !found {
			return reply{packets: errorSequence(0xB5, false)}
		}

		amount := original.AmountCents
		if raw, ok := fields[bmp.TagAmount]; ok {
			if parsed, err := bcd.ToAmount(raw); err == nil && parsed > 0 {
				amount = parsed
			}
		}
		return e.runTransaction(operation, amount, original.Currency, original.TraceNumber)
	}
}

// runTransaction allocates numbers, records the transaction and emits
// the full scripted sequence, unless the fault policy collapses it.
func (e *Engine) runTransaction(operation string, amountCents int64, currency int, originalTrace uint32) reply {
	cfg := e.state.Config()
	action := e.faults.next(cfg.Faults)

	if action.delay > 0 {
		time.Sleep(action.delay)
	}
	if action.closeAfterAck {
		return reply{packets: []apdu.Packet{apdu.Ack()}, closeConn: true}
	}
	if action.errorCode != 0 {
		return reply{packets: errorSequence(action.errorCode, action.dropCompletion)}
	}

	trace, receipt, turnover := e.state.NextNumbers()
	txn := StoredTransaction{
		Operation:     operation,
		TraceNumber:   trace,
		ReceiptNumber: receipt,
		Turnover:      turnover,
		AmountCents:   amountCents,
		Currency:      currency,
		MaskedPAN:     maskPANText(cfg.Card.PAN),
		CardName:      cfg.Card.CardName,
		Timestamp:     e.now(),
	}

	statusInfo, err := buildTransactionStatusInfo(cfg, txn, txn.Timestamp)
	if err != nil {
		e.logger.Error("%s status info build: %v", operation, err)
		return reply{packets: errorSequence(0xFF, false)}
	}
	e.store.Append(txn)
	if originalTrace > 0 {
		statusInfo, err = bmp.AppendField(statusInfo, bmp.TagOriginalTrace, mustTrace(originalTrace))
		if err != nil {
			e.logger.Error("%s original trace: %v", operation, err)
		}
	}

	packets := []apdu.Packet{
		apdu.Ack(),
		{Cmd: spec.RespIntermediate, Data: []byte{spec.StatusInsertCard}},
		{Cmd: spec.RespIntermediate, Data: []byte{spec.StatusWatchPINPad}},
		{Cmd: spec.RespIntermediate, Data: []byte{spec.StatusPleaseWait}},
		{Cmd: spec.RespStatusInfo, Data: statusInfo},
	}
	if !action.dropCompletion {
		packets = append(packets, apdu.Packet{Cmd: spec.RespCompletion})
	}
	return reply{packets: packets}
}

func mustTrace(n uint32) []byte {
	out, err := bcd.FromTrace(n)
	if err != nil {
		return []byte{0x00, 0x00, 0x00}
	}
	return out
}

// errorSequence is the collapsed response for a failed or injected
// transaction: no intermediates, no stored transaction.
func errorSequence(code byte, dropCompletion bool) []apdu.Packet {
	packets := []apdu.Packet{
		apdu.Ack(),
		{Cmd: spec.RespStatusInfo, Data: buildErrorStatusInfo(code)},
	}
	if !dropCompletion {
		packets = append(packets, apdu.Packet{Cmd: spec.RespCompletion})
	}
	return packets
}

func (e *Engine) handleRepeatReceipt(pkt apdu.Packet) reply {
	cfg := e.state.Config()
	last, ok := e.store.Last()
	if !ok {
		return reply{packets: errorSequence(0x83, false)}
	}

	packets := []apdu.Packet{apdu.Ack()}
	for _, line := range receiptLines(cfg, last) {
		packets = append(packets, printLinePacket(line))
	}
	packets = append(packets, apdu.Packet{Cmd: spec.RespCompletion})
	return reply{packets: packets}
}

func (e *Engine) handleEndOfDay(pkt apdu.Packet) reply {
	cfg := e.state.Config()
	action := e.faults.next(cfg.Faults)
	if action.delay > 0 {
		time.Sleep(action.delay)
	}

	total := e.store.TotalCents()
	batch := e.store.Clear()
	trace := e.state.NextTrace()

	statusInfo, err := buildAdminStatusInfo(cfg, total, trace, true, e.now())
	if err != nil {
		e.logger.Error("end of day status info build: %v", err)
		return reply{packets: errorSequence(0x77, false)}
	}

	packets := []apdu.Packet{apdu.Ack()}
	for _, line := range endOfDayReceipt(cfg, batch, total) {
		packets = append(packets, printLinePacket(line))
	}
	packets = append(packets, apdu.Packet{Cmd: spec.RespStatusInfo, Data: statusInfo})
	if !action.dropCompletion {
		packets = append(packets, apdu.Packet{Cmd: spec.RespCompletion})
	}
	return reply{packets: packets}
}

func (e *Engine) handleDiagnosis(pkt apdu.Packet) reply {
	cfg := e.state.Config()
	statusInfo, err := buildAdminStatusInfo(cfg, 0, 0, false, e.now())
	if err != nil {
		e.logger.Error("diagnosis status info build: %v", err)
		return reply{packets: errorSequence(0xC2, false)}
	}
	return reply{packets: []apdu.Packet{
		apdu.Ack(),
		{Cmd: spec.RespIntermediate, Data: []byte{0x42}}, // connecting to host
		{Cmd: spec.RespStatusInfo, Data: statusInfo},
		{Cmd: spec.RespCompletion},
	}}
}

func (e *Engine) handleStatusEnquiry(pkt apdu.Packet) reply {
	cfg := e.state.Config()
	data, err := registrationCompletion(cfg, 0)
	if err != nil {
		e.logger.Error("status enquiry completion build: %v", err)
		return reply{packets: []apdu.Packet{apdu.Nack()}}
	}
	return reply{packets: []apdu.Packet{
		apdu.Ack(),
		{Cmd: spec.RespCompletion, Data: data},
	}}
}

func (e *Engine) handleLogOff(pkt apdu.Packet) reply {
	e.state.LogOff()
	return reply{packets: []apdu.Packet{apdu.Ack()}}
}

func (e *Engine) handleAbort(pkt apdu.Packet) reply {
	return reply{packets: []apdu.Packet{apdu.Ack()}}
}

func printLinePacket(line string) apdu.Packet {
	data := append([]byte{0x00}, []byte(line)...)
	return apdu.Packet{Cmd: spec.RespPrintLine, Data: data}
}

// endOfDayReceipt renders the batch summary the terminal prints before
// its end-of-day Status Information.
func endOfDayReceipt(cfg config.SimulatorConfig, batch []StoredTransaction, total int64) []string {
	lines := []string{
		"** Kassenschnitt **",
		"Terminal " + cfg.TerminalID,
	}
	for _, txn := range batch {
		lines = append(lines, fmt.Sprintf("%s  Beleg %04d  EUR %d,%02d",
			txn.Operation, txn.ReceiptNumber, txn.AmountCents/100, txn.AmountCents%100))
	}
	lines = append(lines, fmt.Sprintf("Summe EUR %d,%02d (%d Transaktionen)",
		total/100, total%100, len(batch)))
	return lines
}

func currencyOrDefault(raw []byte) int {
	if code, err := bcd.ToCounter(raw); err == nil && code > 0 {
		return int(code)
	}
	return spec.CurrencyEUR
}
