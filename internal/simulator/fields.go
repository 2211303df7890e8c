package simulator

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/payterm/zvtsim/internal/config"
	"github.com/payterm/zvtsim/internal/errors"
	"github.com/payterm/zvtsim/internal/zvt/bcd"
	"github.com/payterm/zvtsim/internal/zvt/bmp"
	"github.com/payterm/zvtsim/internal/zvt/spec"
)

// Response payload assembly. Status Information payloads are a result
// code byte followed by BMP fields in ascending tag order, the layout
// the ECR-side parser walks.

type field struct {
	tag   byte
	value []byte
}

func appendFields(data []byte, fields []field) ([]byte, error) {
	var err error
	for _, f := range fields {
		data, err = bmp.AppendField(data, f.tag, f.value)
		if err != nil {
			return nil, fmt.Errorf("build field 0x%02X: %w", f.tag, err)
		}
	}
	return data, nil
}

// buildTransactionStatusInfo assembles the Status Information payload
// for a completed payment transaction.
func buildTransactionStatusInfo(cfg config.SimulatorConfig, txn StoredTransaction, now time.Time) ([]byte, error) {
	amount, err := bcd.FromAmount(txn.AmountCents)
	if err != nil {
		return nil, err
	}
	trace, err := bcd.FromTrace(txn.TraceNumber)
	if err != nil {
		return nil, err
	}
	receipt, err := bcd.FromReceipt(txn.ReceiptNumber)
	if err != nil {
		return nil, err
	}
	turnover, err := bcd.FromTurnover(txn.Turnover)
	if err != nil {
		return nil, err
	}
	clock, date, err := clockFields(now)
	if err != nil {
		return nil, err
	}
	expiry, err := bcd.FromDigits(cfg.Card.ExpiryYYMM)
	if err != nil {
		return nil, errors.Validation("card expiry", "%q is not YYMM: %v", cfg.Card.ExpiryYYMM, err)
	}
	cardSeq, err := bcd.FromDigits("0001")
	if err != nil {
		return nil, err
	}
	pan, err := bcd.FromPAN(cfg.Card.PAN)
	if err != nil {
		return nil, err
	}
	terminalID, err := bcd.FromDigits(cfg.TerminalID)
	if err != nil {
		return nil, errors.Validation("terminal id", "%q is not 8 digits: %v", cfg.TerminalID, err)
	}
	currency, err := bcd.FromCurrency(txn.Currency)
	if err != nil {
		return nil, err
	}
	aid, err := decodeAID(cfg.Card.AIDHex)
	if err != nil {
		return nil, err
	}

	data := []byte{spec.ResultSuccess}
	return appendFields(data, []field{
		{bmp.TagAmount, amount},
		{bmp.TagTrace, trace},
		{bmp.TagTime, clock},
		{bmp.TagDate, date},
		{bmp.TagExpiry, expiry},
		{bmp.TagCardSeq, cardSeq},
		{bmp.TagPAN, pan},
		{bmp.TagTerminalID, terminalID},
		{bmp.TagVuNumber, padVuNumber(cfg.VuNumber)},
		{bmp.TagAID, aid},
		{bmp.TagCurrency, currency},
		{bmp.TagReceipt, receipt},
		{bmp.TagTurnover, turnover},
		{bmp.TagCardType, []byte{cfg.Card.CardType}},
		{bmp.TagCardName, nullTerminated(cfg.Card.CardName)},
	})
}

// buildErrorStatusInfo is the collapsed payload for an injected error:
// the result code and nothing else.
func buildErrorStatusInfo(code byte) []byte {
	return []byte{code}
}

// buildAdminStatusInfo assembles the payload for administrative
// completions (End of Day, Diagnosis): clock, terminal identity and an
// optional total.
func buildAdminStatusInfo(cfg config.SimulatorConfig, totalCents int64, trace uint32, withTotal bool, now time.Time) ([]byte, error) {
	clock, date, err := clockFields(now)
	if err != nil {
		return nil, err
	}
	terminalID, err := bcd.FromDigits(cfg.TerminalID)
	if err != nil {
		return nil, errors.Validation("terminal id", "%q is not 8 digits: %v", cfg.TerminalID, err)
	}

	fields := []field{}
	if withTotal {
		amount, err := bcd.FromAmount(totalCents)
		if err != nil {
			return nil, err
		}
		traceBCD, err := bcd.FromTrace(trace)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field{bmp.TagAmount, amount}, field{bmp.TagTrace, traceBCD})
	}
	fields = append(fields,
		field{bmp.TagTime, clock},
		field{bmp.TagDate, date},
		field{bmp.TagTerminalID, terminalID},
	)

	data := []byte{spec.ResultSuccess}
	return appendFields(data, fields)
}

func clockFields(now time.Time) (clock, date []byte, err error) {
	clock, err = bcd.FromTime(now.Hour(), now.Minute(), now.Second())
	if err != nil {
		return nil, nil, err
	}
	date, err = bcd.FromDate(int(now.Month()), now.Day())
	if err != nil {
		return nil, nil, err
	}
	return clock, date, nil
}

func decodeAID(aidHex string) ([]byte, error) {
	aid, err := hex.DecodeString(aidHex)
	if err != nil {
		return nil, errors.Validation("aid", "%q is not hex: %v", aidHex, err)
	}
	if len(aid) != 8 {
		return nil, errors.Validation("aid", "expected 8 bytes, got %d", len(aid))
	}
	return aid, nil
}

// padVuNumber right-pads to the fixed 15-character ASCII field.
func padVuNumber(vu string) []byte {
	out := make([]byte, 15)
	for i := range out {
		out[i] = ' '
	}
	copy(out, vu)
	return out
}

func nullTerminated(s string) []byte {
	return append([]byte(s), 0x00)
}

// receiptLines renders the terminal's copy of the customer receipt for
// one transaction. End of Day replays these through Print Line packets.
func receiptLines(cfg config.SimulatorConfig, txn StoredTransaction) []string {
	return []string{
		"** Kundenbeleg **",
		fmt.Sprintf("Terminal %s", cfg.TerminalID),
		fmt.Sprintf("%s %s", txn.Operation, txn.Timestamp.Format("02.01.2006 15:04")),
		fmt.Sprintf("Beleg-Nr. %04d  Trace %06d", txn.ReceiptNumber, txn.TraceNumber),
		fmt.Sprintf("%s  %s", cfg.Card.CardName, maskPANText(cfg.Card.PAN)),
		fmt.Sprintf("Betrag EUR %d,%02d", txn.AmountCents/100, txn.AmountCents%100),
		"Zahlung erfolgt",
	}
}

func maskPANText(pan string) string {
	if len(pan) <= 10 {
		return pan
	}
	masked := []byte(pan)
	for i := 6; i < len(pan)-4; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
