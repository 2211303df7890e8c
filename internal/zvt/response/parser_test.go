package response

import (
	"fmt"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"github.com/payterm/zvtsim/internal/zvt/apdu"
	"github.com/payterm/zvtsim/internal/zvt/bmp"
	"github.com/payterm/zvtsim/internal/zvt/spec"
)

func statusInfoPayload(t *testing.T, fields ...func([]byte) []byte) []byte {
	t.Helper()
	data := []byte{0x00} // result code success
	for _, f := range fields {
		data = f(data)
	}
	return data
}

func field(t *testing.T, tag byte, value []byte) func([]byte) []byte {
	t.Helper()
	return func(data []byte) []byte {
		out, err := bmp.AppendField(data, tag, value)
		if err != nil {
			t.Fatalf("AppendField(0x%02X): %v", tag, err)
		}
		return out
	}
}

func TestParseStatusInfoFields(t *testing.T) {
	payload := statusInfoPayload(t,
		field(t, bmp.TagAmount, []byte{0x00, 0x00, 0x00, 0x00, 0x12, 0x50}),
		field(t, bmp.TagTrace, []byte{0x00, 0x00, 0x42}),
		field(t, bmp.TagReceipt, []byte{0x00, 0x07}),
		field(t, bmp.TagTurnover, []byte{0x00, 0x00, 0x07}),
		field(t, bmp.TagTime, []byte{0x14, 0x30, 0x05}),
		field(t, bmp.TagDate, []byte{0x12, 0x24}),
		field(t, bmp.TagTerminalID, []byte{0x52, 0x52, 0x00, 0x01}),
		field(t, bmp.TagPAN, []byte{0x67, 0x63, 0x89, 0xEE, 0xEE, 0xEE, 0x12, 0x30}),
		field(t, bmp.TagExpiry, []byte{0x29, 0x12}),
		field(t, bmp.TagCardName, append([]byte("girocard"), 0x00)),
	)

	var p Parser
	result, err := p.ParseStatusInfo(apdu.Packet{Cmd: spec.RespStatusInfo, Data: payload})
	if err != nil {
		t.Fatalf("ParseStatusInfo: %v", err)
	}

	if !result.Success || result.ResultCode != 0x00 {
		t.Errorf("Success=%v ResultCode=0x%02X", result.Success, result.ResultCode)
	}
	if result.AmountCents != 1250 {
		t.Errorf("AmountCents = %d, want 1250", result.AmountCents)
	}
	if result.TraceNumber != 42 || result.ReceiptNumber != 7 || result.Turnover != 7 {
		t.Errorf("counters = %d/%d/%d", result.TraceNumber, result.ReceiptNumber, result.Turnover)
	}
	if result.Time != "143005" || result.Date != "1224" {
		t.Errorf("time/date = %s/%s", result.Time, result.Date)
	}
	if result.TerminalID != "52520001" {
		t.Errorf("TerminalID = %s", result.TerminalID)
	}
	if result.Card == nil {
		t.Fatalf("Card not populated")
	}
	if result.Card.MaskedPAN != "676389******1230" {
		t.Errorf("MaskedPAN = %s", result.Card.MaskedPAN)
	}
	if result.Card.ExpiryDate != "2912" {
		t.Errorf("ExpiryDate = %s", result.Card.ExpiryDate)
	}
	if result.Card.CardName != "girocard" {
		t.Errorf("CardName = %q", result.Card.CardName)
	}
}

func TestParseStatusInfoErrorCode(t *testing.T) {
	var p Parser
	result, err := p.ParseStatusInfo(apdu.Packet{Cmd: spec.RespStatusInfo, Data: []byte{0x6C}})
	if err != nil {
		t.Fatalf("ParseStatusInfo: %v", err)
	}
	if result.Success {
		t.Errorf("abort code parsed as success")
	}
	if result.ResultMessage != "abort via timeout or abort key" {
		t.Errorf("ResultMessage = %q", result.ResultMessage)
	}
}

func TestUnknownTagStopsParsing(t *testing.T) {
	payload := statusInfoPayload(t,
		field(t, bmp.TagTrace, []byte{0x00, 0x00, 0x42}),
	)
	// Unknown tag followed by a known field that must NOT be decoded.
	payload = append(payload, 0xE7, 0x01, 0x02)
	known := statusInfoPayload(t, field(t, bmp.TagReceipt, []byte{0x00, 0x07}))
	payload = append(payload, known[1:]...)

	var debugMsg string
	p := Parser{Debug: func(format string, v ...interface{}) {
		debugMsg = fmt.Sprintf(format, v...)
	}}

	result, err := p.ParseStatusInfo(apdu.Packet{Cmd: spec.RespStatusInfo, Data: payload})
	if err != nil {
		t.Fatalf("ParseStatusInfo should not fail on unknown tags: %v", err)
	}
	if result.TraceNumber != 42 {
		t.Errorf("field before the unknown tag lost: trace = %d", result.TraceNumber)
	}
	if result.ReceiptNumber != 0 {
		t.Errorf("field after the unknown tag decoded: receipt = %d", result.ReceiptNumber)
	}
	if !strings.Contains(debugMsg, "0xE7") {
		t.Errorf("unknown tag not reported via debug hook: %q", debugMsg)
	}
}

func TestParseCompletionFallback(t *testing.T) {
	var p Parser

	result, err := p.ParseCompletion(apdu.Packet{Cmd: spec.RespCompletion})
	if err != nil {
		t.Fatalf("ParseCompletion: %v", err)
	}
	if !result.Success {
		t.Errorf("empty completion should mean success")
	}

	payload := statusInfoPayload(t, field(t, bmp.TagTerminalID, []byte{0x52, 0x52, 0x00, 0x01}))
	result, err = p.ParseCompletion(apdu.Packet{Cmd: spec.RespCompletion, Data: payload})
	if err != nil {
		t.Fatalf("ParseCompletion: %v", err)
	}
	if result.TerminalID != "52520001" {
		t.Errorf("TerminalID = %s", result.TerminalID)
	}
}

func TestParseAbort(t *testing.T) {
	var p Parser
	result, err := p.ParseAbort(apdu.Packet{Cmd: spec.RespAbort, Data: []byte{0x6C}})
	if err != nil {
		t.Fatalf("ParseAbort: %v", err)
	}
	if result.Success || result.ResultCode != 0x6C {
		t.Errorf("abort result = %+v", result)
	}
}

func TestParseIntermediateStatus(t *testing.T) {
	var p Parser
	status, err := p.ParseIntermediateStatus(apdu.Packet{Cmd: spec.RespIntermediate, Data: []byte{spec.StatusInsertCard}})
	if err != nil {
		t.Fatalf("ParseIntermediateStatus: %v", err)
	}
	if status.StatusCode != spec.StatusInsertCard || status.Message != "please insert card" {
		t.Errorf("status = %+v", status)
	}

	if _, err := p.ParseIntermediateStatus(apdu.Packet{Cmd: spec.RespCompletion}); err == nil {
		t.Errorf("wrong command accepted")
	}
}

func TestParsePrintLineCodePage(t *testing.T) {
	p := Parser{CodePage: charmap.CodePage437}

	// 0x81 is ü in CP437.
	pkt := apdu.Packet{Cmd: spec.RespPrintLine, Data: []byte{0x00, 'G', 0x81, 'l', 't', 'i', 'g', 0x00}}
	line, err := p.ParsePrintLine(pkt)
	if err != nil {
		t.Fatalf("ParsePrintLine: %v", err)
	}
	if line.Text != "Gültig" {
		t.Errorf("Text = %q, want Gültig", line.Text)
	}
	if line.Attribute != 0x00 {
		t.Errorf("Attribute = 0x%02X", line.Attribute)
	}
}
