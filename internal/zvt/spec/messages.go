package spec

import "fmt"

// Result codes carried in BMP 27 of Status Information and Completion.
const (
	ResultSuccess byte = 0x00
)

var resultMessages = map[byte]string{
	0x00: "success",
	0x64: "card not readable",
	0x65: "card data not present",
	0x66: "processing error",
	0x67: "function not permitted for ec- and Maestro cards",
	0x68: "function not permitted for credit and tank cards",
	0x6A: "turnover file full",
	0x6B: "function deactivated",
	0x6C: "abort via timeout or abort key",
	0x6E: "card in blocked-list",
	0x6F: "wrong currency",
	0x71: "credit not sufficient",
	0x72: "chip error",
	0x73: "card data incorrect",
	0x77: "end-of-day batch not possible",
	0x78: "card expired",
	0x79: "card not yet valid",
	0x7A: "card unknown",
	0x83: "function not possible",
	0x85: "key missing",
	0x9A: "protocol error",
	0x9B: "error from dial-up/communication fault",
	0x9C: "please wait",
	0xA0: "receiver not ready",
	0xA1: "remote station does not respond",
	0xA3: "no connection",
	0xB1: "memory full",
	0xB2: "merchant journal full",
	0xB4: "already reversed",
	0xB5: "reversal not possible",
	0xBF: "voltage supply too low",
	0xC0: "card locking mechanism defective",
	0xC1: "merchant card locked",
	0xC2: "diagnosis required",
	0xC3: "maximum amount exceeded",
	0xC4: "card profile invalid",
	0xC5: "payment method not supported",
	0xC6: "currency not applicable",
	0xC8: "amount too small",
	0xC9: "max transaction amount too small",
	0xD2: "function only allowed in EURO",
	0xDC: "card inserted",
	0xE0: "error during mounting",
	0xE2: "receipt printer out of order",
	0xFF: "system error",
}

// ResultMessage maps a BMP 27 result code to its display text. Codes in
// 0x01-0x63 are the host's network/authorization errors and share one
// generic description unless individually listed.
func ResultMessage(code byte) string {
	if msg, ok := resultMessages[code]; ok {
		return msg
	}
	if code >= 0x01 && code <= 0x63 {
		return fmt.Sprintf("network or authorization error (code 0x%02X)", code)
	}
	return fmt.Sprintf("unknown error (code 0x%02X)", code)
}

// Intermediate status codes sent in 04 FF packets while a transaction is
// in progress.
const (
	StatusWait         byte = 0x00
	StatusWatchDisplay byte = 0x01
	StatusNotAccepted  byte = 0x02
	StatusProcessing   byte = 0x03
	StatusInsertCard   byte = 0x0A
	StatusRemoveCard   byte = 0x0E
	StatusPleaseWait   byte = 0x17
	StatusApproved     byte = 0x1A
	StatusWatchPINPad  byte = 0x41
)

var intermediateMessages = map[byte]string{
	0x00: "PT is waiting for amount confirmation",
	0x01: "please watch PT display",
	0x02: "transaction not accepted",
	0x03: "transaction is being processed",
	0x04: "transaction approved, please fill up",
	0x05: "transaction approved, please take goods",
	0x06: "error, wrong PIN",
	0x07: "error, please call merchant",
	0x08: "wrong card, payment declined",
	0x09: "card expired",
	0x0A: "please insert card",
	0x0B: "card unreadable",
	0x0C: "card not permitted",
	0x0D: "card unknown",
	0x0E: "please remove card",
	0x17: "please wait",
	0x18: "PIN processing failed",
	0x1A: "transaction approved",
	0x41: "please watch PIN pad",
	0x42: "connecting to host",
	0x43: "transmitting data to host",
	0xFF: "extended status in TLV container",
}

// IntermediateMessage maps an intermediate status code to display text.
func IntermediateMessage(code byte) string {
	if msg, ok := intermediateMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("status 0x%02X", code)
}
