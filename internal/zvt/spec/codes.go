package spec

import "github.com/payterm/zvtsim/internal/zvt/apdu"

// ECR to PT command codes (authoritative registry).
const (
	CmdRegistration    apdu.CommandCode = 0x0600
	CmdAuthorization   apdu.CommandCode = 0x0601
	CmdLogOff          apdu.CommandCode = 0x0602
	CmdRepeatReceipt   apdu.CommandCode = 0x0620
	CmdPreAuth         apdu.CommandCode = 0x0622
	CmdBookTotal       apdu.CommandCode = 0x0624
	CmdPartialReversal apdu.CommandCode = 0x0625
	CmdReversal        apdu.CommandCode = 0x0630
	CmdRefund          apdu.CommandCode = 0x0631
	CmdEndOfDay        apdu.CommandCode = 0x0650
	CmdDiagnosis       apdu.CommandCode = 0x0670
	CmdStatusEnquiry   apdu.CommandCode = 0x0501

	// The ECR-initiated abort request. Not to be confused with the
	// PT-initiated RespAbort (06 1E) below.
	CmdAbort apdu.CommandCode = 0x06B0
)

// PT to ECR response codes.
const (
	RespCompletion     apdu.CommandCode = 0x060F
	RespStatusInfo     apdu.CommandCode = 0x040F
	RespIntermediate   apdu.CommandCode = 0x04FF
	RespAbort          apdu.CommandCode = 0x061E
	RespPrintLine      apdu.CommandCode = 0x06D1
	RespPrintTextBlock apdu.CommandCode = 0x06D3
)

// Registration config byte bits. OR-combined by the caller; the builder
// does not validate combinations.
const (
	ConfigECRPrintsPayment byte = 0x02
	ConfigECRPrintsAdmin   byte = 0x04
	ConfigIntermediate     byte = 0x08
	ConfigECRControlsPay   byte = 0x10
	ConfigECRControlsAdmin byte = 0x20
	ConfigPrintLines       byte = 0x80
)

// ISO 4217 numeric currency codes used in the wild with this protocol.
const (
	CurrencyEUR = 978
	CurrencyCHF = 756
)

var commandNames = map[apdu.CommandCode]string{
	CmdRegistration:    "Registration",
	CmdAuthorization:   "Authorization",
	CmdLogOff:          "Log Off",
	CmdRepeatReceipt:   "Repeat Receipt",
	CmdPreAuth:         "Pre-Authorization",
	CmdBookTotal:       "Book Total",
	CmdPartialReversal: "Partial Reversal",
	CmdReversal:        "Reversal",
	CmdRefund:          "Refund",
	CmdEndOfDay:        "End of Day",
	CmdDiagnosis:       "Diagnosis",
	CmdStatusEnquiry:   "Status Enquiry",
	CmdAbort:           "Abort",
	RespCompletion:     "Completion",
	RespStatusInfo:     "Status Information",
	RespIntermediate:   "Intermediate Status",
	RespAbort:          "Abort (PT)",
	RespPrintLine:      "Print Line",
	RespPrintTextBlock: "Print Text Block",
}

// CommandName returns a display name for a command or response code.
func CommandName(cmd apdu.CommandCode) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return "Unknown (" + cmd.String() + ")"
}
