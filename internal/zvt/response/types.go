package response

// Structured results decoded from PT to ECR packets

// CardData carries the card fields of a Status Information packet.
type CardData struct {
	MaskedPAN      string
	CardType       byte
	CardName       string
	ExpiryDate     string // YYMM
	SequenceNumber uint32
	AID            []byte
}

// TransactionResult is the outcome of one command execution. It is built
// incrementally across a response loop and immutable once returned.
type TransactionResult struct {
	Success       bool
	ResultCode    byte
	ResultMessage string
	AmountCents   int64
	Card          *CardData
	TraceNumber   uint32
	ReceiptNumber uint32
	Turnover      uint32
	TerminalID    string
	VuNumber      string
	Date          string // MMDD
	Time          string // HHMMSS
	OriginalTrace uint32
	ReceiptLines  []string
	RawData       []byte
}

// IntermediateStatus is the ephemeral in-progress status of a command. It
// is replaced or cleared on every command execution.
type IntermediateStatus struct {
	StatusCode byte
	Message    string
}

// PrintLine is one decoded 06 D1 packet.
type PrintLine struct {
	Attribute byte
	Text      string
}

// DiagnosisResult is the narrow projection of a Diagnosis response.
type DiagnosisResult struct {
	Success       bool
	ResultCode    byte
	ResultMessage string
	TerminalID    string
	Date          string
	Time          string
}

// EndOfDayResult is the narrow projection of an End of Day response.
type EndOfDayResult struct {
	Success       bool
	ResultCode    byte
	ResultMessage string
	TotalCents    int64
	TraceNumber   uint32
	ReceiptLines  []string
}

// TerminalStatus is the narrow projection of a Status Enquiry response.
type TerminalStatus struct {
	Success       bool
	ResultCode    byte
	ResultMessage string
	TerminalID    string
}
