package bmp

// Shared BMP field registry. Both the command builder (ECR side) and the
// response parser and simulator field builder (PT side) work off this one
// table; the two sides must agree on every tag's encoding.

import (
	"github.com/payterm/zvtsim/internal/errors"
	"github.com/payterm/zvtsim/internal/zvt/tlv"
)

// Encoding selects how a BMP field's value is laid out after its tag.
type Encoding int

const (
	// FixedBCD is a fixed-width packed-decimal value.
	FixedBCD Encoding = iota
	// FixedBinary is a fixed-width raw value.
	FixedBinary
	// FixedASCII is a fixed-width ASCII value.
	FixedASCII
	// LLVAR is a 2-digit nibble-coded length prefix (Fx Fy) plus value.
	LLVAR
	// LLLVAR is a 3-digit nibble-coded length prefix plus value.
	LLLVAR
	// TLVContainer is a BER length followed by nested TLV entries.
	TLVContainer
)

// BMP tags used by this protocol.
const (
	TagServiceByte   byte = 0x03
	TagAmount        byte = 0x04
	TagTLV           byte = 0x06
	TagTrace         byte = 0x0B
	TagTime          byte = 0x0C
	TagDate          byte = 0x0D
	TagExpiry        byte = 0x0E
	TagCardSeq       byte = 0x17
	TagPaymentType   byte = 0x19
	TagPAN           byte = 0x22
	TagResultCode    byte = 0x27
	TagTerminalID    byte = 0x29
	TagVuNumber      byte = 0x2A
	TagOriginalTrace byte = 0x37
	TagAID           byte = 0x3B
	TagAdditional    byte = 0x3C
	TagCurrency      byte = 0x49
	TagReceipt       byte = 0x87
	TagTurnover      byte = 0x88
	TagCardType      byte = 0x8A
	TagCardName      byte = 0x8B
)

// FieldDef describes one BMP field.
type FieldDef struct {
	Tag      byte
	Name     string
	Encoding Encoding
	Length   int // fixed width; unused for variable encodings
}

var table = map[byte]FieldDef{
	TagServiceByte:   {TagServiceByte, "service byte", FixedBinary, 1},
	TagAmount:        {TagAmount, "amount", FixedBCD, 6},
	TagTLV:           {TagTLV, "tlv container", TLVContainer, 0},
	TagTrace:         {TagTrace, "trace number", FixedBCD, 3},
	TagTime:          {TagTime, "time", FixedBCD, 3},
	TagDate:          {TagDate, "date", FixedBCD, 2},
	TagExpiry:        {TagExpiry, "expiry date", FixedBCD, 2},
	TagCardSeq:       {TagCardSeq, "card sequence number", FixedBCD, 2},
	TagPaymentType:   {TagPaymentType, "payment type", FixedBinary, 1},
	TagPAN:           {TagPAN, "pan", LLVAR, 0},
	TagResultCode:    {TagResultCode, "result code", FixedBinary, 1},
	TagTerminalID:    {TagTerminalID, "terminal id", FixedBCD, 4},
	TagVuNumber:      {TagVuNumber, "vu number", FixedASCII, 15},
	TagOriginalTrace: {TagOriginalTrace, "original trace", FixedBCD, 3},
	TagAID:           {TagAID, "aid", FixedBinary, 8},
	TagAdditional:    {TagAdditional, "additional data", LLLVAR, 0},
	TagCurrency:      {TagCurrency, "currency code", FixedBCD, 2},
	TagReceipt:       {TagReceipt, "receipt number", FixedBCD, 2},
	TagTurnover:      {TagTurnover, "turnover number", FixedBCD, 3},
	TagCardType:      {TagCardType, "card type", FixedBinary, 1},
	TagCardName:      {TagCardName, "card name", LLVAR, 0},
}

// Lookup returns the field definition for a tag.
func Lookup(tag byte) (FieldDef, bool) {
	def, ok := table[tag]
	return def, ok
}

// EncodeLLVarLen encodes a 2-digit nibble-coded LLVAR length prefix.
func EncodeLLVarLen(n int) ([]byte, error) {
	if n < 0 || n > 99 {
		return nil, errors.Validation("llvar length", "%d outside [0, 99]", n)
	}
	return []byte{0xF0 | byte(n/10), 0xF0 | byte(n%10)}, nil
}

// EncodeLLLVarLen encodes a 3-digit nibble-coded LLLVAR length prefix.
func EncodeLLLVarLen(n int) ([]byte, error) {
	if n < 0 || n > 999 {
		return nil, errors.Validation("lllvar length", "%d outside [0, 999]", n)
	}
	return []byte{0xF0 | byte(n/100), 0xF0 | byte(n/10%10), 0xF0 | byte(n%10)}, nil
}

// decodeVarLen reads width nibble-coded length digits.
func decodeVarLen(data []byte, width int) (int, bool) {
	if len(data) < width {
		return 0, false
	}
	n := 0
	for i := 0; i < width; i++ {
		if data[i]&0xF0 != 0xF0 || data[i]&0x0F > 9 {
			return 0, false
		}
		n = n*10 + int(data[i]&0x0F)
	}
	return n, true
}

// AppendField encodes one field (tag plus value with its length prefix)
// onto dst.
func AppendField(dst []byte, tag byte, value []byte) ([]byte, error) {
	def, ok := Lookup(tag)
	if !ok {
		return nil, errors.Validation("bmp tag", "unknown tag 0x%02X", tag)
	}

	dst = append(dst, tag)
	switch def.Encoding {
	case FixedBCD, FixedBinary, FixedASCII:
		if len(value) != def.Length {
			return nil, errors.Validation(def.Name, "expected %d bytes, got %d", def.Length, len(value))
		}
		return append(dst, value...), nil
	case LLVAR:
		prefix, err := EncodeLLVarLen(len(value))
		if err != nil {
			return nil, err
		}
		dst = append(dst, prefix...)
		return append(dst, value...), nil
	case LLLVAR:
		prefix, err := EncodeLLLVarLen(len(value))
		if err != nil {
			return nil, err
		}
		dst = append(dst, prefix...)
		return append(dst, value...), nil
	case TLVContainer:
		dst = append(dst, tlv.EncodeLength(len(value))...)
		return append(dst, value...), nil
	default:
		return nil, errors.Validation(def.Name, "unhandled encoding %d", def.Encoding)
	}
}

// ConsumeValue reads the value of the field identified by def from the
// head of data (the tag byte already consumed) and returns the value and
// the number of bytes consumed. ok is false when the field is malformed
// or data is too short.
func ConsumeValue(def FieldDef, data []byte) ([]byte, int, bool) {
	switch def.Encoding {
	case FixedBCD, FixedBinary, FixedASCII:
		if len(data) < def.Length {
			return nil, 0, false
		}
		return data[:def.Length], def.Length, true
	case LLVAR:
		n, ok := decodeVarLen(data, 2)
		if !ok || len(data) < 2+n {
			return nil, 0, false
		}
		return data[2 : 2+n], 2 + n, true
	case LLLVAR:
		n, ok := decodeVarLen(data, 3)
		if !ok || len(data) < 3+n {
			return nil, 0, false
		}
		return data[3 : 3+n], 3 + n, true
	case TLVContainer:
		n, consumed, ok := tlv.ReadLength(data)
		if !ok || len(data) < consumed+n {
			return nil, 0, false
		}
		return data[consumed : consumed+n], consumed + n, true
	default:
		return nil, 0, false
	}
}
