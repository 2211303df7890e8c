package response

// PT to ECR response parsing

import (
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/payterm/zvtsim/internal/errors"
	"github.com/payterm/zvtsim/internal/zvt/apdu"
	"github.com/payterm/zvtsim/internal/zvt/bcd"
	"github.com/payterm/zvtsim/internal/zvt/bmp"
	"github.com/payterm/zvtsim/internal/zvt/spec"
)

// Parser decodes PT response packets into structured results.
type Parser struct {
	// CodePage decodes single-byte receipt text; nil means raw ASCII.
	CodePage *charmap.Charmap
	// Debug, when set, receives parse diagnostics such as the unknown
	// tag that terminated a BMP walk.
	Debug func(format string, v ...interface{})
}

func (p *Parser) debugf(format string, v ...interface{}) {
	if p != nil && p.Debug != nil {
		p.Debug(format, v...)
	}
}

func (p *Parser) decodeText(raw []byte) string {
	raw = trimPrintable(raw)
	if p == nil || p.CodePage == nil {
		return string(raw)
	}
	decoded, err := p.CodePage.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func trimPrintable(raw []byte) []byte {
	end := len(raw)
	for end > 0 && (raw[end-1] == 0x00 || raw[end-1] == ' ') {
		end--
	}
	return raw[:end]
}

// ParseStatusInfo decodes an 04 0F Status Information packet into a
// TransactionResult.
func (p *Parser) ParseStatusInfo(pkt apdu.Packet) (*TransactionResult, error) {
	if pkt.Cmd != spec.RespStatusInfo {
		return nil, errors.Protocol(spec.CommandName(pkt.Cmd), "not a status information packet")
	}
	if len(pkt.Data) == 0 {
		return nil, errors.Protocol("Status Information", "empty payload")
	}

	// The leading byte is the result code; BMP fields follow.
	result := p.newResult(pkt.Data[0])
	result.RawData = append([]byte(nil), pkt.Data...)
	p.parseBMPData(pkt.Data[1:], result)
	return result, nil
}

// ParseCompletion decodes an 06 0F Completion packet. Terminals that skip
// Status Information put the result fields into the completion payload
// itself; an empty payload means plain success.
func (p *Parser) ParseCompletion(pkt apdu.Packet) (*TransactionResult, error) {
	if pkt.Cmd != spec.RespCompletion {
		return nil, errors.Protocol(spec.CommandName(pkt.Cmd), "not a completion packet")
	}

	code := spec.ResultSuccess
	rest := pkt.Data
	if len(pkt.Data) > 0 {
		code = pkt.Data[0]
		rest = pkt.Data[1:]
	}

	result := p.newResult(code)
	result.RawData = append([]byte(nil), pkt.Data...)
	p.parseBMPData(rest, result)
	return result, nil
}

// ParseAbort decodes an 06 1E packet the terminal sends when it aborts a
// running transaction.
func (p *Parser) ParseAbort(pkt apdu.Packet) (*TransactionResult, error) {
	if pkt.Cmd != spec.RespAbort {
		return nil, errors.Protocol(spec.CommandName(pkt.Cmd), "not an abort packet")
	}

	code := byte(0x6C) // abort via timeout or abort key
	if len(pkt.Data) > 0 {
		code = pkt.Data[0]
	}
	result := p.newResult(code)
	result.Success = false
	result.RawData = append([]byte(nil), pkt.Data...)
	return result, nil
}

// ParseIntermediateStatus decodes an 04 FF packet.
func (p *Parser) ParseIntermediateStatus(pkt apdu.Packet) (*IntermediateStatus, error) {
	if pkt.Cmd != spec.RespIntermediate {
		return nil, errors.Protocol(spec.CommandName(pkt.Cmd), "not an intermediate status packet")
	}
	if len(pkt.Data) == 0 {
		return nil, errors.Protocol("Intermediate Status", "empty payload")
	}

	code := pkt.Data[0]
	return &IntermediateStatus{
		StatusCode: code,
		Message:    spec.IntermediateMessage(code),
	}, nil
}

// ParsePrintLine decodes an 06 D1 packet: one attribute byte followed by
// receipt text in the terminal's code page.
func (p *Parser) ParsePrintLine(pkt apdu.Packet) (*PrintLine, error) {
	if pkt.Cmd != spec.RespPrintLine {
		return nil, errors.Protocol(spec.CommandName(pkt.Cmd), "not a print line packet")
	}
	if len(pkt.Data) == 0 {
		return nil, errors.Protocol("Print Line", "empty payload")
	}

	return &PrintLine{
		Attribute: pkt.Data[0],
		Text:      p.decodeText(pkt.Data[1:]),
	}, nil
}

func (p *Parser) newResult(code byte) *TransactionResult {
	return &TransactionResult{
		Success:       code == spec.ResultSuccess,
		ResultCode:    code,
		ResultMessage: spec.ResultMessage(code),
	}
}

// parseBMPData walks a tagged field stream left to right, consuming
// exactly the bytes each known tag's encoding specifies. An unrecognized
// tag terminates the walk: its length cannot be inferred and guessing
// would corrupt every following offset. Whatever was decoded up to that
// point stands.
func (p *Parser) parseBMPData(data []byte, result *TransactionResult) {
	offset := 0
	for offset < len(data) {
		tag := data[offset]
		def, ok := bmp.Lookup(tag)
		if !ok {
			p.debugf("BMP parse stopped at unknown tag 0x%02X (%d bytes unparsed)", tag, len(data)-offset)
			return
		}

		value, consumed, ok := bmp.ConsumeValue(def, data[offset+1:])
		if !ok {
			p.debugf("BMP parse stopped at truncated field 0x%02X", tag)
			return
		}
		offset += 1 + consumed

		p.applyField(tag, value, result)
	}
}

func (p *Parser) applyField(tag byte, value []byte, result *TransactionResult) {
	switch tag {
	case bmp.TagResultCode:
		code := value[0]
		result.ResultCode = code
		result.Success = code == spec.ResultSuccess
		result.ResultMessage = spec.ResultMessage(code)
	case bmp.TagAmount:
		if cents, err := bcd.ToAmount(value); err == nil {
			result.AmountCents = cents
		}
	case bmp.TagTrace:
		if n, err := bcd.ToCounter(value); err == nil {
			result.TraceNumber = n
		}
	case bmp.TagOriginalTrace:
		if n, err := bcd.ToCounter(value); err == nil {
			result.OriginalTrace = n
		}
	case bmp.TagReceipt:
		if n, err := bcd.ToCounter(value); err == nil {
			result.ReceiptNumber = n
		}
	case bmp.TagTurnover:
		if n, err := bcd.ToCounter(value); err == nil {
			result.Turnover = n
		}
	case bmp.TagTime:
		result.Time = bcd.ToDigits(value)
	case bmp.TagDate:
		result.Date = bcd.ToDigits(value)
	case bmp.TagTerminalID:
		result.TerminalID = bcd.ToDigits(value)
	case bmp.TagVuNumber:
		result.VuNumber = strings.TrimRight(string(trimPrintable(value)), " ")
	case bmp.TagPAN:
		result.ensureCard().MaskedPAN = bcd.ToPAN(value)
	case bmp.TagExpiry:
		result.ensureCard().ExpiryDate = bcd.ToDigits(value)
	case bmp.TagCardSeq:
		if n, err := bcd.ToCounter(value); err == nil {
			result.ensureCard().SequenceNumber = n
		}
	case bmp.TagCardType:
		result.ensureCard().CardType = value[0]
	case bmp.TagCardName:
		result.ensureCard().CardName = p.decodeText(value)
	case bmp.TagAID:
		result.ensureCard().AID = append([]byte(nil), value...)
	case bmp.TagTLV, bmp.TagAdditional, bmp.TagServiceByte, bmp.TagPaymentType, bmp.TagCurrency:
		// Consumed for offset correctness; nothing projected into the result.
	}
}

func (r *TransactionResult) ensureCard() *CardData {
	if r.Card == nil {
		r.Card = &CardData{}
	}
	return r.Card
}
