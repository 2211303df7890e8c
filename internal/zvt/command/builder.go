package command

// ECR to PT command construction. One pure builder per command; every
// builder assembles its BMP fields in the documented fixed order, because
// terminals parse positionally informed streams and reject reordered
// fields.

import (
	"github.com/payterm/zvtsim/internal/errors"
	"github.com/payterm/zvtsim/internal/zvt/apdu"
	"github.com/payterm/zvtsim/internal/zvt/bcd"
	"github.com/payterm/zvtsim/internal/zvt/bmp"
	"github.com/payterm/zvtsim/internal/zvt/spec"
	"github.com/payterm/zvtsim/internal/zvt/tlv"
)

// DefaultPassword is the factory password most terminals ship with.
const DefaultPassword = "000000"

func encodePassword(password string) ([]byte, error) {
	if len(password) != 6 {
		return nil, errors.Validation("password", "expected 6 digits, got %d characters", len(password))
	}
	return bcd.FromDigits(password)
}

func validateAmount(cents int64) error {
	if cents <= 0 {
		return errors.Validation("amount", "must be positive, got %d", cents)
	}
	if cents > bcd.MaxAmountCents {
		return errors.Validation("amount", "%d exceeds the 12-digit field", cents)
	}
	return nil
}

// Registration builds the 06 00 command: password, config byte, currency
// and the service/TLV trailer. The config byte is OR-combined from the
// spec.Config* bits by the caller and passed through unvalidated.
func Registration(password string, configByte byte, currency int, serviceByte byte, container []tlv.Entry) (apdu.Packet, error) {
	pw, err := encodePassword(password)
	if err != nil {
		return apdu.Packet{}, err
	}
	cc, err := bcd.FromCurrency(currency)
	if err != nil {
		return apdu.Packet{}, err
	}

	data := append([]byte{}, pw...)
	data = append(data, configByte)
	data = append(data, cc...)

	data, err = bmp.AppendField(data, bmp.TagServiceByte, []byte{serviceByte})
	if err != nil {
		return apdu.Packet{}, err
	}

	if len(container) > 0 {
		body, err := tlv.BuildAll(container)
		if err != nil {
			return apdu.Packet{}, err
		}
		data, err = bmp.AppendField(data, bmp.TagTLV, body)
		if err != nil {
			return apdu.Packet{}, err
		}
	}

	return apdu.Packet{Cmd: spec.CmdRegistration, Data: data}, nil
}

// Authorization builds the 06 01 payment command.
func Authorization(amountCents int64, currency int, paymentType byte) (apdu.Packet, error) {
	if err := validateAmount(amountCents); err != nil {
		return apdu.Packet{}, err
	}
	return amountCommand(spec.CmdAuthorization, amountCents, currency, paymentType)
}

// PreAuthorization builds the 06 22 command reserving an amount.
func PreAuthorization(amountCents int64, currency int, paymentType byte) (apdu.Packet, error) {
	if err := validateAmount(amountCents); err != nil {
		return apdu.Packet{}, err
	}
	return amountCommand(spec.CmdPreAuth, amountCents, currency, paymentType)
}

func amountCommand(cmd apdu.CommandCode, amountCents int64, currency int, paymentType byte) (apdu.Packet, error) {
	amount, err := bcd.FromAmount(amountCents)
	if err != nil {
		return apdu.Packet{}, err
	}
	cc, err := bcd.FromCurrency(currency)
	if err != nil {
		return apdu.Packet{}, err
	}

	data, err := bmp.AppendField(nil, bmp.TagAmount, amount)
	if err != nil {
		return apdu.Packet{}, err
	}
	data, err = bmp.AppendField(data, bmp.TagCurrency, cc)
	if err != nil {
		return apdu.Packet{}, err
	}
	data, err = bmp.AppendField(data, bmp.TagPaymentType, []byte{paymentType})
	if err != nil {
		return apdu.Packet{}, err
	}

	return apdu.Packet{Cmd: cmd, Data: data}, nil
}

// Refund builds the 06 31 command.
func Refund(password string, amountCents int64, currency int) (apdu.Packet, error) {
	if err := validateAmount(amountCents); err != nil {
		return apdu.Packet{}, err
	}
	pw, err := encodePassword(password)
	if err != nil {
		return apdu.Packet{}, err
	}
	amount, err := bcd.FromAmount(amountCents)
	if err != nil {
		return apdu.Packet{}, err
	}
	cc, err := bcd.FromCurrency(currency)
	if err != nil {
		return apdu.Packet{}, err
	}

	data := append([]byte{}, pw...)
	data, err = bmp.AppendField(data, bmp.TagAmount, amount)
	if err != nil {
		return apdu.Packet{}, err
	}
	data, err = bmp.AppendField(data, bmp.TagCurrency, cc)
	if err != nil {
		return apdu.Packet{}, err
	}

	return apdu.Packet{Cmd: spec.CmdRefund, Data: data}, nil
}

// Reversal builds the 06 30 command cancelling the transaction identified
// by its receipt number.
func Reversal(password string, receiptNo uint32) (apdu.Packet, error) {
	pw, err := encodePassword(password)
	if err != nil {
		return apdu.Packet{}, err
	}
	receipt, err := bcd.FromReceipt(receiptNo)
	if err != nil {
		return apdu.Packet{}, err
	}

	data := append([]byte{}, pw...)
	data, err = bmp.AppendField(data, bmp.TagReceipt, receipt)
	if err != nil {
		return apdu.Packet{}, err
	}

	return apdu.Packet{Cmd: spec.CmdReversal, Data: data}, nil
}

// PartialReversal builds the 06 25 command releasing part of a
// pre-authorized amount.
func PartialReversal(receiptNo uint32, amountCents int64, currency int) (apdu.Packet, error) {
	if err := validateAmount(amountCents); err != nil {
		return apdu.Packet{}, err
	}
	receipt, err := bcd.FromReceipt(receiptNo)
	if err != nil {
		return apdu.Packet{}, err
	}
	amount, err := bcd.FromAmount(amountCents)
	if err != nil {
		return apdu.Packet{}, err
	}
	cc, err := bcd.FromCurrency(currency)
	if err != nil {
		return apdu.Packet{}, err
	}

	data, err := bmp.AppendField(nil, bmp.TagReceipt, receipt)
	if err != nil {
		return apdu.Packet{}, err
	}
	data, err = bmp.AppendField(data, bmp.TagAmount, amount)
	if err != nil {
		return apdu.Packet{}, err
	}
	data, err = bmp.AppendField(data, bmp.TagCurrency, cc)
	if err != nil {
		return apdu.Packet{}, err
	}

	return apdu.Packet{Cmd: spec.CmdPartialReversal, Data: data}, nil
}

// BookTotal builds the 06 24 command booking the final amount of a
// pre-authorization.
func BookTotal(password string, receiptNo uint32, amountCents int64) (apdu.Packet, error) {
	if err := validateAmount(amountCents); err != nil {
		return apdu.Packet{}, err
	}
	pw, err := encodePassword(password)
	if err != nil {
		return apdu.Packet{}, err
	}
	receipt, err := bcd.FromReceipt(receiptNo)
	if err != nil {
		return apdu.Packet{}, err
	}
	amount, err := bcd.FromAmount(amountCents)
	if err != nil {
		return apdu.Packet{}, err
	}

	data := append([]byte{}, pw...)
	data, err = bmp.AppendField(data, bmp.TagReceipt, receipt)
	if err != nil {
		return apdu.Packet{}, err
	}
	data, err = bmp.AppendField(data, bmp.TagAmount, amount)
	if err != nil {
		return apdu.Packet{}, err
	}

	return apdu.Packet{Cmd: spec.CmdBookTotal, Data: data}, nil
}

// RepeatReceipt builds the 06 20 command asking the terminal to resend
// the last receipt.
func RepeatReceipt(password string) (apdu.Packet, error) {
	pw, err := encodePassword(password)
	if err != nil {
		return apdu.Packet{}, err
	}
	return apdu.Packet{Cmd: spec.CmdRepeatReceipt, Data: pw}, nil
}

// EndOfDay builds the 06 50 command closing the current batch.
func EndOfDay(password string) (apdu.Packet, error) {
	pw, err := encodePassword(password)
	if err != nil {
		return apdu.Packet{}, err
	}
	return apdu.Packet{Cmd: spec.CmdEndOfDay, Data: pw}, nil
}

// Diagnosis builds the 06 70 command.
func Diagnosis() apdu.Packet {
	return apdu.Packet{Cmd: spec.CmdDiagnosis}
}

// StatusEnquiry builds the 05 01 command.
func StatusEnquiry(password string, serviceByte byte) (apdu.Packet, error) {
	pw, err := encodePassword(password)
	if err != nil {
		return apdu.Packet{}, err
	}

	data := append([]byte{}, pw...)
	data, err = bmp.AppendField(data, bmp.TagServiceByte, []byte{serviceByte})
	if err != nil {
		return apdu.Packet{}, err
	}

	return apdu.Packet{Cmd: spec.CmdStatusEnquiry, Data: data}, nil
}

// Abort builds the 06 B0 command interrupting a running transaction.
func Abort() apdu.Packet {
	return apdu.Packet{Cmd: spec.CmdAbort}
}

// LogOff builds the 06 02 command.
func LogOff() apdu.Packet {
	return apdu.Packet{Cmd: spec.CmdLogOff}
}
