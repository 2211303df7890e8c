package bcd

// Packed BCD field codecs for ZVT numeric fields

import (
	"fmt"
	"strings"

	"github.com/payterm/zvtsim/internal/errors"
)

// MaxAmountCents is the largest amount a 6-byte BCD amount field can carry.
const MaxAmountCents int64 = 999_999_999_999

// FromDigits packs a digit string two digits per byte, left-padding with
// '0' to even length.
func FromDigits(digits string) ([]byte, error) {
	if len(digits)%2 != 0 {
		digits = "0" + digits
	}

	out := make([]byte, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		hi := digits[i]
		lo := digits[i+1]
		if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
			return nil, errors.Validation("bcd", "non-digit character in %q", digits)
		}
		out[i/2] = (hi-'0')<<4 | (lo - '0')
	}
	return out, nil
}

// ToDigits unpacks each byte into two digit characters.
func ToDigits(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data) * 2)
	for _, b := range data {
		sb.WriteByte('0' + (b >> 4))
		sb.WriteByte('0' + (b & 0x0F))
	}
	return sb.String()
}

// FromAmount encodes an amount in cents as a 6-byte (12-digit) BCD field.
func FromAmount(cents int64) ([]byte, error) {
	if cents < 0 || cents > MaxAmountCents {
		return nil, errors.Validation("amount", "%d cents outside [0, %d]", cents, MaxAmountCents)
	}
	return FromDigits(fmt.Sprintf("%012d", cents))
}

// ToAmount decodes a 6-byte BCD amount field into cents.
func ToAmount(data []byte) (int64, error) {
	if len(data) != 6 {
		return 0, errors.Validation("amount", "expected 6 bytes, got %d", len(data))
	}
	var cents int64
	for _, b := range data {
		hi := int64(b >> 4)
		lo := int64(b & 0x0F)
		if hi > 9 || lo > 9 {
			return 0, errors.Validation("amount", "non-decimal nibble 0x%02X", b)
		}
		cents = cents*100 + hi*10 + lo
	}
	return cents, nil
}

// FromTrace encodes a trace number as a 3-byte BCD field.
func FromTrace(n uint32) ([]byte, error) {
	if n > 999999 {
		return nil, errors.Validation("trace number", "%d exceeds 999999", n)
	}
	return FromDigits(fmt.Sprintf("%06d", n))
}

// FromReceipt encodes a receipt number as a 2-byte BCD field. Receipt
// numbers are a 4-digit field throughout; larger values are rejected.
func FromReceipt(n uint32) ([]byte, error) {
	if n > 9999 {
		return nil, errors.Validation("receipt number", "%d exceeds 9999", n)
	}
	return FromDigits(fmt.Sprintf("%04d", n))
}

// FromTurnover encodes a turnover number as a 3-byte BCD field.
func FromTurnover(n uint32) ([]byte, error) {
	if n > 999999 {
		return nil, errors.Validation("turnover number", "%d exceeds 999999", n)
	}
	return FromDigits(fmt.Sprintf("%06d", n))
}

// ToCounter decodes a BCD-coded trace/receipt/turnover field.
func ToCounter(data []byte) (uint32, error) {
	var n uint32
	for _, b := range data {
		hi := uint32(b >> 4)
		lo := uint32(b & 0x0F)
		if hi > 9 || lo > 9 {
			return 0, errors.Validation("counter", "non-decimal nibble 0x%02X", b)
		}
		n = n*100 + hi*10 + lo
	}
	return n, nil
}

// FromTime encodes HHMMSS as a 3-byte BCD field.
func FromTime(hour, minute, second int) ([]byte, error) {
	if hour < 0 || hour > 23 {
		return nil, errors.Validation("hour", "%d outside [0, 23]", hour)
	}
	if minute < 0 || minute > 59 {
		return nil, errors.Validation("minute", "%d outside [0, 59]", minute)
	}
	if second < 0 || second > 59 {
		return nil, errors.Validation("second", "%d outside [0, 59]", second)
	}
	return FromDigits(fmt.Sprintf("%02d%02d%02d", hour, minute, second))
}

// FromDate encodes MMDD as a 2-byte BCD field.
func FromDate(month, day int) ([]byte, error) {
	if month < 1 || month > 12 {
		return nil, errors.Validation("month", "%d outside [1, 12]", month)
	}
	if day < 1 || day > 31 {
		return nil, errors.Validation("day", "%d outside [1, 31]", day)
	}
	return FromDigits(fmt.Sprintf("%02d%02d", month, day))
}

// FromCurrency encodes a numeric currency code (e.g. 978 for EUR) as a
// 2-byte BCD field, zero-padded to 4 digits.
func FromCurrency(code int) ([]byte, error) {
	if code < 0 || code > 9999 {
		return nil, errors.Validation("currency", "%d outside [0, 9999]", code)
	}
	return FromDigits(fmt.Sprintf("%04d", code))
}

// FromPAN encodes a PAN with the mandated masking: the first 6 and last 4
// digits stay literal, every digit strictly between them becomes nibble
// 0xE, and an odd-length digit string is padded with nibble 0xF. The
// masking is not reversible.
func FromPAN(pan string) ([]byte, error) {
	for i := 0; i < len(pan); i++ {
		if pan[i] < '0' || pan[i] > '9' {
			return nil, errors.Validation("pan", "non-digit character at position %d", i)
		}
	}
	if len(pan) < 10 {
		return nil, errors.Validation("pan", "too short to mask: %d digits", len(pan))
	}

	nibbles := make([]byte, 0, len(pan)+1)
	for i := 0; i < len(pan); i++ {
		if i < 6 || i >= len(pan)-4 {
			nibbles = append(nibbles, pan[i]-'0')
		} else {
			nibbles = append(nibbles, 0xE)
		}
	}
	if len(nibbles)%2 != 0 {
		nibbles = append(nibbles, 0xF)
	}

	out := make([]byte, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		out[i/2] = nibbles[i]<<4 | nibbles[i+1]
	}
	return out, nil
}

// ToPAN reconstructs the visible digits of a masked PAN field. Masked
// positions become '*' and the 0xF pad nibble is dropped.
func ToPAN(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		for _, nib := range [2]byte{b >> 4, b & 0x0F} {
			switch {
			case nib <= 9:
				sb.WriteByte('0' + nib)
			case nib == 0xE:
				sb.WriteByte('*')
			case nib == 0xF:
				// pad nibble, end of PAN
			}
		}
	}
	return sb.String()
}
