package tlv

// BER-TLV codec for the nested containers inside BMP 06 / BMP 3C fields

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/payterm/zvtsim/internal/errors"
)

// Entry is one parsed tag/value pair. Tags are 1 to 3 bytes wide.
type Entry struct {
	Tag   int
	Value []byte
}

// Parse walks data and returns the entries it finds. Standalone 0x00 and
// 0xFF padding bytes between entries are skipped. On a structurally
// invalid entry parsing stops without an error and everything parsed so
// far is returned; an unknown entry's length cannot be trusted, so
// continuing would corrupt all subsequent offsets.
func Parse(data []byte) []Entry {
	var entries []Entry
	offset := 0

	for offset < len(data) {
		// Inter-entry padding.
		if data[offset] == 0x00 || data[offset] == 0xFF {
			offset++
			continue
		}

		tag, n, ok := readTag(data[offset:])
		if !ok {
			break
		}
		offset += n

		length, n, ok := readLength(data[offset:])
		if !ok {
			break
		}
		offset += n

		if offset+length > len(data) {
			break
		}

		value := make([]byte, length)
		copy(value, data[offset:offset+length])
		offset += length

		entries = append(entries, Entry{Tag: tag, Value: value})
	}

	return entries
}

// readTag reads a BER tag: if the low 5 bits of the first byte are all
// set the tag continues while bit 7 of each following byte is set.
func readTag(data []byte) (int, int, bool) {
	if len(data) == 0 {
		return 0, 0, false
	}

	tag := int(data[0])
	n := 1
	if data[0]&0x1F == 0x1F {
		for {
			if n >= len(data) || n > 2 {
				return 0, 0, false
			}
			tag = tag<<8 | int(data[n])
			cont := data[n]&0x80 != 0
			n++
			if !cont {
				break
			}
		}
	}
	return tag, n, true
}

// readLength reads a BER length: 0x00-0x7F direct, 0x81 + one byte,
// 0x82 + two bytes big-endian.
func readLength(data []byte) (int, int, bool) {
	if len(data) == 0 {
		return 0, 0, false
	}

	switch {
	case data[0] <= 0x7F:
		return int(data[0]), 1, true
	case data[0] == 0x81:
		if len(data) < 2 {
			return 0, 0, false
		}
		return int(data[1]), 2, true
	case data[0] == 0x82:
		if len(data) < 3 {
			return 0, 0, false
		}
		return int(data[1])<<8 | int(data[2]), 3, true
	default:
		return 0, 0, false
	}
}

// ReadLength reads a BER length from the head of data and returns the
// length, the bytes consumed and whether the read was complete. BMP 06
// containers carry the same length form outside of any tag.
func ReadLength(data []byte) (int, int, bool) {
	return readLength(data)
}

// EncodeLength encodes n as a BER length (direct, 0x81 or 0x82 form).
func EncodeLength(n int) []byte {
	switch {
	case n <= 0x7F:
		return []byte{byte(n)}
	case n <= 0xFF:
		return []byte{0x81, byte(n)}
	default:
		return []byte{0x82, byte(n >> 8), byte(n)}
	}
}

// Build encodes one tag/value pair. It is the exact inverse of Parse for
// structurally valid input.
func Build(tag int, value []byte) ([]byte, error) {
	if tag <= 0 || tag > 0xFFFFFF {
		return nil, errors.Validation("tlv tag", "0x%X outside the 1-3 byte range", tag)
	}

	encoded, err := bertlv.Encode([]bertlv.TLV{{Tag: tagHex(tag), Value: value}})
	if err != nil {
		return nil, fmt.Errorf("encode TLV 0x%X: %w", tag, err)
	}
	return encoded, nil
}

// BuildAll encodes a sequence of entries into one container body.
func BuildAll(entries []Entry) ([]byte, error) {
	var out []byte
	for _, e := range entries {
		encoded, err := Build(e.Tag, e.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
	}
	return out, nil
}

func tagHex(tag int) string {
	var raw []byte
	switch {
	case tag > 0xFFFF:
		raw = []byte{byte(tag >> 16), byte(tag >> 8), byte(tag)}
	case tag > 0xFF:
		raw = []byte{byte(tag >> 8), byte(tag)}
	default:
		raw = []byte{byte(tag)}
	}
	return strings.ToUpper(hex.EncodeToString(raw))
}
