package apdu

// ZVT wire framing: command class/instruction, length, data

import (
	"encoding/binary"
	"fmt"
)

// CommandCode is the 2-byte command/response identifier of a ZVT APDU,
// class byte in the high byte and instruction byte in the low byte.
type CommandCode uint16

// Class returns the class byte of the command.
func (c CommandCode) Class() byte {
	return byte(c >> 8)
}

// Instr returns the instruction byte of the command.
func (c CommandCode) Instr() byte {
	return byte(c)
}

func (c CommandCode) String() string {
	return fmt.Sprintf("%02X %02X", c.Class(), c.Instr())
}

// Acknowledgement codes. These are complete 3-byte packets on the wire
// (class, instruction, 0x00) with no length or data of their own.
const (
	CodeAck  CommandCode = 0x8000
	CodeNack CommandCode = 0x8400
)

// Packet is one ZVT APDU. Immutable value; Encode and Decode are pure.
type Packet struct {
	Cmd  CommandCode
	Data []byte
}

// IsAck reports whether the packet is the positive acknowledgement.
func (p Packet) IsAck() bool {
	return p.Cmd == CodeAck
}

// IsNack reports whether the packet is the negative acknowledgement.
func (p Packet) IsNack() bool {
	return p.Cmd == CodeNack
}

// Ack returns the 3-byte positive acknowledgement packet.
func Ack() Packet {
	return Packet{Cmd: CodeAck}
}

// Nack returns the 3-byte negative acknowledgement packet.
func Nack() Packet {
	return Packet{Cmd: CodeNack}
}

// Encode serializes the packet. Data up to 254 bytes uses a one-byte
// length; longer data uses the extended form 0xFF + little-endian uint16.
func Encode(cmd CommandCode, data []byte) []byte {
	var buf []byte
	buf = append(buf, cmd.Class(), cmd.Instr())

	if len(data) <= 254 {
		buf = append(buf, byte(len(data)))
	} else {
		buf = append(buf, 0xFF)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(data)))
	}

	return append(buf, data...)
}

// Bytes serializes the packet.
func (p Packet) Bytes() []byte {
	return Encode(p.Cmd, p.Data)
}

// Decode reads one packet from buf. It returns the packet, the number of
// bytes consumed and true on success. A short buffer yields ok=false with
// zero consumed; this is a framing primitive, not a failure signal, and
// the caller retries once more bytes have arrived.
func Decode(buf []byte) (Packet, int, bool) {
	if len(buf) < 3 {
		return Packet{}, 0, false
	}

	cmd := CommandCode(uint16(buf[0])<<8 | uint16(buf[1]))

	// ACK/NACK are fixed 3-byte packets without a length field.
	if buf[0] == 0x80 || buf[0] == 0x84 {
		return Packet{Cmd: cmd}, 3, true
	}

	length := int(buf[2])
	offset := 3
	if buf[2] == 0xFF {
		if len(buf) < 5 {
			return Packet{}, 0, false
		}
		length = int(binary.LittleEndian.Uint16(buf[3:5]))
		offset = 5
	}

	if len(buf) < offset+length {
		return Packet{}, 0, false
	}

	data := make([]byte, length)
	copy(data, buf[offset:offset+length])

	return Packet{Cmd: cmd, Data: data}, offset + length, true
}
