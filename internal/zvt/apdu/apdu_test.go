package apdu

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		dataLen  int
		extended bool
	}{
		{"empty data", 0, false},
		{"one byte", 1, false},
		{"max short form", 254, false},
		{"min extended form", 255, true},
		{"extended form", 300, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.dataLen)
			for i := range data {
				data[i] = byte(i)
			}

			encoded := Encode(0x0601, data)

			if tt.extended {
				if encoded[2] != 0xFF {
					t.Errorf("length byte = 0x%02X, want extended marker 0xFF", encoded[2])
				}
			} else if encoded[2] == 0xFF {
				t.Errorf("unexpected extended marker for %d data bytes", tt.dataLen)
			}

			pkt, consumed, ok := Decode(encoded)
			if !ok {
				t.Fatalf("Decode failed on complete packet")
			}
			if consumed != len(encoded) {
				t.Errorf("consumed = %d, want %d", consumed, len(encoded))
			}
			if pkt.Cmd != 0x0601 {
				t.Errorf("Cmd = %v, want 06 01", pkt.Cmd)
			}
			if !bytes.Equal(pkt.Data, data) {
				t.Errorf("Data mismatch after round trip")
			}
		})
	}
}

func TestDecodeAckNack(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		cmd  CommandCode
	}{
		{"ACK", []byte{0x80, 0x00, 0x00}, CodeAck},
		{"NACK", []byte{0x84, 0x00, 0x00}, CodeNack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, consumed, ok := Decode(tt.raw)
			if !ok {
				t.Fatalf("Decode failed")
			}
			if consumed != 3 {
				t.Errorf("consumed = %d, want 3", consumed)
			}
			if pkt.Cmd != tt.cmd {
				t.Errorf("Cmd = %v, want %v", pkt.Cmd, tt.cmd)
			}
			if len(pkt.Data) != 0 {
				t.Errorf("ACK/NACK must carry no data, got %d bytes", len(pkt.Data))
			}
		})
	}

	if !Ack().IsAck() || !Nack().IsNack() {
		t.Errorf("Ack()/Nack() constants do not satisfy IsAck/IsNack")
	}
	if !bytes.Equal(Ack().Bytes(), []byte{0x80, 0x00, 0x00}) {
		t.Errorf("Ack().Bytes() = % X, want 80 00 00", Ack().Bytes())
	}
}

func TestDecodeIncomplete(t *testing.T) {
	full := Encode(0x040F, []byte{0x27, 0x00, 0x0B, 0x00, 0x00, 0x01})

	for cut := 0; cut < len(full); cut++ {
		if _, consumed, ok := Decode(full[:cut]); ok || consumed != 0 {
			t.Errorf("Decode on %d of %d bytes: ok=%v consumed=%d, want incomplete", cut, len(full), ok, consumed)
		}
	}

	// Extended length with only part of the length field present.
	if _, _, ok := Decode([]byte{0x06, 0x01, 0xFF, 0x2C}); ok {
		t.Errorf("Decode accepted truncated extended length")
	}
}

func TestParseStream(t *testing.T) {
	a := Encode(0x04FF, []byte{0x02})
	b := []byte{0x80, 0x00, 0x00}
	c := Encode(0x060F, nil)

	var buf []byte
	buf = append(buf, a...)
	buf = append(buf, b...)
	buf = append(buf, c...)
	partial := Encode(0x0601, []byte{0x04, 0x00})
	buf = append(buf, partial[:3]...)

	packets, remaining := ParseStream(buf)
	if len(packets) != 3 {
		t.Fatalf("got %d packets, want 3", len(packets))
	}
	if packets[0].Cmd != 0x04FF || packets[1].Cmd != CodeAck || packets[2].Cmd != 0x060F {
		t.Errorf("unexpected packet sequence: %v %v %v", packets[0].Cmd, packets[1].Cmd, packets[2].Cmd)
	}
	if !bytes.Equal(remaining, partial[:3]) {
		t.Errorf("remaining = % X, want % X", remaining, partial[:3])
	}

	// Feeding the rest completes the fourth packet.
	packets, remaining = ParseStream(append(remaining, partial[3:]...))
	if len(packets) != 1 || packets[0].Cmd != 0x0601 {
		t.Fatalf("reassembly failed: %v", packets)
	}
	if len(remaining) != 0 {
		t.Errorf("remaining = % X, want empty", remaining)
	}
}
