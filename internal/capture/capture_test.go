package capture

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func TestTracerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.pcap")

	tracer, err := NewTracer(path)
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}

	request := []byte{0x06, 0x01, 0x02, 0x04, 0x00}
	ack := []byte{0x80, 0x00, 0x00}
	if err := tracer.Record(DirECRToPT, request); err != nil {
		t.Fatalf("Record request: %v", err)
	}
	if err := tracer.Record(DirPTToECR, ack); err != nil {
		t.Fatalf("Record ack: %v", err)
	}
	if err := tracer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer file.Close()

	reader, err := pcapgo.NewReader(file)
	if err != nil {
		t.Fatalf("pcap reader: %v", err)
	}

	var payloads [][]byte
	for {
		data, _, err := reader.ReadPacketData()
		if err != nil {
			break
		}
		packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
		if app := packet.ApplicationLayer(); app != nil {
			payloads = append(payloads, app.Payload())
		}
	}

	if len(payloads) != 2 {
		t.Fatalf("got %d payloads, want 2", len(payloads))
	}
	if !bytes.Equal(payloads[0], request) || !bytes.Equal(payloads[1], ack) {
		t.Errorf("payloads = % X / % X", payloads[0], payloads[1])
	}
}

func TestNilTracerIsInert(t *testing.T) {
	var tracer *Tracer
	if err := tracer.Record(DirECRToPT, []byte{0x80, 0x00, 0x00}); err != nil {
		t.Errorf("nil tracer Record: %v", err)
	}
	if err := tracer.Close(); err != nil {
		t.Errorf("nil tracer Close: %v", err)
	}
}
