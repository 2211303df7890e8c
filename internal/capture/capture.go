package capture

// Wire trace of APDU traffic to a pcap file. Each recorded APDU is
// wrapped in a synthesized Ethernet/IPv4/TCP frame so the trace opens in
// standard analysis tools.

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Direction of one recorded APDU.
type Direction int

const (
	// DirECRToPT marks traffic sent by the cash register.
	DirECRToPT Direction = iota
	// DirPTToECR marks traffic sent by the terminal.
	DirPTToECR
)

const terminalPort = 20007

// Tracer writes APDU traffic to a pcap file.
type Tracer struct {
	mu        sync.Mutex
	file      *os.File
	writer    *pcapgo.Writer
	ecrSeq    uint32
	ptSeq     uint32
	startedAt time.Time
}

// NewTracer creates a pcap trace file at path.
func NewTracer(path string) (*Tracer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap: %w", err)
	}

	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		file.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}

	return &Tracer{
		file:      file,
		writer:    writer,
		ecrSeq:    1,
		ptSeq:     1,
		startedAt: time.Now(),
	}, nil
}

// Record appends one APDU to the trace.
func (t *Tracer) Record(dir Direction, payload []byte) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	srcIP := []byte{192, 168, 100, 10}
	dstIP := []byte{192, 168, 100, 20}
	srcPort := uint16(51000)
	dstPort := uint16(terminalPort)
	seq := t.ecrSeq
	ack := t.ptSeq
	srcMAC := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x02}
	if dir == DirPTToECR {
		srcIP, dstIP = dstIP, srcIP
		srcPort, dstPort = dstPort, srcPort
		seq, ack = t.ptSeq, t.ecrSeq
		srcMAC, dstMAC = dstMAC, srcMAC
	}

	ethernet := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		ACK:     true,
		PSH:     true,
		Seq:     seq,
		Ack:     ack,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("set checksum layer: %w", err)
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buffer, opts, ethernet, ip, tcp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize frame: %w", err)
	}

	frame := buffer.Bytes()
	captureInfo := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := t.writer.WritePacket(captureInfo, frame); err != nil {
		return fmt.Errorf("write pcap packet: %w", err)
	}

	if dir == DirECRToPT {
		t.ecrSeq += uint32(len(payload))
	} else {
		t.ptSeq += uint32(len(payload))
	}
	return nil
}

// Close closes the trace file.
func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}
