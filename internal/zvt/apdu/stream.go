package apdu

// ParseStream extracts all complete packets from buf and returns them
// together with the unconsumed remainder. TCP delivers the APDU stream in
// arbitrary chunks, so both engine sides reassemble through this helper.
func ParseStream(buf []byte) ([]Packet, []byte) {
	var packets []Packet
	offset := 0

	for offset < len(buf) {
		pkt, consumed, ok := Decode(buf[offset:])
		if !ok {
			break
		}
		packets = append(packets, pkt)
		offset += consumed
	}

	remaining := make([]byte, len(buf)-offset)
	copy(remaining, buf[offset:])
	return packets, remaining
}
