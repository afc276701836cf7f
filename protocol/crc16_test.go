package protocol

import "testing"

func TestCRC16KnownValues(t *testing.T) {
	if got := CRC16([]byte{}); got != 0xFFFF {
		t.Errorf("CRC16 of empty input = 0x%04X, expected 0xFFFF", got)
	}

	// An ACK body as produced by encodeAckNak.
	ack := CRC16([]byte{5, MessageDest})
	if ack == 0 || ack == 0xFFFF {
		t.Errorf("CRC16 of ACK body = 0x%04X, expected a nontrivial value", ack)
	}
}

func TestCRC16Deterministic(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	if CRC16(data) != CRC16(data) {
		t.Error("CRC16 not deterministic for identical input")
	}
}

func TestCRC16DetectsSingleByteChange(t *testing.T) {
	a := CRC16([]byte{0x01, 0x02, 0x03})
	b := CRC16([]byte{0x01, 0x02, 0x04})
	if a == b {
		t.Errorf("CRC16 collision on single-byte change: 0x%04X", a)
	}
}
