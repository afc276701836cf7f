// Package protocol implements the Klipper-style serial message protocol
// used between the keypad MCU firmware and the host.
package protocol

// Version is the firmware version string reported in the dictionary.
const Version = "keymat-0.1.0"

// Message layout. A message on the wire is:
//
//	<len> <seq> <payload...> <crc16 hi> <crc16 lo> <sync>
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// Sequence bytes carry 0x10 in the high nibble in both directions.
	MessageDest    = 0x10
	MessageSeqMask = 0x0F

	// MessageMax bounds the MCU-side output scratch buffer. Larger than a
	// single message so several responses can be queued between flushes.
	MessageMax = 512
)
