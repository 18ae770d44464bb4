// Package protocol implements the Etherboot netinstall wire framing:
// a fixed 20-byte header carrying source/destination MAC addresses and
// a pair of 16-bit sequence counters, followed by an opaque payload.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size, in bytes, of every frame's header.
const HeaderSize = 20

// MaxPayloadSize is the largest payload the 16-bit length field can
// declare.
const MaxPayloadSize = 65535

// MACSize is the byte width of a hardware address field.
const MACSize = 6

// Frame is a decoded Etherboot frame: a 20-byte header plus payload.
type Frame struct {
	SrcMAC   [MACSize]byte
	DstMAC   [MACSize]byte
	Length   uint16
	CounterA uint16
	CounterB uint16
	Payload  []byte
}

// EncodeError reports a failure to encode a frame.
type EncodeError struct {
	Reason string
}

func (e *EncodeError) Error() string { return "protocol: encode: " + e.Reason }

// ErrPayloadTooLong is returned by Encode when payload exceeds MaxPayloadSize.
var ErrPayloadTooLong = &EncodeError{Reason: "payload too long"}

// DecodeError reports a failure to decode a frame.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "protocol: decode: " + e.Reason }

// ErrShort is returned by Decode when the input is shorter than HeaderSize.
var ErrShort = &DecodeError{Reason: "frame shorter than header"}

// Encode builds the 20-byte header for (src, dst, counterA, counterB)
// followed by payload, little-endian throughout. It fails if payload
// would overflow the 16-bit length field; it never validates src/dst
// beyond their fixed width, which is enforced by the [6]byte type.
func Encode(src, dst [MACSize]byte, counterA, counterB uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLong
	}

	buf := make([]byte, HeaderSize+len(payload))
	copy(buf[0:6], src[:])
	copy(buf[6:12], dst[:])
	// bytes 12-13 reserved, always zero
	binary.LittleEndian.PutUint16(buf[14:16], uint16(len(payload)))
	binary.LittleEndian.PutUint16(buf[16:18], counterA)
	binary.LittleEndian.PutUint16(buf[18:20], counterB)
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Decode parses a frame from raw bytes. It rejects inputs shorter than
// HeaderSize but does not verify that the declared length field
// matches len(payload); callers treat the length as advisory, per the
// real device's behavior.
func Decode(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, ErrShort
	}

	var f Frame
	copy(f.SrcMAC[:], data[0:6])
	copy(f.DstMAC[:], data[6:12])
	f.Length = binary.LittleEndian.Uint16(data[14:16])
	f.CounterA = binary.LittleEndian.Uint16(data[16:18])
	f.CounterB = binary.LittleEndian.Uint16(data[18:20])
	f.Payload = data[HeaderSize:]
	return f, nil
}

// String renders a Frame for logging.
func (f Frame) String() string {
	return fmt.Sprintf("Frame{src=%s, dst=%s, len=%d, a=%d, b=%d, payload=%d bytes}",
		macString(f.SrcMAC), macString(f.DstMAC), f.Length, f.CounterA, f.CounterB, len(f.Payload))
}

func macString(mac [MACSize]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}
