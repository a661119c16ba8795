// Package segment implements the 20-byte TCP-shaped header this protocol
// carries in every datagram: building, checksumming, validating, and field
// access. See spec.md §3-4.1.
package segment

import "encoding/binary"

const (
	// HeaderLen is the fixed size of every segment header in bytes.
	HeaderLen = 20
	// MaxPayload is the largest payload a single segment may carry.
	MaxPayload = 576
	// MaxDatagram is the largest a single datagram (header + payload) may be.
	MaxDatagram = HeaderLen + MaxPayload

	// dataOffsetWord is the fixed dataOffset field value: 5 32-bit words,
	// i.e. the 20-byte header with no options.
	dataOffsetWord = 0x50
)

// Value is a sequence or acknowledgment number: a position in the byte
// stream, SYN and FIN each consuming one position (spec.md §3). Arithmetic
// wraps silently on uint32 overflow, which is not expected for a finite
// file transfer but must never panic.
type Value uint32

// Add returns v+delta, wrapping on uint32 overflow.
func (v Value) Add(delta uint32) Value { return Value(uint32(v) + delta) }

// Frame is a []byte-backed view over a single segment: a 20-byte header
// followed by 0-MaxPayload bytes of payload. Field accessors read/write
// network byte order directly; there is no separate host-order
// representation to keep in sync with the wire (spec.md §9's byte-order
// note is resolved by construction: Frame only ever speaks wire order).
type Frame struct {
	buf []byte
}

// Parse wraps buf, which must be at least HeaderLen bytes, as a Frame. It
// performs no validation; call Valid to check the checksum before trusting
// any field.
func Parse(buf []byte) (Frame, bool) {
	if len(buf) < HeaderLen {
		return Frame{}, false
	}
	return Frame{buf: buf}, true
}

// RawData returns the frame's underlying bytes (header + payload).
func (f Frame) RawData() []byte { return f.buf }

func (f Frame) SourcePort() uint16      { return binary.BigEndian.Uint16(f.buf[0:2]) }
func (f Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }
func (f Frame) Seq() Value              { return Value(binary.BigEndian.Uint32(f.buf[4:8])) }
func (f Frame) Ack() Value              { return Value(binary.BigEndian.Uint32(f.buf[8:12])) }
func (f Frame) DataOffset() uint8       { return f.buf[12] }
func (f Frame) Flags() Flags            { return Flags(f.buf[13]).Mask() }
func (f Frame) Window() uint16          { return binary.BigEndian.Uint16(f.buf[14:16]) }
func (f Frame) Checksum() uint16        { return binary.BigEndian.Uint16(f.buf[16:18]) }
func (f Frame) UrgentPtr() uint16       { return binary.BigEndian.Uint16(f.buf[18:20]) }

// Payload returns the bytes of buf following the fixed 20-byte header.
func (f Frame) Payload() []byte { return f.buf[HeaderLen:] }

// PayloadLen returns len(f.Payload()).
func (f Frame) PayloadLen() int { return len(f.buf) - HeaderLen }

// Valid reports whether f's header checksum is correct, per spec.md §3's
// definition: the ones'-complement sum of the 10 header words is 0xFFFF.
// A corrupt segment is always silently discardable via this check; there
// is no partial-validity state (spec.md §4.1).
func (f Frame) Valid() bool {
	if len(f.buf) < HeaderLen {
		return false
	}
	return validChecksum(f.buf[:HeaderLen])
}

func (f Frame) String() string {
	return "seg " + f.Flags().String()
}

// Build writes a complete segment (header + payload) into buf, which must
// be at least HeaderLen+len(payload) bytes, and returns the Frame view over
// buf[:HeaderLen+len(payload)]. The checksum is computed last, over the
// header with its checksum field zeroed, per spec.md §4.1; Build never
// fails.
func Build(buf []byte, srcPort, dstPort uint16, seq, ack Value, flags Flags, payload []byte) Frame {
	n := HeaderLen + len(payload)
	buf = buf[:n]
	binary.BigEndian.PutUint16(buf[0:2], srcPort)
	binary.BigEndian.PutUint16(buf[2:4], dstPort)
	binary.BigEndian.PutUint32(buf[4:8], uint32(seq))
	binary.BigEndian.PutUint32(buf[8:12], uint32(ack))
	buf[12] = dataOffsetWord
	buf[13] = byte(flags.Mask())
	binary.BigEndian.PutUint16(buf[14:16], 0) // rcvWindow: always zero, no flow control.
	binary.BigEndian.PutUint16(buf[16:18], 0) // checksum: zeroed before computing.
	binary.BigEndian.PutUint16(buf[18:20], 0) // urgentPtr: always zero.
	copy(buf[HeaderLen:], payload)
	binary.BigEndian.PutUint16(buf[16:18], buildChecksum(buf[:HeaderLen]))
	return Frame{buf: buf}
}
