package harp

import (
	"fmt"
	"strings"

	"github.com/harp-tech/go-harp/internal/util"
)

const (
	headerSize   = 5
	checksumSize = 1

	// MinFrameSize is the size of a frame with no timestamp and an empty payload.
	MinFrameSize = headerSize + checksumSize
	// MaxFrameSize is the largest frame representable with a 1-byte length field.
	MaxFrameSize = 0xFF + 2

	// HostPort is the port used by every host-issued message.
	HostPort byte = 0xFF
)

// Message is a single Harp protocol frame.
//
// A Message never changes after construction. Messages built by the encoding
// constructors are always valid; messages built by Decode may not be, and
// callers must check IsValid before trusting the payload.
type Message struct {
	frame []byte
	valid bool
}

// Checksum returns the sum of b modulo 256.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}

	return sum
}

// IsValidFrame reports whether frame is a complete, well-formed Harp frame.
// It does not retain or modify frame.
func IsValidFrame(frame []byte) bool {
	n := len(frame)
	if n < MinFrameSize || n > MaxFrameSize {
		return false
	}
	if int(frame[1]) != n-2 {
		return false
	}
	if !MessageType(frame[0]).IsValid() {
		return false
	}
	if PayloadType(frame[4]).HasTimestamp() && n < MinFrameSize+timestampSize {
		return false
	}

	return Checksum(frame[:n-1]) == frame[n-1]
}

// Decode wraps a copy of frame into a Message. It never fails; use IsValid
// to check the result.
func Decode(frame []byte) *Message {
	f := util.CloneSlice(frame, 0)
	return &Message{frame: f, valid: IsValidFrame(f)}
}

// Encode builds a frame without a timestamp. payloadType must not carry the
// HasTimestamp flag.
func Encode(kind MessageType, address byte, payloadType PayloadType, payload []byte) ([]byte, error) {
	if payloadType.HasTimestamp() {
		return nil, fmt.Errorf("%w: %s requires a timestamp", ErrInvalidPayloadType, payloadType)
	}

	return encode(kind, address, payloadType, payload, nil)
}

// EncodeTimestamped builds a frame carrying timestamp ts, in seconds.
func EncodeTimestamped(kind MessageType, address byte, ts float64, payloadType PayloadType, payload []byte) ([]byte, error) {
	return encode(kind, address, payloadType.WithTimestamp(), payload, &ts)
}

func encode(kind MessageType, address byte, payloadType PayloadType, payload []byte, ts *float64) ([]byte, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidMessageType, byte(kind))
	}
	if !payloadType.IsValid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidPayloadType, byte(payloadType))
	}
	if len(payload)%payloadType.ElementSize() != 0 {
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrPayloadSize, len(payload), payloadType.Base())
	}

	size := headerSize + len(payload) + checksumSize
	if ts != nil {
		size += timestampSize
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrPayloadTooLarge, size, MaxFrameSize)
	}

	frame := make([]byte, size)
	frame[0] = byte(kind)
	frame[1] = byte(size - 2)
	frame[2] = address
	frame[3] = HostPort
	frame[4] = byte(payloadType)

	offset := headerSize
	if ts != nil {
		if err := putTimestamp(frame[offset:offset+timestampSize], *ts); err != nil {
			return nil, err
		}
		offset += timestampSize
	}
	copy(frame[offset:], payload)
	frame[size-1] = Checksum(frame[:size-1])

	return frame, nil
}

// NewMessage builds a message without a timestamp from a raw payload.
func NewMessage(kind MessageType, address byte, payloadType PayloadType, payload []byte) (*Message, error) {
	frame, err := Encode(kind, address, payloadType, payload)
	if err != nil {
		return nil, err
	}

	return &Message{frame: frame, valid: true}, nil
}

// NewTimestampedMessage builds a message carrying timestamp ts from a raw payload.
func NewTimestampedMessage(kind MessageType, address byte, ts float64, payloadType PayloadType, payload []byte) (*Message, error) {
	frame, err := EncodeTimestamped(kind, address, ts, payloadType, payload)
	if err != nil {
		return nil, err
	}

	return &Message{frame: frame, valid: true}, nil
}

// ReadCommand builds a host read request for the register at address.
func ReadCommand(address byte, payloadType PayloadType) (*Message, error) {
	return NewMessage(Read, address, payloadType.Base(), nil)
}

// IsValid reports whether the frame has a consistent length, a known message
// type and a matching checksum.
func (m *Message) IsValid() bool { return m.valid }

// MessageType returns the raw message type, including the error flag.
func (m *Message) MessageType() MessageType { return MessageType(m.byteAt(0)) }

// Kind returns the message type without the error flag.
func (m *Message) Kind() MessageType { return m.MessageType().Kind() }

// IsError reports whether the device flagged this message as an error.
func (m *Message) IsError() bool { return m.MessageType().HasError() }

// Length returns the value of the length field.
func (m *Message) Length() int { return int(m.byteAt(1)) }

// Address returns the register address.
func (m *Message) Address() byte { return m.byteAt(2) }

// Port returns the port field.
func (m *Message) Port() byte { return m.byteAt(3) }

// PayloadType returns the payload type, including the timestamp flag.
func (m *Message) PayloadType() PayloadType { return PayloadType(m.byteAt(4)) }

// HasTimestamp reports whether the message carries a timestamp.
func (m *Message) HasTimestamp() bool {
	return m.valid && m.PayloadType().HasTimestamp()
}

// Timestamp returns the timestamp in seconds, if present.
func (m *Message) Timestamp() (float64, bool) {
	if !m.HasTimestamp() {
		return 0, false
	}

	return readTimestamp(m.frame[headerSize : headerSize+timestampSize]), true
}

// Checksum returns the trailing checksum byte.
func (m *Message) Checksum() byte {
	if len(m.frame) == 0 {
		return 0
	}

	return m.frame[len(m.frame)-1]
}

// Size returns the number of bytes of the frame.
func (m *Message) Size() int { return len(m.frame) }

// Bytes returns a copy of the frame.
func (m *Message) Bytes() []byte { return util.CloneSlice(m.frame, 0) }

// Payload returns a copy of the raw payload bytes. It returns nil for invalid messages.
func (m *Message) Payload() []byte {
	p := m.payload()
	if p == nil {
		return nil
	}

	return util.CloneSlice(p, 0)
}

// PayloadLen returns the number of payload bytes.
func (m *Message) PayloadLen() int { return len(m.payload()) }

func (m *Message) payload() []byte {
	if !m.valid {
		return nil
	}
	start := headerSize
	if m.PayloadType().HasTimestamp() {
		start += timestampSize
	}

	return m.frame[start : len(m.frame)-checksumSize]
}

func (m *Message) byteAt(i int) byte {
	if i >= len(m.frame) {
		return 0
	}

	return m.frame[i]
}

// String renders a short human readable description of the message.
func (m *Message) String() string {
	if !m.valid {
		return fmt.Sprintf("Invalid[% X]", m.frame)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s address=%d port=%d type=%s", m.MessageType(), m.Address(), m.Port(), m.PayloadType().Base())
	if ts, ok := m.Timestamp(); ok {
		fmt.Fprintf(&sb, " ts=%.6f", ts)
	}
	fmt.Fprintf(&sb, " payload=[%s]", util.HexString(m.payload()))

	return sb.String()
}
