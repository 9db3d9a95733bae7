package harp

import "fmt"

// MessageType identifies the kind of a message, possibly combined with ErrorFlag.
type MessageType byte

const (
	// Read requests (host) or reports (device) the value of a register.
	Read MessageType = 1
	// Write sets (host) or acknowledges (device) the value of a register.
	Write MessageType = 2
	// Event is an unsolicited message emitted by the device.
	Event MessageType = 3

	// ErrorFlag marks a device reply reporting a failure.
	ErrorFlag MessageType = 0x08

	kindMask MessageType = 0x07
)

// Kind returns the message type with the error flag cleared.
func (t MessageType) Kind() MessageType {
	return t & kindMask
}

// HasError reports whether the error flag is set.
func (t MessageType) HasError() bool {
	return t&ErrorFlag != 0
}

// IsValid reports whether t is Read, Write or Event, with or without the error flag.
func (t MessageType) IsValid() bool {
	if t&^(kindMask|ErrorFlag) != 0 {
		return false
	}
	k := t.Kind()

	return k == Read || k == Write || k == Event
}

func (t MessageType) String() string {
	var name string
	switch t.Kind() {
	case Read:
		name = "Read"
	case Write:
		name = "Write"
	case Event:
		name = "Event"
	default:
		return fmt.Sprintf("MessageType(0x%02X)", byte(t))
	}
	if t.HasError() {
		name += "Error"
	}

	return name
}

// PayloadType describes the element type of a payload and whether the message
// carries a timestamp.
type PayloadType byte

const (
	payloadSigned    PayloadType = 0x80
	payloadFloat     PayloadType = 0x40
	payloadSizeMask  PayloadType = 0x0F
	payloadTypeFlags             = payloadSigned | payloadFloat | payloadSizeMask

	// HasTimestamp is the flag ORed into the payload type of timestamped messages.
	HasTimestamp PayloadType = 0x10
)

// Payload element types.
const (
	U8    PayloadType = 0x01
	S8    PayloadType = payloadSigned | 0x01
	U16   PayloadType = 0x02
	S16   PayloadType = payloadSigned | 0x02
	U32   PayloadType = 0x04
	S32   PayloadType = payloadSigned | 0x04
	U64   PayloadType = 0x08
	S64   PayloadType = payloadSigned | 0x08
	Float PayloadType = payloadFloat | 0x04

	TimestampedU8    = HasTimestamp | U8
	TimestampedS8    = HasTimestamp | S8
	TimestampedU16   = HasTimestamp | U16
	TimestampedS16   = HasTimestamp | S16
	TimestampedU32   = HasTimestamp | U32
	TimestampedS32   = HasTimestamp | S32
	TimestampedU64   = HasTimestamp | U64
	TimestampedS64   = HasTimestamp | S64
	TimestampedFloat = HasTimestamp | Float
)

// ElementSize returns the size in bytes of a single payload element.
func (p PayloadType) ElementSize() int {
	return int(p & payloadSizeMask)
}

// IsSigned reports whether elements are signed integers.
func (p PayloadType) IsSigned() bool { return p&payloadSigned != 0 }

// IsFloat reports whether elements are IEEE-754 floating point values.
func (p PayloadType) IsFloat() bool { return p&payloadFloat != 0 }

// HasTimestamp reports whether the timestamp flag is set.
func (p PayloadType) HasTimestamp() bool { return p&HasTimestamp != 0 }

// Base returns the payload type with the timestamp flag cleared.
func (p PayloadType) Base() PayloadType {
	return p & payloadTypeFlags
}

// WithTimestamp returns the payload type with the timestamp flag set.
func (p PayloadType) WithTimestamp() PayloadType {
	return p | HasTimestamp
}

// IsValid reports whether the base type is one of the supported element types.
func (p PayloadType) IsValid() bool {
	if p&^(payloadTypeFlags|HasTimestamp) != 0 {
		return false
	}
	switch p.Base() {
	case U8, S8, U16, S16, U32, S32, U64, S64, Float:
		return true
	default:
		return false
	}
}

func (p PayloadType) String() string {
	var name string
	switch p.Base() {
	case U8:
		name = "U8"
	case S8:
		name = "S8"
	case U16:
		name = "U16"
	case S16:
		name = "S16"
	case U32:
		name = "U32"
	case S32:
		name = "S32"
	case U64:
		name = "U64"
	case S64:
		name = "S64"
	case Float:
		name = "Float"
	default:
		return fmt.Sprintf("PayloadType(0x%02X)", byte(p))
	}
	if p.HasTimestamp() {
		name = "Timestamped" + name
	}

	return name
}

// ParsePayloadType parses a base payload type name such as "U16" or "float".
func ParsePayloadType(s string) (PayloadType, error) {
	switch s {
	case "U8", "u8":
		return U8, nil
	case "S8", "s8":
		return S8, nil
	case "U16", "u16":
		return U16, nil
	case "S16", "s16":
		return S16, nil
	case "U32", "u32":
		return U32, nil
	case "S32", "s32":
		return S32, nil
	case "U64", "u64":
		return U64, nil
	case "S64", "s64":
		return S64, nil
	case "Float", "float", "F32", "f32":
		return Float, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidPayloadType, s)
	}
}
