package harp

import "errors"

var (
	// ErrInvalidMessage indicates that a payload accessor was used on a message
	// whose frame failed validation.
	ErrInvalidMessage = errors.New("harp: invalid message")

	// ErrPayloadTypeMismatch indicates that the payload cannot be interpreted as
	// the requested element type or arity.
	ErrPayloadTypeMismatch = errors.New("harp: payload type mismatch")

	// ErrPayloadTooLarge indicates that an encoded frame would not fit the
	// 1-byte length field.
	ErrPayloadTooLarge = errors.New("harp: payload too large")

	// ErrPayloadSize indicates that the payload length is not a multiple of the
	// element size implied by the payload type.
	ErrPayloadSize = errors.New("harp: payload size does not match payload type")

	// ErrInvalidMessageType indicates an unknown message type on encode.
	ErrInvalidMessageType = errors.New("harp: invalid message type")

	// ErrInvalidPayloadType indicates an unsupported payload type on encode.
	ErrInvalidPayloadType = errors.New("harp: invalid payload type")

	// ErrNoTimestamp indicates that a timestamped accessor was used on a message
	// without a timestamp.
	ErrNoTimestamp = errors.New("harp: message has no timestamp")

	// ErrTimestampRange indicates a timestamp that cannot be encoded in 32-bit seconds.
	ErrTimestampRange = errors.New("harp: timestamp out of range")

	// ErrVersionFormat indicates a malformed version string.
	ErrVersionFormat = errors.New("harp: invalid version format")
)
