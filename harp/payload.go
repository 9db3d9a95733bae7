package harp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Element is the set of Go types that map onto a Harp payload element.
type Element interface {
	uint8 | int8 | uint16 | int16 | uint32 | int32 | uint64 | int64 | float32
}

// Timestamped pairs a decoded payload with the message timestamp in seconds.
type Timestamped[T any] struct {
	Seconds float64
	Value   T
}

// PayloadTypeOf returns the payload type corresponding to T.
func PayloadTypeOf[T Element]() PayloadType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return U8
	case int8:
		return S8
	case uint16:
		return U16
	case int16:
		return S16
	case uint32:
		return U32
	case int32:
		return S32
	case uint64:
		return U64
	case int64:
		return S64
	default:
		return Float
	}
}

// AppendElements appends the little-endian encoding of values to dst.
func AppendElements[T Element](dst []byte, values ...T) []byte {
	for _, v := range values {
		switch x := any(v).(type) {
		case uint8:
			dst = append(dst, x)
		case int8:
			dst = append(dst, byte(x))
		case uint16:
			dst = binary.LittleEndian.AppendUint16(dst, x)
		case int16:
			dst = binary.LittleEndian.AppendUint16(dst, uint16(x))
		case uint32:
			dst = binary.LittleEndian.AppendUint32(dst, x)
		case int32:
			dst = binary.LittleEndian.AppendUint32(dst, uint32(x))
		case uint64:
			dst = binary.LittleEndian.AppendUint64(dst, x)
		case int64:
			dst = binary.LittleEndian.AppendUint64(dst, uint64(x))
		case float32:
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(x))
		}
	}

	return dst
}

func readElements[T Element](src []byte) []T {
	size := PayloadTypeOf[T]().ElementSize()
	out := make([]T, len(src)/size)
	for i := range out {
		b := src[i*size : (i+1)*size]
		switch p := any(&out[i]).(type) {
		case *uint8:
			*p = b[0]
		case *int8:
			*p = int8(b[0])
		case *uint16:
			*p = binary.LittleEndian.Uint16(b)
		case *int16:
			*p = int16(binary.LittleEndian.Uint16(b))
		case *uint32:
			*p = binary.LittleEndian.Uint32(b)
		case *int32:
			*p = int32(binary.LittleEndian.Uint32(b))
		case *uint64:
			*p = binary.LittleEndian.Uint64(b)
		case *int64:
			*p = int64(binary.LittleEndian.Uint64(b))
		case *float32:
			*p = math.Float32frombits(binary.LittleEndian.Uint32(b))
		}
	}

	return out
}

// FromValues builds a message of the given kind whose payload holds values.
func FromValues[T Element](kind MessageType, address byte, values ...T) (*Message, error) {
	return NewMessage(kind, address, PayloadTypeOf[T](), AppendElements(nil, values...))
}

// FromTimestampedValues builds a timestamped message whose payload holds values.
func FromTimestampedValues[T Element](kind MessageType, address byte, ts float64, values ...T) (*Message, error) {
	return NewTimestampedMessage(kind, address, ts, PayloadTypeOf[T](), AppendElements(nil, values...))
}

// WriteCommand builds a host write request setting the register at address to values.
func WriteCommand[T Element](address byte, values ...T) (*Message, error) {
	return FromValues(Write, address, values...)
}

// typedPayload returns the payload region after checking that it holds whole
// elements of type want.
func (m *Message) typedPayload(want PayloadType) ([]byte, error) {
	if !m.valid {
		return nil, ErrInvalidMessage
	}
	if got := m.PayloadType().Base(); got != want {
		return nil, fmt.Errorf("%w: payload is %s, requested %s", ErrPayloadTypeMismatch, got, want)
	}
	p := m.payload()
	if len(p)%want.ElementSize() != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %s elements", ErrPayloadTypeMismatch, len(p), want)
	}

	return p, nil
}

// PayloadArray decodes every payload element as T.
func PayloadArray[T Element](m *Message) ([]T, error) {
	p, err := m.typedPayload(PayloadTypeOf[T]())
	if err != nil {
		return nil, err
	}

	return readElements[T](p), nil
}

// PayloadValue decodes a payload holding exactly one element of type T.
func PayloadValue[T Element](m *Message) (T, error) {
	var zero T
	values, err := PayloadArray[T](m)
	if err != nil {
		return zero, err
	}
	if len(values) != 1 {
		return zero, fmt.Errorf("%w: payload has %d elements, want 1", ErrPayloadTypeMismatch, len(values))
	}

	return values[0], nil
}

// TimestampedArray decodes every payload element as T along with the timestamp.
func TimestampedArray[T Element](m *Message) (Timestamped[[]T], error) {
	values, err := PayloadArray[T](m)
	if err != nil {
		return Timestamped[[]T]{}, err
	}
	ts, ok := m.Timestamp()
	if !ok {
		return Timestamped[[]T]{}, ErrNoTimestamp
	}

	return Timestamped[[]T]{Seconds: ts, Value: values}, nil
}

// TimestampedValue decodes a single element payload as T along with the timestamp.
func TimestampedValue[T Element](m *Message) (Timestamped[T], error) {
	value, err := PayloadValue[T](m)
	if err != nil {
		return Timestamped[T]{}, err
	}
	ts, ok := m.Timestamp()
	if !ok {
		return Timestamped[T]{}, ErrNoTimestamp
	}

	return Timestamped[T]{Seconds: ts, Value: value}, nil
}

// PayloadUint8 decodes a U8 payload holding exactly one element.
func (m *Message) PayloadUint8() (uint8, error) { return PayloadValue[uint8](m) }

// PayloadInt8 decodes a S8 payload holding exactly one element.
func (m *Message) PayloadInt8() (int8, error) { return PayloadValue[int8](m) }

// PayloadUint16 decodes a U16 payload holding exactly one element.
func (m *Message) PayloadUint16() (uint16, error) { return PayloadValue[uint16](m) }

// PayloadInt16 decodes a S16 payload holding exactly one element.
func (m *Message) PayloadInt16() (int16, error) { return PayloadValue[int16](m) }

// PayloadUint32 decodes a U32 payload holding exactly one element.
func (m *Message) PayloadUint32() (uint32, error) { return PayloadValue[uint32](m) }

// PayloadInt32 decodes a S32 payload holding exactly one element.
func (m *Message) PayloadInt32() (int32, error) { return PayloadValue[int32](m) }

// PayloadUint64 decodes a U64 payload holding exactly one element.
func (m *Message) PayloadUint64() (uint64, error) { return PayloadValue[uint64](m) }

// PayloadInt64 decodes a S64 payload holding exactly one element.
func (m *Message) PayloadInt64() (int64, error) { return PayloadValue[int64](m) }

// PayloadFloat32 decodes a Float payload holding exactly one element.
func (m *Message) PayloadFloat32() (float32, error) { return PayloadValue[float32](m) }

// PayloadUint8Array decodes a U8 payload into all of its elements.
func (m *Message) PayloadUint8Array() ([]uint8, error) { return PayloadArray[uint8](m) }

// PayloadInt8Array decodes a S8 payload into all of its elements.
func (m *Message) PayloadInt8Array() ([]int8, error) { return PayloadArray[int8](m) }

// PayloadUint16Array decodes a U16 payload into all of its elements.
func (m *Message) PayloadUint16Array() ([]uint16, error) { return PayloadArray[uint16](m) }

// PayloadInt16Array decodes a S16 payload into all of its elements.
func (m *Message) PayloadInt16Array() ([]int16, error) { return PayloadArray[int16](m) }

// PayloadUint32Array decodes a U32 payload into all of its elements.
func (m *Message) PayloadUint32Array() ([]uint32, error) { return PayloadArray[uint32](m) }

// PayloadInt32Array decodes a S32 payload into all of its elements.
func (m *Message) PayloadInt32Array() ([]int32, error) { return PayloadArray[int32](m) }

// PayloadUint64Array decodes a U64 payload into all of its elements.
func (m *Message) PayloadUint64Array() ([]uint64, error) { return PayloadArray[uint64](m) }

// PayloadInt64Array decodes a S64 payload into all of its elements.
func (m *Message) PayloadInt64Array() ([]int64, error) { return PayloadArray[int64](m) }

// PayloadFloat32Array decodes a Float payload into all of its elements.
func (m *Message) PayloadFloat32Array() ([]float32, error) { return PayloadArray[float32](m) }

// TrimName converts a fixed-size, NUL padded ASCII register payload such as
// the device name into a string.
func TrimName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return string(bytes.TrimRight(b, " "))
}
