// Package harp implements the binary message format used by Harp devices.
//
// A Harp frame on the wire is laid out as:
//
//	byte 0      : MessageType (Read=1, Write=2, Event=3, bit 3 = error flag)
//	byte 1      : Length, number of bytes from byte 2 through the checksum
//	byte 2      : Address of the device register
//	byte 3      : Port (255 for host-issued commands)
//	byte 4      : PayloadType (bit 7 signed, bit 6 float, bit 4 timestamp, bits 0-3 element size)
//	bytes 5..10 : optional timestamp, u32 LE seconds + u16 LE 32µs ticks
//	bytes N..   : payload, little-endian fixed width elements
//	last byte   : checksum, sum of all previous bytes mod 256
//
// Messages are immutable. [Decode] never fails: a frame with a bad length or
// checksum yields a message whose [Message.IsValid] reports false, and every
// payload accessor on such a message returns [ErrInvalidMessage].
//
// Typed payload access is available both as methods (PayloadUint16,
// PayloadFloatArray, ...) and as generic functions ([PayloadValue],
// [PayloadArray], [TimestampedValue], [TimestampedArray]).
//
// The package also provides [Version], a major.minor version with optional
// wildcard components used to gate protocol and firmware compatibility.
package harp
