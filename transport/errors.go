package transport

import "errors"

var (
	// ErrClosed is returned when writing to a terminated transport.
	ErrClosed = errors.New("transport: closed")
	// ErrStreamFailed wraps the I/O error that terminated a transport.
	ErrStreamFailed = errors.New("transport: stream failed")
	// ErrSubscriberPanic ends a subscription whose filter panicked.
	ErrSubscriberPanic = errors.New("transport: subscription filter panicked")
	// ErrInvalidMessage is returned when writing a nil or invalid message.
	ErrInvalidMessage = errors.New("transport: invalid message")
	// ErrReadOnly is returned by read-only streams on write.
	ErrReadOnly = errors.New("transport: stream is read-only")
	// ErrConfigNil is returned when an option is applied to a nil config.
	ErrConfigNil = errors.New("transport: config is nil")
	// ErrUnknownStream is returned by Open for an unsupported stream kind.
	ErrUnknownStream = errors.New("transport: unknown stream kind")
)
