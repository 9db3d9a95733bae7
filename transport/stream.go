package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/harp-tech/go-harp/capture"
	"github.com/tarm/serial"
)

// StreamKind selects how Open obtains its byte stream.
type StreamKind string

const (
	// StreamSerial opens a serial port (the usual Harp link).
	StreamSerial StreamKind = "serial"
	// StreamTCP dials a TCP endpoint, for example a serial-to-network bridge.
	StreamTCP StreamKind = "tcp"
	// StreamFile replays raw Harp bytes from a file. It is read-only.
	StreamFile StreamKind = "file"
	// StreamCapture replays the inbound frames of a capture file. It is read-only.
	StreamCapture StreamKind = "capture"
)

const (
	// DefaultBaudRate is the Harp serial link speed.
	DefaultBaudRate = 1000000
	// DefaultDialTimeout bounds TCP connection setup.
	DefaultDialTimeout = 3 * time.Second

	// serialReadTimeout lets a blocked serial read observe shutdown.
	serialReadTimeout = 100 * time.Millisecond
)

// StreamConfig describes the byte stream a transport runs on.
type StreamConfig struct {
	Kind StreamKind `yaml:"kind"`
	// Path is the serial device, raw byte file or capture file.
	Path string `yaml:"path"`
	// Address is the TCP endpoint in host:port form.
	Address string `yaml:"address"`
	// BaudRate applies to serial streams. Zero means DefaultBaudRate.
	BaudRate int `yaml:"baud_rate"`
	// DialTimeout applies to TCP streams. Zero means DefaultDialTimeout.
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// PlaybackSpeed paces capture replay; zero replays as fast as possible.
	PlaybackSpeed float64 `yaml:"playback_speed"`
}

// readOnlyStream is implemented by streams that cannot be written to. Their
// end of stream completes a transport cleanly.
type readOnlyStream interface {
	ReadOnly() bool
}

func isReadOnly(s io.ReadWriteCloser) bool {
	ro, ok := s.(readOnlyStream)
	return ok && ro.ReadOnly()
}

// OpenStream opens the byte stream described by sc.
func OpenStream(sc StreamConfig) (io.ReadWriteCloser, error) {
	switch sc.Kind {
	case StreamSerial:
		return openSerial(sc)

	case StreamTCP:
		if sc.Address == "" {
			return nil, errors.New("transport: tcp stream requires an address")
		}
		timeout := sc.DialTimeout
		if timeout <= 0 {
			timeout = DefaultDialTimeout
		}

		return net.DialTimeout("tcp", sc.Address, timeout)

	case StreamFile:
		f, err := os.Open(sc.Path)
		if err != nil {
			return nil, err
		}

		return &fileStream{File: f}, nil

	case StreamCapture:
		r, err := capture.OpenFile(sc.Path, capture.Filter{})
		if err != nil {
			return nil, err
		}

		return capture.NewPlayback(r, capture.WithPacing(sc.PlaybackSpeed)), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStream, sc.Kind)
	}
}

// Open opens the stream described by sc and starts a Transport on it.
func Open(ctx context.Context, sc StreamConfig, opts ...Option) (*Transport, error) {
	stream, err := OpenStream(sc)
	if err != nil {
		return nil, err
	}

	t, err := New(ctx, stream, opts...)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}

	return t, nil
}

// Pipe returns the two ends of a synchronous in-memory duplex stream. Bytes
// written to one end are read from the other.
func Pipe() (io.ReadWriteCloser, io.ReadWriteCloser) {
	return net.Pipe()
}

func openSerial(sc StreamConfig) (io.ReadWriteCloser, error) {
	if sc.Path == "" {
		return nil, errors.New("transport: serial stream requires a path")
	}
	baud := sc.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        sc.Path,
		Baud:        baud,
		ReadTimeout: serialReadTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &serialStream{port: port}, nil
}

// serialStream hides the read timeout of the port, which surfaces as an
// empty read with io.EOF, from the read loop.
type serialStream struct {
	port *serial.Port
}

func (s *serialStream) Read(b []byte) (int, error) {
	n, err := s.port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}

	return n, err
}

func (s *serialStream) Write(b []byte) (int, error) {
	return s.port.Write(b)
}

func (s *serialStream) Close() error {
	return s.port.Close()
}

type fileStream struct {
	*os.File
}

func (f *fileStream) Write([]byte) (int, error) {
	return 0, ErrReadOnly
}

func (f *fileStream) ReadOnly() bool { return true }
