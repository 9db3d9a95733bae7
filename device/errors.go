package device

import (
	"errors"
	"fmt"

	"github.com/harp-tech/go-harp/harp"
)

var (
	// ErrCommandTimeout is wrapped by errors returned when no reply arrived in time.
	ErrCommandTimeout = errors.New("device: command timed out")
	// ErrTransportClosed is wrapped by errors returned when the transport
	// terminated before a reply arrived.
	ErrTransportClosed = errors.New("device: transport closed")
	// ErrInvalidCommand is returned for nil, invalid or Event commands.
	ErrInvalidCommand = errors.New("device: invalid command")
	// ErrIncompatibleVersion is returned by RequireFirmware.
	ErrIncompatibleVersion = errors.New("device: incompatible firmware version")
)

// DeviceError reports an error-flagged reply from the device.
type DeviceError struct {
	// Command is the message that was sent.
	Command *harp.Message
	// Reply is the error-flagged reply.
	Reply *harp.Message
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device: %s reply for address %d", e.Reply.MessageType(), e.Reply.Address())
}

// Address returns the register address of the failed command.
func (e *DeviceError) Address() byte {
	return e.Reply.Address()
}
