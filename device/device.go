package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/harp-tech/go-harp/harp"
	"github.com/harp-tech/go-harp/internal/pool"
	"github.com/harp-tech/go-harp/logger"
	"github.com/harp-tech/go-harp/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// Device issues commands to a Harp device over a transport.
// It is safe for concurrent use.
type Device struct {
	t      *transport.Transport
	opts   options
	logger logger.Logger

	pending *xsync.MapOf[uint64, PendingCommand]
	seq     atomic.Uint64

	metrics Metrics
}

// PendingCommand is a command awaiting its reply.
type PendingCommand struct {
	Command *harp.Message
	Started time.Time
}

// Age returns how long the command has been waiting.
func (p PendingCommand) Age() time.Duration {
	return time.Since(p.Started)
}

// New creates a Device on t. The transport stays owned by the caller.
func New(t *transport.Transport, opts ...Option) (*Device, error) {
	if t == nil {
		return nil, errors.New("device: transport is nil")
	}

	o := options{timeout: DefaultCommandTimeout, logger: logger.GetLogger()}
	for _, opt := range opts {
		if err := opt.apply(&o); err != nil {
			return nil, err
		}
	}

	return &Device{
		t:       t,
		opts:    o,
		logger:  o.logger.With("transportID", t.ID()),
		pending: xsync.NewMapOf[uint64, PendingCommand](),
	}, nil
}

// Transport returns the underlying transport.
func (d *Device) Transport() *transport.Transport { return d.t }

// Metrics returns the command counters.
func (d *Device) Metrics() *Metrics { return &d.metrics }

// Pending returns the number of commands awaiting a reply.
func (d *Device) Pending() int { return d.pending.Size() }

// PendingCommands returns the commands awaiting a reply, oldest first.
func (d *Device) PendingCommands() []PendingCommand {
	cmds := make([]PendingCommand, 0, d.pending.Size())
	d.pending.Range(func(_ uint64, p PendingCommand) bool {
		cmds = append(cmds, p)
		return true
	})
	slices.SortFunc(cmds, func(a, b PendingCommand) int {
		return a.Started.Compare(b.Started)
	})

	return cmds
}

// Command writes cmd and waits for the first reply with the same address and
// kind.
//
// An error-flagged reply yields a *DeviceError. If no reply arrives within
// the command timeout the error wraps both ErrCommandTimeout and
// context.DeadlineExceeded. Cancelling ctx yields an error wrapping
// ctx.Err(). If the transport terminates first the error wraps
// ErrTransportClosed and the terminal cause.
func (d *Device) Command(ctx context.Context, cmd *harp.Message) (*harp.Message, error) {
	if cmd == nil || !cmd.IsValid() {
		return nil, ErrInvalidCommand
	}
	kind := cmd.Kind()
	if kind != harp.Read && kind != harp.Write {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, cmd.MessageType())
	}
	address := cmd.Address()

	// subscribe before writing so that a fast reply cannot be missed
	sub := d.t.Subscribe(transport.MatchReply(address, kind))
	defer sub.Unsubscribe()

	id := d.seq.Add(1)
	d.pending.Store(id, PendingCommand{Command: cmd, Started: time.Now()})
	defer d.pending.Delete(id)

	d.metrics.incCommandCount()

	if err := d.t.Write(cmd); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return nil, fmt.Errorf("%w: %w", ErrTransportClosed, err)
		}

		return nil, err
	}

	var timeoutC <-chan time.Time
	if d.opts.timeout > 0 {
		timer := pool.GetTimer(d.opts.timeout)
		defer pool.PutTimer(timer)
		timeoutC = timer.C
	}

	select {
	case reply, ok := <-sub.C():
		if !ok {
			cause := sub.Err()
			if cause == nil {
				cause = transport.ErrClosed
			}

			return nil, fmt.Errorf("%w: %w", ErrTransportClosed, cause)
		}

		if reply.IsError() {
			d.metrics.incDeviceErrCount()
			d.logger.Debug("device error reply", "kind", kind, "address", address)

			return nil, &DeviceError{Command: cmd, Reply: reply}
		}
		d.metrics.incReplyCount()

		return reply, nil

	case <-timeoutC:
		d.metrics.incTimeoutCount()
		d.logger.Warn("command timed out", "kind", kind, "address", address, "timeout", d.opts.timeout)

		return nil, fmt.Errorf("%w: %s address %d after %s: %w",
			ErrCommandTimeout, kind, address, d.opts.timeout, context.DeadlineExceeded)

	case <-ctx.Done():
		return nil, fmt.Errorf("device: %s address %d: %w", kind, address, ctx.Err())
	}
}

// Read reads a single value of type T from the register at address.
func Read[T harp.Element](ctx context.Context, d *Device, address byte) (T, error) {
	var zero T

	reply, err := d.readRegister(ctx, address, harp.PayloadTypeOf[T]())
	if err != nil {
		return zero, err
	}

	return harp.PayloadValue[T](reply)
}

// ReadArray reads every value of type T from the register at address.
func ReadArray[T harp.Element](ctx context.Context, d *Device, address byte) ([]T, error) {
	reply, err := d.readRegister(ctx, address, harp.PayloadTypeOf[T]())
	if err != nil {
		return nil, err
	}

	return harp.PayloadArray[T](reply)
}

// Write writes values of type T to the register at address and returns the
// device acknowledgement.
func Write[T harp.Element](ctx context.Context, d *Device, address byte, values ...T) (*harp.Message, error) {
	cmd, err := harp.WriteCommand(address, values...)
	if err != nil {
		return nil, err
	}

	return d.Command(ctx, cmd)
}

func (d *Device) readRegister(ctx context.Context, address byte, pt harp.PayloadType) (*harp.Message, error) {
	cmd, err := harp.ReadCommand(address, pt)
	if err != nil {
		return nil, err
	}

	return d.Command(ctx, cmd)
}
