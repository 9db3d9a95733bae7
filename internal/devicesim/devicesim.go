// Package devicesim simulates a Harp device on the far end of a byte stream.
//
// The simulator answers Read and Write commands from a register map, stamps
// every reply with its own clock and can emit events, reply with the error
// flag or stay silent on selected registers.
package devicesim

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/harp-tech/go-harp/device"
	"github.com/harp-tech/go-harp/framing"
	"github.com/harp-tech/go-harp/harp"
	"github.com/harp-tech/go-harp/internal/task"
	"github.com/harp-tech/go-harp/logger"
)

type register struct {
	payloadType harp.PayloadType
	value       []byte
	readOnly    bool
	fail        bool
	mute        bool
}

// Config describes the identity of the simulated device.
type Config struct {
	WhoAmI          uint16
	HardwareVersion harp.Version
	CoreVersion     harp.Version
	FirmwareVersion harp.Version
	SerialNumber    uint16
	Name            string
}

// DefaultConfig is used by New when no Config is given.
var DefaultConfig = Config{
	WhoAmI:          1216,
	HardwareVersion: harp.NewVersion(1, 1),
	CoreVersion:     harp.NewVersion(1, 13),
	FirmwareVersion: harp.NewVersion(2, 1),
	SerialNumber:    42,
	Name:            "Simulator",
}

// Simulator is an in-process Harp device.
type Simulator struct {
	stream io.ReadWriteCloser
	logger logger.Logger
	start  time.Time

	mu   sync.Mutex
	regs map[byte]*register

	writeMu  sync.Mutex
	received chan *harp.Message

	tasks     *task.Manager
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Simulator serving the core registers described by cfg on
// stream and starts it.
func New(stream io.ReadWriteCloser, cfg Config, l logger.Logger) *Simulator {
	if l == nil {
		l = logger.GetLogger()
	}

	s := &Simulator{
		stream:   stream,
		logger:   l.With("component", "devicesim"),
		start:    time.Now(),
		regs:     make(map[byte]*register),
		received: make(chan *harp.Message, 256),
		done:     make(chan struct{}),
	}
	s.loadCore(cfg)

	s.tasks = task.NewManager(context.Background(), s.logger)
	if err := s.tasks.Start("serve", s.serve); err != nil {
		s.logger.Error("failed to start simulator", "error", err)
		close(s.done)
	}

	return s
}

func (s *Simulator) loadCore(cfg Config) {
	u8 := func(v uint8) []byte { return harp.AppendElements(nil, v) }
	u16 := func(v uint16) []byte { return harp.AppendElements(nil, v) }
	major := func(v harp.Version) uint8 { m, _ := v.Major(); return uint8(m) }
	minor := func(v harp.Version) uint8 { m, _ := v.Minor(); return uint8(m) }

	name := make([]byte, device.DeviceNameSize)
	copy(name, cfg.Name)

	s.regs[device.RegWhoAmI] = &register{payloadType: harp.U16, value: u16(cfg.WhoAmI), readOnly: true}
	s.regs[device.RegHardwareVersionHigh] = &register{payloadType: harp.U8, value: u8(major(cfg.HardwareVersion)), readOnly: true}
	s.regs[device.RegHardwareVersionLow] = &register{payloadType: harp.U8, value: u8(minor(cfg.HardwareVersion)), readOnly: true}
	s.regs[device.RegAssemblyVersion] = &register{payloadType: harp.U8, value: u8(0), readOnly: true}
	s.regs[device.RegCoreVersionHigh] = &register{payloadType: harp.U8, value: u8(major(cfg.CoreVersion)), readOnly: true}
	s.regs[device.RegCoreVersionLow] = &register{payloadType: harp.U8, value: u8(minor(cfg.CoreVersion)), readOnly: true}
	s.regs[device.RegFirmwareVersionHigh] = &register{payloadType: harp.U8, value: u8(major(cfg.FirmwareVersion)), readOnly: true}
	s.regs[device.RegFirmwareVersionLow] = &register{payloadType: harp.U8, value: u8(minor(cfg.FirmwareVersion)), readOnly: true}
	s.regs[device.RegTimestampSeconds] = &register{payloadType: harp.U32, value: harp.AppendElements(nil, uint32(0))}
	s.regs[device.RegTimestampMicroseconds] = &register{payloadType: harp.U16, value: u16(0), readOnly: true}
	s.regs[device.RegOperationControl] = &register{payloadType: harp.U8, value: u8(0x60)}
	s.regs[device.RegResetDevice] = &register{payloadType: harp.U8, value: u8(0)}
	s.regs[device.RegDeviceName] = &register{payloadType: harp.U8, value: name}
	s.regs[device.RegSerialNumber] = &register{payloadType: harp.U16, value: u16(cfg.SerialNumber)}
}

// SetRegister defines or replaces a register.
func (s *Simulator) SetRegister(address byte, payloadType harp.PayloadType, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.regs[address] = &register{payloadType: payloadType.Base(), value: append([]byte(nil), value...)}
}

// Register returns the current raw value of a register.
func (s *Simulator) Register(address byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.regs[address]
	if !ok {
		return nil, false
	}

	return append([]byte(nil), reg.value...), true
}

// FailRegister makes every command on address answered with the error flag.
func (s *Simulator) FailRegister(address byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reg(address).fail = true
}

// MuteRegister makes every command on address go unanswered.
func (s *Simulator) MuteRegister(address byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reg(address).mute = true
}

// Received returns the commands the simulator has parsed, in order. Commands
// are dropped when nobody drains the channel.
func (s *Simulator) Received() <-chan *harp.Message {
	return s.received
}

// Timestamp returns the simulator clock in seconds.
func (s *Simulator) Timestamp() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.timestamp()
}

// Emit writes an Event for address carrying payload, stamped with the
// simulator clock.
func (s *Simulator) Emit(address byte, payloadType harp.PayloadType, payload []byte) error {
	msg, err := harp.NewTimestampedMessage(harp.Event, address, s.Timestamp(), payloadType.Base(), payload)
	if err != nil {
		return err
	}

	return s.send(msg)
}

// WriteRaw writes arbitrary bytes to the stream, for noise injection.
func (s *Simulator) WriteRaw(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.stream.Write(b)

	return err
}

// Done is closed once the simulator stopped serving.
func (s *Simulator) Done() <-chan struct{} {
	return s.done
}

// Close stops the simulator and closes its stream.
func (s *Simulator) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.stream.Close()
		s.tasks.Stop()
		s.tasks.Wait()
		<-s.done
	})

	return err
}

// serve answers commands until the stream is closed or ctx is done.
func (s *Simulator) serve(ctx context.Context) {
	defer close(s.done)

	reasm := framing.NewReassembler()
	buf := make([]byte, 512)
	for ctx.Err() == nil {
		n, err := s.stream.Read(buf)
		if n > 0 {
			reasm.Feed(buf[:n], s.handle)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Debug("simulator read ended", "error", err)
			}

			return
		}
	}
}

func (s *Simulator) handle(cmd *harp.Message) {
	select {
	case s.received <- cmd:
	default:
	}

	reply := s.reply(cmd)
	if reply == nil {
		return
	}

	if err := s.send(reply); err != nil {
		s.logger.Debug("simulator write failed", "error", err)
	}
}

func (s *Simulator) reply(cmd *harp.Message) *harp.Message {
	kind := cmd.Kind()
	if kind != harp.Read && kind != harp.Write {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	address := cmd.Address()
	pt := cmd.PayloadType().Base()
	ts := s.timestamp()

	reg, ok := s.regs[address]
	if !ok {
		return s.errorReply(kind, address, ts, pt)
	}
	if reg.mute {
		return nil
	}
	if reg.fail || pt != reg.payloadType {
		return s.errorReply(kind, address, ts, pt)
	}

	if kind == harp.Write {
		if reg.readOnly {
			return s.errorReply(kind, address, ts, pt)
		}
		reg.value = cmd.Payload()
		if address == device.RegTimestampSeconds {
			seconds, err := harp.PayloadValue[uint32](cmd)
			if err == nil {
				s.start = time.Now().Add(-time.Duration(seconds) * time.Second)
			}
		}
	}

	value := reg.value
	if address == device.RegTimestampSeconds {
		value = harp.AppendElements(nil, uint32(ts))
	}

	msg, err := harp.NewTimestampedMessage(kind, address, ts, reg.payloadType, value)
	if err != nil {
		return s.errorReply(kind, address, ts, pt)
	}

	return msg
}

func (s *Simulator) errorReply(kind harp.MessageType, address byte, ts float64, pt harp.PayloadType) *harp.Message {
	if !pt.IsValid() {
		pt = harp.U8
	}
	msg, err := harp.NewTimestampedMessage(kind|harp.ErrorFlag, address, ts, pt, nil)
	if err != nil {
		return nil
	}

	return msg
}

// reg returns the register at address, creating an empty U8 one. s.mu must be held.
func (s *Simulator) reg(address byte) *register {
	reg, ok := s.regs[address]
	if !ok {
		reg = &register{payloadType: harp.U8}
		s.regs[address] = reg
	}

	return reg
}

// timestamp must be called with s.mu held.
func (s *Simulator) timestamp() float64 {
	return time.Since(s.start).Seconds()
}

func (s *Simulator) send(msg *harp.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.stream.Write(msg.Bytes())

	return err
}
