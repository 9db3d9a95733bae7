package device

import (
	"context"
	"fmt"

	"github.com/harp-tech/go-harp/harp"
)

// Core register addresses shared by every Harp device.
const (
	RegWhoAmI                byte = 0
	RegHardwareVersionHigh   byte = 1
	RegHardwareVersionLow    byte = 2
	RegAssemblyVersion       byte = 3
	RegCoreVersionHigh       byte = 4
	RegCoreVersionLow        byte = 5
	RegFirmwareVersionHigh   byte = 6
	RegFirmwareVersionLow    byte = 7
	RegTimestampSeconds      byte = 8
	RegTimestampMicroseconds byte = 9
	RegOperationControl      byte = 10
	RegResetDevice           byte = 11
	RegDeviceName            byte = 12
	RegSerialNumber          byte = 13
)

// DeviceNameSize is the size of the NUL-padded device name register.
const DeviceNameSize = 25

// OperationMode is the operation mode field of the OperationControl register.
type OperationMode byte

const (
	StandbyMode OperationMode = 0
	ActiveMode  OperationMode = 1
	SpeedMode   OperationMode = 3
)

func (m OperationMode) String() string {
	switch m {
	case StandbyMode:
		return "Standby"
	case ActiveMode:
		return "Active"
	case SpeedMode:
		return "Speed"
	default:
		return fmt.Sprintf("OperationMode(%d)", byte(m))
	}
}

// OperationControl flags.
const (
	opModeMask          byte = 0x03
	opDumpRegisters     byte = 0x08
	opMuteReplies       byte = 0x10
	opVisualIndicators  byte = 0x20
	opOperationLED      byte = 0x40
	opHeartbeat         byte = 0x80
)

// OperationControl is the content of the OperationControl register.
type OperationControl struct {
	Mode             OperationMode
	DumpRegisters    bool
	MuteReplies      bool
	VisualIndicators bool
	OperationLED     bool
	Heartbeat        bool
}

// Byte encodes the register value.
func (c OperationControl) Byte() byte {
	b := byte(c.Mode) & opModeMask
	for _, f := range []struct {
		set  bool
		flag byte
	}{
		{c.DumpRegisters, opDumpRegisters},
		{c.MuteReplies, opMuteReplies},
		{c.VisualIndicators, opVisualIndicators},
		{c.OperationLED, opOperationLED},
		{c.Heartbeat, opHeartbeat},
	} {
		if f.set {
			b |= f.flag
		}
	}

	return b
}

// ParseOperationControl decodes a register value.
func ParseOperationControl(b byte) OperationControl {
	return OperationControl{
		Mode:             OperationMode(b & opModeMask),
		DumpRegisters:    b&opDumpRegisters != 0,
		MuteReplies:      b&opMuteReplies != 0,
		VisualIndicators: b&opVisualIndicators != 0,
		OperationLED:     b&opOperationLED != 0,
		Heartbeat:        b&opHeartbeat != 0,
	}
}

// ResetMode selects the action of a ResetDevice write.
type ResetMode byte

const (
	ResetDefault       ResetMode = 0x01
	ResetEEPROM        ResetMode = 0x02
	SaveToEEPROM       ResetMode = 0x04
	ResetNameToDefault ResetMode = 0x08
)

// Info gathers the identification registers of a device.
type Info struct {
	WhoAmI          uint16
	HardwareVersion harp.Version
	AssemblyVersion uint8
	CoreVersion     harp.Version
	FirmwareVersion harp.Version
	SerialNumber    uint16
	Name            string
}

// ReadWhoAmI reads the device identifier.
func (d *Device) ReadWhoAmI(ctx context.Context) (uint16, error) {
	return Read[uint16](ctx, d, RegWhoAmI)
}

// ReadHardwareVersion reads the hardware version.
func (d *Device) ReadHardwareVersion(ctx context.Context) (harp.Version, error) {
	return d.readVersion(ctx, RegHardwareVersionHigh, RegHardwareVersionLow)
}

// ReadAssemblyVersion reads the board assembly version.
func (d *Device) ReadAssemblyVersion(ctx context.Context) (uint8, error) {
	return Read[uint8](ctx, d, RegAssemblyVersion)
}

// ReadCoreVersion reads the Harp core version.
func (d *Device) ReadCoreVersion(ctx context.Context) (harp.Version, error) {
	return d.readVersion(ctx, RegCoreVersionHigh, RegCoreVersionLow)
}

// ReadFirmwareVersion reads the firmware version.
func (d *Device) ReadFirmwareVersion(ctx context.Context) (harp.Version, error) {
	return d.readVersion(ctx, RegFirmwareVersionHigh, RegFirmwareVersionLow)
}

// ReadDeviceName reads the device name with its padding removed.
func (d *Device) ReadDeviceName(ctx context.Context) (string, error) {
	raw, err := ReadArray[uint8](ctx, d, RegDeviceName)
	if err != nil {
		return "", err
	}

	return harp.TrimName(raw), nil
}

// ReadSerialNumber reads the serial number.
func (d *Device) ReadSerialNumber(ctx context.Context) (uint16, error) {
	return Read[uint16](ctx, d, RegSerialNumber)
}

// ReadTimestamp returns the device clock in seconds. The reply timestamp is
// used when present since it carries the sub-second part.
func (d *Device) ReadTimestamp(ctx context.Context) (float64, error) {
	reply, err := d.readRegister(ctx, RegTimestampSeconds, harp.U32)
	if err != nil {
		return 0, err
	}

	if ts, ok := reply.Timestamp(); ok {
		return ts, nil
	}

	seconds, err := reply.PayloadUint32()
	if err != nil {
		return 0, err
	}

	return float64(seconds), nil
}

// WriteTimestampSeconds sets the integer part of the device clock.
func (d *Device) WriteTimestampSeconds(ctx context.Context, seconds uint32) error {
	_, err := Write(ctx, d, RegTimestampSeconds, seconds)
	return err
}

// ReadOperationControl reads the OperationControl register.
func (d *Device) ReadOperationControl(ctx context.Context) (OperationControl, error) {
	b, err := Read[uint8](ctx, d, RegOperationControl)
	if err != nil {
		return OperationControl{}, err
	}

	return ParseOperationControl(b), nil
}

// SetOperationControl writes the OperationControl register.
func (d *Device) SetOperationControl(ctx context.Context, c OperationControl) error {
	_, err := Write(ctx, d, RegOperationControl, c.Byte())
	return err
}

// SetOperationMode changes the operation mode, keeping the other
// OperationControl flags as currently set on the device.
func (d *Device) SetOperationMode(ctx context.Context, mode OperationMode) error {
	c, err := d.ReadOperationControl(ctx)
	if err != nil {
		return err
	}
	c.Mode = mode

	return d.SetOperationControl(ctx, c)
}

// Reset writes mode to the ResetDevice register.
func (d *Device) Reset(ctx context.Context, mode ResetMode) error {
	_, err := Write(ctx, d, RegResetDevice, uint8(mode))
	return err
}

// ReadInfo reads every identification register.
func (d *Device) ReadInfo(ctx context.Context) (Info, error) {
	var info Info
	var err error

	if info.WhoAmI, err = d.ReadWhoAmI(ctx); err != nil {
		return info, err
	}
	if info.HardwareVersion, err = d.ReadHardwareVersion(ctx); err != nil {
		return info, err
	}
	if info.AssemblyVersion, err = d.ReadAssemblyVersion(ctx); err != nil {
		return info, err
	}
	if info.CoreVersion, err = d.ReadCoreVersion(ctx); err != nil {
		return info, err
	}
	if info.FirmwareVersion, err = d.ReadFirmwareVersion(ctx); err != nil {
		return info, err
	}
	if info.SerialNumber, err = d.ReadSerialNumber(ctx); err != nil {
		return info, err
	}
	if info.Name, err = d.ReadDeviceName(ctx); err != nil {
		return info, err
	}

	return info, nil
}

// RequireFirmware reads the firmware version and checks that it satisfies
// want. The version read is returned in both cases.
func (d *Device) RequireFirmware(ctx context.Context, want harp.Version) (harp.Version, error) {
	got, err := d.ReadFirmwareVersion(ctx)
	if err != nil {
		return got, err
	}

	if !got.Satisfies(want) {
		return got, fmt.Errorf("%w: device has %s, need %s", ErrIncompatibleVersion, got, want)
	}

	return got, nil
}

func (d *Device) readVersion(ctx context.Context, high, low byte) (harp.Version, error) {
	major, err := Read[uint8](ctx, d, high)
	if err != nil {
		return harp.Version{}, err
	}
	minor, err := Read[uint8](ctx, d, low)
	if err != nil {
		return harp.Version{}, err
	}

	return harp.NewVersion(int(major), int(minor)), nil
}
