// Package device correlates Harp commands with their replies.
//
// Device.Command writes a Read or Write command through a transport and waits
// for the first reply with the same address and kind. Error-flagged replies
// surface as *DeviceError; timeouts, cancellation and transport termination
// surface as wrapped errors that can be checked with errors.Is.
//
// The package also provides helpers for the core registers every Harp device
// implements, such as ReadWhoAmI, ReadFirmwareVersion and SetOperationMode.
package device
