// Package capture records Harp traffic to CBOR files and reads it back.
//
// A capture file is a plain sequence of CBOR-encoded Record values, each
// holding one complete frame with its direction, wall-clock time and the ID
// of the transport that carried it. Files can be appended to by several
// transports at once and read back with a Filter.
//
// NewPlayback turns a capture into a read-only byte stream of inbound frames
// so it can be replayed through a transport exactly as if a device sent it.
package capture
