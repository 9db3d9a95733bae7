// Package transport owns a duplex byte stream to a Harp device.
//
// A Transport runs a single read loop that reassembles frames from the
// stream and publishes every message, in wire order, to all matching
// subscriptions. Writes are serialized so that frames from concurrent callers
// never interleave on the wire.
//
// Each Subscription is backed by its own unbounded queue and delivery
// goroutine: a slow or abandoned consumer never stalls the read loop or any
// other subscriber, and no message is ever dropped.
//
// Termination is reported through Done and Err. A stream I/O failure ends the
// transport with a non-nil error; Close, or the end of a read-only stream such
// as a capture playback, ends it cleanly. Once terminated, every subscription
// drains its pending messages and closes its channel.
//
// Example:
//
//	t, err := transport.Open(ctx, transport.StreamConfig{Kind: transport.StreamSerial, Path: "/dev/ttyUSB0"})
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	sub := t.Subscribe(transport.MatchKind(harp.Event))
//	defer sub.Unsubscribe()
//	for msg := range sub.C() {
//	    fmt.Println(msg)
//	}
package transport
