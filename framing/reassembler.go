// Package framing reconstructs Harp messages from an arbitrarily chunked byte stream.
//
// Bytes are appended to a growable ring buffer and scanned for frames. A
// candidate frame is taken from the read cursor using its length field; when
// it fails validation the cursor advances by exactly one byte and the scan
// resumes, so noise, dropped bytes and spurious start bytes never stall the
// stream nor hide the frames that follow.
package framing

import (
	"github.com/harp-tech/go-harp/harp"
)

// DefaultInitialCapacity is the starting ring buffer capacity of a Reassembler.
const DefaultInitialCapacity = 4096

// Stats holds cumulative reassembly counters.
type Stats struct {
	// Frames is the number of messages emitted.
	Frames uint64
	// DiscardedBytes is the number of bytes skipped while resynchronizing.
	DiscardedBytes uint64
	// DroppedErrorEvents is the number of error-flagged events suppressed in
	// ignore-errors mode.
	DroppedErrorEvents uint64
}

// Reassembler converts raw bytes into validated messages.
//
// This type is NOT goroutine-safe. A single reader (the transport read loop)
// must own it.
type Reassembler struct {
	ring         *RingBuffer
	ignoreErrors bool
	scratch      [harp.MaxFrameSize]byte
	stats        Stats
}

// Option configures a Reassembler.
type Option interface {
	apply(*Reassembler)
}

type optFunc func(*Reassembler)

func (f optFunc) apply(r *Reassembler) { f(r) }

// WithInitialCapacity sets the initial ring buffer capacity.
func WithInitialCapacity(n int) Option {
	return optFunc(func(r *Reassembler) {
		r.ring = NewRingBuffer(n)
	})
}

// WithIgnoreErrors suppresses Event messages carrying the error flag.
func WithIgnoreErrors(ignore bool) Option {
	return optFunc(func(r *Reassembler) {
		r.ignoreErrors = ignore
	})
}

// NewReassembler creates a Reassembler.
func NewReassembler(opts ...Option) *Reassembler {
	r := &Reassembler{}
	for _, opt := range opts {
		opt.apply(r)
	}
	if r.ring == nil {
		r.ring = NewRingBuffer(DefaultInitialCapacity)
	}

	return r
}

// Write appends raw bytes read from the stream. It never fails.
func (r *Reassembler) Write(p []byte) (int, error) {
	return r.ring.Write(p)
}

// Next returns the next complete message, or false when more input is needed.
func (r *Reassembler) Next() (*harp.Message, bool) {
	for {
		if r.ring.Len() < 1 {
			return nil, false
		}

		// A byte that cannot start a frame is dropped without waiting for its length.
		if !harp.MessageType(r.ring.At(0)).IsValid() {
			r.skip()
			continue
		}

		if r.ring.Len() < 2 {
			return nil, false
		}

		total := int(r.ring.At(1)) + 2
		if total < harp.MinFrameSize {
			r.skip()
			continue
		}
		if r.ring.Len() < total {
			return nil, false
		}

		frame := r.scratch[:total]
		r.ring.Peek(frame)
		if !harp.IsValidFrame(frame) {
			r.skip()
			continue
		}
		r.ring.Discard(total)

		msg := harp.Decode(frame)
		if r.ignoreErrors && msg.Kind() == harp.Event && msg.IsError() {
			r.stats.DroppedErrorEvents++
			continue
		}
		r.stats.Frames++

		return msg, true
	}
}

// Feed appends p and calls emit for every message completed by it, in wire order.
func (r *Reassembler) Feed(p []byte, emit func(*harp.Message)) {
	_, _ = r.Write(p)
	for msg, ok := r.Next(); ok; msg, ok = r.Next() {
		emit(msg)
	}
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (r *Reassembler) Buffered() int { return r.ring.Len() }

// Capacity returns the current ring buffer capacity.
func (r *Reassembler) Capacity() int { return r.ring.Cap() }

// Stats returns a snapshot of the reassembly counters.
func (r *Reassembler) Stats() Stats { return r.stats }

// Reset drops any partially received frame.
func (r *Reassembler) Reset() { r.ring.Reset() }

func (r *Reassembler) skip() {
	r.ring.Discard(1)
	r.stats.DiscardedBytes++
}
