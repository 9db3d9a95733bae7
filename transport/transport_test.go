package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harp-tech/go-harp/capture"
	"github.com/harp-tech/go-harp/framing"
	"github.com/harp-tech/go-harp/harp"
	"github.com/harp-tech/go-harp/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func newTestTransport(t *testing.T, opts ...Option) (*Transport, io.ReadWriteCloser) {
	t.Helper()

	host, dev := Pipe()
	opts = append([]Option{WithLogger(logger.NewMockLogger().AllowAll())}, opts...)
	tr, err := New(context.Background(), host, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tr.Close()
		_ = dev.Close()
	})

	return tr, dev
}

func event(t *testing.T, address byte, value uint8) *harp.Message {
	t.Helper()
	msg, err := harp.FromValues(harp.Event, address, value)
	require.NoError(t, err)

	return msg
}

func receive(t *testing.T, sub *Subscription) *harp.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func waitClosed(t *testing.T, sub *Subscription) []*harp.Message {
	t.Helper()
	var rest []*harp.Message
	timeout := time.After(waitTimeout)
	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return rest
			}
			rest = append(rest, msg)
		case <-timeout:
			t.Fatal("subscription was not closed")
			return nil
		}
	}
}

func TestTransport_DeliversInWireOrder(t *testing.T) {
	tr, dev := newTestTransport(t)
	all := tr.Subscribe(nil)
	odd := tr.Subscribe(func(msg *harp.Message) bool { return msg.Address()%2 == 1 })

	go func() {
		for i := range 20 {
			_, _ = dev.Write(event(t, byte(i), uint8(i)).Bytes())
		}
	}()

	for i := range 20 {
		msg := receive(t, all)
		assert.Equal(t, byte(i), msg.Address())
	}
	for i := 1; i < 20; i += 2 {
		msg := receive(t, odd)
		assert.Equal(t, byte(i), msg.Address())
	}

	assert.Equal(t, uint64(20), tr.Metrics().MsgRecvCount.Load())
	assert.Equal(t, 2, tr.Subscribers())
}

func TestTransport_ChunkedAndNoisyInput(t *testing.T) {
	tr, dev := newTestTransport(t)
	sub := tr.Subscribe(MatchKind(harp.Event))

	a := event(t, 1, 10).Bytes()
	b := event(t, 2, 20).Bytes()
	stream := append(append(append([]byte{0xAA, 0x00}, a...), 0xFF), b...)

	go func() {
		for _, c := range stream {
			_, _ = dev.Write([]byte{c})
		}
	}()

	assert.Equal(t, a, receive(t, sub).Bytes())
	assert.Equal(t, b, receive(t, sub).Bytes())
	assert.Eventually(t, func() bool { return tr.Metrics().DiscardedBytes.Load() == 3 }, waitTimeout, time.Millisecond)
}

func TestTransport_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	tr, dev := newTestTransport(t)

	stalled := tr.Subscribe(nil)
	fast := tr.Subscribe(nil)

	const n = 500
	go func() {
		for i := range n {
			_, _ = dev.Write(event(t, byte(i), uint8(i)).Bytes())
		}
	}()

	for i := range n {
		msg := receive(t, fast)
		assert.Equal(t, byte(i), msg.Address())
	}

	// nothing was dropped for the stalled subscriber
	assert.Eventually(t, func() bool { return stalled.Pending() >= n-1 }, waitTimeout, time.Millisecond)
	for i := range n {
		assert.Equal(t, byte(i), receive(t, stalled).Address())
	}
}

func TestTransport_ConcurrentWritesDoNotInterleave(t *testing.T) {
	tr, dev := newTestTransport(t)

	const writers = 8
	const perWriter = 50

	got := make(chan *harp.Message, writers*perWriter)
	go func() {
		reasm := framing.NewReassembler()
		buf := make([]byte, 7)
		for {
			n, err := dev.Read(buf)
			if err != nil {
				return
			}
			reasm.Feed(buf[:n], func(msg *harp.Message) { got <- msg })
		}
	}()

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range perWriter {
				cmd, err := harp.WriteCommand(byte(w), uint32(i), uint32(w))
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, tr.Write(cmd))
			}
		}(w)
	}
	wg.Wait()

	next := make([]uint32, writers)
	for range writers * perWriter {
		select {
		case msg := <-got:
			values, err := msg.PayloadUint32Array()
			require.NoError(t, err)
			require.Len(t, values, 2)
			w := values[1]
			assert.Equal(t, byte(w), msg.Address())
			assert.Equal(t, next[w], values[0])
			next[w]++
		case <-time.After(waitTimeout):
			t.Fatal("missing frames")
		}
	}
	assert.Equal(t, uint64(writers*perWriter), tr.Metrics().MsgSendCount.Load())
}

func TestTransport_WriteRejectsInvalid(t *testing.T) {
	tr, _ := newTestTransport(t)

	assert.ErrorIs(t, tr.Write(nil), ErrInvalidMessage)
	assert.ErrorIs(t, tr.Write(harp.Decode([]byte{1, 2, 3})), ErrInvalidMessage)
}

func TestTransport_StreamFailureTerminates(t *testing.T) {
	tr, dev := newTestTransport(t)
	sub := tr.Subscribe(nil)

	for i := range 3 {
		_, err := dev.Write(event(t, byte(i), 1).Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, dev.Close())

	select {
	case <-tr.Done():
	case <-time.After(waitTimeout):
		t.Fatal("transport did not terminate")
	}

	rest := waitClosed(t, sub)
	assert.Len(t, rest, 3, "pending messages must be drained before close")
	assert.ErrorIs(t, sub.Err(), ErrStreamFailed)
	assert.ErrorIs(t, sub.Err(), io.EOF)
	assert.ErrorIs(t, tr.Err(), ErrStreamFailed)
	assert.Equal(t, ClosedState, tr.State())

	err := tr.Write(event(t, 1, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, ErrStreamFailed)

	late := tr.Subscribe(nil)
	assert.Empty(t, waitClosed(t, late))
	assert.ErrorIs(t, late.Err(), ErrStreamFailed)
}

func TestTransport_CloseIsCleanAndIdempotent(t *testing.T) {
	tr, _ := newTestTransport(t)
	sub := tr.Subscribe(nil)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tr.Close())
		}()
	}
	wg.Wait()

	assert.Empty(t, waitClosed(t, sub))
	assert.NoError(t, sub.Err())
	assert.NoError(t, tr.Err())
	assert.ErrorIs(t, tr.Write(event(t, 1, 1)), ErrClosed)
	assert.Equal(t, 0, tr.Subscribers())
}

func TestTransport_ContextCancelCloses(t *testing.T) {
	host, dev := Pipe()
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	tr, err := New(ctx, host, WithLogger(logger.NewMockLogger().AllowAll()))
	require.NoError(t, err)

	cancel()
	select {
	case <-tr.Done():
	case <-time.After(waitTimeout):
		t.Fatal("transport did not close on context cancel")
	}
	assert.NoError(t, tr.Err())

	// host side released
	_, err = dev.Write([]byte{1})
	assert.Error(t, err)
}

func TestTransport_Unsubscribe(t *testing.T) {
	tr, dev := newTestTransport(t)
	sub := tr.Subscribe(nil)
	other := tr.Subscribe(nil)
	require.Equal(t, 2, tr.Subscribers())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 1, tr.Subscribers())
	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.NoError(t, sub.Err())

	go func() { _, _ = dev.Write(event(t, 5, 5).Bytes()) }()
	assert.Equal(t, byte(5), receive(t, other).Address())
}

func TestTransport_IgnoreErrors(t *testing.T) {
	tr, dev := newTestTransport(t, WithIgnoreErrors(true))
	sub := tr.Subscribe(nil)

	errEvent, err := harp.FromValues[uint8](harp.Event|harp.ErrorFlag, 1, 1)
	require.NoError(t, err)
	errReply, err := harp.FromValues[uint8](harp.Read|harp.ErrorFlag, 2, 1)
	require.NoError(t, err)

	go func() {
		_, _ = dev.Write(errEvent.Bytes())
		_, _ = dev.Write(errReply.Bytes())
	}()

	msg := receive(t, sub)
	assert.Equal(t, byte(2), msg.Address())
	assert.True(t, msg.IsError())
	assert.Eventually(t, func() bool { return tr.Metrics().DroppedErrorEvents.Load() == 1 }, waitTimeout, time.Millisecond)
}

type memRecorder struct {
	mu   sync.Mutex
	recs []capture.Record
}

func (m *memRecorder) Record(rec capture.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)

	return nil
}

func (m *memRecorder) records() []capture.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]capture.Record(nil), m.recs...)
}

func TestTransport_Recorder(t *testing.T) {
	rec := &memRecorder{}
	tr, dev := newTestTransport(t, WithRecorder(rec), WithName("rig-1"))
	assert.Equal(t, "rig-1", tr.Name())

	sub := tr.Subscribe(nil)
	go func() {
		buf := make([]byte, 16)
		_, _ = dev.Read(buf)
		_, _ = dev.Write(event(t, 9, 9).Bytes())
	}()

	cmd, err := harp.ReadCommand(9, harp.U8)
	require.NoError(t, err)
	require.NoError(t, tr.Write(cmd))
	receive(t, sub)

	var recs []capture.Record
	require.Eventually(t, func() bool {
		recs = rec.records()
		return len(recs) == 2
	}, waitTimeout, time.Millisecond)

	// the write and the reply are recorded by different goroutines
	byDir := map[capture.Direction]capture.Record{}
	for _, r := range recs {
		byDir[r.Direction] = r
		assert.Equal(t, tr.ID(), r.TransportID)
	}
	assert.Equal(t, cmd.Bytes(), byDir[capture.Out].Frame)
	assert.Equal(t, byte(9), harp.Decode(byDir[capture.In].Frame).Address())
}

func TestOpen_CapturePlayback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.cbor")
	rec, err := capture.NewFileRecorder(path)
	require.NoError(t, err)
	for i := range 5 {
		dir := capture.In
		if i == 2 {
			dir = capture.Out
		}
		require.NoError(t, rec.Record(capture.Record{Time: time.Now(), Direction: dir, Frame: event(t, byte(i), 0).Bytes()}))
	}
	require.NoError(t, rec.Close())

	stream, err := OpenStream(StreamConfig{Kind: StreamCapture, Path: path})
	require.NoError(t, err)

	gate := make(chan struct{})
	tr, err := New(context.Background(), &gatedStream{ReadWriteCloser: stream, gate: gate},
		WithLogger(logger.NewMockLogger().AllowAll()))
	require.NoError(t, err)
	defer tr.Close()
	assert.True(t, tr.ReadOnly())

	sub := tr.Subscribe(nil)
	close(gate)

	msgs := waitClosed(t, sub)
	require.Len(t, msgs, 4)
	for i, want := range []byte{0, 1, 3, 4} {
		assert.Equal(t, want, msgs[i].Address())
	}
	assert.NoError(t, sub.Err())
	assert.NoError(t, tr.Err())
}

func TestOpen_RawFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.bin")
	var raw []byte
	for i := range 4 {
		raw = append(raw, event(t, byte(i), uint8(i)).Bytes()...)
	}
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	stream, err := OpenStream(StreamConfig{Kind: StreamFile, Path: path})
	require.NoError(t, err)

	// wrap in a gate so the subscription exists before the first read
	gate := make(chan struct{})
	tr, err := New(context.Background(), &gatedStream{ReadWriteCloser: stream, gate: gate},
		WithLogger(logger.NewMockLogger().AllowAll()))
	require.NoError(t, err)
	defer tr.Close()

	sub := tr.Subscribe(nil)
	close(gate)

	msgs := waitClosed(t, sub)
	require.Len(t, msgs, 4)
	assert.NoError(t, tr.Err())

	err = tr.Write(event(t, 1, 1))
	assert.Error(t, err)
}

func TestOpen_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	frame := event(t, 77, 1).Bytes()
	ready := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		<-ready
		_, _ = conn.Write(frame)
		// hold the connection until the client is done
		_, _ = conn.Read(make([]byte, 1))
	}()

	tr, err := Open(context.Background(), StreamConfig{Kind: StreamTCP, Address: ln.Addr().String()},
		WithLogger(logger.NewMockLogger().AllowAll()))
	require.NoError(t, err)
	defer tr.Close()
	assert.False(t, tr.ReadOnly())

	sub := tr.Subscribe(MatchAddress(77))
	close(ready)
	assert.Equal(t, byte(77), receive(t, sub).Address())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), StreamConfig{Kind: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownStream)

	_, err = OpenStream(StreamConfig{Kind: StreamTCP})
	assert.Error(t, err)

	_, err = OpenStream(StreamConfig{Kind: StreamSerial})
	assert.Error(t, err)

	_, err = OpenStream(StreamConfig{Kind: StreamFile, Path: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

type gatedStream struct {
	io.ReadWriteCloser
	gate chan struct{}
}

func (g *gatedStream) Read(b []byte) (int, error) {
	<-g.gate
	return g.ReadWriteCloser.Read(b)
}

func (g *gatedStream) ReadOnly() bool { return isReadOnly(g.ReadWriteCloser) }

func TestTransport_PanickingFilterIsIsolated(t *testing.T) {
	tr, dev := newTestTransport(t)
	good := tr.Subscribe(nil)
	bad := tr.Subscribe(func(*harp.Message) bool { panic("bad filter") })

	first := event(t, 1, 1).Bytes()
	second := event(t, 2, 2).Bytes()
	go func() {
		_, _ = dev.Write(first)
		_, _ = dev.Write(second)
	}()

	assert.Equal(t, byte(1), receive(t, good).Address())
	assert.Equal(t, byte(2), receive(t, good).Address())

	assert.Empty(t, waitClosed(t, bad))
	assert.ErrorIs(t, bad.Err(), ErrSubscriberPanic)

	assert.Equal(t, OpenState, tr.State())
	assert.NoError(t, tr.Err())
	assert.Equal(t, 1, tr.Subscribers())

	// the stream still works both ways
	require.NoError(t, tr.Write(event(t, 3, 3)))
	buf := make([]byte, harp.MaxFrameSize)
	n, err := dev.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, byte(3), harp.Decode(buf[:n]).Address())
}

type panicRecorder struct{}

func (panicRecorder) Record(rec capture.Record) error {
	if rec.Direction == capture.In {
		panic("recorder broke")
	}

	return nil
}

func TestTransport_ReadLoopPanicTerminatesWithError(t *testing.T) {
	tr, dev := newTestTransport(t, WithRecorder(panicRecorder{}))
	sub := tr.Subscribe(nil)

	frame := event(t, 4, 4).Bytes()
	go func() { _, _ = dev.Write(frame) }()

	waitClosed(t, sub)
	assert.ErrorIs(t, sub.Err(), ErrStreamFailed)
	assert.ErrorIs(t, tr.Err(), ErrStreamFailed)
	assert.Equal(t, ClosedState, tr.State())

	// the host end was released
	_, err := dev.Write([]byte{1})
	assert.Error(t, err)
}

type trackedStream struct {
	io.Reader
	closed atomic.Bool
}

func (s *trackedStream) Write([]byte) (int, error) { return 0, ErrReadOnly }
func (s *trackedStream) Close() error              { s.closed.Store(true); return nil }
func (s *trackedStream) ReadOnly() bool            { return true }

func TestTransport_CleanEndReleasesStream(t *testing.T) {
	stream := &trackedStream{Reader: bytes.NewReader(event(t, 5, 5).Bytes())}
	tr, err := New(context.Background(), stream, WithLogger(logger.NewMockLogger().AllowAll()))
	require.NoError(t, err)
	defer tr.Close()

	select {
	case <-tr.Done():
	case <-time.After(waitTimeout):
		t.Fatal("transport did not end at end of stream")
	}

	assert.NoError(t, tr.Err())
	assert.True(t, stream.closed.Load())
}
