package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harp-tech/go-harp/capture"
	"github.com/harp-tech/go-harp/framing"
	"github.com/harp-tech/go-harp/harp"
	"github.com/harp-tech/go-harp/internal/pool"
	"github.com/harp-tech/go-harp/internal/task"
	"github.com/harp-tech/go-harp/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Transport owns a byte stream to a Harp device. It is safe for concurrent
// use by multiple goroutines.
type Transport struct {
	id       uuid.UUID
	cfg      *Config
	logger   logger.Logger
	stream   io.ReadWriteCloser
	readOnly bool

	reasm   *framing.Reassembler // owned by the read loop
	loopErr error                // owned by the read loop
	taskMgr *task.Manager
	state   atomicState

	writeMu sync.Mutex

	subs   *xsync.MapOf[uint64, *Subscription]
	subSeq atomic.Uint64

	done     chan struct{}
	termOnce sync.Once
	errMu    sync.RWMutex
	err      error

	closeOnce       sync.Once
	closeErr        error
	streamCloseOnce sync.Once
	streamCloseErr  error

	metrics Metrics
}

// New starts a Transport on an already open stream. The transport owns the
// stream from now on and closes it on Close or on termination.
//
// Cancelling ctx closes the transport.
func New(ctx context.Context, stream io.ReadWriteCloser, opts ...Option) (*Transport, error) {
	if stream == nil {
		return nil, errors.New("transport: stream is nil")
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	l := cfg.logger.With("transportID", id.String())
	if cfg.name != "" {
		l = l.With("name", cfg.name)
	}

	t := &Transport{
		id:       id,
		cfg:      cfg,
		logger:   l,
		stream:   stream,
		readOnly: isReadOnly(stream),
		reasm: framing.NewReassembler(
			framing.WithInitialCapacity(cfg.initialBufferCapacity),
			framing.WithIgnoreErrors(cfg.ignoreErrors),
		),
		taskMgr: task.NewManager(ctx, l),
		subs:    xsync.NewMapOf[uint64, *Subscription](),
		done:    make(chan struct{}),
	}

	buf := pool.GetBuffer(cfg.readBufferSize)
	err = t.taskMgr.StartLoop("reader",
		func() bool { return t.readOnce(buf) },
		func() {
			pool.PutBuffer(buf)
			t.terminate(t.loopErr)
		},
	)
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-t.done:
		}
	}()

	t.logger.Info("transport opened", "readOnly", t.readOnly)

	return t, nil
}

// ID returns the unique identifier of this transport.
func (t *Transport) ID() string { return t.id.String() }

// Name returns the configured label.
func (t *Transport) Name() string { return t.cfg.name }

// ReadOnly reports whether the underlying stream rejects writes.
func (t *Transport) ReadOnly() bool { return t.readOnly }

// State returns the lifecycle state.
func (t *Transport) State() State { return t.state.Get() }

// Metrics returns the transport counters.
func (t *Transport) Metrics() *Metrics { return &t.metrics }

// Subscribers returns the number of active subscriptions.
func (t *Transport) Subscribers() int { return t.subs.Size() }

// Done is closed once the transport has terminated.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Err returns the error that terminated the transport. It is nil while the
// transport runs and after a clean shutdown.
func (t *Transport) Err() error {
	t.errMu.RLock()
	defer t.errMu.RUnlock()

	return t.err
}

// Subscribe registers a new subscription for the messages matching filter.
// Subscribing to a terminated transport returns a subscription whose channel
// is already closed and whose Err reports the terminal error.
func (t *Transport) Subscribe(filter Filter) *Subscription {
	id := t.subSeq.Add(1)
	s := newSubscription(t, id, filter)
	t.subs.Store(id, s)
	t.metrics.incSubscriberGauge()

	go s.run()

	return s
}

func (t *Transport) removeSubscription(id uint64) {
	if _, ok := t.subs.LoadAndDelete(id); ok {
		t.metrics.decSubscriberGauge()
	}
}

// Write sends msg as a single contiguous frame. Concurrent writes are
// serialized and never interleave on the wire.
func (t *Transport) Write(msg *harp.Message) error {
	if msg == nil || !msg.IsValid() {
		return ErrInvalidMessage
	}

	select {
	case <-t.done:
		if err := t.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}

		return ErrClosed
	default:
	}
	if !t.state.IsOpen() {
		return ErrClosed
	}

	frame := msg.Bytes()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	n, err := t.stream.Write(frame)
	if err == nil && n < len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		t.metrics.incMsgSendErrCount()
		return fmt.Errorf("transport: write %s to address %d: %w", msg.MessageType(), msg.Address(), err)
	}

	t.metrics.incMsgSend(n)
	t.record(capture.Out, frame)
	t.logger.Debug("message sent", "kind", msg.MessageType(), "address", msg.Address(), "size", n)

	return nil
}

// Close stops the read loop, closes the stream and completes every
// subscription. It is idempotent and safe to call from any goroutine.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.state.ToClosing()
		t.logger.Debug("closing transport")

		// closing the stream unblocks a pending read
		t.closeErr = t.closeStream()
		t.taskMgr.Stop()
		if !t.taskMgr.WaitTimeout(t.cfg.closeTimeout) {
			t.logger.Warn("read loop did not exit in time", "timeout", t.cfg.closeTimeout)
		}

		t.terminate(nil)
		t.logger.Info("transport closed",
			"bytesRead", t.metrics.BytesRead.Load(),
			"bytesWritten", t.metrics.BytesWritten.Load(),
		)
	})

	return t.closeErr
}

func (t *Transport) closeStream() error {
	t.streamCloseOnce.Do(func() {
		err := t.stream.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, os.ErrClosed) {
			t.streamCloseErr = err
		}
	})

	return t.streamCloseErr
}

func (t *Transport) readOnce(buf []byte) (more bool) {
	defer func() {
		if r := recover(); r != nil {
			t.loopErr = fmt.Errorf("%w: panic in read loop: %v", ErrStreamFailed, r)
			more = false
		}
	}()

	n, err := t.stream.Read(buf)
	if n > 0 {
		t.metrics.addBytesRead(n)
		t.reasm.Feed(buf[:n], t.publish)

		stats := t.reasm.Stats()
		t.metrics.storeReassembly(stats.DiscardedBytes, stats.DroppedErrorEvents)
	}

	if err != nil {
		t.loopErr = t.classify(err)
		return false
	}

	return true
}

func (t *Transport) classify(err error) error {
	if !t.state.IsOpen() {
		return nil
	}

	if t.readOnly && errors.Is(err, io.EOF) {
		t.logger.Info("end of stream", "buffered", t.reasm.Buffered())
		return nil
	}

	return fmt.Errorf("%w: %w", ErrStreamFailed, err)
}

func (t *Transport) publish(msg *harp.Message) {
	t.metrics.incMsgRecvCount()
	t.record(capture.In, msg.Bytes())

	t.subs.Range(func(_ uint64, s *Subscription) bool {
		if s.matches(msg) {
			s.publish(msg)
		}

		return true
	})
}

func (t *Transport) record(dir capture.Direction, frame []byte) {
	if t.cfg.recorder == nil {
		return
	}

	err := t.cfg.recorder.Record(capture.Record{
		Time:        time.Now(),
		TransportID: t.id.String(),
		Direction:   dir,
		Frame:       frame,
	})
	if err != nil {
		t.logger.Warn("failed to record frame", "direction", dir, "error", err)
	}
}

// terminate records the terminal error, releases the stream and completes
// every subscription. Only the first call has an effect.
func (t *Transport) terminate(err error) {
	t.termOnce.Do(func() {
		t.errMu.Lock()
		t.err = err
		t.errMu.Unlock()

		if err != nil {
			t.logger.Error("transport terminated", "error", err)
		}
		_ = t.closeStream()

		t.state.ToClosed()
		close(t.done)
	})
}
