package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/harp-tech/go-harp/internal/pool"
)

var (
	// ErrReadOnly is returned when writing to a Playback.
	ErrReadOnly = errors.New("capture: playback is read-only")
	// ErrPlaybackClosed is returned when reading from a closed Playback.
	ErrPlaybackClosed = errors.New("capture: playback closed")
)

// PlaybackOption configures a Playback.
type PlaybackOption func(*Playback)

// WithPacing replays frames with the recorded inter-frame delays divided by
// speed. A speed of 1 is real time; zero or negative disables pacing.
func WithPacing(speed float64) PlaybackOption {
	return func(p *Playback) {
		p.speed = speed
	}
}

// Playback is a read-only byte stream yielding the inbound frames of a
// capture back-to-back. Reads return io.EOF once the capture is exhausted.
type Playback struct {
	reader    *Reader
	pending   []byte
	speed     float64
	last      time.Time
	closed    chan struct{}
	closeOnce sync.Once
}

// NewPlayback creates a Playback over r. Outbound records are skipped.
func NewPlayback(r *Reader, opts ...PlaybackOption) *Playback {
	p := &Playback{reader: r, closed: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Read implements io.Reader.
func (p *Playback) Read(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, ErrPlaybackClosed
	default:
	}

	for len(p.pending) == 0 {
		rec, err := p.reader.Next()
		if err != nil {
			return 0, err
		}
		if rec.Direction != In || len(rec.Frame) == 0 {
			continue
		}
		if err := p.pace(rec.Time); err != nil {
			return 0, err
		}
		p.pending = rec.Frame
	}

	n := copy(b, p.pending)
	p.pending = p.pending[n:]

	return n, nil
}

// Write always fails with ErrReadOnly.
func (p *Playback) Write([]byte) (int, error) {
	return 0, ErrReadOnly
}

// ReadOnly reports that the stream cannot be written to.
func (p *Playback) ReadOnly() bool { return true }

// Close stops the playback and closes the underlying Reader.
func (p *Playback) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.reader.Close()
	})

	return err
}

func (p *Playback) pace(at time.Time) error {
	defer func() { p.last = at }()

	if p.speed <= 0 || p.last.IsZero() {
		return nil
	}

	d := time.Duration(float64(at.Sub(p.last)) / p.speed)
	if d <= 0 {
		return nil
	}

	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-timer.C:
		return nil
	case <-p.closed:
		return ErrPlaybackClosed
	}
}
