package capture

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// ErrRecorderClosed is returned when recording to a closed FileRecorder.
var ErrRecorderClosed = errors.New("capture: recorder closed")

// FileRecorder appends records to a capture file.
// It is safe for concurrent use from multiple goroutines.
type FileRecorder struct {
	w       io.WriteCloser
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
	count   uint64
}

var _ Recorder = (*FileRecorder)(nil)

// NewFileRecorder opens path for appending, creating it with permissions 0644
// when it does not exist.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return NewRecorder(f), nil
}

// NewRecorder creates a FileRecorder writing to w. Close closes w.
func NewRecorder(w io.WriteCloser) *FileRecorder {
	return &FileRecorder{w: w, encoder: NewEncoder(w)}
}

// Record appends rec to the capture.
func (r *FileRecorder) Record(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}

	if err := r.encoder.Encode(rec); err != nil {
		return err
	}
	r.count++

	return nil
}

// Count returns the number of records written so far.
func (r *FileRecorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.count
}

// Close closes the underlying writer. It is safe to call Close multiple times.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	return r.w.Close()
}
