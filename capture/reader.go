package capture

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/harp-tech/go-harp/harp"
)

// Filter specifies criteria for selecting records.
// Empty or nil fields match every record.
type Filter struct {
	// TransportID filters by exact transport ID match.
	TransportID string

	// Direction filters by frame direction.
	Direction *Direction

	// Address filters by the register address of the frame.
	Address *byte

	// TimeStart filters records at or after this time.
	TimeStart *time.Time

	// TimeEnd filters records before this time.
	TimeEnd *time.Time
}

func (f *Filter) matches(rec Record) bool {
	if f.TransportID != "" && rec.TransportID != f.TransportID {
		return false
	}
	if f.Direction != nil && rec.Direction != *f.Direction {
		return false
	}
	if f.Address != nil {
		// frames too short to carry an address never match
		if len(rec.Frame) < harp.MinFrameSize || rec.Frame[2] != *f.Address {
			return false
		}
	}
	if f.TimeStart != nil && rec.Time.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !rec.Time.Before(*f.TimeEnd) {
		return false
	}

	return true
}

// Reader streams records from a capture.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// OpenFile opens a capture file and returns a Reader for the records
// matching filter.
func OpenFile(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := NewReader(f, filter)
	r.closer = f

	return r, nil
}

// NewReader creates a Reader over src. When src is an io.Closer, Close closes it.
func NewReader(src io.Reader, filter Filter) *Reader {
	r := &Reader{decoder: NewDecoder(src), filter: filter}
	if c, ok := src.(io.Closer); ok {
		r.closer = c
	}

	return r
}

// Next returns the next record matching the filter.
// It returns io.EOF when no more records are available.
func (r *Reader) Next() (Record, error) {
	for {
		var rec Record
		if err := r.decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}

			return Record{}, err
		}

		if r.filter.matches(rec) {
			return rec, nil
		}
	}
}

// ReadAll returns every remaining record matching the filter.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Close closes the underlying source, if it is closable.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}

	return r.closer.Close()
}
