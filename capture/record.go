package capture

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/harp-tech/go-harp/harp"
)

// Direction tells whether a frame was received from or sent to the device.
type Direction uint8

const (
	// In marks frames received from the device.
	In Direction = 1
	// Out marks frames written by the host.
	Out Direction = 2
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Record is one captured frame. Integer keys keep files compact.
type Record struct {
	Time        time.Time `cbor:"1,keyasint"`
	TransportID string    `cbor:"2,keyasint,omitempty"`
	Direction   Direction `cbor:"3,keyasint"`
	Frame       []byte    `cbor:"4,keyasint"`
}

// Message decodes the captured frame.
func (r Record) Message() *harp.Message {
	return harp.Decode(r.Frame)
}

// Recorder receives captured frames. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(rec Record) error
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

// Records are small fixed-shape maps written only by this package, so the
// decoder rejects anything the encoder would never produce.
func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCoreDeterministic,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
		TimeTag:     cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: invalid CBOR encoding options: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxNestedLevels:   4,
		MaxMapPairs:       16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture: invalid CBOR decoding options: %v", err))
	}
}

// EncodeRecord encodes a Record to CBOR bytes.
func EncodeRecord(rec Record) ([]byte, error) {
	return encMode.Marshal(rec)
}

// DecodeRecord decodes CBOR bytes into a Record.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}

	return rec, nil
}

// NewEncoder creates a CBOR encoder for records that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a CBOR decoder for records that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
