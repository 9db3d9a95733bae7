package harp

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// TimestampTick is the resolution of the fractional part of a Harp timestamp, in seconds.
const TimestampTick = 32e-6

const (
	timestampSize  = 6
	ticksPerSecond = 31250
	maxSeconds     = math.MaxUint32
)

// Epoch is the origin of Harp timestamps.
var Epoch = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

// TimestampTime converts a Harp timestamp in seconds into a wall clock time.
func TimestampTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return Epoch.Add(time.Duration(sec)*time.Second + time.Duration(math.Round(frac*1e9)))
}

// TimestampFromTime converts a wall clock time into a Harp timestamp in seconds.
func TimestampFromTime(t time.Time) float64 {
	d := t.Sub(Epoch)
	sec := d / time.Second
	rem := d % time.Second

	return float64(sec) + rem.Seconds()
}

// putTimestamp writes ts into dst[0:6], rounding the fraction to the nearest tick.
func putTimestamp(dst []byte, ts float64) error {
	if math.IsNaN(ts) || ts < 0 || ts >= maxSeconds+1 {
		return fmt.Errorf("%w: %v", ErrTimestampRange, ts)
	}

	sec := math.Floor(ts)
	ticks := math.Round((ts - sec) / TimestampTick)
	if ticks >= ticksPerSecond {
		sec++
		ticks = 0
	}
	if sec > maxSeconds {
		return fmt.Errorf("%w: %v", ErrTimestampRange, ts)
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(sec))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(ticks))

	return nil
}

func readTimestamp(src []byte) float64 {
	sec := binary.LittleEndian.Uint32(src[0:4])
	ticks := binary.LittleEndian.Uint16(src[4:6])

	return float64(sec) + float64(ticks)*TimestampTick
}
