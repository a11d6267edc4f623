package datatypes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// TimestampSize is the wire size: 4 bytes seconds, 3 bytes fraction, 1 byte quality.
const TimestampSize = 8

var (
	ErrNegativeEpoch = errors.New("negative seconds since epoch")
	ErrEpochTooBig   = errors.New("seconds since epoch do not fit 32 bits")
)

// Timestamp is the IEC 61850 UtcTime (61850-7-2 6.1.2.9).
type Timestamp struct {
	seconds  uint32
	fraction FractionOfSecond
	quality  TimeQuality
}

// NewTimestamp validates that seconds fit an unsigned 32-bit value.
func NewTimestamp(seconds int64, fraction FractionOfSecond, quality TimeQuality) (Timestamp, error) {
	if seconds < 0 {
		return Timestamp{}, fmt.Errorf("%w: %d", ErrNegativeEpoch, seconds)
	}
	if seconds > math.MaxUint32 {
		return Timestamp{}, fmt.Errorf("%w: %d", ErrEpochTooBig, seconds)
	}
	return Timestamp{seconds: uint32(seconds), fraction: fraction, quality: quality}, nil
}

// TimestampFromTime quantizes t to the 24-bit fraction resolution.
func TimestampFromTime(t time.Time, quality TimeQuality) (Timestamp, error) {
	fraction, err := FractionFromNanoseconds(int64(t.Nanosecond()))
	if err != nil {
		return Timestamp{}, err
	}
	return NewTimestamp(t.Unix(), fraction, quality)
}

// TimestampFromBytes decodes the 8-byte wire form.
func TimestampFromBytes(b []byte) (Timestamp, error) {
	if len(b) != TimestampSize {
		return Timestamp{}, fmt.Errorf("%w: timestamp needs %d bytes, got %d", ErrInvalidSize, TimestampSize, len(b))
	}
	fraction, err := FractionFromBytes(b[4:7])
	if err != nil {
		return Timestamp{}, err
	}
	quality, err := TimeQualityFromByte(b[7])
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{
		seconds:  binary.BigEndian.Uint32(b[0:4]),
		fraction: fraction,
		quality:  quality,
	}, nil
}

// AppendBytes appends the 8-byte wire form.
func (ts Timestamp) AppendBytes(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, ts.seconds)
	dst = append(dst, ts.fraction.Bytes()...)
	return append(dst, ts.quality.Byte())
}

func (ts Timestamp) Bytes() []byte {
	return ts.AppendBytes(make([]byte, 0, TimestampSize))
}

func (ts Timestamp) Seconds() uint32 { return ts.seconds }
func (ts Timestamp) Fraction() FractionOfSecond { return ts.fraction }
func (ts Timestamp) Quality() TimeQuality { return ts.quality }

// Time converts to UTC wall time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(int64(ts.seconds), ts.fraction.Nanoseconds()).UTC()
}

func (ts Timestamp) String() string {
	return ts.Time().Format(time.RFC3339Nano) + " (" + ts.quality.String() + ")"
}
