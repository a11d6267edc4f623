package datatypes

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Accuracy values of the 5-bit TimeQuality field.
const (
	MaxSpecifiedAccuracy = 24
	UnspecifiedAccuracy  = 31
	// DefaultAccuracy is 7 bits, the 10 ms performance class T0.
	DefaultAccuracy = 7
)

const (
	leapSecondKnownBit = 0x80
	clockFailureBit    = 0x40
	clockNotSyncBit    = 0x20
	accuracyMask       = 0x1F
)

var ErrInvalidAccuracy = errors.New("invalid time accuracy")

// TimeQuality is the quality octet of an IEC 61850 timestamp
// (61850-7-2 6.1.2.9.3.3, 61850-8-1 8.1.3.7).
type TimeQuality struct {
	leapSecondKnown bool
	clockFailure    bool
	clockNotSync    bool
	accuracy        uint8
}

// NewTimeQuality validates the accuracy: 0..24 or 31.
func NewTimeQuality(leapSecondKnown, clockFailure, clockNotSync bool, accuracy uint8) (TimeQuality, error) {
	if accuracy > MaxSpecifiedAccuracy && accuracy != UnspecifiedAccuracy {
		return TimeQuality{}, fmt.Errorf("%w: %d", ErrInvalidAccuracy, accuracy)
	}
	return TimeQuality{
		leapSecondKnown: leapSecondKnown,
		clockFailure:    clockFailure,
		clockNotSync:    clockNotSync,
		accuracy:        accuracy,
	}, nil
}

// DefaultTimeQuality is leap second known, clock ok, synchronised, 7 bits accuracy (0x87).
func DefaultTimeQuality() TimeQuality {
	return TimeQuality{leapSecondKnown: true, accuracy: DefaultAccuracy}
}

// TimeQualityFromByte decodes the quality octet.
func TimeQualityFromByte(b byte) (TimeQuality, error) {
	return NewTimeQuality(
		b&leapSecondKnownBit != 0,
		b&clockFailureBit != 0,
		b&clockNotSyncBit != 0,
		b&accuracyMask,
	)
}

// Byte encodes the quality octet, MSB first: leap, failure, not-sync, accuracy.
func (q TimeQuality) Byte() byte {
	b := q.accuracy & accuracyMask
	if q.leapSecondKnown {
		b |= leapSecondKnownBit
	}
	if q.clockFailure {
		b |= clockFailureBit
	}
	if q.clockNotSync {
		b |= clockNotSyncBit
	}
	return b
}

func (q TimeQuality) LeapSecondKnown() bool { return q.leapSecondKnown }
func (q TimeQuality) ClockFailure() bool { return q.clockFailure }
func (q TimeQuality) ClockNotSync() bool { return q.clockNotSync }
func (q TimeQuality) Accuracy() uint8 { return q.accuracy }

// AccuracyBound interprets the accuracy as an error bound of 2^-accuracy seconds.
// This reading is for diagnostics only. ok is false for unspecified accuracy.
func (q TimeQuality) AccuracyBound() (d time.Duration, ok bool) {
	if q.accuracy == UnspecifiedAccuracy {
		return 0, false
	}
	return time.Second >> q.accuracy, true
}

func (q TimeQuality) accuracySeconds() string {
	if q.accuracy == UnspecifiedAccuracy {
		return "unspecified behaviour"
	}
	f := 1.0 / float64(uint32(1)<<q.accuracy)
	return strconv.FormatFloat(f, 'g', -1, 64) + " seconds accuracy"
}

// String returns a human readable description, e.g.
// "Leap second known, Clock ok, Clock synchronised, 7 bits accuracy [0.0078125 seconds accuracy]".
func (q TimeQuality) String() string {
	leap := "Leap second known"
	if !q.leapSecondKnown {
		leap = "Leap second unknown"
	}
	failure := "Clock ok"
	if q.clockFailure {
		failure = "Clock failure"
	}
	sync := "Clock synchronised"
	if q.clockNotSync {
		sync = "Clock not synchronised"
	}
	return fmt.Sprintf("%s, %s, %s, %d bits accuracy [%s]", leap, failure, sync, q.accuracy, q.accuracySeconds())
}
