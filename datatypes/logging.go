package datatypes

import (
	"go.uber.org/zap/zapcore"
)

// TimeQualityMarshaler logs a TimeQuality as a zap object.
type TimeQualityMarshaler struct {
	Q TimeQuality
}

func (m TimeQualityMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("LeapSecondKnown", m.Q.leapSecondKnown)
	enc.AddBool("ClockFailure", m.Q.clockFailure)
	enc.AddBool("ClockNotSync", m.Q.clockNotSync)
	enc.AddUint8("Accuracy", m.Q.accuracy)
	if d, ok := m.Q.AccuracyBound(); ok {
		enc.AddDuration("AccuracyBound", d)
	}
	return nil
}

// TimestampMarshaler logs a Timestamp with its wall-clock time and quality.
type TimestampMarshaler struct {
	TS Timestamp
}

func (m TimestampMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint32("Seconds", m.TS.seconds)
	enc.AddUint32("Fraction", m.TS.fraction.bits)
	enc.AddTime("Time", m.TS.Time())
	return enc.AddObject("Quality", TimeQualityMarshaler{Q: m.TS.quality})
}
